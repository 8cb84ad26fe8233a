package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/bus"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/config"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/frontend"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/history"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/logging"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/metrics"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/mock"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/sampler"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/source"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/source/irsdk"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/strategy"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/stream"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/ws"
)

type flags struct {
	mock      bool
	dev       bool
	config    string
	port      int
	autostart bool
}

func main() {
	var f flags
	flag.BoolVar(&f.mock, "mock", false, "Use synthetic telemetry instead of the simulator")
	flag.BoolVar(&f.dev, "dev", false, "Development mode (serve frontend from filesystem)")
	flag.StringVar(&f.config, "config", "config.yaml", "Path to config file")
	flag.IntVar(&f.port, "port", 0, "Override server port")
	flag.BoolVar(&f.autostart, "autostart", false, "Start streaming immediately")
	flag.Parse()

	if err := run(f); err != nil {
		log.Fatal(err)
	}
}

// apply layers the command-line overrides over a loaded config.
func (f flags) apply(cfg *config.Config) {
	if f.port > 0 {
		cfg.Server.Port = f.port
	}
	if f.mock {
		cfg.Mock.Enabled = true
	}
	if f.autostart {
		cfg.Server.AutoStart = true
	}
}

func run(f flags) error {
	cfg, err := config.Load(f.config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	f.apply(cfg)

	logFile := logging.Setup(cfg.Logging)
	defer logFile.Close()

	policy, err := bus.ParsePolicy(cfg.Bus.OverrunPolicy)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	m := metrics.New()
	b := bus.New(bus.Options{
		QueueCapacity:  cfg.Bus.QueueCapacity,
		MaxSubscribers: cfg.Bus.MaxSubscribers,
		Policy:         policy,
		Metrics:        m,
	})
	hist := history.New(cfg.History.Size)

	var probe source.Probe
	if !cfg.Mock.Enabled {
		probe = source.NewProcessProbe(cfg.Sampler.Processes...)
	}
	factory := func(lastSeq uint64) (*sampler.Sampler, error) {
		hist.Reset()
		return sampler.New(newSource(cfg), b, sampler.Options{
			Rate:             cfg.Sampler.Rate,
			IdleInterval:     cfg.Sampler.IdleInterval,
			MaxIdleInterval:  cfg.Sampler.MaxIdleInterval,
			Enrichers:        []sampler.Enricher{strategy.NewStint(cfg.Sampler.Sectors)},
			Probe:            probe,
			Observer:         hist.Add,
			Metrics:          m,
			FailureThreshold: cfg.Sampler.FailureThreshold,
			StartSeq:         lastSeq,
		})
	}
	ctl := stream.New(factory, b)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := ws.NewServer(ws.Options{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		BaseContext:    ctx,
		Assets:         assets(f.dev),
	}, b, ctl, hist, m)

	if err := config.Watch(ctx, f.config, func(next *config.Config) {
		f.apply(next)
		applyBusConfig(b, next.Bus)
		if changed := cfg.RestartRequired(next); len(changed) > 0 {
			log.Printf("config: %s changed, restart to apply", strings.Join(changed, ", "))
		}
	}); err != nil {
		log.Printf("config: not watching %s: %v", f.config, err)
	}

	if cfg.Mock.Enabled {
		log.Println("Starting in mock mode")
	}
	if cfg.Server.AutoStart {
		if err := ctl.Start(ctx); err != nil {
			return fmt.Errorf("start stream: %w", err)
		}
	}
	defer func() {
		if err := ctl.Stop(); err != nil && !errors.Is(err, stream.ErrNotRunning) {
			log.Printf("stop stream: %v", err)
		}
	}()

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	if err := ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	log.Println("Shutting down...")
	return nil
}

func newSource(cfg *config.Config) source.Source {
	if cfg.Mock.Enabled {
		return mock.NewGenerator(mock.Options{
			Seed:       cfg.Mock.Seed,
			PitEvery:   cfg.Mock.PitEvery,
			OfflineFor: cfg.Mock.OfflineFor,
		})
	}
	return irsdk.New()
}

// applyBusConfig hot-applies the bus settings. They affect subscribers that
// register afterwards.
func applyBusConfig(b *bus.Bus, cfg config.BusConfig) {
	policy, err := bus.ParsePolicy(cfg.OverrunPolicy)
	if err != nil {
		log.Printf("config: %v", err)
		return
	}
	b.SetQueueCapacity(cfg.QueueCapacity)
	b.SetMaxSubscribers(cfg.MaxSubscribers)
	b.SetPolicy(policy)
	log.Printf("config: bus capacity=%d max_subscribers=%d policy=%s", cfg.QueueCapacity, cfg.MaxSubscribers, policy)
}

// assets picks the dashboard handler: the filesystem in dev mode, otherwise
// the embedded copy, falling back to the filesystem when built without it.
func assets(dev bool) http.Handler {
	if !dev {
		if h := frontend.Handler(); h != nil {
			return h
		}
	}
	dir := filepath.Join("internal", "frontend", "static")
	if _, err := os.Stat(dir); err != nil {
		log.Printf("No dashboard assets found at %s", dir)
		return nil
	}
	log.Printf("Serving dashboard from %s", dir)
	return http.FileServer(http.Dir(dir))
}
