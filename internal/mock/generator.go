// Package mock provides a synthetic simulator so the dashboard can be
// developed and demonstrated without the real simulator running.
package mock

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/source"
	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/telemetry"
)

// Options shape the simulated session. Zero values pick sensible defaults.
type Options struct {
	// Step is the simulated time advanced per Poll. Using a fixed step
	// keeps the generator deterministic regardless of sampler jitter.
	Step time.Duration
	// TrackLength in metres.
	TrackLength float64
	// FuelCapacity in litres; FuelPerLap is the average burn.
	FuelCapacity float64
	FuelPerLap   float64
	// PitEvery laps the car pits; 0 disables pit stops.
	PitEvery int
	// PitStop is how long the car stands in its box.
	PitStop time.Duration
	// OfflineFor keeps Open reporting ErrNotConnected for this long after
	// the generator is created, mimicking the simulator still loading.
	OfflineFor time.Duration
	Seed       int64
}

func (o *Options) defaults() {
	if o.Step <= 0 {
		o.Step = time.Second / 60
	}
	if o.TrackLength <= 0 {
		o.TrackLength = 5000
	}
	if o.FuelCapacity <= 0 {
		o.FuelCapacity = 100
	}
	if o.FuelPerLap <= 0 {
		o.FuelPerLap = 3.2
	}
	if o.PitStop <= 0 {
		o.PitStop = 8 * time.Second
	}
}

type phase int

const (
	racing phase = iota
	pitLane
	pitBox
)

// Generator is a source.Source that fakes one car lapping a circuit.
type Generator struct {
	opts    Options
	created time.Time
	rng     *rand.Rand
	open    bool

	lap        int
	pct        float64
	lapTime    float64
	bestLap    float64
	lastLap    float64
	fuel       float64
	speed      float64 // km/h
	phase      phase
	boxLeft    float64
	sinceStart float64
}

var _ source.Source = (*Generator)(nil)

func NewGenerator(opts Options) *Generator {
	opts.defaults()
	return &Generator{
		opts:    opts,
		created: time.Now(),
		rng:     rand.New(rand.NewSource(opts.Seed)),
		lap:     1,
		fuel:    opts.FuelCapacity,
	}
}

func (g *Generator) Name() string { return "mock" }

func (g *Generator) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if time.Since(g.created) < g.opts.OfflineFor {
		return source.ErrNotConnected
	}
	g.open = true
	return nil
}

func (g *Generator) Close() error {
	g.open = false
	return nil
}

func (g *Generator) Poll(ctx context.Context) (map[string]any, error) {
	if !g.open {
		return nil, source.ErrNotConnected
	}
	g.advance(g.opts.Step.Seconds())
	return g.reading(), nil
}

// targetSpeed is a smooth speed trace around the lap with three slow corners.
func targetSpeed(pct float64) float64 {
	return 175 + 75*math.Sin(2*math.Pi*3*pct+math.Pi/2)
}

func (g *Generator) advance(dt float64) {
	g.sinceStart += dt
	g.lapTime += dt

	switch g.phase {
	case racing:
		target := targetSpeed(g.pct) + g.rng.Float64()*2 - 1
		// Accelerate more gently than the car brakes.
		rate := 40.0
		if target < g.speed {
			rate = 90
		}
		g.speed += math.Max(-rate*dt*3, math.Min(rate*dt*3, target-g.speed))
		fuelRate := g.opts.FuelPerLap / (g.opts.TrackLength / (175 / 3.6))
		g.fuel = math.Max(0, g.fuel-fuelRate*dt*(0.5+g.throttle()))
		if g.opts.PitEvery > 0 && g.lap%g.opts.PitEvery == 0 && g.pct > 0.97 {
			g.phase = pitLane
		}
	case pitLane:
		g.speed = 60
		if g.pct < 0.02 && g.boxLeft == 0 {
			g.phase = pitBox
			g.boxLeft = g.opts.PitStop.Seconds()
		}
	case pitBox:
		g.speed = 0
		g.boxLeft -= dt
		g.fuel = math.Min(g.opts.FuelCapacity, g.fuel+g.opts.FuelCapacity/g.opts.PitStop.Seconds()*dt)
		if g.boxLeft <= 0 {
			g.boxLeft = 0
			g.phase = racing
			// Leave the pit lane a little way down the road.
			g.pct += 0.02
		}
	}

	g.pct += (g.speed / 3.6) * dt / g.opts.TrackLength
	if g.pct >= 1 {
		g.pct -= 1
		g.completeLap()
	}
}

func (g *Generator) completeLap() {
	g.lastLap = g.lapTime
	if g.bestLap == 0 || g.lapTime < g.bestLap {
		g.bestLap = g.lapTime
	}
	g.lap++
	g.lapTime = 0
}

func (g *Generator) throttle() float64 {
	if g.phase != racing {
		return 0.2
	}
	if targetSpeed(g.pct) >= g.speed {
		return 1
	}
	return 0
}

func (g *Generator) gear() int {
	if g.speed < 1 {
		return 0
	}
	return int(math.Min(6, 1+g.speed/45))
}

func (g *Generator) rpm() float64 {
	gear := g.gear()
	if gear == 0 {
		return 900
	}
	low := float64(gear-1) * 45
	frac := (g.speed - low) / 45
	return 3500 + frac*4000
}

func (g *Generator) reading() map[string]any {
	throttle := g.throttle()
	brake := 0.0
	if g.phase == racing && throttle == 0 {
		brake = 0.8
	}
	return map[string]any{
		telemetry.FieldSpeed:          float32(g.speed),
		telemetry.FieldRPM:            float32(g.rpm()),
		telemetry.FieldGear:           int32(g.gear()),
		telemetry.FieldThrottle:       float32(throttle),
		telemetry.FieldBrake:          float32(brake),
		telemetry.FieldClutch:         float32(0),
		telemetry.FieldLatG:           float32(9.81 * 2 * math.Cos(2*math.Pi*3*g.pct)),
		telemetry.FieldLonG:           float32(9.81 * (throttle - brake)),
		telemetry.FieldLap:            int32(g.lap),
		telemetry.FieldLapDistPct:     float32(g.pct),
		telemetry.FieldLapCurrentTime: float32(g.lapTime),
		telemetry.FieldLapBestTime:    float32(g.bestLap),
		telemetry.FieldLapLastTime:    float32(g.lastLap),
		telemetry.FieldFuelLevel:      float32(g.fuel),
		telemetry.FieldFuelLevelPct:   float32(g.fuel / g.opts.FuelCapacity),
		telemetry.FieldFuelUsePerHour: float32(g.opts.FuelPerLap * 40 * (0.5 + throttle)),
		telemetry.FieldOnPitRoad:      g.phase != racing,
		telemetry.FieldOnTrack:        true,
		telemetry.FieldCarLeftRight:   int32(1),
		telemetry.FieldPosition:       int32(3),
		telemetry.FieldTempLF:         float32(80 + 10*throttle),
		telemetry.FieldTempRF:         float32(82 + 10*throttle),
		telemetry.FieldTempLR:         float32(78 + 8*throttle),
		telemetry.FieldTempRR:         float32(79 + 8*throttle),
		telemetry.FieldTimeRemaining:  float32(math.Max(0, 3600-g.sinceStart)),
	}
}
