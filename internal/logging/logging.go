// Package logging configures the standard logger.
package logging

import (
	"io"
	"log"
	"os"

	"github.com/X-26-Race-Engineering/X-26-iSpotter/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Setup points the standard logger at stderr and, when cfg.File is set, at a
// size-rotated file as well. The returned closer releases the file.
func Setup(cfg config.LoggingConfig) io.Closer {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if cfg.File == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil)
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, file))
	log.Printf("logging to %s", cfg.File)
	return file
}
