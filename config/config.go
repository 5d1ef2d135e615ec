package config

import (
	"time"

	bridgeprocess "github.com/goliatone/go-pdfbridge/adapters/process"
	"github.com/goliatone/go-pdfbridge/bridge"
)

// Config holds the pdfbridge command line configuration.
type Config struct {
	Renderer  RendererConfig  `mapstructure:"renderer"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Store     StoreConfig     `mapstructure:"store"`
	Log       LogConfig       `mapstructure:"log"`
}

// RendererConfig configures the renderer process.
type RendererConfig struct {
	Path           string        `mapstructure:"path"`
	Runtime        string        `mapstructure:"runtime"`
	Args           []string      `mapstructure:"args"`
	Dir            string        `mapstructure:"dir"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxOutputBytes int64         `mapstructure:"max_output_bytes"`
	MaxStderrBytes int64         `mapstructure:"max_stderr_bytes"`
	KillGrace      time.Duration `mapstructure:"kill_grace"`
}

// GeneratorConfig configures batch generation.
type GeneratorConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	MaxRequests int `mapstructure:"max_requests"`
}

// StoreConfig configures the document store.
type StoreConfig struct {
	Root string `mapstructure:"root"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Renderer: RendererConfig{
			Timeout:        bridgeprocess.DefaultTimeout,
			MaxOutputBytes: bridgeprocess.DefaultMaxOutputBytes,
			MaxStderrBytes: bridgeprocess.DefaultMaxStderrBytes,
			KillGrace:      bridgeprocess.DefaultKillGrace,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// EngineConfig converts the renderer section into engine configuration.
func (c Config) EngineConfig(logger bridge.Logger) bridgeprocess.Config {
	return bridgeprocess.Config{
		RendererPath:   c.Renderer.Path,
		Runtime:        c.Renderer.Runtime,
		Args:           append([]string{}, c.Renderer.Args...),
		Dir:            c.Renderer.Dir,
		Timeout:        c.Renderer.Timeout,
		MaxOutputBytes: c.Renderer.MaxOutputBytes,
		MaxStderrBytes: c.Renderer.MaxStderrBytes,
		KillGrace:      c.Renderer.KillGrace,
		Logger:         logger,
	}
}
