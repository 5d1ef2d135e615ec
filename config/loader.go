package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. PDFBRIDGE_RENDERER_TIMEOUT.
const EnvPrefix = "PDFBRIDGE"

var (
	validLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"console": true, "json": true}
)

// Load reads configuration from path (or pdfbridge.yaml in the working
// directory or ./configs when path is empty), then applies environment
// overrides. A .env file in the working directory is loaded first; it never
// replaces variables that are already set.
func Load(path string) (*Config, error) {
	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("pdfbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadEnvFile loads the first of paths that exists. Missing files are
// skipped.
func LoadEnvFile(paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("error loading env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("renderer.path", cfg.Renderer.Path)
	v.SetDefault("renderer.runtime", cfg.Renderer.Runtime)
	v.SetDefault("renderer.args", cfg.Renderer.Args)
	v.SetDefault("renderer.dir", cfg.Renderer.Dir)
	v.SetDefault("renderer.timeout", cfg.Renderer.Timeout)
	v.SetDefault("renderer.max_output_bytes", cfg.Renderer.MaxOutputBytes)
	v.SetDefault("renderer.max_stderr_bytes", cfg.Renderer.MaxStderrBytes)
	v.SetDefault("renderer.kill_grace", cfg.Renderer.KillGrace)
	v.SetDefault("generator.concurrency", cfg.Generator.Concurrency)
	v.SetDefault("generator.max_requests", cfg.Generator.MaxRequests)
	v.SetDefault("store.root", cfg.Store.Root)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
}

func validate(cfg *Config) error {
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("unknown log level %q", cfg.Log.Level)
	}
	if !validFormats[cfg.Log.Format] {
		return fmt.Errorf("unknown log format %q", cfg.Log.Format)
	}
	if cfg.Generator.Concurrency < 0 {
		return fmt.Errorf("generator concurrency must not be negative")
	}
	if cfg.Generator.MaxRequests < 0 {
		return fmt.Errorf("generator max_requests must not be negative")
	}
	return nil
}
