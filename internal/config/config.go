// Package config loads the loris YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dalspace/loris/channel"
	"github.com/dalspace/loris/fec"
	"github.com/dalspace/loris/hardware"
	"github.com/dalspace/loris/logger"
)

// DefaultDevice is the flight computer's radio UART.
const DefaultDevice = "/dev/colibri-uartb"

// Config is the complete loris configuration.
type Config struct {
	Link     LinkConfig      `yaml:"link"`
	FEC      fec.Params      `yaml:"fec"`
	Storage  StorageConfig   `yaml:"storage"`
	Hardware hardware.Config `yaml:"hardware"`
	Log      LogConfig       `yaml:"log"`
	Metrics  MetricsConfig   `yaml:"metrics"`
}

// LinkConfig selects and tunes the byte channel. When RxPipe and TxPipe are
// set the link runs over a named-pipe pair, otherwise over Device.
type LinkConfig struct {
	Device      string `yaml:"device"`
	Baud        int    `yaml:"baud"`
	RxPipe      string `yaml:"rx_pipe"`
	TxPipe      string `yaml:"tx_pipe"`
	Address     int    `yaml:"address"`
	CreatePipes bool   `yaml:"create_pipes"`
	// Encoded selects the FEC front end for the listener and operator commands.
	Encoded bool `yaml:"fec"`
	// RateLimit paces writes in bytes per second, 0 = unlimited.
	RateLimit    int           `yaml:"rate_limit"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// UsesPipes reports whether the link runs over named pipes.
func (l LinkConfig) UsesPipes() bool {
	return l.RxPipe != "" || l.TxPipe != ""
}

// StorageConfig confines remote file operations.
type StorageConfig struct {
	Root string `yaml:"root"`
}

// LogConfig configures the default logger.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Link: LinkConfig{
			Device:       DefaultDevice,
			Baud:         channel.DefaultBaudRate,
			PollInterval: 100 * time.Millisecond,
		},
		FEC:      fec.DefaultParams,
		Storage:  StorageConfig{Root: "."},
		Hardware: hardware.DefaultConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: logger.FormatJSON,
		},
		Metrics: MetricsConfig{Path: "/metrics"},
	}
}

// Load reads path on top of the defaults. A missing file yields the
// defaults; an empty path does too.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(expandPath(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	path = expandPath(path)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}

	return nil
}

// Validate checks the configuration for values the components would reject.
func (c *Config) Validate() error {
	if c.Link.UsesPipes() {
		if c.Link.RxPipe == "" || c.Link.TxPipe == "" {
			return errors.New("link: rx_pipe and tx_pipe must be set together")
		}
		if c.Link.RxPipe == c.Link.TxPipe {
			return errors.New("link: rx_pipe and tx_pipe must differ")
		}
	} else if c.Link.Device == "" {
		return errors.New("link: either device or rx_pipe/tx_pipe is required")
	}

	if !validBaud(c.Link.Baud) {
		return fmt.Errorf("link: unsupported baud %d", c.Link.Baud)
	}
	if c.Link.RateLimit < 0 {
		return fmt.Errorf("link: rate_limit must not be negative, got %d", c.Link.RateLimit)
	}
	if c.Link.BlockTimeout < 0 {
		return fmt.Errorf("link: block_timeout must not be negative, got %v", c.Link.BlockTimeout)
	}
	if c.Link.PollInterval < time.Millisecond {
		return fmt.Errorf("link: poll_interval must be at least 1ms, got %v", c.Link.PollInterval)
	}

	if err := c.FEC.Validate(); err != nil {
		return err
	}

	if c.Storage.Root == "" {
		return errors.New("storage: root is required")
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != logger.FormatJSON && c.Log.Format != logger.FormatConsole {
		return fmt.Errorf("log: invalid format %q", c.Log.Format)
	}

	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics: path must start with /, got %q", c.Metrics.Path)
	}

	return nil
}

func validBaud(baud int) bool {
	for _, b := range channel.SupportedBaudRates() {
		if b == baud {
			return true
		}
	}

	return false
}

func (c *Config) expandPaths() {
	c.Link.Device = expandPath(c.Link.Device)
	c.Link.RxPipe = expandPath(c.Link.RxPipe)
	c.Link.TxPipe = expandPath(c.Link.TxPipe)
	c.Storage.Root = expandPath(c.Storage.Root)
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}
