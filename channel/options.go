package channel

import (
	"errors"
	"fmt"

	"github.com/dalspace/loris/logger"
)

// DefaultBaudRate matches the flight UART configuration.
const DefaultBaudRate = 9600

// MaxRateLimit bounds WithRateLimit; faster than any supported UART.
const MaxRateLimit = 4_000_000 / 10

type config struct {
	name        string
	baudRate    int
	rateLimit   int // bytes per second, 0 = unlimited
	createPipes bool
	pipeMode    uint32
	logger      logger.Logger
}

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		baudRate: DefaultBaudRate,
		pipeMode: 0o600,
		logger:   logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option is a functional option for opening a Channel.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithName sets the name used in logs and errors.
func WithName(name string) Option {
	return optFunc(func(cfg *config) error {
		cfg.name = name
		return nil
	})
}

// WithBaudRate sets the serial line speed. Only the standard rates listed by
// SupportedBaudRates are accepted.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *config) error {
		if !isSupportedBaud(baud) {
			return fmt.Errorf("channel: unsupported baud rate %d", baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithRateLimit paces writes to at most bytesPerSecond. Zero disables pacing.
// It is mostly useful on named-pipe links to reproduce UART throughput.
func WithRateLimit(bytesPerSecond int) Option {
	return optFunc(func(cfg *config) error {
		if bytesPerSecond < 0 || bytesPerSecond > MaxRateLimit {
			return fmt.Errorf("channel: rate limit %d out of range [0, %d]", bytesPerSecond, MaxRateLimit)
		}
		cfg.rateLimit = bytesPerSecond

		return nil
	})
}

// WithCreatePipes makes OpenPipePair create missing FIFOs before opening them.
func WithCreatePipes() Option {
	return optFunc(func(cfg *config) error {
		cfg.createPipes = true
		return nil
	})
}

// WithLogger sets the logger for the channel.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("channel: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// SupportedBaudRates lists the line speeds accepted by WithBaudRate.
func SupportedBaudRates() []int {
	return []int{1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200, 230400}
}

func isSupportedBaud(baud int) bool {
	for _, b := range SupportedBaudRates() {
		if b == baud {
			return true
		}
	}

	return false
}
