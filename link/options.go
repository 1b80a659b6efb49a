package link

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalspace/loris/fec"
	"github.com/dalspace/loris/logger"
)

const (
	// DefaultPollInterval is how long Await waits for inbound data before it
	// releases the conversation lock and tries again.
	DefaultPollInterval = 100 * time.Millisecond
	// MaxBlockTimeout bounds WithBlockTimeout.
	MaxBlockTimeout = 10 * time.Minute
)

type config struct {
	params       fec.Params
	blockTimeout time.Duration
	pollInterval time.Duration
	logger       logger.Logger
}

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		params:       fec.DefaultParams,
		pollInterval: DefaultPollInterval,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option is a functional option for creating a Link.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithFECParams sets the block shape used by the FEC front end.
func WithFECParams(p fec.Params) Option {
	return optFunc(func(cfg *config) error {
		if err := p.Validate(); err != nil {
			return err
		}
		cfg.params = p

		return nil
	})
}

// WithBlockTimeout sets a deadline for every underlying read. Zero, the
// default, blocks until data arrives.
func WithBlockTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < 0 || d > MaxBlockTimeout {
			return fmt.Errorf("link: block timeout %v out of range [0, %v]", d, MaxBlockTimeout)
		}
		cfg.blockTimeout = d

		return nil
	})
}

// WithPollInterval sets the idle polling interval used by Await.
func WithPollInterval(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d < time.Millisecond || d > time.Minute {
			return fmt.Errorf("link: poll interval %v out of range [1ms, 1m]", d)
		}
		cfg.pollInterval = d

		return nil
	})
}

// WithLogger sets the logger for the link.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("link: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
