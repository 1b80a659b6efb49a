package dispatch

import (
	"errors"

	"github.com/dalspace/loris/fec"
	"github.com/dalspace/loris/logger"
)

type config struct {
	storageRoot string
	codec       *fec.Codec
	logger      logger.Logger
}

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		storageRoot: ".",
		logger:      logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.codec == nil {
		codec, err := fec.New(fec.DefaultParams)
		if err != nil {
			return nil, err
		}
		cfg.codec = codec
	}

	return cfg, nil
}

// Option is a functional option for creating a Dispatcher.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithStorageRoot confines every remote filename to dir.
func WithStorageRoot(dir string) Option {
	return optFunc(func(cfg *config) error {
		if dir == "" {
			return errors.New("dispatch: storage root must not be empty")
		}
		cfg.storageRoot = dir

		return nil
	})
}

// WithCodec sets the codec used by the encode-file and decode-file opcodes.
func WithCodec(c *fec.Codec) Option {
	return optFunc(func(cfg *config) error {
		if c == nil {
			return errors.New("dispatch: codec must not be nil")
		}
		cfg.codec = c

		return nil
	})
}

// WithLogger sets the logger for the dispatcher.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("dispatch: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
