//go:build unix

package channel

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// OpenPipePair opens a duplex channel over two named pipes. rxPath is read
// from and txPath is written to; the peer uses the same two paths swapped.
//
// The open order is derived from address (see RoleForAddress). The call
// blocks until the peer opens its ends, so two endpoints whose addresses have
// the same parity never return.
func OpenPipePair(rxPath, txPath string, address int, opts ...Option) (*Channel, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	if cfg.name == "" {
		cfg.name = rxPath + "<>" + txPath
	}

	if cfg.createPipes {
		if err := ensureFifo(rxPath, cfg.pipeMode); err != nil {
			return nil, err
		}
		if err := ensureFifo(txPath, cfg.pipeMode); err != nil {
			return nil, err
		}
	}

	role := RoleForAddress(address)
	cfg.logger.Debug("channel: opening pipe pair", "rx", rxPath, "tx", txPath, "address", address, "role", role)

	var rx, tx *os.File

	switch role {
	case RoleInitiator:
		if tx, err = openPipe(txPath, os.O_WRONLY); err != nil {
			return nil, err
		}
		if rx, err = openPipe(rxPath, os.O_RDONLY); err != nil {
			_ = tx.Close()
			return nil, err
		}
	default:
		if rx, err = openPipe(rxPath, os.O_RDONLY); err != nil {
			return nil, err
		}
		if tx, err = openPipe(txPath, os.O_WRONLY); err != nil {
			_ = rx.Close()
			return nil, err
		}
	}

	c := &Channel{
		name:    cfg.name,
		role:    role,
		rx:      rx,
		tx:      tx,
		closers: []io.Closer{rx, tx},
		cfg:     cfg,
	}
	c.setupLimiter()

	cfg.logger.Info("channel: pipe pair open", "name", c.name, "role", role)

	return c, nil
}

func openPipe(path string, flag int) (*os.File, error) {
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("channel: open pipe %s: %w", path, err)
	}

	return f, nil
}

func ensureFifo(path string, mode uint32) error {
	err := unix.Mkfifo(path, mode)
	if err == nil || errors.Is(err, os.ErrExist) {
		return nil
	}

	return fmt.Errorf("channel: mkfifo %s: %w", path, err)
}
