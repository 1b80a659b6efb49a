// Package dispatch implements the loris two-byte opcode command protocol.
//
// The Dispatcher runs on the spacecraft side: it reads one opcode at a time,
// runs the matching handler and goes back to waiting. Handlers are written
// once against link.Frontend, so the same table serves plaintext and FEC
// links. The Client is the operator side; it opens a conversation for every
// request so replies are never consumed by a background Listener sharing the
// same link.
//
// Opcodes received from the link are trusted: destructive operations such as
// RM and MV execute without authentication. Only the operator Client asks
// for confirmation before sending them.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/dalspace/loris/fec"
	"github.com/dalspace/loris/hardware"
	"github.com/dalspace/loris/link"
	"github.com/dalspace/loris/logger"
)

// Sentinel errors for the command protocol.
var (
	ErrUnknownOpcode = errors.New("dispatch: unknown opcode")
	ErrFieldTooLong  = errors.New("dispatch: field too long")
	ErrInvalidField  = errors.New("dispatch: invalid field")
	ErrNotConfirmed  = errors.New("dispatch: destructive operation not confirmed")
	ErrNoHandler     = errors.New("dispatch: no handler for opcode")
)

type handlerFunc func(ctx context.Context, fe link.Frontend) error

// Dispatcher executes opcodes received over a link.
type Dispatcher struct {
	hw     hardware.Controller
	root   string
	codec  *fec.Codec
	logger logger.Logger

	handlers map[Opcode]handlerFunc

	counts   *xsync.MapOf[Opcode, uint64]
	unknown  atomic.Uint64
	failures atomic.Uint64
}

// New creates a Dispatcher acting on hw.
func New(hw hardware.Controller, opts ...Option) (*Dispatcher, error) {
	if hw == nil {
		return nil, errors.New("dispatch: hardware controller is required")
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(cfg.storageRoot)
	if err != nil {
		return nil, fmt.Errorf("dispatch: storage root: %w", err)
	}

	d := &Dispatcher{
		hw:     hw,
		root:   root,
		codec:  cfg.codec,
		logger: cfg.logger,
		counts: xsync.NewMapOf[Opcode, uint64](),
	}
	d.registerHandlers()

	return d, nil
}

// StorageRoot returns the directory remote filenames resolve into.
func (d *Dispatcher) StorageRoot() string { return d.root }

// Serve reads and executes opcodes from fe until ctx is cancelled or the
// link fails. Errors of individual requests are logged and do not stop the
// loop.
//
// Serve blocks in reads and only observes ctx between requests; use a
// Listener to share a link with an operator or to stop promptly.
func (d *Dispatcher) Serve(ctx context.Context, fe link.Frontend) error {
	d.logger.Info("dispatch: serving", "fec", fe.Encoded(), "root", d.root)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := d.ServeOne(ctx, fe); err != nil {
			d.logger.Error("dispatch: link failed, stop serving", "error", err)
			return err
		}
	}
}

// ServeOne reads one opcode and runs its handler. It returns an error only
// when the link itself failed; unknown opcodes, undecodable opcodes and
// handler failures are logged and reported as nil.
func (d *Dispatcher) ServeOne(ctx context.Context, fe link.Frontend) error {
	raw, err := fe.Recv(link.Exactly(OpcodeLen))
	if err != nil {
		switch {
		case errors.Is(err, fec.ErrCorrectionFailed):
			d.unknown.Add(1)
			d.logger.Warn("dispatch: undecodable opcode", "error", err)

			return nil
		case errors.Is(err, link.ErrTimeout):
			return nil
		default:
			return err
		}
	}

	var op Opcode
	copy(op[:], raw)

	if err := d.Handle(ctx, fe, op); err != nil && !errors.Is(err, ErrUnknownOpcode) {
		d.logger.Warn("dispatch: request failed", "opcode", op, "error", err)
	}

	return nil
}

// Handle runs the handler for op, reading any arguments from fe and sending
// any reply to it.
func (d *Dispatcher) Handle(ctx context.Context, fe link.Frontend, op Opcode) error {
	info, ok := Lookup(op)
	if !ok {
		d.unknown.Add(1)
		d.logger.Warn("dispatch: unknown opcode", "opcode", fmt.Sprintf("%q", op[:]))

		return fmt.Errorf("%w: %q", ErrUnknownOpcode, op[:])
	}

	h, ok := d.handlers[op]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoHandler, op)
	}

	d.counts.Compute(op, func(old uint64, _ bool) (uint64, bool) {
		return old + 1, false
	})
	d.logger.Info("dispatch: handling opcode", "opcode", op, "name", info.Name, "fec", fe.Encoded())

	if err := h(ctx, fe); err != nil {
		d.failures.Add(1)
		return fmt.Errorf("%s (%s): %w", info.Name, op, err)
	}

	return nil
}

// --- Statistics ---

// Count returns how many times op has been handled.
func (d *Dispatcher) Count(op Opcode) uint64 {
	n, _ := d.counts.Load(op)
	return n
}

// Counts returns a snapshot of per-opcode counters keyed by opcode string.
func (d *Dispatcher) Counts() map[string]uint64 {
	out := make(map[string]uint64, d.counts.Size())
	d.counts.Range(func(op Opcode, n uint64) bool {
		out[op.String()] = n
		return true
	})

	return out
}

// UnknownCount returns the number of unknown or undecodable opcodes received.
func (d *Dispatcher) UnknownCount() uint64 { return d.unknown.Load() }

// FailureCount returns the number of handlers that returned an error.
func (d *Dispatcher) FailureCount() uint64 { return d.failures.Load() }
