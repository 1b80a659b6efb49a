package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalspace/loris/link"
)

// Listener serves opcodes arriving on a shared link in the background. It
// only takes the link when inbound data is pending, so operator
// conversations on the same link are never interrupted.
type Listener struct {
	d       *Dispatcher
	l       *link.Link
	encoded bool
	poll    time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewListener creates a listener serving d over l. With encoded set, opcodes
// and replies travel through the FEC front end.
func NewListener(d *Dispatcher, l *link.Link, encoded bool) *Listener {
	return &Listener{d: d, l: l, encoded: encoded}
}

// SetPollInterval overrides the link's idle polling interval.
func (ls *Listener) SetPollInterval(d time.Duration) { ls.poll = d }

// Run serves requests until ctx is cancelled, in which case it returns nil,
// or until the link fails.
func (ls *Listener) Run(ctx context.Context) error {
	fe := ls.l.Frontend(ls.encoded)
	ls.d.logger.Info("dispatch: listener started", "fec", ls.encoded)

	for {
		err := ls.l.Await(ctx, ls.poll, func() error {
			return ls.d.ServeOne(ctx, fe)
		})

		if ctx.Err() != nil {
			ls.d.logger.Info("dispatch: listener stopped")
			return nil
		}

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			ls.d.logger.Error("dispatch: listener link failed", "error", err)

			return err
		}
	}
}

// Start runs the listener in a goroutine.
func (ls *Listener) Start(ctx context.Context) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	if ls.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	ls.cancel = cancel
	ls.done = make(chan struct{})

	go func() {
		defer close(ls.done)

		err := ls.Run(ctx)

		ls.mu.Lock()
		ls.err = err
		ls.mu.Unlock()
	}()
}

// Done is closed when a started listener exits.
func (ls *Listener) Done() <-chan struct{} {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	return ls.done
}

// Stop cancels a started listener and waits for it to exit. It returns the
// link error that ended the listener, if any.
func (ls *Listener) Stop() error {
	ls.mu.Lock()
	cancel, done := ls.cancel, ls.done
	ls.mu.Unlock()

	if done == nil {
		return nil
	}

	cancel()
	<-done

	ls.mu.Lock()
	defer ls.mu.Unlock()

	return ls.err
}
