package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Sentinel errors for the byte channel.
var (
	ErrNotInitialized      = errors.New("channel: not initialized, both read and write handles are required")
	ErrClosed              = errors.New("channel: closed")
	ErrShortWrite          = errors.New("channel: short write")
	ErrDeadlineUnsupported = errors.New("channel: read handle does not support deadlines")
	ErrUnsupported         = errors.New("channel: not supported on this platform")
)

// readDeadliner is implemented by *os.File (FIFOs, ttys) and net.Conn.
type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// Channel is a raw duplex byte channel with one read handle and one write
// handle. For a serial device both handles are the same file.
//
// A Channel is safe for concurrent use by one reader and one writer. Higher
// layers are responsible for serialising conversations.
type Channel struct {
	name    string
	role    Role
	rx      io.Reader
	tx      io.Writer
	closers []io.Closer
	cfg     *config
	limiter *rate.Limiter

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	metrics Metrics
}

// New wraps an arbitrary reader/writer pair as a Channel. If rx or tx
// implement io.Closer they are closed by Close (once, even if they are the
// same value).
func New(rx io.Reader, tx io.Writer, opts ...Option) (*Channel, error) {
	if rx == nil || tx == nil {
		return nil, ErrNotInitialized
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		name: cfg.name,
		role: RoleNone,
		rx:   rx,
		tx:   tx,
		cfg:  cfg,
	}
	c.addCloser(rx)
	c.addCloser(tx)
	c.setupLimiter()

	return c, nil
}

func (c *Channel) addCloser(v any) {
	cl, ok := v.(io.Closer)
	if !ok {
		return
	}
	for _, existing := range c.closers {
		if existing == cl {
			return
		}
	}
	c.closers = append(c.closers, cl)
}

func (c *Channel) setupLimiter() {
	if c.cfg.rateLimit <= 0 {
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(c.cfg.rateLimit), c.cfg.rateLimit)
}

// Name returns the device path or pipe pair description.
func (c *Channel) Name() string { return c.name }

// Role returns the duplex role of a named-pipe channel, or RoleNone.
func (c *Channel) Role() Role { return c.role }

// Metrics returns the channel's I/O counters.
func (c *Channel) Metrics() *Metrics { return &c.metrics }

func (c *Channel) ready() error {
	if c == nil || c.rx == nil || c.tx == nil {
		return ErrNotInitialized
	}
	if c.closed.Load() {
		return ErrClosed
	}

	return nil
}

// Read performs a single underlying read into p and returns the number of
// bytes read, which may be anywhere between 0 and len(p).
func (c *Channel) Read(p []byte) (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}

	n, err := c.rx.Read(p)
	c.metrics.incRead(n)
	if err != nil {
		return n, c.wrapReadErr(err)
	}

	return n, nil
}

// ReadFull reads until len(p) bytes have been accumulated, issuing as many
// underlying reads as needed. On error it returns the bytes read so far
// together with the error, so callers holding a deadline can keep them.
func (c *Channel) ReadFull(p []byte) (int, error) {
	if err := c.ready(); err != nil {
		return 0, err
	}

	for read := 0; read < len(p); {
		n, err := c.rx.Read(p[read:])
		c.metrics.incRead(n)
		read += n

		if err != nil {
			if errors.Is(err, io.EOF) && read < len(p) {
				err = io.ErrUnexpectedEOF
			}

			return read, fmt.Errorf("%w (read %d of %d bytes)", c.wrapReadErr(err), read, len(p))
		}
	}

	return len(p), nil
}

func (c *Channel) wrapReadErr(err error) error {
	if c.closed.Load() {
		return fmt.Errorf("%w: %w", ErrClosed, err)
	}

	return fmt.Errorf("channel: read %s: %w", c.name, err)
}

// Write writes p with a single underlying write. If the OS accepts fewer than
// len(p) bytes without reporting an error, ErrShortWrite is returned.
func (c *Channel) Write(p []byte) error {
	if err := c.ready(); err != nil {
		return err
	}

	if c.limiter == nil {
		return c.writeOnce(p)
	}

	// Pace the write in burst-sized pieces so a large payload does not
	// exceed the limiter's burst.
	burst := c.limiter.Burst()
	for off := 0; off < len(p); off += burst {
		end := min(off+burst, len(p))
		if err := c.limiter.WaitN(context.Background(), end-off); err != nil {
			return fmt.Errorf("channel: rate limit: %w", err)
		}
		if err := c.writeOnce(p[off:end]); err != nil {
			return err
		}
	}

	return nil
}

func (c *Channel) writeOnce(p []byte) error {
	n, err := c.tx.Write(p)
	c.metrics.incWrite(n)

	if err != nil {
		if c.closed.Load() {
			return fmt.Errorf("%w: %w", ErrClosed, err)
		}

		return fmt.Errorf("channel: write %s: %w", c.name, err)
	}

	if n < len(p) {
		c.metrics.ShortWriteCount.Add(1)
		return fmt.Errorf("%w: %d of %d bytes accepted", ErrShortWrite, n, len(p))
	}

	return nil
}

// SetReadDeadline sets the deadline for future Read and ReadFull calls. A zero
// value disables the deadline. Expired reads fail with an error matching
// os.ErrDeadlineExceeded.
func (c *Channel) SetReadDeadline(t time.Time) error {
	if err := c.ready(); err != nil {
		return err
	}

	d, ok := c.rx.(readDeadliner)
	if !ok {
		return ErrDeadlineUnsupported
	}

	if err := d.SetReadDeadline(t); err != nil {
		if errors.Is(err, os.ErrNoDeadline) {
			return ErrDeadlineUnsupported
		}

		return err
	}

	return nil
}

// Close releases the channel's OS handles. It is safe to call more than once.
func (c *Channel) Close() error {
	if c == nil {
		return nil
	}

	c.closeOnce.Do(func() {
		c.closed.Store(true)

		var errs []error
		for _, cl := range c.closers {
			if err := cl.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, err)
			}
		}
		c.closeErr = errors.Join(errs...)

		c.cfg.logger.Debug("channel: closed", "name", c.name)
	})

	return c.closeErr
}

// IsTimeout reports whether err was caused by an expired read deadline.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var te interface{ Timeout() bool }

	return errors.As(err, &te) && te.Timeout()
}
