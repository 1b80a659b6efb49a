// Package link implements the framed transport that carries loris payloads
// over a byte channel.
//
// A Link exposes two front ends with the same interface. The plain front end
// writes payloads verbatim and reads with one of two disciplines (UpTo or
// Until). The FEC front end splits every payload into PayloadLen blocks and
// sends each as one Reed-Solomon codeword; on receive it reads and corrects
// whole codewords until the requested length is covered.
//
// The transport has no framing of its own: the reader must know how many
// bytes to expect. Higher layers send every protocol field as its own call
// and read it back with the same length, so FEC block boundaries line up on
// both ends.
//
// A single Link is shared by a foreground operator and a background listener.
// Every Send and Recv is atomic, and multi-step exchanges are serialised with
// Converse and Await.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dalspace/loris/channel"
	"github.com/dalspace/loris/fec"
)

// Sentinel errors for the link layer.
var (
	ErrInvalidRequest = errors.New("link: invalid read request")
	ErrTimeout        = errors.New("link: read timed out")
	ErrTransport      = errors.New("link: transport error")
)

// ReadMode selects the receive discipline.
type ReadMode int

const (
	// UpTo performs a single read and returns whatever arrived, at most Length bytes.
	UpTo ReadMode = iota
	// Until keeps reading until exactly Length bytes have arrived.
	Until
)

func (m ReadMode) String() string {
	switch m {
	case UpTo:
		return "upto"
	case Until:
		return "until"
	default:
		return fmt.Sprintf("ReadMode(%d)", int(m))
	}
}

// ReadRequest describes one receive call.
type ReadRequest struct {
	Length int
	Mode   ReadMode
}

// Exactly returns an Until request for n bytes.
func Exactly(n int) ReadRequest { return ReadRequest{Length: n, Mode: Until} }

// AtMost returns an UpTo request for n bytes.
func AtMost(n int) ReadRequest { return ReadRequest{Length: n, Mode: UpTo} }

func (r ReadRequest) validate() error {
	if r.Length < 0 {
		return fmt.Errorf("%w: negative length %d", ErrInvalidRequest, r.Length)
	}
	if r.Mode != UpTo && r.Mode != Until {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidRequest, int(r.Mode))
	}

	return nil
}

// Frontend is the send/receive surface shared by the plain and FEC
// transports. Protocol handlers are written once against it.
type Frontend interface {
	// Send transmits data in one logical call.
	Send(data []byte) error
	// Recv receives according to req.
	Recv(req ReadRequest) ([]byte, error)
	// Encoded reports whether payloads are FEC protected.
	Encoded() bool
	// BlockSize is the payload granularity of the transport: PayloadLen for
	// FEC, 1 for plain. Receives in multiples of it never split a block.
	BlockSize() int
}

// ByteChannel is the raw channel a Link runs on. *channel.Channel
// implements it.
type ByteChannel interface {
	Read(p []byte) (int, error)
	ReadFull(p []byte) (int, error)
	Write(p []byte) error
	SetReadDeadline(t time.Time) error
}

// Link is a framed transport over one byte channel.
type Link struct {
	ch    ByteChannel
	codec *fec.Codec
	cfg   *config

	// ioMu makes each Send/Recv atomic.
	ioMu        sync.Mutex
	pending     []byte
	deadlineSet bool

	// convMu serialises whole conversations.
	convMu sync.Mutex

	plain   plainFrontend
	encoded fecFrontend

	metrics Metrics
}

// New creates a Link over ch.
func New(ch ByteChannel, opts ...Option) (*Link, error) {
	if ch == nil {
		return nil, channel.ErrNotInitialized
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	codec, err := fec.New(cfg.params)
	if err != nil {
		return nil, err
	}

	l := &Link{ch: ch, codec: codec, cfg: cfg}
	l.plain = plainFrontend{l: l}
	l.encoded = fecFrontend{l: l}

	return l, nil
}

// Plain returns the verbatim front end.
func (l *Link) Plain() Frontend { return &l.plain }

// FEC returns the block-coded front end.
func (l *Link) FEC() Frontend { return &l.encoded }

// Frontend returns FEC() when encoded is true and Plain() otherwise.
func (l *Link) Frontend(encoded bool) Frontend {
	if encoded {
		return l.FEC()
	}

	return l.Plain()
}

// Codec returns the FEC codec used by the link.
func (l *Link) Codec() *fec.Codec { return l.codec }

// Metrics returns the link's counters.
func (l *Link) Metrics() *Metrics { return &l.metrics }

// Converse runs fn while holding the conversation lock, so no other operator
// or listener exchange interleaves with it.
func (l *Link) Converse(fn func() error) error {
	l.convMu.Lock()
	defer l.convMu.Unlock()

	l.metrics.Conversations.Add(1)

	return fn()
}

// Await blocks until at least one inbound byte is pending and then runs fn
// under the conversation lock. While idle it polls with a read deadline of
// poll (the configured poll interval when zero) and releases the lock between
// polls, so an operator conversation can take over the link at any time and
// receive its own replies.
//
// Await returns fn's error, ctx.Err() on cancellation, or a channel error.
func (l *Link) Await(ctx context.Context, poll time.Duration, fn func() error) error {
	if poll <= 0 {
		poll = l.cfg.pollInterval
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		l.convMu.Lock()

		ready, err := l.poll(poll)
		if err != nil {
			l.convMu.Unlock()
			return err
		}

		if ready {
			l.metrics.Conversations.Add(1)
			err = fn()
			l.convMu.Unlock()

			return err
		}

		l.convMu.Unlock()
	}
}

// Pending reports how many bytes were read while polling and not yet consumed.
func (l *Link) Pending() int {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	return len(l.pending)
}

// --- Low-level I/O helpers ---

// poll waits up to d for one inbound byte and keeps it in the pending buffer.
func (l *Link) poll(d time.Duration) (bool, error) {
	l.ioMu.Lock()
	defer l.ioMu.Unlock()

	if len(l.pending) > 0 {
		return true, nil
	}

	if err := l.ch.SetReadDeadline(time.Now().Add(d)); err != nil {
		if !errors.Is(err, channel.ErrDeadlineUnsupported) {
			return false, fmt.Errorf("%w: set deadline: %w", ErrTransport, err)
		}
	} else {
		l.deadlineSet = true
	}

	var b [1]byte
	n, err := l.ch.Read(b[:])
	if n > 0 {
		l.pending = append(l.pending, b[:n]...)
	}

	if err != nil && !channel.IsTimeout(err) {
		return n > 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	return n > 0, nil
}

// armDeadline applies the block timeout before an underlying read, or clears
// a deadline left behind by poll.
func (l *Link) armDeadline() error {
	var err error

	switch {
	case l.cfg.blockTimeout > 0:
		err = l.ch.SetReadDeadline(time.Now().Add(l.cfg.blockTimeout))
		if err == nil {
			l.deadlineSet = true
		}
	case l.deadlineSet:
		err = l.ch.SetReadDeadline(time.Time{})
		if err == nil {
			l.deadlineSet = false
		}
	}

	if err != nil && !errors.Is(err, channel.ErrDeadlineUnsupported) {
		return fmt.Errorf("%w: set deadline: %w", ErrTransport, err)
	}

	return nil
}

func (l *Link) readErr(err error) error {
	if channel.IsTimeout(err) {
		l.metrics.Timeouts.Add(1)
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// readUpTo performs at most one underlying read. Pending bytes are returned
// first without touching the channel. Caller holds ioMu.
func (l *Link) readUpTo(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if len(l.pending) > 0 {
		n := copy(p, l.pending)
		l.pending = l.pending[n:]

		return n, nil
	}

	if err := l.armDeadline(); err != nil {
		return 0, err
	}

	n, err := l.ch.Read(p)
	if err != nil {
		return n, l.readErr(err)
	}

	return n, nil
}

// readUntil fills p completely, consuming pending bytes first. On a timeout
// the bytes gathered so far go back to the pending buffer, so a retry with
// the same length resumes at the same offset. Caller holds ioMu.
func (l *Link) readUntil(p []byte) error {
	n := copy(p, l.pending)
	l.pending = l.pending[n:]

	if n == len(p) {
		return nil
	}

	if err := l.armDeadline(); err != nil {
		return err
	}

	read, err := l.ch.ReadFull(p[n:])
	if err != nil {
		if channel.IsTimeout(err) {
			l.pending = append([]byte(nil), p[:n+read]...)
		}

		return l.readErr(err)
	}

	return nil
}

func (l *Link) write(p []byte) error {
	if err := l.ch.Write(p); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	return nil
}
