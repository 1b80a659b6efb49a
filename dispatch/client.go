package dispatch

import (
	"context"
	"fmt"

	"github.com/dalspace/loris/filexfer"
	"github.com/dalspace/loris/link"
	"github.com/dalspace/loris/logger"
)

// Confirmer approves destructive operator requests.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm approves every request.
var AlwaysConfirm = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// Client issues operator requests over a link. Every request runs inside a
// link conversation.
type Client struct {
	l       *link.Link
	encoded bool
	confirm Confirmer
	logger  logger.Logger
}

// NewClient creates an operator client. A nil confirmer refuses every
// destructive request.
func NewClient(l *link.Link, encoded bool, confirm Confirmer) *Client {
	return &Client{
		l:       l,
		encoded: encoded,
		confirm: confirm,
		logger:  logger.GetLogger(),
	}
}

// Encoded reports whether requests use the FEC front end.
func (c *Client) Encoded() bool { return c.encoded }

func (c *Client) converse(op Opcode, fn func(fe link.Frontend) error) error {
	fe := c.l.Frontend(c.encoded)

	return c.l.Converse(func() error {
		c.logger.Debug("dispatch: request", "opcode", op, "fec", c.encoded)

		if err := fe.Send(op.Bytes()); err != nil {
			return fmt.Errorf("dispatch: send opcode %s: %w", op, err)
		}
		if fn == nil {
			return nil
		}

		return fn(fe)
	})
}

func (c *Client) approve(ctx context.Context, prompt string) error {
	if c.confirm == nil {
		return ErrNotConfirmed
	}

	ok, err := c.confirm.Confirm(ctx, prompt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNotConfirmed, err)
	}
	if !ok {
		return ErrNotConfirmed
	}

	return nil
}

// Trigger sends a fire-and-forget opcode.
func (c *Client) Trigger(op Opcode) error {
	info, ok := Lookup(op)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOpcode, op)
	}
	if info.Shape != FireAndForget {
		return fmt.Errorf("%w: %s is not fire-and-forget", ErrInvalidField, op)
	}

	return c.converse(op, nil)
}

// SendRaw sends an opcode without arguments. Unreserved codes are sent as
// is. Reserved opcodes that carry arguments or replies are refused with
// ErrInvalidField; the remote handler would otherwise take its fields from
// the next request. Use the typed methods for those.
func (c *Client) SendRaw(op Opcode) error {
	if info, ok := Lookup(op); ok && info.Shape != FireAndForget {
		return fmt.Errorf("%w: %s (%s) takes arguments, use the %s request", ErrInvalidField, op, info.Shape, info.Name)
	}

	return c.converse(op, nil)
}

// Telemetry fetches a telemetry snapshot into dst. large selects B2 over A1.
func (c *Client) Telemetry(dst string, large bool) (*filexfer.Session, error) {
	op := OpBasicTelemetry
	if large {
		op = OpLargeTelemetry
	}

	var s *filexfer.Session
	err := c.converse(op, func(fe link.Frontend) error {
		var err error
		s, err = filexfer.ReceiveSized(fe, dst)

		return err
	})

	return s, err
}

// TakePicture asks the remote side for an image and stores it in dst.
func (c *Client) TakePicture(dst string) (*filexfer.Session, error) {
	var s *filexfer.Session
	err := c.converse(OpTakePicture, func(fe link.Frontend) error {
		var err error
		s, err = filexfer.ReceiveSized(fe, dst)

		return err
	})

	return s, err
}

// Exec forwards a command line and returns its output.
func (c *Client) Exec(cmd string) ([]byte, error) {
	if len(cmd) > MaxCommandLen {
		return nil, fmt.Errorf("%w: command is %d bytes (max %d)", ErrFieldTooLong, len(cmd), MaxCommandLen)
	}

	var out []byte
	err := c.converse(OpForwardCommand, func(fe link.Frontend) error {
		if err := sendCommand(fe, cmd); err != nil {
			return err
		}

		var err error
		out, err = filexfer.ReceiveSizedBytes(fe)

		return err
	})

	return out, err
}

// Push sends the local file src to the remote name.
func (c *Client) Push(src, name string) (*filexfer.Session, error) {
	field, err := EncodeFilename(name)
	if err != nil {
		return nil, err
	}

	var s *filexfer.Session
	err = c.converse(OpPushFile, func(fe link.Frontend) error {
		if err := fe.Send(field); err != nil {
			return err
		}

		var err error
		s, err = filexfer.SendSized(fe, src)

		return err
	})

	return s, err
}

// Fetch retrieves the remote name into the local file dst.
func (c *Client) Fetch(name, dst string) (*filexfer.Session, error) {
	field, err := EncodeFilename(name)
	if err != nil {
		return nil, err
	}

	var s *filexfer.Session
	err = c.converse(OpFetchFile, func(fe link.Frontend) error {
		if err := fe.Send(field); err != nil {
			return err
		}

		var err error
		s, err = filexfer.ReceiveSized(fe, dst)

		return err
	})

	return s, err
}

// List returns the listing of a remote directory.
func (c *Client) List(dir string) ([]byte, error) {
	field, err := EncodeFilename(dir)
	if err != nil {
		return nil, err
	}

	var out []byte
	err = c.converse(OpListDir, func(fe link.Frontend) error {
		if err := fe.Send(field); err != nil {
			return err
		}

		var err error
		out, err = filexfer.ReceiveSizedBytes(fe)

		return err
	})

	return out, err
}

// EncodeRemote asks the remote side to FEC-encode name into name+".rs".
func (c *Client) EncodeRemote(name string) error {
	return c.sendNamed(OpEncodeFile, name)
}

// DecodeRemote asks the remote side to decode name+".rs" into name.
func (c *Client) DecodeRemote(name string) error {
	return c.sendNamed(OpDecodeFile, name)
}

// Remove deletes a remote file after confirmation.
func (c *Client) Remove(ctx context.Context, name string) error {
	if _, err := EncodeFilename(name); err != nil {
		return err
	}
	if err := c.approve(ctx, fmt.Sprintf("Remove remote file %q?", name)); err != nil {
		return err
	}

	return c.sendNamed(OpRemove, name)
}

// Move renames a remote file after confirmation.
func (c *Client) Move(ctx context.Context, src, dst string) error {
	srcField, err := EncodeFilename(src)
	if err != nil {
		return err
	}
	dstField, err := EncodeFilename(dst)
	if err != nil {
		return err
	}
	if err := c.approve(ctx, fmt.Sprintf("Move remote file %q to %q?", src, dst)); err != nil {
		return err
	}

	return c.converse(OpMove, func(fe link.Frontend) error {
		if err := fe.Send(srcField); err != nil {
			return err
		}

		return fe.Send(dstField)
	})
}

func (c *Client) sendNamed(op Opcode, name string) error {
	field, err := EncodeFilename(name)
	if err != nil {
		return err
	}

	return c.converse(op, func(fe link.Frontend) error {
		return fe.Send(field)
	})
}
