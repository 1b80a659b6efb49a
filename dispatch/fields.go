package dispatch

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dalspace/loris/filexfer"
	"github.com/dalspace/loris/link"
)

const (
	// MaxFilenameLen is the fixed size of a filename field.
	MaxFilenameLen = 64
	// MaxCommandLen bounds a forwarded command line.
	MaxCommandLen = 4096
)

// EncodeFilename returns the fixed-size, NUL-padded wire form of name.
func EncodeFilename(name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty filename", ErrInvalidField)
	}
	if len(name) > MaxFilenameLen {
		return nil, fmt.Errorf("%w: filename is %d bytes (max %d)", ErrFieldTooLong, len(name), MaxFilenameLen)
	}
	if bytes.IndexByte([]byte(name), 0) >= 0 {
		return nil, fmt.Errorf("%w: filename contains NUL", ErrInvalidField)
	}

	field := make([]byte, MaxFilenameLen)
	copy(field, name)

	return field, nil
}

// DecodeFilename returns the name carried by a filename field.
func DecodeFilename(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}

	return string(field)
}

func sendFilename(fe link.Frontend, name string) error {
	field, err := EncodeFilename(name)
	if err != nil {
		return err
	}

	return fe.Send(field)
}

// recvFilename reads one filename field. It fails only on link errors; an
// empty name is rejected by resolve once every field of the request is read.
func recvFilename(fe link.Frontend) (string, error) {
	field, err := fe.Recv(link.Exactly(MaxFilenameLen))
	if err != nil {
		return "", fmt.Errorf("dispatch: receive filename: %w", err)
	}

	return DecodeFilename(field), nil
}

func sendCommand(fe link.Frontend, cmd string) error {
	if cmd == "" {
		return fmt.Errorf("%w: empty command", ErrInvalidField)
	}
	if len(cmd) > MaxCommandLen {
		return fmt.Errorf("%w: command is %d bytes (max %d)", ErrFieldTooLong, len(cmd), MaxCommandLen)
	}

	return filexfer.SendSizedBytes(fe, []byte(cmd))
}

// recvCommand reads a sized command line. An oversized command is drained
// from the link so its bytes are never read as opcodes.
func recvCommand(fe link.Frontend) (string, error) {
	n, err := filexfer.ReceiveSize(fe)
	if err != nil {
		return "", err
	}
	if n > MaxCommandLen {
		tooLong := fmt.Errorf("%w: command is %d bytes (max %d)", ErrFieldTooLong, n, MaxCommandLen)
		if _, err := filexfer.Discard(fe, n); err != nil {
			return "", errors.Join(tooLong, err)
		}

		return "", tooLong
	}

	cmd, err := fe.Recv(link.Exactly(n))
	if err != nil {
		return "", fmt.Errorf("dispatch: receive command: %w", err)
	}

	return string(cmd), nil
}
