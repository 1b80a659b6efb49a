// Package filexfer moves whole files across a link front end.
//
// A file is sent in a single logical call. The receiver must know its length
// in advance, either from the caller or from a 4-byte big-endian length field
// sent immediately before the content (the "sized" variants used by the
// command protocol). A sender that cannot find the requested file answers
// with the sentinel content "!!FNF!!" so the exchange stays in step.
package filexfer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dalspace/loris/link"
	"github.com/dalspace/loris/logger"
)

const (
	// MaxTransferSize bounds a single received file.
	MaxTransferSize = 64 << 20
	// SizeFieldLen is the length of the size prefix of a sized transfer.
	SizeFieldLen = 4
	// chunkTarget is the approximate receive chunk; rounded up to a multiple
	// of the front end's block size.
	chunkTarget = 4096
)

// maxTransfer is the enforced limit; tests lower it.
var maxTransfer = MaxTransferSize

// NotFoundSentinel is sent in place of the content of a missing file.
var NotFoundSentinel = []byte("!!FNF!!")

// Sentinel errors for file transfer.
var (
	ErrTransferTooLarge = errors.New("filexfer: transfer exceeds maximum size")
	ErrPartialTransfer  = errors.New("filexfer: partial transfer")
	ErrRemoteNotFound   = errors.New("filexfer: remote file not found")
)

// Session tracks one file transfer.
type Session struct {
	// Path is the local file being sent or written.
	Path string
	// Declared is the number of bytes announced for the transfer.
	Declared int
	// Transferred counts bytes moved so far.
	Transferred int
}

// Complete reports whether every declared byte was transferred.
func (s *Session) Complete() bool { return s.Transferred == s.Declared }

// SendFile reads path and sends its content in one call.
func SendFile(fe link.Frontend, path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("filexfer: read %s: %w", path, err)
	}

	s := &Session{Path: path, Declared: len(data)}
	if err := fe.Send(data); err != nil {
		return s, fmt.Errorf("filexfer: send %s: %w", path, err)
	}
	s.Transferred = len(data)

	logger.Debug("filexfer: sent file", "path", path, "bytes", len(data), "fec", fe.Encoded())

	return s, nil
}

// ReceiveFile receives expectedLen bytes and writes them to path in one
// operation. If the transport fails midway, the bytes received so far are
// still written and the returned error wraps ErrPartialTransfer.
func ReceiveFile(fe link.Frontend, path string, expectedLen int) (*Session, error) {
	data, err := receive(fe, expectedLen)
	s := &Session{Path: path, Declared: expectedLen, Transferred: len(data)}

	if errors.Is(err, ErrTransferTooLarge) {
		return s, err
	}

	if werr := os.WriteFile(path, data, 0o644); werr != nil {
		return s, errors.Join(fmt.Errorf("filexfer: write %s: %w", path, werr), err)
	}

	if err != nil {
		logger.Warn("filexfer: partial file written", "path", path, "bytes", len(data), "declared", expectedLen)
		return s, err
	}

	logger.Debug("filexfer: received file", "path", path, "bytes", len(data), "fec", fe.Encoded())

	return s, nil
}

// receive reads n bytes in chunks aligned to the front end's block size so a
// transport failure keeps the chunks that did arrive. Lengths announced by
// the peer are checked, and drained when too large, by ReceiveSize.
func receive(fe link.Frontend, n int) ([]byte, error) {
	if n < 0 || n > maxTransfer {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTransferTooLarge, n, maxTransfer)
	}

	chunk := chunkSize(fe)

	data := make([]byte, 0, n)
	for len(data) < n {
		want := min(chunk, n-len(data))

		part, err := fe.Recv(link.Exactly(want))
		if err != nil {
			return data, fmt.Errorf("%w: %d of %d bytes: %w", ErrPartialTransfer, len(data), n, err)
		}
		data = append(data, part...)
	}

	return data, nil
}

func chunkSize(fe link.Frontend) int {
	block := max(fe.BlockSize(), 1)

	return ((chunkTarget + block - 1) / block) * block
}

// Discard reads and drops n announced bytes in block-aligned chunks. It keeps
// an exchange in step when content that is already on its way cannot be
// accepted. It returns the number of bytes dropped.
func Discard(fe link.Frontend, n int) (int, error) {
	chunk := chunkSize(fe)

	done := 0
	for done < n {
		want := min(chunk, n-done)
		if _, err := fe.Recv(link.Exactly(want)); err != nil {
			return done, fmt.Errorf("filexfer: discard %d of %d bytes: %w", done, n, err)
		}
		done += want
	}

	return done, nil
}

// reject drains n bytes and returns cause, joined with any drain failure.
func reject(fe link.Frontend, n int, cause error) error {
	dropped, err := Discard(fe, n)
	logger.Warn("filexfer: content rejected", "bytes", n, "dropped", dropped, "reason", cause)

	if err != nil {
		return errors.Join(cause, err)
	}

	return cause
}

// DiscardSized reads a sized transfer and drops its content.
func DiscardSized(fe link.Frontend) error {
	field, err := fe.Recv(link.Exactly(SizeFieldLen))
	if err != nil {
		return fmt.Errorf("filexfer: receive size: %w", err)
	}

	_, err = Discard(fe, int(binary.BigEndian.Uint32(field)))

	return err
}

// --- Sized transfers ---

// SendSize sends the 4-byte big-endian length field of a sized transfer.
func SendSize(fe link.Frontend, n int) error {
	if n < 0 || uint64(n) > 0xFFFFFFFF {
		return fmt.Errorf("%w: %d bytes", ErrTransferTooLarge, n)
	}

	var field [SizeFieldLen]byte
	binary.BigEndian.PutUint32(field[:], uint32(n))

	return fe.Send(field[:])
}

// ReceiveSize reads the length field of a sized transfer. A length above
// MaxTransferSize is drained from the link before ErrTransferTooLarge is
// returned, so the announced content is never mistaken for what follows.
func ReceiveSize(fe link.Frontend) (int, error) {
	field, err := fe.Recv(link.Exactly(SizeFieldLen))
	if err != nil {
		return 0, fmt.Errorf("filexfer: receive size: %w", err)
	}

	n := int(binary.BigEndian.Uint32(field))
	if n > maxTransfer {
		return n, reject(fe, n, fmt.Errorf("%w: %d bytes (max %d)", ErrTransferTooLarge, n, maxTransfer))
	}

	return n, nil
}

// SendSizedBytes sends a length field followed by data.
func SendSizedBytes(fe link.Frontend, data []byte) error {
	if err := SendSize(fe, len(data)); err != nil {
		return err
	}

	return fe.Send(data)
}

// ReceiveSizedBytes receives a length field and the content it announces.
// The not-found sentinel is reported as ErrRemoteNotFound.
func ReceiveSizedBytes(fe link.Frontend) ([]byte, error) {
	n, err := ReceiveSize(fe)
	if err != nil {
		return nil, err
	}

	data, err := receive(fe, n)
	if err != nil {
		return data, err
	}

	if bytes.Equal(data, NotFoundSentinel) {
		return nil, ErrRemoteNotFound
	}

	return data, nil
}

// SendSized sends path as a sized transfer. A missing file is answered with
// NotFoundSentinel and the returned error wraps fs.ErrNotExist; the peer
// stays in step either way.
func SendSized(fe link.Frontend, path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			// any other read failure is reported to the peer the same way
			logger.Warn("filexfer: cannot read file", "path", path, "error", err)
		}
		if serr := SendSizedBytes(fe, NotFoundSentinel); serr != nil {
			return nil, errors.Join(fmt.Errorf("filexfer: read %s: %w", path, err), serr)
		}

		return nil, fmt.Errorf("filexfer: read %s: %w", path, err)
	}

	s := &Session{Path: path, Declared: len(data)}
	if err := SendSizedBytes(fe, data); err != nil {
		return s, fmt.Errorf("filexfer: send %s: %w", path, err)
	}
	s.Transferred = len(data)

	logger.Debug("filexfer: sent sized file", "path", path, "bytes", len(data), "fec", fe.Encoded())

	return s, nil
}

// ReceiveSized receives a sized transfer into path. When the peer reports a
// missing file nothing is written and ErrRemoteNotFound is returned.
func ReceiveSized(fe link.Frontend, path string) (*Session, error) {
	n, err := ReceiveSize(fe)
	if err != nil {
		return nil, err
	}

	if n != len(NotFoundSentinel) {
		return ReceiveFile(fe, path, n)
	}

	// Same length as the sentinel: receive into memory to tell them apart.
	data, err := receive(fe, n)
	s := &Session{Path: path, Declared: n, Transferred: len(data)}
	if err == nil && bytes.Equal(data, NotFoundSentinel) {
		return s, ErrRemoteNotFound
	}

	if werr := os.WriteFile(path, data, 0o644); werr != nil {
		return s, errors.Join(fmt.Errorf("filexfer: write %s: %w", path, werr), err)
	}

	return s, err
}
