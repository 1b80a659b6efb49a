package fec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// StreamHeaderLen is the size of the plaintext length prefix of an encoded stream.
const StreamHeaderLen = 8

// StreamStats summarises a decoded stream.
type StreamStats struct {
	Length    int64
	Blocks    int
	Corrected int
}

// EncodeStream reads size plaintext bytes from src and writes the encoded
// stream to dst: an 8-byte big-endian plaintext length followed by one
// codeword per PayloadLen bytes of input.
func (c *Codec) EncodeStream(dst io.Writer, src io.Reader, size int64) error {
	if size < 0 {
		return fmt.Errorf("%w: negative size %d", ErrBadStream, size)
	}

	var hdr [StreamHeaderLen]byte
	binary.BigEndian.PutUint64(hdr[:], uint64(size))
	if _, err := dst.Write(hdr[:]); err != nil {
		return fmt.Errorf("fec: write stream header: %w", err)
	}

	buf := make([]byte, c.params.PayloadLen)
	for remaining := size; remaining > 0; {
		n := int(min(remaining, int64(c.params.PayloadLen)))
		if _, err := io.ReadFull(src, buf[:n]); err != nil {
			return fmt.Errorf("fec: read plaintext (%d bytes left): %w", remaining, err)
		}

		cw, err := c.Encode(buf[:n])
		if err != nil {
			return err
		}
		if _, err := dst.Write(cw); err != nil {
			return fmt.Errorf("fec: write codeword: %w", err)
		}

		remaining -= int64(n)
	}

	return nil
}

// DecodeStream reads an encoded stream produced by EncodeStream from src and
// writes the recovered plaintext to dst.
func (c *Codec) DecodeStream(dst io.Writer, src io.Reader) (StreamStats, error) {
	var stats StreamStats

	var hdr [StreamHeaderLen]byte
	if _, err := io.ReadFull(src, hdr[:]); err != nil {
		return stats, fmt.Errorf("%w: header: %w", ErrBadStream, err)
	}

	size := binary.BigEndian.Uint64(hdr[:])
	if size > 1<<62 {
		return stats, fmt.Errorf("%w: implausible length %d", ErrBadStream, size)
	}
	stats.Length = int64(size)

	cw := make([]byte, c.params.CodewordLen())
	for remaining := stats.Length; remaining > 0; {
		if _, err := io.ReadFull(src, cw); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}

			return stats, fmt.Errorf("%w: block %d: %w", ErrBadStream, stats.Blocks, err)
		}

		plain, corrected, err := c.Decode(cw)
		if err != nil {
			return stats, fmt.Errorf("block %d: %w", stats.Blocks, err)
		}

		n := int(min(remaining, int64(c.params.PayloadLen)))
		if _, err := dst.Write(plain[:n]); err != nil {
			return stats, fmt.Errorf("fec: write plaintext: %w", err)
		}

		stats.Blocks++
		stats.Corrected += corrected
		remaining -= int64(n)
	}

	return stats, nil
}
