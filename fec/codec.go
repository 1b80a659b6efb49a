package fec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vivint/infectious"
)

// Sentinel errors for the FEC codec.
var (
	ErrInvalidParams    = errors.New("fec: invalid parameters")
	ErrBlockTooLarge    = errors.New("fec: block exceeds payload length")
	ErrCodewordSize     = errors.New("fec: wrong codeword size")
	ErrCorrectionFailed = errors.New("fec: correction failed")
	ErrBadStream        = errors.New("fec: malformed encoded stream")
)

// Codec encodes and decodes single FEC blocks. It is safe for concurrent use.
//
// Each codeword byte is one share of an infectious Reed-Solomon code with
// k = PayloadLen required shares and n = CodewordLen total shares. The code
// is systematic, so the first PayloadLen codeword bytes are the block itself.
type Codec struct {
	params Params

	mu sync.Mutex
	rs *infectious.FEC
}

// New creates a codec for p.
func New(p Params) (*Codec, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	rs, err := infectious.NewFEC(p.PayloadLen, p.CodewordLen())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}

	return &Codec{params: p, rs: rs}, nil
}

// Params returns the codec's block shape.
func (c *Codec) Params() Params { return c.params }

// Encode returns the codeword for block. A block shorter than PayloadLen is
// zero-padded; a longer one fails with ErrBlockTooLarge.
func (c *Codec) Encode(block []byte) ([]byte, error) {
	if len(block) > c.params.PayloadLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrBlockTooLarge, len(block), c.params.PayloadLen)
	}

	padded := make([]byte, c.params.PayloadLen)
	copy(padded, block)

	codeword := make([]byte, c.params.CodewordLen())

	c.mu.Lock()
	defer c.mu.Unlock()

	// share data is only valid during the callback
	err := c.rs.Encode(padded, func(s infectious.Share) {
		codeword[s.Number] = s.Data[0]
	})
	if err != nil {
		return nil, fmt.Errorf("fec: encode: %w", err)
	}

	return codeword, nil
}

// Decode corrects codeword and returns its PayloadLen plaintext bytes along
// with the number of bytes that had to be corrected. If the codeword carries
// more errors than the code can correct, ErrCorrectionFailed is returned and
// no data.
func (c *Codec) Decode(codeword []byte) ([]byte, int, error) {
	if len(codeword) != c.params.CodewordLen() {
		return nil, 0, fmt.Errorf("%w: got %d bytes, want %d", ErrCodewordSize, len(codeword), c.params.CodewordLen())
	}

	shares := make([]infectious.Share, len(codeword))
	for i, b := range codeword {
		shares[i] = infectious.Share{Number: i, Data: []byte{b}}
	}

	c.mu.Lock()
	err := c.rs.Correct(shares)
	c.mu.Unlock()

	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrCorrectionFailed, err)
	}

	// Correct mutates share data in place and may reorder shares.
	plain := make([]byte, c.params.PayloadLen)
	corrected := 0
	for _, s := range shares {
		if s.Number < 0 || s.Number >= len(codeword) || len(s.Data) != 1 {
			return nil, 0, fmt.Errorf("%w: unexpected share %d", ErrCorrectionFailed, s.Number)
		}
		if s.Data[0] != codeword[s.Number] {
			corrected++
		}
		if s.Number < c.params.PayloadLen {
			plain[s.Number] = s.Data[0]
		}
	}

	return plain, corrected, nil
}
