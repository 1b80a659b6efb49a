// Package fec implements the block forward-error-correction codec used by the
// loris link layer.
//
// Every block of up to PayloadLen plaintext bytes is encoded into a systematic
// Reed-Solomon codeword of exactly CodewordLen bytes over GF(2^8). A codeword
// with at most ParityRoots/2 corrupted bytes decodes back to the original
// block. Blocks shorter than PayloadLen are zero-padded before encoding and
// always decode to PayloadLen bytes; the caller knows how many of them are
// real data.
package fec

import "fmt"

// MaxCodewordLen is the largest codeword representable over GF(2^8).
const MaxCodewordLen = 255

// Params describes the shape of one FEC block.
type Params struct {
	// PayloadLen is the number of plaintext bytes carried by one codeword.
	PayloadLen int `yaml:"payload_len"`
	// ParityRoots is the number of parity bytes appended to each block.
	ParityRoots int `yaml:"parity_roots"`
}

// DefaultParams is RS(255,234): 234-byte blocks, 255-byte codewords,
// up to 10 corrupted bytes corrected per codeword.
var DefaultParams = Params{PayloadLen: 234, ParityRoots: 21}

// CodewordLen returns PayloadLen + ParityRoots.
func (p Params) CodewordLen() int { return p.PayloadLen + p.ParityRoots }

// Correctable returns the number of byte errors one codeword can absorb.
func (p Params) Correctable() int { return p.ParityRoots / 2 }

// Blocks returns how many codewords a payload of n bytes occupies.
func (p Params) Blocks(n int) int {
	if n <= 0 || p.PayloadLen <= 0 {
		return 0
	}

	return (n + p.PayloadLen - 1) / p.PayloadLen
}

// Validate checks that the parameters describe a usable code.
func (p Params) Validate() error {
	if p.PayloadLen < 1 {
		return fmt.Errorf("%w: payload length %d must be at least 1", ErrInvalidParams, p.PayloadLen)
	}
	if p.ParityRoots < 2 {
		return fmt.Errorf("%w: parity roots %d must be at least 2", ErrInvalidParams, p.ParityRoots)
	}
	if p.CodewordLen() > MaxCodewordLen {
		return fmt.Errorf("%w: codeword length %d exceeds %d", ErrInvalidParams, p.CodewordLen(), MaxCodewordLen)
	}

	return nil
}

func (p Params) String() string {
	return fmt.Sprintf("RS(%d,%d)", p.CodewordLen(), p.PayloadLen)
}
