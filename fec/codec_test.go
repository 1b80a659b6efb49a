package fec

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()

	c, err := New(DefaultParams)
	require.NoError(t, err)

	return c
}

func randomBytes(r *rand.Rand, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.IntN(256))
	}

	return b
}

// corrupt flips count distinct positions chosen from [0, limit).
func corrupt(r *rand.Rand, cw []byte, count, limit int) {
	for _, pos := range r.Perm(limit)[:count] {
		cw[pos] ^= byte(1 + r.IntN(255))
	}
}

func TestParams(t *testing.T) {
	p := DefaultParams
	require.NoError(t, p.Validate())
	assert.Equal(t, 255, p.CodewordLen())
	assert.Equal(t, 10, p.Correctable())
	assert.Equal(t, "RS(255,234)", p.String())

	assert.Equal(t, 0, p.Blocks(0))
	assert.Equal(t, 1, p.Blocks(1))
	assert.Equal(t, 1, p.Blocks(234))
	assert.Equal(t, 2, p.Blocks(235))
	assert.Equal(t, 3, p.Blocks(500))
}

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"zero payload", Params{PayloadLen: 0, ParityRoots: 8}},
		{"one root", Params{PayloadLen: 10, ParityRoots: 1}},
		{"too long", Params{PayloadLen: 250, ParityRoots: 8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			require.ErrorIs(t, err, ErrInvalidParams)

			_, err = New(tt.params)
			require.ErrorIs(t, err, ErrInvalidParams)
		})
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	c := newTestCodec(t)
	r := rand.New(rand.NewPCG(1, 2))

	for _, n := range []int{0, 1, 5, 233, 234} {
		block := randomBytes(r, n)

		cw, err := c.Encode(block)
		require.NoError(t, err)
		require.Len(t, cw, 255)
		// systematic: data precedes parity
		assert.Equal(t, block, cw[:n])

		plain, corrected, err := c.Decode(cw)
		require.NoError(t, err)
		assert.Zero(t, corrected)
		require.Len(t, plain, 234)
		assert.Equal(t, block, plain[:n])
		assert.Equal(t, make([]byte, 234-n), plain[n:], "padding must be zero")
	}
}

func TestCodec_EncodeTooLarge(t *testing.T) {
	c := newTestCodec(t)

	_, err := c.Encode(make([]byte, 235))
	require.ErrorIs(t, err, ErrBlockTooLarge)
}

func TestCodec_DecodeWrongSize(t *testing.T) {
	c := newTestCodec(t)

	_, _, err := c.Decode(make([]byte, 254))
	require.ErrorIs(t, err, ErrCodewordSize)
}

func TestCodec_CorrectsUpToCapacity(t *testing.T) {
	c := newTestCodec(t)
	r := rand.New(rand.NewPCG(3, 4))

	for flips := 1; flips <= DefaultParams.Correctable(); flips++ {
		block := randomBytes(r, 234)
		cw, err := c.Encode(block)
		require.NoError(t, err)

		corrupt(r, cw, flips, DefaultParams.PayloadLen)

		plain, corrected, err := c.Decode(cw)
		require.NoError(t, err, "flips=%d", flips)
		assert.Equal(t, block, plain, "flips=%d", flips)
		assert.Equal(t, flips, corrected, "flips=%d", flips)
	}
}

func TestCodec_CorrectsErrorsInParity(t *testing.T) {
	c := newTestCodec(t)
	r := rand.New(rand.NewPCG(5, 6))

	block := randomBytes(r, 100)
	cw, err := c.Encode(block)
	require.NoError(t, err)

	for i := 240; i < 250; i++ {
		cw[i] ^= 0xFF
	}

	plain, _, err := c.Decode(cw)
	require.NoError(t, err)
	assert.Equal(t, block, plain[:100])
}

func TestCodec_ReportsUncorrectable(t *testing.T) {
	c := newTestCodec(t)
	r := rand.New(rand.NewPCG(7, 8))

	block := randomBytes(r, 234)
	cw, err := c.Encode(block)
	require.NoError(t, err)

	corrupt(r, cw, 60, len(cw))

	plain, _, err := c.Decode(cw)
	require.ErrorIs(t, err, ErrCorrectionFailed)
	assert.Nil(t, plain)
}

func TestCodec_SmallCode(t *testing.T) {
	c, err := New(Params{PayloadLen: 16, ParityRoots: 8})
	require.NoError(t, err)

	cw, err := c.Encode([]byte("HELLO"))
	require.NoError(t, err)
	require.Len(t, cw, 24)

	cw[0] ^= 0x20
	cw[3] ^= 0x01

	plain, corrected, err := c.Decode(cw)
	require.NoError(t, err)
	assert.Equal(t, 2, corrected)
	assert.Equal(t, "HELLO", string(bytes.TrimRight(plain, "\x00")))
}
