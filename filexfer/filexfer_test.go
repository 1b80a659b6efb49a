package filexfer

import (
	"bytes"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalspace/loris/channel"
	"github.com/dalspace/loris/link"
)

func newTestLinks(t *testing.T) (*link.Link, *link.Link, *channel.Channel) {
	t.Helper()

	a, b := net.Pipe()
	ca, err := channel.New(a, a)
	require.NoError(t, err)
	cb, err := channel.New(b, b)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ca.Close()
		_ = cb.Close()
	})

	la, err := link.New(ca)
	require.NoError(t, err)
	lb, err := link.New(cb)
	require.NoError(t, err)

	return la, lb, ca
}

func async(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	return done
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func TestSendReceiveFile(t *testing.T) {
	for _, encoded := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "fec"}[encoded], func(t *testing.T) {
			la, lb, _ := newTestLinks(t)
			data := bytes.Repeat([]byte("telemetry,"), 1000)
			src := writeTemp(t, "src.bin", data)
			dst := filepath.Join(t.TempDir(), "dst.bin")

			done := async(func() error {
				_, err := SendFile(la.Frontend(encoded), src)
				return err
			})

			s, err := ReceiveFile(lb.Frontend(encoded), dst, len(data))
			require.NoError(t, err)
			require.NoError(t, <-done)
			assert.True(t, s.Complete())
			assert.Equal(t, len(data), s.Transferred)

			got, err := os.ReadFile(dst)
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestSendFile_Missing(t *testing.T) {
	la, _, _ := newTestLinks(t)

	_, err := SendFile(la.Plain(), filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestReceiveFile_TooLarge(t *testing.T) {
	_, lb, _ := newTestLinks(t)
	dst := filepath.Join(t.TempDir(), "dst")

	_, err := ReceiveFile(lb.Plain(), dst, MaxTransferSize+1)
	require.ErrorIs(t, err, ErrTransferTooLarge)

	_, statErr := os.Stat(dst)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestReceiveFile_PartialIsReported(t *testing.T) {
	la, lb, ca := newTestLinks(t)
	dst := filepath.Join(t.TempDir(), "dst")

	done := async(func() error {
		if err := la.Plain().Send(bytes.Repeat([]byte{7}, 5000)); err != nil {
			return err
		}

		return ca.Close()
	})

	s, err := ReceiveFile(lb.Plain(), dst, 6000)
	require.ErrorIs(t, err, ErrPartialTransfer)
	require.NoError(t, <-done)
	assert.False(t, s.Complete())

	got, rerr := os.ReadFile(dst)
	require.NoError(t, rerr)
	assert.Len(t, got, s.Transferred)
	assert.Equal(t, 4096, s.Transferred)
}

func TestSized_RoundTrip(t *testing.T) {
	for _, encoded := range []bool{false, true} {
		la, lb, _ := newTestLinks(t)
		data := []byte("picture bytes")
		src := writeTemp(t, "img.jpg", data)
		dst := filepath.Join(t.TempDir(), "img.jpg")

		done := async(func() error {
			_, err := SendSized(la.Frontend(encoded), src)
			return err
		})

		s, err := ReceiveSized(lb.Frontend(encoded), dst)
		require.NoError(t, err)
		require.NoError(t, <-done)
		assert.Equal(t, len(data), s.Declared)

		got, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}
}

func TestSized_NotFoundSentinel(t *testing.T) {
	for _, encoded := range []bool{false, true} {
		la, lb, _ := newTestLinks(t)
		dst := filepath.Join(t.TempDir(), "out")

		done := async(func() error {
			_, err := SendSized(la.Frontend(encoded), filepath.Join(t.TempDir(), "nope"))
			return err
		})

		_, err := ReceiveSized(lb.Frontend(encoded), dst)
		require.ErrorIs(t, err, ErrRemoteNotFound)
		require.ErrorIs(t, <-done, os.ErrNotExist)

		_, statErr := os.Stat(dst)
		assert.ErrorIs(t, statErr, os.ErrNotExist)
	}
}

func TestSized_SevenByteFileIsNotSentinel(t *testing.T) {
	la, lb, _ := newTestLinks(t)
	src := writeTemp(t, "seven", []byte("1234567"))
	dst := filepath.Join(t.TempDir(), "seven")

	done := async(func() error {
		_, err := SendSized(la.Plain(), src)
		return err
	})

	_, err := ReceiveSized(lb.Plain(), dst)
	require.NoError(t, err)
	require.NoError(t, <-done)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "1234567", string(got))
}

func TestSizedBytes(t *testing.T) {
	la, lb, _ := newTestLinks(t)

	done := async(func() error { return SendSizedBytes(la.FEC(), []byte("uptime 42")) })

	got, err := ReceiveSizedBytes(lb.FEC())
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, "uptime 42", string(got))

	done = async(func() error { return SendSizedBytes(la.FEC(), nil) })
	got, err = ReceiveSizedBytes(lb.FEC())
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Empty(t, got)
}

func TestReceiveSize_OversizedContentIsDrained(t *testing.T) {
	prev := maxTransfer
	maxTransfer = 1000
	t.Cleanup(func() { maxTransfer = prev })

	for _, encoded := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "fec"}[encoded], func(t *testing.T) {
			la, lb, _ := newTestLinks(t)

			done := async(func() error {
				if err := SendSizedBytes(la.Frontend(encoded), bytes.Repeat([]byte("D4"), 1500)); err != nil {
					return err
				}

				return SendSizedBytes(la.Frontend(encoded), []byte("next"))
			})

			_, err := ReceiveSizedBytes(lb.Frontend(encoded))
			require.ErrorIs(t, err, ErrTransferTooLarge)

			got, err := ReceiveSizedBytes(lb.Frontend(encoded))
			require.NoError(t, err)
			require.NoError(t, <-done)
			assert.Equal(t, "next", string(got))
		})
	}
}

func TestDiscardSized(t *testing.T) {
	for _, encoded := range []bool{false, true} {
		t.Run(map[bool]string{false: "plain", true: "fec"}[encoded], func(t *testing.T) {
			la, lb, _ := newTestLinks(t)

			done := async(func() error {
				if err := SendSizedBytes(la.Frontend(encoded), bytes.Repeat([]byte{0xAA}, 5000)); err != nil {
					return err
				}

				return la.Frontend(encoded).Send([]byte("CC"))
			})

			require.NoError(t, DiscardSized(lb.Frontend(encoded)))

			next, err := lb.Frontend(encoded).Recv(link.Exactly(2))
			require.NoError(t, err)
			require.NoError(t, <-done)
			assert.Equal(t, "CC", string(next))
		})
	}
}
