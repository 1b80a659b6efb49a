package link

import (
	"bytes"
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalspace/loris/fec"
)

func TestNew_Errors(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)

	la, _, ca, _ := newTestLinks(t)
	require.NotNil(t, la)

	_, err = New(ca, WithBlockTimeout(-time.Second))
	require.Error(t, err)

	_, err = New(ca, WithFECParams(fec.Params{PayloadLen: 250, ParityRoots: 10}))
	require.ErrorIs(t, err, fec.ErrInvalidParams)

	_, err = New(ca, WithPollInterval(0))
	require.Error(t, err)
}

func TestReadRequest_Validate(t *testing.T) {
	la, _, _, _ := newTestLinks(t)

	_, err := la.Plain().Recv(ReadRequest{Length: -1})
	require.ErrorIs(t, err, ErrInvalidRequest)

	_, err = la.FEC().Recv(ReadRequest{Length: 1, Mode: ReadMode(9)})
	require.ErrorIs(t, err, ErrInvalidRequest)

	got, err := la.Plain().Recv(Exactly(0))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPlain_HelloEndToEnd(t *testing.T) {
	la, lb, _, _ := newTestLinks(t)

	done := sendAsync(func() error { return la.Plain().Send([]byte("HELLO")) })

	got, err := lb.Plain().Recv(Exactly(5))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(got))
	require.NoError(t, <-done)

	assert.False(t, la.Plain().Encoded())
	assert.Equal(t, uint64(1), la.Metrics().MessagesSent.Load())
	assert.Equal(t, uint64(5), lb.Metrics().BytesReceived.Load())
}

func TestPlain_UntilAcrossFragments(t *testing.T) {
	_, lb, ca, _ := newTestLinks(t)

	done := sendAsync(func() error {
		for _, part := range []string{"HE", "LL", "O"} {
			if err := ca.Write([]byte(part)); err != nil {
				return err
			}
			time.Sleep(5 * time.Millisecond)
		}

		return nil
	})

	got, err := lb.Plain().Recv(Exactly(5))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(got))
	require.NoError(t, <-done)
}

func TestPlain_UpToReturnsSingleFragment(t *testing.T) {
	_, lb, ca, _ := newTestLinks(t)

	done := sendAsync(func() error { return ca.Write([]byte("HE")) })

	got, err := lb.Plain().Recv(AtMost(5))
	require.NoError(t, err)
	assert.Equal(t, "HE", string(got))
	require.NoError(t, <-done)
}

func TestFEC_HelloEndToEnd(t *testing.T) {
	la, lb, _, cb := newTestLinks(t)

	done := sendAsync(func() error { return la.FEC().Send([]byte("HELLO")) })

	got, err := lb.FEC().Recv(Exactly(5))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(got))
	require.NoError(t, <-done)

	assert.True(t, lb.FEC().Encoded())
	assert.Equal(t, uint64(1), la.Metrics().BlocksSent.Load())
	assert.Equal(t, uint64(1), lb.Metrics().BlocksReceived.Load())
	assert.Equal(t, uint64(255), cb.Metrics().BytesRead.Load())
	assert.Equal(t, uint64(234-5), lb.Metrics().DiscardedBytes.Load())
}

func TestFEC_FileOfFiveHundredBytesUsesThreeBlocks(t *testing.T) {
	la, lb, ca, cb := newTestLinks(t)

	data := bytes.Repeat([]byte("0123456789"), 50)
	done := sendAsync(func() error { return la.FEC().Send(data) })

	got, err := lb.FEC().Recv(Exactly(500))
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, data, got)
	assert.Equal(t, uint64(3), la.Metrics().BlocksSent.Load())
	assert.Equal(t, uint64(3*255), ca.Metrics().BytesWritten.Load())
	assert.Equal(t, uint64(3*255), cb.Metrics().BytesRead.Load())
}

func TestFEC_RoundTripSizes(t *testing.T) {
	la, lb, _, _ := newTestLinks(t)
	r := rand.New(rand.NewPCG(21, 22))

	for _, n := range []int{1, 233, 234, 235, 468, 469, 3 * 234} {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(r.IntN(256))
		}

		done := sendAsync(func() error { return la.FEC().Send(data) })

		got, err := lb.FEC().Recv(Exactly(n))
		require.NoError(t, err, "n=%d", n)
		require.NoError(t, <-done)
		assert.Equal(t, data, got, "n=%d", n)
	}
}

func TestFEC_EmptyPayloadSendsNothing(t *testing.T) {
	la, _, ca, _ := newTestLinks(t)

	require.NoError(t, la.FEC().Send(nil))
	assert.Zero(t, ca.Metrics().WriteCount.Load())
	assert.Zero(t, la.Metrics().MessagesSent.Load())
}

func TestFEC_UpToDecodesOneBlock(t *testing.T) {
	la, lb, _, _ := newTestLinks(t)

	data := bytes.Repeat([]byte{0xAB}, 300)
	done := sendAsync(func() error { return la.FEC().Send(data) })

	first, err := lb.FEC().Recv(AtMost(300))
	require.NoError(t, err)
	assert.Len(t, first, 234)

	second, err := lb.FEC().Recv(AtMost(300))
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Len(t, second, 234)
	assert.Equal(t, data[234:], second[:66])
}

func TestFEC_CorrectsDamagedCodeword(t *testing.T) {
	la, lb, ca, _ := newTestLinks(t)

	cw, err := la.Codec().Encode([]byte("HELLO"))
	require.NoError(t, err)
	for i := range 10 {
		cw[i*20] ^= 0x5A
	}

	done := sendAsync(func() error { return ca.Write(cw) })

	got, err := lb.FEC().Recv(Exactly(5))
	require.NoError(t, err)
	require.NoError(t, <-done)

	assert.Equal(t, "HELLO", string(got))
	assert.Equal(t, uint64(10), lb.Metrics().CorrectedSymbols.Load())
}

func TestFEC_UncorrectableIsTransportError(t *testing.T) {
	la, lb, ca, _ := newTestLinks(t)

	cw, err := la.Codec().Encode([]byte("HELLO"))
	require.NoError(t, err)
	for i := range 80 {
		cw[i*3] ^= byte(i + 1)
	}

	done := sendAsync(func() error { return ca.Write(cw) })

	_, err = lb.FEC().Recv(Exactly(5))
	require.NoError(t, <-done)

	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, fec.ErrCorrectionFailed)
	assert.Equal(t, uint64(1), lb.Metrics().CorrectionFailures.Load())
}

func TestLink_BlockTimeout(t *testing.T) {
	_, lb, _, _ := newTestLinks(t, WithBlockTimeout(30*time.Millisecond))

	_, err := lb.Plain().Recv(Exactly(1))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, uint64(1), lb.Metrics().Timeouts.Load())
}

func TestLink_BlockTimeoutKeepsPartialBytes(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		_, lb, ca, _ := newTestLinks(t, WithBlockTimeout(50*time.Millisecond))
		msg := bytes.Repeat([]byte("0123456789"), 20)

		done := sendAsync(func() error { return ca.Write(msg[:120]) })
		_, err := lb.Plain().Recv(Exactly(len(msg)))
		require.ErrorIs(t, err, ErrTimeout)
		require.NoError(t, <-done)
		assert.Equal(t, 120, lb.Pending())

		done = sendAsync(func() error { return ca.Write(msg[120:]) })
		got, err := lb.Plain().Recv(Exactly(len(msg)))
		require.NoError(t, err)
		require.NoError(t, <-done)
		assert.Equal(t, msg, got)
	})

	t.Run("fec", func(t *testing.T) {
		la, lb, ca, _ := newTestLinks(t, WithBlockTimeout(50*time.Millisecond))
		cw, err := la.Codec().Encode([]byte("HELLO"))
		require.NoError(t, err)

		done := sendAsync(func() error { return ca.Write(cw[:100]) })
		_, err = lb.FEC().Recv(Exactly(5))
		require.ErrorIs(t, err, ErrTimeout)
		require.NoError(t, <-done)

		done = sendAsync(func() error { return ca.Write(cw[100:]) })
		got, err := lb.FEC().Recv(Exactly(5))
		require.NoError(t, err)
		require.NoError(t, <-done)
		assert.Equal(t, "HELLO", string(got))
	})
}

func TestAwait_RunsWhenDataArrives(t *testing.T) {
	la, lb, _, _ := newTestLinks(t, WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := sendAsync(func() error {
		time.Sleep(30 * time.Millisecond)
		return la.Plain().Send([]byte("A1"))
	})

	var got []byte
	err := lb.Await(ctx, 0, func() error {
		var err error
		got, err = lb.Plain().Recv(Exactly(2))
		return err
	})
	require.NoError(t, err)
	require.NoError(t, <-done)
	assert.Equal(t, "A1", string(got))
	assert.Zero(t, lb.Pending())
}

func TestAwait_ContextCancel(t *testing.T) {
	_, lb, _, _ := newTestLinks(t, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := lb.Await(ctx, 0, func() error { return errors.New("must not run") })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestConverse_ListenerDoesNotStealReplies(t *testing.T) {
	la, lb, _, _ := newTestLinks(t, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stolen atomic.Int32
	var unsolicited atomic.Value
	listenerDone := make(chan struct{})

	go func() {
		defer close(listenerDone)
		for ctx.Err() == nil {
			_ = lb.Await(ctx, 0, func() error {
				msg, err := lb.Plain().Recv(Exactly(1))
				if err != nil {
					return err
				}
				if msg[0] == 'R' {
					stolen.Add(1)
				}
				unsolicited.Store(string(msg))

				return nil
			})
		}
	}()

	peerDone := sendAsync(func() error {
		q, err := la.Plain().Recv(Exactly(1))
		if err != nil {
			return err
		}
		if string(q) != "Q" {
			return errors.New("unexpected question")
		}

		return la.Plain().Send([]byte("R"))
	})

	var reply []byte
	err := lb.Converse(func() error {
		if err := lb.Plain().Send([]byte("Q")); err != nil {
			return err
		}
		var err error
		reply, err = lb.Plain().Recv(Exactly(1))

		return err
	})
	require.NoError(t, err)
	require.NoError(t, <-peerDone)
	assert.Equal(t, "R", string(reply))

	// unsolicited traffic goes to the listener
	require.NoError(t, la.Plain().Send([]byte("X")))
	require.Eventually(t, func() bool {
		v, _ := unsolicited.Load().(string)
		return v == "X"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-listenerDone
	assert.Zero(t, stolen.Load())
}
