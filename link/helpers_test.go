package link

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dalspace/loris/channel"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestLinks returns two links connected back to back over net.Pipe,
// plus the raw channels underneath them.
func newTestLinks(t *testing.T, opts ...Option) (*Link, *Link, *channel.Channel, *channel.Channel) {
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

	la, err := New(ca, opts...)
	require.NoError(t, err)
	lb, err := New(cb, opts...)
	require.NoError(t, err)

	return la, lb, ca, cb
}

// sendAsync runs send in a goroutine; net.Pipe writes block until read.
func sendAsync(send func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- send() }()

	return done
}
