package dispatch

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/dalspace/loris/channel"
	"github.com/dalspace/loris/hardware"
	"github.com/dalspace/loris/link"
	"github.com/dalspace/loris/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testBed is a ground station and a satellite joined by an in-memory link.
// The satellite runs a background Listener, the ground side a Client.
type testBed struct {
	groundCh *channel.Channel
	satCh    *channel.Channel
	ground   *link.Link
	sat      *link.Link
	hw       *hardware.MockController
	d        *Dispatcher
	root     string
	client   *Client
	listener *Listener
}

func newLinkPair(t *testing.T) (*link.Link, *link.Link, *channel.Channel, *channel.Channel) {
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

	la, err := link.New(ca, link.WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)
	lb, err := link.New(cb, link.WithPollInterval(5*time.Millisecond))
	require.NoError(t, err)

	return la, lb, ca, cb
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *hardware.MockController, string) {
	t.Helper()

	hw := &hardware.MockController{}
	root := t.TempDir()

	d, err := New(hw, WithStorageRoot(root), WithLogger(logger.NewMockLogger().AllowAll()))
	require.NoError(t, err)

	return d, hw, root
}

func newTestBed(t *testing.T, encoded bool, confirm Confirmer) *testBed {
	t.Helper()

	ground, sat, gch, sch := newLinkPair(t)
	d, hw, root := newTestDispatcher(t)

	ls := NewListener(d, sat, encoded)
	ls.Start(context.Background())
	t.Cleanup(func() { require.NoError(t, ls.Stop()) })

	return &testBed{
		groundCh: gch,
		satCh:    sch,
		ground:   ground,
		sat:      sat,
		hw:       hw,
		d:        d,
		root:     root,
		client:   NewClient(ground, encoded, confirm),
		listener: ls,
	}
}

// expectAction registers a no-argument hardware call and returns a channel
// closed when it runs.
func expectAction(hw *hardware.MockController, method string) <-chan struct{} {
	done := make(chan struct{})
	hw.On(method, mock.Anything).Return(nil).Once().Run(func(mock.Arguments) { close(done) })

	return done
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for handler")
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func fileEquals(path string, want []byte) func() bool {
	return func() bool {
		got, err := os.ReadFile(path)
		return err == nil && string(got) == string(want)
	}
}

func fileGone(path string) func() bool {
	return func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}
}
