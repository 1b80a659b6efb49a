package hardware

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dalspace/loris/logger"
)

func newTestSystem(t *testing.T, mutate func(*Config)) *System {
	t.Helper()

	cfg := DefaultConfig()
	dir := t.TempDir()
	cfg.BasicTelemetryPath = filepath.Join(dir, "telemetry.txt")
	cfg.LargeTelemetryPath = filepath.Join(dir, "telemetry_large.txt")
	cfg.PicturePath = filepath.Join(dir, "picture.jpg")
	cfg.PulseWidth = 10 * time.Millisecond
	if mutate != nil {
		mutate(&cfg)
	}

	return NewSystem(cfg, logger.NewMockLogger().AllowAll())
}

func TestSystem_Execute(t *testing.T) {
	s := newTestSystem(t, nil)

	out, err := s.Execute(context.Background(), "echo hello")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))

	out, err = s.Execute(context.Background(), "echo oops; exit 3")
	require.ErrorIs(t, err, ErrCommandFailed)
	assert.Equal(t, "oops\n", string(out))
}

func TestSystem_ExecuteTruncatesOutput(t *testing.T) {
	s := newTestSystem(t, func(c *Config) { c.MaxOutput = 4 })

	out, err := s.Execute(context.Background(), "echo 123456789")
	require.NoError(t, err)
	assert.Equal(t, "1234", string(out))
}

func TestSystem_NotConfigured(t *testing.T) {
	s := newTestSystem(t, nil)
	ctx := context.Background()

	require.ErrorIs(t, s.Reboot(ctx), ErrNotConfigured)
	require.ErrorIs(t, s.Shutdown(ctx), ErrNotConfigured)
	require.ErrorIs(t, s.ResetComms(ctx), ErrNotConfigured)
	require.ErrorIs(t, s.FireBurnWire(ctx), ErrNotConfigured)
	require.ErrorIs(t, s.EnableACS(ctx), ErrNotConfigured)

	_, err := s.TakePicture(ctx)
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestSystem_EnableIsIdempotent(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "count")
	s := newTestSystem(t, func(c *Config) {
		c.AuxTelemetryCommand = []string{"/bin/sh", "-c", "echo x >> " + marker}
	})

	require.NoError(t, s.EnableAuxTelemetry(context.Background()))
	require.NoError(t, s.EnableAuxTelemetry(context.Background()))

	data, err := os.ReadFile(marker)
	require.NoError(t, err)
	assert.Equal(t, "x\n", string(data))
}

func TestSystem_PulseGPIO(t *testing.T) {
	gpio := filepath.Join(t.TempDir(), "value")
	require.NoError(t, os.WriteFile(gpio, []byte("0"), 0o600))

	s := newTestSystem(t, func(c *Config) {
		c.BurnWireGPIO = gpio
		c.PulseWidth = 50 * time.Millisecond
	})

	done := make(chan error, 1)
	go func() { done <- s.FireBurnWire(context.Background()) }()

	require.Eventually(t, func() bool {
		v, _ := os.ReadFile(gpio)
		return string(v) == "1"
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, <-done)

	v, err := os.ReadFile(gpio)
	require.NoError(t, err)
	assert.Equal(t, "0", string(v))
}

func TestSystem_PulseCancelledStillReleases(t *testing.T) {
	gpio := filepath.Join(t.TempDir(), "value")
	require.NoError(t, os.WriteFile(gpio, []byte("0"), 0o600))

	s := newTestSystem(t, func(c *Config) {
		c.CommsResetGPIO = gpio
		c.PulseWidth = time.Hour
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, s.ResetComms(ctx), context.DeadlineExceeded)

	v, err := os.ReadFile(gpio)
	require.NoError(t, err)
	assert.Equal(t, "0", string(v))
}

func TestSystem_TelemetryAndDelete(t *testing.T) {
	s := newTestSystem(t, func(c *Config) {
		c.TelemetryCommand = []string{"/bin/sh", "-c", `echo "batt=7.4" > "$0"`}
	})
	ctx := context.Background()

	path, err := s.Telemetry(ctx, BasicTelemetry)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "batt=7.4\n", string(data))

	require.NoError(t, s.DeleteTelemetry(ctx))
	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// deleting again is fine
	require.NoError(t, s.DeleteTelemetry(ctx))
}

func TestSystem_TakePicture(t *testing.T) {
	var picture string
	s := newTestSystem(t, func(c *Config) {
		picture = c.PicturePath
		c.PictureCommand = []string{"/bin/sh", "-c", "printf JPEG > " + c.PicturePath}
	})

	path, err := s.TakePicture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, picture, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "JPEG", string(data))
}

func TestTelemetryKind_String(t *testing.T) {
	assert.Equal(t, "basic", BasicTelemetry.String())
	assert.Equal(t, "large", LargeTelemetry.String())
	assert.Equal(t, "unknown", TelemetryKind(7).String())
}
