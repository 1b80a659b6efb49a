package hardware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/dalspace/loris/internal/pool"
	"github.com/dalspace/loris/logger"
)

// Config describes how each action is carried out. Commands are argv lists;
// an empty list leaves the action unconfigured.
type Config struct {
	RebootCommand       []string `yaml:"reboot_command,omitempty"`
	ShutdownCommand     []string `yaml:"shutdown_command,omitempty"`
	AuxTelemetryCommand []string `yaml:"aux_telemetry_command,omitempty"`
	ACSCommand          []string `yaml:"acs_command,omitempty"`

	// PictureCommand must write the image to PicturePath.
	PictureCommand []string `yaml:"picture_command,omitempty"`
	PicturePath    string   `yaml:"picture_path"`

	// TelemetryCommand, when set, is run before a snapshot is returned with
	// the snapshot path appended as its last argument.
	TelemetryCommand   []string `yaml:"telemetry_command,omitempty"`
	BasicTelemetryPath string   `yaml:"basic_telemetry_path"`
	LargeTelemetryPath string   `yaml:"large_telemetry_path"`

	// CommsResetGPIO and BurnWireGPIO are sysfs GPIO value files.
	CommsResetGPIO string        `yaml:"comms_reset_gpio"`
	BurnWireGPIO   string        `yaml:"burn_wire_gpio"`
	PulseWidth     time.Duration `yaml:"pulse_width"`

	// Shell runs forwarded commands; the command line is appended.
	Shell       []string      `yaml:"shell,omitempty"`
	ExecTimeout time.Duration `yaml:"exec_timeout"`
	MaxOutput   int           `yaml:"max_output"`
}

// DefaultConfig returns a configuration with telemetry paths, a POSIX shell
// and conservative timing. Power and actuator commands are left unset.
func DefaultConfig() Config {
	return Config{
		BasicTelemetryPath: "telemetry.txt",
		LargeTelemetryPath: "telemetry_large.txt",
		PicturePath:        "picture.jpg",
		PulseWidth:         2 * time.Second,
		Shell:              []string{"/bin/sh", "-c"},
		ExecTimeout:        30 * time.Second,
		MaxOutput:          8191,
	}
}

// System is the Controller used on the flight computer.
type System struct {
	cfg    Config
	logger logger.Logger

	mu           sync.Mutex
	auxEnabled   bool
	acsEnabled   bool
	gpioSequence sync.Mutex
}

var _ Controller = (*System)(nil)

// NewSystem creates a System. A nil logger uses the package default.
func NewSystem(cfg Config, l logger.Logger) *System {
	if l == nil {
		l = logger.GetLogger()
	}

	return &System{cfg: cfg, logger: l}
}

func (s *System) Reboot(ctx context.Context) error {
	_, err := s.run(ctx, "reboot", s.cfg.RebootCommand)
	return err
}

func (s *System) Shutdown(ctx context.Context) error {
	_, err := s.run(ctx, "shutdown", s.cfg.ShutdownCommand)
	return err
}

func (s *System) ResetComms(ctx context.Context) error {
	return s.pulse(ctx, "comms reset", s.cfg.CommsResetGPIO)
}

func (s *System) FireBurnWire(ctx context.Context) error {
	return s.pulse(ctx, "burn wire", s.cfg.BurnWireGPIO)
}

func (s *System) EnableAuxTelemetry(ctx context.Context) error {
	return s.enableOnce(ctx, "aux telemetry", &s.auxEnabled, s.cfg.AuxTelemetryCommand)
}

func (s *System) EnableACS(ctx context.Context) error {
	return s.enableOnce(ctx, "acs", &s.acsEnabled, s.cfg.ACSCommand)
}

func (s *System) DeleteTelemetry(_ context.Context) error {
	var errs []error
	for _, path := range []string{s.cfg.BasicTelemetryPath, s.cfg.LargeTelemetryPath} {
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Errorf("hardware: delete telemetry %s: %w", path, err))
		}
	}

	s.logger.Info("hardware: telemetry deleted")

	return errors.Join(errs...)
}

func (s *System) TakePicture(ctx context.Context) (string, error) {
	if s.cfg.PicturePath == "" {
		return "", fmt.Errorf("%w: picture path", ErrNotConfigured)
	}

	if _, err := s.run(ctx, "take picture", s.cfg.PictureCommand); err != nil {
		return "", err
	}

	return s.cfg.PicturePath, nil
}

func (s *System) Telemetry(ctx context.Context, kind TelemetryKind) (string, error) {
	var path string

	switch kind {
	case BasicTelemetry:
		path = s.cfg.BasicTelemetryPath
	case LargeTelemetry:
		path = s.cfg.LargeTelemetryPath
	}

	if path == "" {
		return "", fmt.Errorf("%w: %s telemetry path", ErrNotConfigured, kind)
	}

	if len(s.cfg.TelemetryCommand) > 0 {
		argv := append(append([]string{}, s.cfg.TelemetryCommand...), path)
		if _, err := s.run(ctx, "telemetry "+kind.String(), argv); err != nil {
			return "", err
		}
	}

	return path, nil
}

// Execute runs cmd through the configured shell. The output is returned even
// when the command fails so it can be relayed to the operator.
func (s *System) Execute(ctx context.Context, cmd string) ([]byte, error) {
	if len(s.cfg.Shell) == 0 {
		return nil, fmt.Errorf("%w: shell", ErrNotConfigured)
	}

	argv := append(append([]string{}, s.cfg.Shell...), cmd)

	return s.run(ctx, "execute", argv)
}

// --- helpers ---

func (s *System) run(ctx context.Context, action string, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotConfigured, action)
	}

	if s.cfg.ExecTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ExecTimeout)
		defer cancel()
	}

	s.logger.Info("hardware: running action", "action", action, "argv", argv)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec
	out, err := cmd.CombinedOutput()
	out = s.truncate(out)

	if err != nil {
		s.logger.Warn("hardware: action failed", "action", action, "error", err)
		return out, fmt.Errorf("%w: %s: %w", ErrCommandFailed, action, err)
	}

	return out, nil
}

func (s *System) truncate(out []byte) []byte {
	if s.cfg.MaxOutput > 0 && len(out) > s.cfg.MaxOutput {
		return bytes.Clone(out[:s.cfg.MaxOutput])
	}

	return out
}

func (s *System) enableOnce(ctx context.Context, action string, enabled *bool, argv []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if *enabled {
		s.logger.Debug("hardware: already enabled", "action", action)
		return nil
	}

	if _, err := s.run(ctx, action, argv); err != nil {
		return err
	}
	*enabled = true

	return nil
}

// pulse drives a GPIO high for PulseWidth and then low again.
func (s *System) pulse(ctx context.Context, action, valuePath string) error {
	if valuePath == "" {
		return fmt.Errorf("%w: %s gpio", ErrNotConfigured, action)
	}

	s.gpioSequence.Lock()
	defer s.gpioSequence.Unlock()

	s.logger.Info("hardware: gpio pulse", "action", action, "gpio", valuePath, "width", s.cfg.PulseWidth)

	if err := os.WriteFile(valuePath, []byte("1"), 0); err != nil {
		return fmt.Errorf("hardware: %s gpio high: %w", action, err)
	}

	timer := pool.GetTimer(s.cfg.PulseWidth)
	defer pool.PutTimer(timer)

	var waitErr error
	select {
	case <-timer.C:
	case <-ctx.Done():
		waitErr = ctx.Err()
	}

	// always release the line, even when cancelled
	if err := os.WriteFile(valuePath, []byte("0"), 0); err != nil {
		return fmt.Errorf("hardware: %s gpio low: %w", action, err)
	}

	return waitErr
}
