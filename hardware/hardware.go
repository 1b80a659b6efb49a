// Package hardware is the boundary between the command protocol and the
// spacecraft: power control, actuators, camera and telemetry collection.
//
// The protocol layer only talks to the Controller interface. System is the
// configuration-driven implementation used on the flight computer; every
// action is either an external command or a pulse on a sysfs GPIO value file.
package hardware

import (
	"context"
	"errors"
)

// Sentinel errors for hardware actions.
var (
	ErrNotConfigured = errors.New("hardware: action not configured")
	ErrCommandFailed = errors.New("hardware: command failed")
)

// TelemetryKind selects a telemetry snapshot.
type TelemetryKind int

const (
	// BasicTelemetry is the small periodic housekeeping snapshot.
	BasicTelemetry TelemetryKind = iota
	// LargeTelemetry is the full telemetry dump.
	LargeTelemetry
)

func (k TelemetryKind) String() string {
	switch k {
	case BasicTelemetry:
		return "basic"
	case LargeTelemetry:
		return "large"
	default:
		return "unknown"
	}
}

// Controller performs hardware actions on behalf of the command dispatcher.
type Controller interface {
	// Reboot restarts the on-board computer.
	Reboot(ctx context.Context) error
	// Shutdown powers the on-board computer off.
	Shutdown(ctx context.Context) error
	// ResetComms power-cycles the communications hardware.
	ResetComms(ctx context.Context) error
	// EnableAuxTelemetry starts the auxiliary telemetry program. Repeated
	// calls are no-ops.
	EnableAuxTelemetry(ctx context.Context) error
	// FireBurnWire deploys the antenna by pulsing the burn-wire line.
	FireBurnWire(ctx context.Context) error
	// EnableACS starts the attitude-control system. Repeated calls are no-ops.
	EnableACS(ctx context.Context) error
	// DeleteTelemetry removes stored telemetry snapshots.
	DeleteTelemetry(ctx context.Context) error
	// TakePicture captures an image and returns its path.
	TakePicture(ctx context.Context) (string, error)
	// Telemetry refreshes and returns the path of a telemetry snapshot.
	Telemetry(ctx context.Context, kind TelemetryKind) (string, error)
	// Execute runs an arbitrary command line and returns its combined output.
	Execute(ctx context.Context, cmd string) ([]byte, error)
}
