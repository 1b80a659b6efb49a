package hardware

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockController is a testify mock of Controller.
type MockController struct {
	mock.Mock
}

var _ Controller = (*MockController)(nil)

func (m *MockController) Reboot(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockController) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockController) ResetComms(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockController) EnableAuxTelemetry(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockController) FireBurnWire(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockController) EnableACS(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockController) DeleteTelemetry(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockController) TakePicture(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockController) Telemetry(ctx context.Context, kind TelemetryKind) (string, error) {
	args := m.Called(ctx, kind)
	return args.String(0), args.Error(1)
}

func (m *MockController) Execute(ctx context.Context, cmd string) ([]byte, error) {
	args := m.Called(ctx, cmd)

	var out []byte
	if v := args.Get(0); v != nil {
		out = v.([]byte) //nolint:forcetypeassert
	}

	return out, args.Error(1)
}
