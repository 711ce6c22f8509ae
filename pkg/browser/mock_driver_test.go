// pkg/browser/mock_driver_test.go
package browser

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockDriver mocks the Driver interface. Each instance carries a name so tests can
// tell which driver value a Handle ended up bound to.
type MockDriver struct {
	mock.Mock
	name string
}

func newMockDriver(name string) *MockDriver {
	return &MockDriver{name: name}
}

func driverResult(args mock.Arguments) (Driver, error) {
	var d Driver
	if v := args.Get(0); v != nil {
		d = v.(Driver)
	}
	return d, args.Error(1)
}

func (m *MockDriver) NewWindow(ctx context.Context, kind WindowType) (Driver, error) {
	return driverResult(m.Called(ctx, kind))
}

func (m *MockDriver) WindowHandle(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockDriver) WindowHandles(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func (m *MockDriver) SwitchToWindow(ctx context.Context, handle string) (Driver, error) {
	return driverResult(m.Called(ctx, handle))
}

func (m *MockDriver) SwitchToFrame(ctx context.Context, ref FrameRef) (Driver, error) {
	return driverResult(m.Called(ctx, ref))
}

func (m *MockDriver) SwitchToParentFrame(ctx context.Context) (Driver, error) {
	return driverResult(m.Called(ctx))
}

func (m *MockDriver) SwitchToDefaultContent(ctx context.Context) (Driver, error) {
	return driverResult(m.Called(ctx))
}

func (m *MockDriver) ActiveElement(ctx context.Context) (Element, error) {
	args := m.Called(ctx)
	el, _ := args.Get(0).(Element)
	return el, args.Error(1)
}

func (m *MockDriver) Alert(ctx context.Context) (Alert, error) {
	args := m.Called(ctx)
	a, _ := args.Get(0).(Alert)
	return a, args.Error(1)
}

type fakeElement struct {
	tag   string
	attrs map[string]string
}

func (e fakeElement) TagName() string { return e.tag }

func (e fakeElement) Attribute(name string) (string, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

type fakeAlert struct {
	text string
}

func (a *fakeAlert) Text() string                           { return a.text }
func (a *fakeAlert) Type() string                           { return "alert" }
func (a *fakeAlert) Accept(context.Context) error           { return nil }
func (a *fakeAlert) Dismiss(context.Context) error          { return nil }
func (a *fakeAlert) SendKeys(context.Context, string) error { return nil }
