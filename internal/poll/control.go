package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smartfarm-go-panel/internal/api"
)

// ErrCommandPending rejects a command for a component whose cooldown has
// not elapsed.
var ErrCommandPending = errors.New("command pending for component")

// ErrNoDeviceSelected rejects control operations while no device has
// focus.
var ErrNoDeviceSelected = errors.New("no device selected")

// statusRefetchDelay gives the backend time to apply a command before
// the status is re-read.
const statusRefetchDelay = 500 * time.Millisecond

// DeviceControl is the slice of the device service the monitor needs.
type DeviceControl interface {
	Control(ctx context.Context, id int, component, command string) error
	ControlStatus(ctx context.Context, id int) (*api.ControlStatus, error)
}

// ControlMonitor issues actuator commands through the cooldown gate and
// keeps the control-status controller fresh.
type ControlMonitor struct {
	devices DeviceControl
	status  *Controller[*api.ControlStatus]
	gate    *Gate
	clock   Clock
	logger  *slog.Logger
}

// NewControlMonitor wires a monitor for one selected device's control
// surface.
func NewControlMonitor(devices DeviceControl, status *Controller[*api.ControlStatus], gate *Gate, clock Clock, logger *slog.Logger) *ControlMonitor {
	return &ControlMonitor{
		devices: devices,
		status:  status,
		gate:    gate,
		clock:   clock,
		logger:  logger.With("component", "control"),
	}
}

// Command sends one actuator command. The component's cooldown starts
// before the call; a rejected duplicate never reaches the network, and a
// failed call cancels the cooldown immediately. On success a delayed
// status refetch is scheduled so the panel reflects the new target
// state once the backend has applied it.
func (m *ControlMonitor) Command(ctx context.Context, deviceID int, component, command string) error {
	if !m.gate.Start(component) {
		return fmt.Errorf("%w: %s", ErrCommandPending, component)
	}
	if err := m.devices.Control(ctx, deviceID, component, command); err != nil {
		m.gate.Cancel(component)
		return err
	}
	m.logger.Info("actuator command", "device", deviceID, "actuator", component, "command", command)
	// The re-poll fires after the caller's request has finished, so it
	// must not inherit that request's cancellation.
	refetchCtx := context.WithoutCancel(ctx)
	m.clock.AfterFunc(statusRefetchDelay, func() {
		m.status.Refetch(refetchCtx)
	})
	return nil
}
