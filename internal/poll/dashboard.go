package poll

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"smartfarm-go-panel/internal/api"
	"smartfarm-go-panel/internal/display"
)

// sensorPollInterval is the auto-refresh period for the selected
// device's sensor data. Nothing polls while no device is selected.
const sensorPollInterval = 60 * time.Second

// historyWindowHours is the trailing sensor window shown on the
// dashboard.
const historyWindowHours = 1

// maxDashboardEvents caps the event feed at the most recent entries.
const maxDashboardEvents = 10

// DeviceBackend is everything the dashboard needs from the device
// service.
type DeviceBackend interface {
	List(ctx context.Context) ([]api.Device, error)
	Positions(ctx context.Context) ([]api.Position, error)
	History(ctx context.Context, id, hoursAgo int) ([]api.SensorData, error)
	Detail(ctx context.Context, id int) (*api.Device, error)
	DeviceControl
	DeviceResetter
}

// Dashboard wires the controllers for the panel's main view: the device
// list, and per-selected-device sensors, event logs and control status.
type Dashboard struct {
	backend DeviceBackend
	clock   Clock
	logger  *slog.Logger

	devices   *Controller[[]api.Device]
	positions *Controller[[]api.Position]
	sensors   *Controller[[]display.SensorReading]
	events    *Controller[[]display.EventLog]
	status    *Controller[*api.ControlStatus]

	gate    *Gate
	monitor *ControlMonitor

	mu            sync.Mutex
	selected      int
	cancelSensors context.CancelFunc
}

// NewDashboard builds the controller set. Call Run to start the
// background loops, then Select to focus a device.
func NewDashboard(backend DeviceBackend, clock Clock, logger *slog.Logger, opts ...DashboardOption) *Dashboard {
	d := &Dashboard{
		backend: backend,
		clock:   clock,
		logger:  logger.With("component", "dashboard"),
		gate:    NewGate(logger),
	}

	// Every controller clears its data on a failed fetch: showing a
	// stale roster or stale readings for a backend that stopped
	// answering is worse than showing none.
	d.devices = NewController(func(ctx context.Context) ([]api.Device, error) {
		return backend.List(ctx)
	}, d.logger, ClearOnError[[]api.Device]())

	d.positions = NewController(func(ctx context.Context) ([]api.Position, error) {
		return backend.Positions(ctx)
	}, d.logger, ClearOnError[[]api.Position]())

	d.sensors = NewController(func(ctx context.Context) ([]display.SensorReading, error) {
		id := d.Selected()
		if id == 0 {
			return nil, nil
		}
		data, err := backend.History(ctx, id, historyWindowHours)
		if err != nil {
			return nil, err
		}
		return display.SensorReadings(data, id), nil
	}, d.logger, ClearOnError[[]display.SensorReading]())

	d.events = NewController(func(ctx context.Context) ([]display.EventLog, error) {
		id := d.Selected()
		if id == 0 {
			return nil, nil
		}
		dev, err := backend.Detail(ctx, id)
		if err != nil {
			return nil, err
		}
		events := display.Events(dev.ActionLogs)
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Timestamp > events[j].Timestamp
		})
		if len(events) > maxDashboardEvents {
			events = events[:maxDashboardEvents]
		}
		return events, nil
	}, d.logger, ClearOnError[[]display.EventLog]())

	d.status = NewController(func(ctx context.Context) (*api.ControlStatus, error) {
		id := d.Selected()
		if id == 0 {
			return nil, nil
		}
		return backend.ControlStatus(ctx, id)
	}, d.logger, ClearOnError[*api.ControlStatus]())

	d.monitor = NewControlMonitor(backend, d.status, d.gate, clock, logger)

	for _, o := range opts {
		o(d)
	}
	return d
}

// DashboardOption configures a Dashboard.
type DashboardOption func(*Dashboard)

// WithUpdateHook fires after any controller applies a result. The web
// layer uses it to push refresh events to connected clients.
func WithUpdateHook(fn func()) DashboardOption {
	return func(d *Dashboard) {
		d.devices.onUpdate = fn
		d.positions.onUpdate = fn
		d.sensors.onUpdate = fn
		d.events.onUpdate = fn
		d.status.onUpdate = fn
	}
}

// Run performs the initial device and position fetches and starts the
// cooldown tick loop. It returns immediately; loops stop when ctx ends.
func (d *Dashboard) Run(ctx context.Context) {
	d.devices.Start(ctx)
	d.positions.Start(ctx)
	go NewPoller(d.clock, time.Second, d.logger).Run(ctx, func(context.Context) {
		d.gate.Tick()
	})
}

// Select focuses a device: fetches its sensors, events and control
// status, and starts the 60-second sensor auto-refresh. Selecting a new
// device tears down the previous refresh loop first.
func (d *Dashboard) Select(ctx context.Context, deviceID int) {
	d.mu.Lock()
	if d.cancelSensors != nil {
		d.cancelSensors()
	}
	d.selected = deviceID
	sensorCtx, cancel := context.WithCancel(ctx)
	d.cancelSensors = cancel
	d.mu.Unlock()

	d.sensors.Refetch(sensorCtx)
	d.events.Refetch(sensorCtx)
	d.status.Refetch(sensorCtx)

	go NewPoller(d.clock, sensorPollInterval, d.logger).Run(sensorCtx, func(c context.Context) {
		d.sensors.Refetch(c)
	})
}

// Deselect clears the focused device and stops its refresh loop.
func (d *Dashboard) Deselect() {
	d.mu.Lock()
	d.selected = 0
	if d.cancelSensors != nil {
		d.cancelSensors()
		d.cancelSensors = nil
	}
	d.mu.Unlock()

	d.sensors.SetData(nil)
	d.events.SetData(nil)
	d.status.SetData(nil)
}

// Selected returns the focused device id, zero when none.
func (d *Dashboard) Selected() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

// Command issues an actuator command for the focused device through the
// cooldown gate.
func (d *Dashboard) Command(ctx context.Context, component, command string) error {
	id := d.Selected()
	if id == 0 {
		return ErrNoDeviceSelected
	}
	return d.monitor.Command(ctx, id, component, command)
}

// Refresh refetches everything the view shows.
func (d *Dashboard) Refresh(ctx context.Context) {
	d.devices.Refetch(ctx)
	d.positions.Refetch(ctx)
	if d.Selected() != 0 {
		d.sensors.Refetch(ctx)
		d.events.Refetch(ctx)
		d.status.Refetch(ctx)
	}
}

// ResetAll resets every known device to its preset (or all-off) state,
// then refreshes the device list.
func (d *Dashboard) ResetAll(ctx context.Context) {
	Reset(ctx, d.devices.Snapshot().Data, d.backend, d.logger)
	d.devices.Refetch(ctx)
}

// Snapshot accessors for the delivery layer.

func (d *Dashboard) Devices() State[[]api.Device]            { return d.devices.Snapshot() }
func (d *Dashboard) Positions() State[[]api.Position]        { return d.positions.Snapshot() }
func (d *Dashboard) Sensors() State[[]display.SensorReading] { return d.sensors.Snapshot() }
func (d *Dashboard) Events() State[[]display.EventLog]       { return d.events.Snapshot() }
func (d *Dashboard) Status() State[*api.ControlStatus]       { return d.status.Snapshot() }

// CooldownRemaining reports the ticks left before a component accepts
// another command.
func (d *Dashboard) CooldownRemaining(component string) int {
	return d.gate.Remaining(component)
}
