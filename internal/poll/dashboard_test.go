package poll

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"smartfarm-go-panel/internal/api"
)

func sensorBackend() *stubBackend {
	temp := 25.0
	return &stubBackend{
		devices: []api.Device{{DeviceID: 1, DeviceName: "bed-a"}},
		status:  api.ControlStatus{TargetLEDState: "OFF"},
		history: []api.SensorData{{
			MeasureID:   1,
			DeviceID:    1,
			Temperature: &temp,
			MeasureDate: "2025-06-01T10:00:00Z",
		}},
	}
}

func TestSelectFetchesDeviceState(t *testing.T) {
	backend := sensorBackend()
	clock := NewFakeClock(time.Unix(0, 0))
	d := NewDashboard(backend, clock, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Run(ctx)
	d.Select(ctx, 1)

	if got := d.Sensors().Data; len(got) != 1 || got[0].SensorType != "temperature" {
		t.Fatalf("sensors = %+v, want one temperature reading", got)
	}
	if st := d.Status().Data; st == nil || st.TargetLEDState != "OFF" {
		t.Fatalf("status = %+v", st)
	}
	if d.Selected() != 1 {
		t.Errorf("Selected = %d", d.Selected())
	}
	if backend.lastHistoryHours != 1 {
		t.Errorf("history window = %dh, want 1h", backend.lastHistoryHours)
	}
}

func TestDeviceListClearsOnError(t *testing.T) {
	backend := sensorBackend()
	d := NewDashboard(backend, NewFakeClock(time.Unix(0, 0)), testLogger())

	ctx := context.Background()
	d.Run(ctx)
	if got := d.Devices().Data; len(got) != 1 {
		t.Fatalf("devices = %+v, want one", got)
	}

	backend.listErr = errors.New("backend down")
	d.Refresh(ctx)

	st := d.Devices()
	if st.Err == "" {
		t.Fatal("failed refresh must surface an error")
	}
	if len(st.Data) != 0 {
		t.Fatalf("device list kept stale data after failed refresh: %+v", st.Data)
	}
}

func TestPositionsFetchedAndClearedOnError(t *testing.T) {
	backend := sensorBackend()
	backend.positions = []api.Position{{PositionID: 3, PositionName: "north bay"}}
	d := NewDashboard(backend, NewFakeClock(time.Unix(0, 0)), testLogger())

	ctx := context.Background()
	d.Run(ctx)
	if got := d.Positions().Data; len(got) != 1 || got[0].PositionName != "north bay" {
		t.Fatalf("positions = %+v", got)
	}

	backend.positionsErr = errors.New("backend down")
	d.Refresh(ctx)
	if got := d.Positions(); got.Err == "" || len(got.Data) != 0 {
		t.Fatalf("positions after failed refresh = %+v, want cleared with error", got)
	}
}

func TestEventsNewestFirstCapped(t *testing.T) {
	backend := sensorBackend()
	dev := &api.Device{DeviceID: 1}
	for i := 1; i <= 12; i++ {
		dev.ActionLogs = append(dev.ActionLogs, api.ActionLog{
			LogID:         i,
			DeviceID:      1,
			ActionType:    "PUMP_ON",
			ActionTrigger: "soil moisture low",
			ActionTime:    fmt.Sprintf("2025-06-01T%02d:00:00Z", i),
		})
	}
	backend.detail = dev
	d := NewDashboard(backend, NewFakeClock(time.Unix(0, 0)), testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Select(ctx, 1)

	events := d.Events().Data
	if len(events) != 10 {
		t.Fatalf("events = %d entries, want capped at 10", len(events))
	}
	if events[0].Timestamp != "2025-06-01T12:00:00Z" {
		t.Errorf("first event = %s, want the newest", events[0].Timestamp)
	}
	for i := 1; i < len(events); i++ {
		if events[i].Timestamp > events[i-1].Timestamp {
			t.Fatalf("events not sorted newest-first at %d", i)
		}
	}
}

func TestDeselectClearsAndStopsPolling(t *testing.T) {
	backend := sensorBackend()
	backend.historyNotify = make(chan struct{}, 8)
	clock := NewFakeClock(time.Unix(0, 0))
	d := NewDashboard(backend, clock, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Select(ctx, 1)
	<-backend.historyNotify // initial fetch

	d.Deselect()
	if got := d.Sensors().Data; len(got) != 0 {
		t.Errorf("sensors after deselect = %+v, want cleared", got)
	}
	if d.Status().Data != nil {
		t.Error("status after deselect must be nil")
	}

	// With nothing selected the interval must not fetch.
	before := backend.historyCalls
	clock.Advance(3 * sensorPollInterval)
	select {
	case <-backend.historyNotify:
		t.Fatalf("history fetched while deselected (calls %d -> %d)", before, backend.historyCalls)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSensorAutoPollWhileSelected(t *testing.T) {
	backend := sensorBackend()
	backend.historyNotify = make(chan struct{}, 8)
	clock := NewFakeClock(time.Unix(0, 0))
	d := NewDashboard(backend, clock, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Select(ctx, 1)
	<-backend.historyNotify // initial fetch

	clock.Advance(sensorPollInterval)
	select {
	case <-backend.historyNotify:
	case <-time.After(2 * time.Second):
		t.Fatal("no sensor refresh after the poll interval")
	}
}

func TestCommandRequiresSelection(t *testing.T) {
	d := NewDashboard(sensorBackend(), NewFakeClock(time.Unix(0, 0)), testLogger())

	err := d.Command(context.Background(), api.ComponentLED, api.CommandOn)
	if err == nil {
		t.Fatal("expected ErrNoDeviceSelected")
	}
}

func TestResetAllRefreshesDevices(t *testing.T) {
	backend := sensorBackend()
	clock := NewFakeClock(time.Unix(0, 0))
	d := NewDashboard(backend, clock, testLogger())

	ctx := context.Background()
	d.Run(ctx)
	d.ResetAll(ctx)

	// The single presetless device gets all four actuators switched off.
	backend.mu.Lock()
	calls := len(backend.controlCalls)
	backend.mu.Unlock()
	if calls != 4 {
		t.Errorf("controlCalls = %d, want 4", calls)
	}
}
