package farm

import (
	"context"
	"errors"
	"testing"
	"time"

	"smartfarm-go-panel/internal/api"
	"smartfarm-go-panel/internal/storage"
)

type fixedToken string

func (f fixedToken) Token() string { return string(f) }

func newDeviceFixture(t *testing.T, handler func(method, path string, body, out any) error) (*DeviceService, *stubClient, storage.Store) {
	t.Helper()
	client := &stubClient{handler: handler}
	store := storage.NewMemStore()
	s := NewDeviceService(client, store, fixedToken("tok"), testLogger())
	return s, client, store
}

func TestListMergesLocalDevices(t *testing.T) {
	s, _, _ := newDeviceFixture(t, func(method, path string, body, out any) error {
		*out.(*[]api.Device) = []api.Device{{DeviceID: 1, DeviceName: "remote"}}
		return nil
	})
	if err := s.saveLocalDevice(api.Device{DeviceID: 99, DeviceName: "bench", DeviceType: api.DeviceTypeLocal}); err != nil {
		t.Fatal(err)
	}

	devices, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("len = %d, want 2", len(devices))
	}
	if devices[0].DeviceID != 1 || devices[1].DeviceID != 99 {
		t.Errorf("order = %d,%d, want remote first then local", devices[0].DeviceID, devices[1].DeviceID)
	}
}

func TestPositionsList(t *testing.T) {
	s, client, _ := newDeviceFixture(t, func(method, path string, body, out any) error {
		*out.(*[]api.Position) = []api.Position{{PositionID: 2, PositionName: "east wing"}}
		return nil
	})

	positions, err := s.Positions(context.Background())
	if err != nil {
		t.Fatalf("Positions: %v", err)
	}
	if len(positions) != 1 || positions[0].PositionName != "east wing" {
		t.Fatalf("positions = %+v", positions)
	}
	if len(client.calls) != 1 || client.calls[0] != (stubCall{method: "GET", path: "/positions/"}) {
		t.Errorf("calls = %+v, want GET /positions/", client.calls)
	}
}

func TestCreateFallsBackLocally(t *testing.T) {
	s, _, _ := newDeviceFixture(t, func(method, path string, body, out any) error {
		if method == "POST" {
			return errors.New("backend down")
		}
		*out.(*[]api.Device) = nil
		return nil
	})
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }

	dev, err := s.Create(context.Background(), "bench", "window", "10.0.0.5")
	if !errors.Is(err, ErrSavedLocally) {
		t.Fatalf("err = %v, want ErrSavedLocally", err)
	}
	if dev == nil {
		t.Fatal("device = nil despite local save")
	}
	if dev.DeviceID != 1700000000000 {
		t.Errorf("DeviceID = %d, want synthetic 1700000000000", dev.DeviceID)
	}
	if dev.DeviceType != api.DeviceTypeLocal {
		t.Errorf("DeviceType = %q, want local", dev.DeviceType)
	}

	// The fallback device must show up in the merged list.
	devices, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(devices) != 1 || devices[0].DeviceID != 1700000000000 {
		t.Errorf("merged list = %+v, want the local device", devices)
	}
}

func TestCreateRemoteSuccess(t *testing.T) {
	s, _, store := newDeviceFixture(t, func(method, path string, body, out any) error {
		*out.(*api.Device) = api.Device{DeviceID: 12, DeviceName: "bench"}
		return nil
	})

	dev, err := s.Create(context.Background(), "bench", "window", "10.0.0.5")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if dev.DeviceID != 12 {
		t.Errorf("DeviceID = %d, want 12", dev.DeviceID)
	}
	if _, err := store.Get(storage.KeyLocalDevices); !errors.Is(err, storage.ErrNotFound) {
		t.Error("remote success must not write the local store")
	}
}

func TestCreateRequiresToken(t *testing.T) {
	client := &stubClient{}
	s := NewDeviceService(client, storage.NewMemStore(), fixedToken(""), testLogger())

	if _, err := s.Create(context.Background(), "x", "y", "z"); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("calls = %d, want 0", len(client.calls))
	}
}

func TestDeleteRemoteRejectedWithoutNetwork(t *testing.T) {
	s, client, _ := newDeviceFixture(t, nil)

	err := s.Delete(42)
	if !errors.Is(err, ErrRemoteDeviceDelete) {
		t.Fatalf("err = %v, want ErrRemoteDeviceDelete", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("network calls = %d, want 0", len(client.calls))
	}
}

func TestDeleteLocalDevice(t *testing.T) {
	s, client, _ := newDeviceFixture(t, func(method, path string, body, out any) error {
		*out.(*[]api.Device) = nil
		return nil
	})
	if err := s.saveLocalDevice(api.Device{DeviceID: 7, DeviceType: api.DeviceTypeLocal}); err != nil {
		t.Fatal(err)
	}

	calls := len(client.calls)
	if err := s.Delete(7); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(client.calls) != calls {
		t.Errorf("delete made %d network calls, want 0", len(client.calls)-calls)
	}

	devices, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("list after delete = %+v, want empty", devices)
	}
}

func TestControlPutsCommand(t *testing.T) {
	var gotBody api.ManualControlRequest
	s, client, _ := newDeviceFixture(t, func(method, path string, body, out any) error {
		if method == "PUT" {
			gotBody = body.(api.ManualControlRequest)
		}
		return nil
	})

	if err := s.Control(context.Background(), 3, api.ComponentLED, api.CommandOn); err != nil {
		t.Fatalf("Control: %v", err)
	}
	if len(client.calls) != 1 || client.calls[0].path != "/devices/3/manual-control" {
		t.Fatalf("calls = %+v", client.calls)
	}
	if gotBody.Component != "LED" || gotBody.Command != "ON" {
		t.Errorf("body = %+v", gotBody)
	}
}

func TestApplyPresetPaths(t *testing.T) {
	s, client, _ := newDeviceFixture(t, nil)

	if err := s.ApplyUserPreset(context.Background(), 2, 5); err != nil {
		t.Fatalf("ApplyUserPreset: %v", err)
	}
	if err := s.ApplyPlantPreset(context.Background(), 2, 9); err != nil {
		t.Fatalf("ApplyPlantPreset: %v", err)
	}
	want := []string{"/devices/2/apply-user-preset/5", "/devices/2/apply-plant-preset/9"}
	for i, w := range want {
		if client.calls[i].method != "PUT" || client.calls[i].path != w {
			t.Errorf("call[%d] = %+v, want PUT %s", i, client.calls[i], w)
		}
	}
}
