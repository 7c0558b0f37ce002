// Package farm holds the domain services: devices, presets, logs and the
// plant gallery. Services talk to the backend through api.Doer and keep
// local fallback records in a storage.Store, so a dead backend degrades
// the panel instead of emptying it.
package farm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smartfarm-go-panel/internal/api"
	"smartfarm-go-panel/internal/storage"
)

var (
	// ErrSavedLocally reports that a create call failed remotely but the
	// record was kept in the local store. The operation did not succeed
	// as requested, so it is still an error; callers can inspect the
	// saved record separately.
	ErrSavedLocally = errors.New("saved locally after remote failure")

	// ErrRemoteDeviceDelete rejects deletion of backend-owned devices.
	// Only local fallback devices may be removed through the panel.
	ErrRemoteDeviceDelete = errors.New("remote devices cannot be deleted")

	// ErrNotAuthenticated is returned when an operation needs a token
	// and none is stored.
	ErrNotAuthenticated = errors.New("not authenticated")
)

// DeviceService manages the merged remote+local device view.
type DeviceService struct {
	client api.Doer
	store  storage.Store
	tokens api.TokenSource
	logger *slog.Logger

	// now is swappable so tests get deterministic local ids.
	now func() time.Time
}

// NewDeviceService creates a device service over the given client and
// local store.
func NewDeviceService(client api.Doer, store storage.Store, tokens api.TokenSource, logger *slog.Logger) *DeviceService {
	return &DeviceService{
		client: client,
		store:  store,
		tokens: tokens,
		logger: logger.With("component", "devices"),
		now:    time.Now,
	}
}

// List returns remote devices followed by local fallback devices.
func (s *DeviceService) List(ctx context.Context) ([]api.Device, error) {
	var remote []api.Device
	if err := s.client.Get(ctx, "/devices/", &remote); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return append(remote, s.localDevices()...), nil
}

// Positions returns the backend's location groupings.
func (s *DeviceService) Positions(ctx context.Context) ([]api.Position, error) {
	var positions []api.Position
	if err := s.client.Get(ctx, "/positions/", &positions); err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return positions, nil
}

// Detail fetches a single device with its embedded history and logs.
func (s *DeviceService) Detail(ctx context.Context, id int) (*api.Device, error) {
	var dev api.Device
	if err := s.client.Get(ctx, fmt.Sprintf("/devices/%d", id), &dev); err != nil {
		return nil, fmt.Errorf("device %d: %w", id, err)
	}
	return &dev, nil
}

// History fetches sensor measurements for the trailing window.
func (s *DeviceService) History(ctx context.Context, id, hoursAgo int) ([]api.SensorData, error) {
	var data []api.SensorData
	path := fmt.Sprintf("/devices/%d/historical-data?hours_ago=%d", id, hoursAgo)
	if err := s.client.Get(ctx, path, &data); err != nil {
		return nil, fmt.Errorf("device %d history: %w", id, err)
	}
	return data, nil
}

// Create registers a device on the backend. When the remote call fails
// the device is written to the local store with a synthetic id and the
// failure is still surfaced as ErrSavedLocally, so the caller knows the
// backend never saw it.
func (s *DeviceService) Create(ctx context.Context, name, location, serial string) (*api.Device, error) {
	if s.tokens != nil && s.tokens.Token() == "" {
		return nil, ErrNotAuthenticated
	}

	req := api.DeviceCreate{
		DeviceName:   name,
		Location:     location,
		DeviceSerial: serial,
		PositionID:   1,
	}
	var created api.Device
	err := s.client.Post(ctx, "/devices/", req, &created)
	if err == nil {
		return &created, nil
	}
	s.logger.Warn("remote device create failed, saving locally", "name", name, "err", err)

	local := api.Device{
		DeviceID:     int(s.now().UnixMilli()),
		DeviceName:   name,
		Location:     &location,
		DeviceType:   api.DeviceTypeLocal,
		DeviceSerial: serial,
	}
	if saveErr := s.saveLocalDevice(local); saveErr != nil {
		return nil, fmt.Errorf("create device: %w (local save also failed: %v)", err, saveErr)
	}
	return &local, fmt.Errorf("%w: %v", ErrSavedLocally, err)
}

// Delete removes a local device. Devices not present in the local store
// belong to the backend and are rejected without any network traffic.
func (s *DeviceService) Delete(id int) error {
	locals := s.localDevices()
	kept := locals[:0]
	found := false
	for _, d := range locals {
		if d.DeviceID == id && d.DeviceType == api.DeviceTypeLocal {
			found = true
			continue
		}
		kept = append(kept, d)
	}
	if !found {
		return ErrRemoteDeviceDelete
	}
	return s.writeLocalDevices(kept)
}

// Control sends a manual actuator command. No status refetch happens
// here; the poll layer schedules one after a short delay.
func (s *DeviceService) Control(ctx context.Context, id int, component, command string) error {
	req := api.ManualControlRequest{Component: component, Command: command}
	path := fmt.Sprintf("/devices/%d/manual-control", id)
	if err := s.client.Put(ctx, path, req, nil); err != nil {
		return fmt.Errorf("control device %d %s=%s: %w", id, component, command, err)
	}
	return nil
}

// ControlStatus fetches the device's target actuator state.
func (s *DeviceService) ControlStatus(ctx context.Context, id int) (*api.ControlStatus, error) {
	var st api.ControlStatus
	path := fmt.Sprintf("/devices/%d/control_status", id)
	if err := s.client.Get(ctx, path, &st); err != nil {
		return nil, fmt.Errorf("device %d control status: %w", id, err)
	}
	return &st, nil
}

// ApplyUserPreset binds a user preset to the device's control loop.
func (s *DeviceService) ApplyUserPreset(ctx context.Context, deviceID, presetID int) error {
	path := fmt.Sprintf("/devices/%d/apply-user-preset/%d", deviceID, presetID)
	if err := s.client.Put(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("apply user preset %d to device %d: %w", presetID, deviceID, err)
	}
	return nil
}

// ApplyPlantPreset binds a plant preset to the device's control loop.
func (s *DeviceService) ApplyPlantPreset(ctx context.Context, deviceID, presetID int) error {
	path := fmt.Sprintf("/devices/%d/apply-plant-preset/%d", deviceID, presetID)
	if err := s.client.Put(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("apply plant preset %d to device %d: %w", presetID, deviceID, err)
	}
	return nil
}

func (s *DeviceService) localDevices() []api.Device {
	raw, err := s.store.Get(storage.KeyLocalDevices)
	if err != nil {
		return nil
	}
	var devices []api.Device
	if err := json.Unmarshal([]byte(raw), &devices); err != nil {
		s.logger.Warn("local devices unreadable, ignoring", "err", err)
		return nil
	}
	return devices
}

func (s *DeviceService) saveLocalDevice(dev api.Device) error {
	devices := s.localDevices()
	replaced := false
	for i, d := range devices {
		if d.DeviceID == dev.DeviceID {
			devices[i] = dev
			replaced = true
			break
		}
	}
	if !replaced {
		devices = append(devices, dev)
	}
	return s.writeLocalDevices(devices)
}

func (s *DeviceService) writeLocalDevices(devices []api.Device) error {
	data, err := json.Marshal(devices)
	if err != nil {
		return fmt.Errorf("encode local devices: %w", err)
	}
	if err := s.store.Set(storage.KeyLocalDevices, string(data)); err != nil {
		return fmt.Errorf("save local devices: %w", err)
	}
	return nil
}
