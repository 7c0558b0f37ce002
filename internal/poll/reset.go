package poll

import (
	"context"
	"log/slog"
	"sync"

	"smartfarm-go-panel/internal/api"
)

// DeviceResetter is the slice of the device service the reset needs.
type DeviceResetter interface {
	Control(ctx context.Context, id int, component, command string) error
	ApplyUserPreset(ctx context.Context, deviceID, presetID int) error
	ApplyPlantPreset(ctx context.Context, deviceID, presetID int) error
}

// Reset returns every device to a known state, all devices in parallel.
// A device with a user preset gets it re-applied; failing that, its
// plant preset; a device with neither has all four actuators switched
// off. One device failing is logged and never stops the others.
func Reset(ctx context.Context, devices []api.Device, resetter DeviceResetter, logger *slog.Logger) {
	logger = logger.With("component", "reset")

	var wg sync.WaitGroup
	for _, dev := range devices {
		wg.Add(1)
		go func(dev api.Device) {
			defer wg.Done()
			if err := resetDevice(ctx, dev, resetter); err != nil {
				logger.Warn("device reset failed", "device", dev.DeviceID, "err", err)
			}
		}(dev)
	}
	wg.Wait()
	logger.Info("system reset completed", "devices", len(devices))
}

func resetDevice(ctx context.Context, dev api.Device, resetter DeviceResetter) error {
	if dev.UserPreset != nil {
		return resetter.ApplyUserPreset(ctx, dev.DeviceID, dev.UserPreset.PresetID)
	}
	if dev.PlantPreset != nil {
		return resetter.ApplyPlantPreset(ctx, dev.DeviceID, dev.PlantPreset.PlantPresetID)
	}

	var firstErr error
	for _, component := range []string{api.ComponentLED, api.ComponentPump1, api.ComponentPump2, api.ComponentFan} {
		if err := resetter.Control(ctx, dev.DeviceID, component, api.CommandOff); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
