// Package display converts raw backend records into the shapes the panel
// presents. Everything here is a pure function; no I/O, no state.
package display

import (
	"fmt"
	"time"

	"smartfarm-go-panel/internal/api"
)

// Status levels for a classified sensor value.
const (
	StatusLow    = "low"
	StatusNormal = "normal"
	StatusHigh   = "high"
)

// DeviceSummary is the panel view of a device.
type DeviceSummary struct {
	ID         int    `json:"id"`
	PositionID int    `json:"position_id"`
	Name       string `json:"name"`
	DeviceType string `json:"device_type"`
	Status     string `json:"status"`
	IsActive   bool   `json:"is_active"`
	UpdatedAt  string `json:"updated_at"`
}

// SensorReading is one displayed sensor value. ID is synthesized from the
// measurement cycle and a per-sensor slot so readings from one cycle stay
// distinct.
type SensorReading struct {
	ID         int     `json:"id"`
	PositionID int     `json:"position_id"`
	SensorType string  `json:"sensor_type"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Status     string  `json:"status"`
	Timestamp  string  `json:"timestamp"`
}

// EventLog is the panel view of an action log entry.
type EventLog struct {
	ID          int    `json:"id"`
	PositionID  int    `json:"position_id"`
	DeviceID    int    `json:"device_id"`
	EventType   string `json:"event_type"`
	Description string `json:"description"`
	Timestamp   string `json:"timestamp"`
}

// Device maps a raw device to its summary. A device is online exactly
// when the backend reported a last_active timestamp.
func Device(d api.Device) DeviceSummary {
	s := DeviceSummary{
		ID:         d.DeviceID,
		Name:       d.DeviceName,
		DeviceType: d.DeviceType,
		Status:     "offline",
		UpdatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
	if d.Position != nil {
		s.PositionID = d.Position.PositionID
	}
	if d.LastActive != nil && *d.LastActive != "" {
		s.Status = "online"
		s.IsActive = true
		s.UpdatedAt = *d.LastActive
	}
	return s
}

// Devices maps a slice of raw devices.
func Devices(devices []api.Device) []DeviceSummary {
	out := make([]DeviceSummary, 0, len(devices))
	for _, d := range devices {
		out = append(out, Device(d))
	}
	return out
}

// Sensor slot numbers fixed by the display id scheme measure_id*10+slot.
const (
	slotTemperature = 1
	slotHumidity    = 2
	slotLight       = 3
	slotWater       = 4
	slotSoil1       = 5
	slotSoil2       = 6
)

// SensorReadings fans each measurement cycle out into one reading per
// sensor that actually reported. Absent fields produce no reading at all.
// deviceID overrides the per-row device id when nonzero.
func SensorReadings(data []api.SensorData, deviceID int) []SensorReading {
	var out []SensorReading
	for _, d := range data {
		pos := d.DeviceID
		if deviceID != 0 {
			pos = deviceID
		}
		add := func(slot int, sensorType string, value float64, unit, status string) {
			out = append(out, SensorReading{
				ID:         d.MeasureID*10 + slot,
				PositionID: pos,
				SensorType: sensorType,
				Value:      value,
				Unit:       unit,
				Status:     status,
				Timestamp:  d.MeasureDate,
			})
		}
		if d.Temperature != nil {
			add(slotTemperature, "temperature", *d.Temperature, "°C", TemperatureStatus(*d.Temperature))
		}
		if d.Humidity != nil {
			add(slotHumidity, "humidity", *d.Humidity, "%", HumidityStatus(*d.Humidity))
		}
		if d.LightLevel != nil {
			add(slotLight, "light", *d.LightLevel, "lux", LightStatus(*d.LightLevel))
		}
		if d.WaterLevel != nil {
			add(slotWater, "water_level", *d.WaterLevel, "%", WaterLevelStatus(*d.WaterLevel))
		}
		if d.SoilMoisture1 != nil {
			add(slotSoil1, "soil_moisture_1", *d.SoilMoisture1, "%", SoilMoistureStatus(*d.SoilMoisture1))
		}
		if d.SoilMoisture2 != nil {
			add(slotSoil2, "soil_moisture_2", *d.SoilMoisture2, "%", SoilMoistureStatus(*d.SoilMoisture2))
		}
	}
	return out
}

// Event maps a raw action log entry.
func Event(l api.ActionLog) EventLog {
	return EventLog{
		ID:          l.LogID,
		PositionID:  l.DeviceID,
		DeviceID:    l.DeviceID,
		EventType:   l.ActionType,
		Description: fmt.Sprintf("%s: %s", l.ActionTrigger, l.ActionType),
		Timestamp:   l.ActionTime,
	}
}

// Events maps a slice of raw action logs.
func Events(logs []api.ActionLog) []EventLog {
	out := make([]EventLog, 0, len(logs))
	for _, l := range logs {
		out = append(out, Event(l))
	}
	return out
}
