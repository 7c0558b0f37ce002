package farm

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"smartfarm-go-panel/internal/api"
)

// LogEntry is the panel log format: the raw action log joined with the
// owning device's name and split into date and time columns.
type LogEntry struct {
	ID         int    `json:"id"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Date       string `json:"date"` // YYYY-MM-DD
	Time       string `json:"time"` // HH:MM
	Trigger    string `json:"trigger"`
	Action     string `json:"action"`
}

// LogService aggregates action logs embedded in the device list.
type LogService struct {
	client api.Doer
	logger *slog.Logger
}

// NewLogService creates a log service.
func NewLogService(client api.Doer, logger *slog.Logger) *LogService {
	return &LogService{client: client, logger: logger.With("component", "logs")}
}

// FormattedLogs collects every device's action logs, joins in the device
// names, and sorts newest first. When the backend is unreachable the
// fixed fallback set is returned so the log page is never blank.
func (s *LogService) FormattedLogs(ctx context.Context) []LogEntry {
	var devices []api.Device
	if err := s.client.Get(ctx, "/devices/", &devices); err != nil {
		s.logger.Warn("fetch logs, using fallback set", "err", err)
		return FallbackLogs()
	}

	var out []LogEntry
	for _, dev := range devices {
		for _, l := range dev.ActionLogs {
			out = append(out, formatLog(l, devices))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date+out[i].Time > out[j].Date+out[j].Time
	})
	return out
}

func formatLog(l api.ActionLog, devices []api.Device) LogEntry {
	name := fmt.Sprintf("Device %d", l.DeviceID)
	for _, d := range devices {
		if d.DeviceID == l.DeviceID {
			name = d.DeviceName
			break
		}
	}

	date, hhmm := splitTimestamp(l.ActionTime)
	return LogEntry{
		ID:         l.LogID,
		DeviceID:   fmt.Sprintf("%d", l.DeviceID),
		DeviceName: name,
		Date:       date,
		Time:       hhmm,
		Trigger:    l.ActionTrigger,
		Action:     l.ActionType,
	}
}

func splitTimestamp(ts string) (date, hhmm string) {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		// Backend occasionally omits the zone suffix.
		t, err = time.Parse("2006-01-02T15:04:05", ts)
	}
	if err != nil {
		if d, rest, ok := strings.Cut(ts, "T"); ok && len(rest) >= 5 {
			return d, rest[:5]
		}
		return ts, ""
	}
	return t.Format("2006-01-02"), t.Format("15:04")
}

// FallbackLogs is the canned set shown when the backend is unreachable.
func FallbackLogs() []LogEntry {
	return []LogEntry{
		{
			ID:         1,
			DeviceID:   "1",
			DeviceName: "Greenhouse A",
			Date:       "2024-01-09",
			Time:       "14:30",
			Trigger:    "Soil moisture threshold alert (below 42%)",
			Action:     "Started watering tomato bed (42% -> 70%)",
		},
		{
			ID:         2,
			DeviceID:   "1",
			DeviceName: "Greenhouse A",
			Date:       "2024-01-09",
			Time:       "13:15",
			Trigger:    "Scheduler time-based control",
			Action:     "LED lighting switched on",
		},
		{
			ID:         3,
			DeviceID:   "1",
			DeviceName: "Greenhouse A",
			Date:       "2024-01-09",
			Time:       "12:00",
			Trigger:    "Light sensor reading above limit",
			Action:     "850 lux detected, ventilation fan started",
		},
	}
}

// SearchLogs filters case-insensitively over device name, trigger and
// action. A blank term returns the input unchanged.
func SearchLogs(logs []LogEntry, term string) []LogEntry {
	term = strings.TrimSpace(strings.ToLower(term))
	if term == "" {
		return logs
	}
	var out []LogEntry
	for _, l := range logs {
		if strings.Contains(strings.ToLower(l.DeviceName), term) ||
			strings.Contains(strings.ToLower(l.Trigger), term) ||
			strings.Contains(strings.ToLower(l.Action), term) {
			out = append(out, l)
		}
	}
	return out
}

// FilterLogs narrows by device and date range. Both bounds are
// inclusive: the end bound admits every log dated before the start of
// the following day, so an end date of 2024-01-25 keeps the whole 25th.
// Empty or "all" arguments disable their filter.
func FilterLogs(logs []LogEntry, deviceID, startDate, endDate string) []LogEntry {
	var nextDay string
	if endDate != "" {
		if t, err := time.Parse("2006-01-02", endDate); err == nil {
			nextDay = t.AddDate(0, 0, 1).Format("2006-01-02")
		}
	}

	var out []LogEntry
	for _, l := range logs {
		if deviceID != "" && deviceID != "all" && l.DeviceID != deviceID {
			continue
		}
		if startDate != "" && l.Date < startDate {
			continue
		}
		if nextDay != "" && l.Date >= nextDay {
			continue
		}
		out = append(out, l)
	}
	return out
}
