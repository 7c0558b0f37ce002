package farm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"smartfarm-go-panel/internal/api"
	"smartfarm-go-panel/internal/storage"
)

// ErrLocalPresetApply rejects applying a local-only preset to a device;
// the backend has never seen it.
var ErrLocalPresetApply = errors.New("local presets cannot be applied to a device")

// Preset is the panel's settings-oriented preset shape. IDs are
// namespaced strings: "api-<n>" for backend presets, "local-<uuid>" for
// presets that only exist in the local store.
type Preset struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Source   string         `json:"source"` // "api" or "local"
	Settings PresetSettings `json:"settings"`
}

// PresetSettings groups the per-actuator configuration.
type PresetSettings struct {
	LEDLight       LEDSettings  `json:"led_light"`
	VentilationFan FanSettings  `json:"ventilation_fan"`
	WaterPump1     PumpSettings `json:"water_pump_1"`
	WaterPump2     PumpSettings `json:"water_pump_2"`
}

// LEDSettings configures the grow light.
type LEDSettings struct {
	Enabled        bool   `json:"enabled"`
	TimeControl    bool   `json:"time_control"`
	LightControl   bool   `json:"light_control"`
	StartTime      string `json:"start_time"` // "HH:MM"
	EndTime        string `json:"end_time"`
	LightThreshold int    `json:"light_threshold"`
}

// FanSettings configures the ventilation fan by temperature band.
type FanSettings struct {
	Enabled          bool `json:"enabled"`
	StartTemperature int  `json:"start_temperature"`
	EndTemperature   int  `json:"end_temperature"`
}

// PumpSettings configures one water pump by soil moisture band.
type PumpSettings struct {
	Enabled       bool   `json:"enabled"`
	StartHumidity int    `json:"start_humidity"`
	EndHumidity   int    `json:"end_humidity"`
	Name          string `json:"name"`
}

// PresetService manages user presets on the backend plus local fallback
// presets in the store.
type PresetService struct {
	client api.Doer
	store  storage.Store
	logger *slog.Logger

	// newID is swappable for deterministic local ids in tests.
	newID func() string
}

// NewPresetService creates a preset service.
func NewPresetService(client api.Doer, store storage.Store, logger *slog.Logger) *PresetService {
	return &PresetService{
		client: client,
		store:  store,
		logger: logger.With("component", "presets"),
		newID:  func() string { return uuid.NewString() },
	}
}

// ToAPI converts a panel preset to the backend's flat schema. The
// mapping folds actuator settings into target ranges; the humidity band
// is written as the fixed 40–70 pair because no panel field drives it,
// which makes the conversion lossy in that one dimension.
func ToAPI(p Preset, userID int) api.PresetPayload {
	s := p.Settings
	out := api.PresetPayload{
		PresetName:        p.Name,
		UserID:            userID,
		TargetHumidityMin: "40",
		TargetHumidityMax: "70",
	}

	// Fan band maps inverted: the fan starts at the max temperature and
	// stops once it cools back to the min.
	if s.VentilationFan.Enabled {
		out.TargetTemperatureMin = strconv.Itoa(s.VentilationFan.EndTemperature)
		out.TargetTemperatureMax = strconv.Itoa(s.VentilationFan.StartTemperature)
	} else {
		out.TargetTemperatureMin = "20"
		out.TargetTemperatureMax = "30"
	}

	if s.WaterPump1.Enabled {
		out.TargetSoilMoisture1Min = s.WaterPump1.StartHumidity
		out.TargetSoilMoisture1Max = s.WaterPump1.EndHumidity
	} else {
		out.TargetSoilMoisture1Min = 30
		out.TargetSoilMoisture1Max = 70
	}
	if s.WaterPump2.Enabled {
		out.TargetSoilMoisture2Min = s.WaterPump2.StartHumidity
		out.TargetSoilMoisture2Max = s.WaterPump2.EndHumidity
	} else {
		out.TargetSoilMoisture2Min = 30
		out.TargetSoilMoisture2Max = 70
	}

	if s.LEDLight.Enabled && s.LEDLight.LightControl {
		out.DarknessThreshold = s.LEDLight.LightThreshold
	} else {
		out.DarknessThreshold = 300
	}
	if s.LEDLight.Enabled {
		level := 80
		out.LEDLevel = &level
	}
	if s.LEDLight.Enabled && s.LEDLight.TimeControl {
		if h, ok := parseHour(s.LEDLight.StartTime); ok {
			out.LightStartHour = &h
		}
		if h, ok := parseHour(s.LEDLight.EndTime); ok {
			out.LightEndHour = &h
		}
	}
	return out
}

// FromAPI converts a backend preset to the panel shape.
func FromAPI(p api.UserPreset) Preset {
	tempMax := atoiLoose(p.TargetTemperatureMax)
	tempMin := atoiLoose(p.TargetTemperatureMin)

	led := LEDSettings{
		Enabled:        p.LEDLevel != nil,
		TimeControl:    p.LightStartHour != nil && p.LightEndHour != nil,
		LightControl:   true,
		StartTime:      "06:00",
		EndTime:        "18:00",
		LightThreshold: p.DarknessThreshold,
	}
	if p.LightStartHour != nil && *p.LightStartHour != 0 {
		led.StartTime = fmt.Sprintf("%02d:00", *p.LightStartHour)
	}
	if p.LightEndHour != nil && *p.LightEndHour != 0 {
		led.EndTime = fmt.Sprintf("%02d:00", *p.LightEndHour)
	}

	return Preset{
		ID:     fmt.Sprintf("api-%d", p.PresetID),
		Name:   p.PresetName,
		Source: "api",
		Settings: PresetSettings{
			LEDLight: led,
			VentilationFan: FanSettings{
				Enabled:          tempMax < 35,
				StartTemperature: tempMax,
				EndTemperature:   tempMin,
			},
			WaterPump1: PumpSettings{
				Enabled:       p.TargetSoilMoisture1Min > 0,
				StartHumidity: p.TargetSoilMoisture1Min,
				EndHumidity:   p.TargetSoilMoisture1Max,
				Name:          "Water pump 1",
			},
			WaterPump2: PumpSettings{
				Enabled:       p.TargetSoilMoisture2Min > 0,
				StartHumidity: p.TargetSoilMoisture2Min,
				EndHumidity:   p.TargetSoilMoisture2Max,
				Name:          "Water pump 2",
			},
		},
	}
}

// List returns the user's backend presets followed by local ones. A
// failed backend fetch degrades to the local set without error so the
// settings page always renders.
func (s *PresetService) List(ctx context.Context, userID int) []Preset {
	var apiPresets []api.UserPreset
	path := fmt.Sprintf("/users/%d/user-presets/", userID)
	if err := s.client.Get(ctx, path, &apiPresets); err != nil {
		s.logger.Warn("list presets", "err", err)
		return s.localPresets()
	}
	out := make([]Preset, 0, len(apiPresets))
	for _, p := range apiPresets {
		out = append(out, FromAPI(p))
	}
	return append(out, s.localPresets()...)
}

// Create stores a preset on the backend. On remote failure the preset is
// kept locally under a "local-" id and ErrSavedLocally is returned along
// with the saved record.
func (s *PresetService) Create(ctx context.Context, p Preset, userID int) (*Preset, error) {
	payload := ToAPI(p, userID)
	var created api.UserPreset
	err := s.client.Post(ctx, "/user-presets/", payload, &created)
	if err == nil {
		out := FromAPI(created)
		return &out, nil
	}
	s.logger.Warn("remote preset create failed, saving locally", "name", p.Name, "err", err)

	p.ID = "local-" + s.newID()
	p.Source = "local"
	if saveErr := s.saveLocalPreset(p); saveErr != nil {
		return nil, fmt.Errorf("create preset: %w (local save also failed: %v)", err, saveErr)
	}
	return &p, fmt.Errorf("%w: %v", ErrSavedLocally, err)
}

// Update modifies a preset. Local presets are rewritten in the store.
// Backend presets go to POST /user-presets/{id}; the backend accepts
// updates on POST, not PUT.
func (s *PresetService) Update(ctx context.Context, id string, p Preset, userID int) (*Preset, error) {
	if strings.HasPrefix(id, "local-") {
		p.ID = id
		p.Source = "local"
		if err := s.saveLocalPreset(p); err != nil {
			return nil, err
		}
		return &p, nil
	}

	apiID, err := apiPresetID(id)
	if err != nil {
		return nil, err
	}
	payload := ToAPI(p, userID)
	var updated api.UserPreset
	path := fmt.Sprintf("/user-presets/%d", apiID)
	if err := s.client.Post(ctx, path, payload, &updated); err != nil {
		return nil, fmt.Errorf("update preset %s: %w", id, err)
	}
	out := FromAPI(updated)
	return &out, nil
}

// Delete removes a preset, locally or on the backend by namespace.
func (s *PresetService) Delete(ctx context.Context, id string) error {
	if strings.HasPrefix(id, "local-") {
		presets := s.localPresets()
		kept := presets[:0]
		for _, p := range presets {
			if p.ID != id {
				kept = append(kept, p)
			}
		}
		return s.writeLocalPresets(kept)
	}

	apiID, err := apiPresetID(id)
	if err != nil {
		return err
	}
	if err := s.client.Delete(ctx, fmt.Sprintf("/user-presets/%d", apiID)); err != nil {
		return fmt.Errorf("delete preset %s: %w", id, err)
	}
	return nil
}

// Apply binds a backend preset to a device. Local presets are rejected.
func (s *PresetService) Apply(ctx context.Context, id string, deviceID int) error {
	if strings.HasPrefix(id, "local-") {
		return ErrLocalPresetApply
	}
	apiID, err := apiPresetID(id)
	if err != nil {
		return err
	}
	path := fmt.Sprintf("/devices/%d/apply-user-preset/%d", deviceID, apiID)
	if err := s.client.Put(ctx, path, nil, nil); err != nil {
		return fmt.Errorf("apply preset %s to device %d: %w", id, deviceID, err)
	}
	return nil
}

func apiPresetID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, "api-"))
	if err != nil {
		return 0, fmt.Errorf("malformed preset id %q", id)
	}
	return n, nil
}

func parseHour(hhmm string) (int, bool) {
	h, _, ok := strings.Cut(hhmm, ":")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(h)
	if err != nil {
		return 0, false
	}
	return n, true
}

// atoiLoose parses the leading integer of a numeric string, tolerating a
// fractional part. The backend serializes temperature bounds as strings
// like "30" or "30.0".
func atoiLoose(s string) int {
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	n, _ := strconv.Atoi(s)
	return n
}

func (s *PresetService) localPresets() []Preset {
	raw, err := s.store.Get(storage.KeyLocalPresets)
	if err != nil {
		return nil
	}
	var presets []Preset
	if err := json.Unmarshal([]byte(raw), &presets); err != nil {
		s.logger.Warn("local presets unreadable, ignoring", "err", err)
		return nil
	}
	return presets
}

func (s *PresetService) saveLocalPreset(p Preset) error {
	presets := s.localPresets()
	replaced := false
	for i, existing := range presets {
		if existing.ID == p.ID {
			presets[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		presets = append(presets, p)
	}
	return s.writeLocalPresets(presets)
}

func (s *PresetService) writeLocalPresets(presets []Preset) error {
	data, err := json.Marshal(presets)
	if err != nil {
		return fmt.Errorf("encode local presets: %w", err)
	}
	if err := s.store.Set(storage.KeyLocalPresets, string(data)); err != nil {
		return fmt.Errorf("save local presets: %w", err)
	}
	return nil
}
