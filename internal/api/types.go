package api

// Raw record types as the farm backend returns them. Optional fields are
// pointers so that "absent" is distinguishable from a zero value; the
// transformers in internal/display skip absent fields instead of
// defaulting them.

// Position is a coarse location grouping. Devices are the practical unit;
// positions survive as a thin overlay in the backend.
type Position struct {
	PositionID   int    `json:"position_id"`
	PositionName string `json:"position_name"`
}

// Device is a farm unit with embedded sensor history, action logs and
// plant images. DeviceTypeLocal marks client-only devices that exist
// solely in the panel's local store.
type Device struct {
	DeviceID     int          `json:"device_id"`
	DeviceName   string       `json:"device_name"`
	Location     *string      `json:"location,omitempty"`
	DeviceType   string       `json:"device_type"`
	DeviceSerial string       `json:"device_serial"`
	LastActive   *string      `json:"last_active,omitempty"`
	Position     *Position    `json:"position,omitempty"`
	UserPreset   *UserPreset  `json:"user_preset,omitempty"`
	PlantPreset  *PlantPreset `json:"plant_preset,omitempty"`
	SensorData   []SensorData `json:"sensor_data,omitempty"`
	ActionLogs   []ActionLog  `json:"action_logs,omitempty"`
	PlantImages  []PlantImage `json:"plant_images,omitempty"`
}

// DeviceTypeLocal tags devices created in the local store when the remote
// create call fails. Only devices of this type may be deleted through the
// panel.
const DeviceTypeLocal = "local"

// DeviceCreate is the request body for POST /devices/.
type DeviceCreate struct {
	DeviceName    string `json:"device_name"`
	Location      string `json:"location"`
	DeviceSerial  string `json:"device_serial"`
	PositionID    int    `json:"position_id"`
	UserPresetID  *int   `json:"user_preset_id"`
	PlantPresetID *int   `json:"plant_preset_id"`
}

// SensorData is one measurement cycle. Each value may be absent when the
// corresponding sensor did not report.
type SensorData struct {
	MeasureID     int      `json:"measure_id"`
	DeviceID      int      `json:"device_id"`
	Temperature   *float64 `json:"temperature,omitempty"`
	Humidity      *float64 `json:"humidity,omitempty"`
	SoilMoisture1 *float64 `json:"soil_moisture_1,omitempty"`
	SoilMoisture2 *float64 `json:"soil_moisture_2,omitempty"`
	LightLevel    *float64 `json:"light_level,omitempty"`
	WaterLevel    *float64 `json:"water_level,omitempty"`
	MeasureDate   string   `json:"measure_date"`
}

// ActionLog is an append-only record of a trigger and the action taken.
type ActionLog struct {
	LogID         int    `json:"log_id"`
	DeviceID      int    `json:"device_id"`
	ActionType    string `json:"action_type"`
	ActionTrigger string `json:"action_trigger"`
	ActionTime    string `json:"action_time"`
}

// PlantImage is one photo captured by a device camera.
type PlantImage struct {
	ImageID    int    `json:"image_id"`
	DeviceID   int    `json:"device_id"`
	ImagePath  string `json:"image_path"`
	CapturedAt string `json:"captured_at"`
}

// UserPreset is the backend's flat numeric-range preset schema.
// Temperature and humidity bounds arrive as strings.
type UserPreset struct {
	PresetID               int    `json:"preset_id"`
	UserID                 int    `json:"user_id"`
	PresetName             string `json:"preset_name"`
	TargetTemperatureMin   string `json:"target_temperature_min"`
	TargetTemperatureMax   string `json:"target_temperature_max"`
	TargetHumidityMin      string `json:"target_humidity_min"`
	TargetHumidityMax      string `json:"target_humidity_max"`
	TargetSoilMoisture1Min int    `json:"target_soil_moisture_1_min"`
	TargetSoilMoisture1Max int    `json:"target_soil_moisture_1_max"`
	TargetSoilMoisture2Min int    `json:"target_soil_moisture_2_min"`
	TargetSoilMoisture2Max int    `json:"target_soil_moisture_2_max"`
	DarknessThreshold      int    `json:"darkness_threshold"`
	LEDLevel               *int   `json:"led_level,omitempty"`
	LightStartHour         *int   `json:"light_start_hour,omitempty"`
	LightEndHour           *int   `json:"light_end_hour,omitempty"`
}

// PlantPreset is the recommended-settings counterpart maintained by the
// backend per plant species.
type PlantPreset struct {
	PlantPresetID          int     `json:"plant_preset_id"`
	PlantName              string  `json:"plant_name"`
	Description            *string `json:"description,omitempty"`
	RecommTemperatureMin   string  `json:"recomm_temperature_min"`
	RecommTemperatureMax   string  `json:"recomm_temperature_max"`
	RecommHumidityMin      string  `json:"recomm_humidity_min"`
	RecommHumidityMax      string  `json:"recomm_humidity_max"`
	RecommSoilMoisture1Min int     `json:"recomm_soil_moisture_1_min"`
	RecommSoilMoisture1Max int     `json:"recomm_soil_moisture_1_max"`
	RecommSoilMoisture2Min int     `json:"recomm_soil_moisture_2_min"`
	RecommSoilMoisture2Max int     `json:"recomm_soil_moisture_2_max"`
	DarknessThreshold      int     `json:"darkness_threshold"`
	LEDLevel               *int    `json:"led_level,omitempty"`
	LightStartHour         *int    `json:"light_start_hour,omitempty"`
	LightEndHour           *int    `json:"light_end_hour,omitempty"`
}

// PresetPayload is the request body for creating or updating a user
// preset. Temperature and humidity bounds are sent as strings to match
// the backend schema.
type PresetPayload struct {
	PresetName             string `json:"preset_name"`
	UserID                 int    `json:"user_id"`
	TargetTemperatureMin   string `json:"target_temperature_min"`
	TargetTemperatureMax   string `json:"target_temperature_max"`
	TargetHumidityMin      string `json:"target_humidity_min"`
	TargetHumidityMax      string `json:"target_humidity_max"`
	TargetSoilMoisture1Min int    `json:"target_soil_moisture_1_min"`
	TargetSoilMoisture1Max int    `json:"target_soil_moisture_1_max"`
	TargetSoilMoisture2Min int    `json:"target_soil_moisture_2_min"`
	TargetSoilMoisture2Max int    `json:"target_soil_moisture_2_max"`
	DarknessThreshold      int    `json:"darkness_threshold"`
	LEDLevel               *int   `json:"led_level"`
	LightStartHour         *int   `json:"light_start_hour"`
	LightEndHour           *int   `json:"light_end_hour"`
}

// ControlStatus is the per-device target actuator state as last set via
// manual control or preset application.
type ControlStatus struct {
	TargetLEDState   string `json:"target_led_state"`
	TargetPumpState1 string `json:"target_pump_state_1"`
	TargetPumpState2 string `json:"target_pump_state_2"`
	TargetFanState   string `json:"target_fan_state"`
	AlertLEDState    string `json:"alert_led_state"`
}

// ManualControlRequest is the body of PUT /devices/{id}/manual-control.
type ManualControlRequest struct {
	Component string `json:"component"`
	Command   string `json:"command"`
}

// Actuator component names accepted by the manual-control endpoint.
const (
	ComponentLED   = "LED"
	ComponentPump1 = "PUMP1"
	ComponentPump2 = "PUMP2"
	ComponentFan   = "FAN"
	ComponentDrain = "DRAIN_PUMP"

	CommandOn  = "ON"
	CommandOff = "OFF"
)

// APIUser is a row from GET /users/.
type APIUser struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
}

// LoginResponse is the body of a successful POST /token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   *int   `json:"expires_in,omitempty"`
}
