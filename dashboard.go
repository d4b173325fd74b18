package solar_dashboard

import "time"

// PowerState is the ON/OFF value a plug reports.
type PowerState string

const (
	PowerUnknown PowerState = ""
	PowerOn      PowerState = "ON"
	PowerOff     PowerState = "OFF"
)

// ParsePowerState maps the device literal to a PowerState.
// Anything other than "ON" or "OFF" is PowerUnknown.
func ParsePowerState(s string) PowerState {
	switch PowerState(s) {
	case PowerOn:
		return PowerOn
	case PowerOff:
		return PowerOff
	default:
		return PowerUnknown
	}
}

// Bool reports whether the state is ON.
func (p PowerState) Bool() bool { return p == PowerOn }

// PowerFromBool converts a switch position into a PowerState.
func PowerFromBool(on bool) PowerState {
	if on {
		return PowerOn
	}
	return PowerOff
}

// PlugStatus is the text shown in a plug's status badge.
type PlugStatus string

const (
	PlugStatusWaiting PlugStatus = ""
	PlugStatusOn      PlugStatus = "ON"
	PlugStatusOff     PlugStatus = "OFF"
	PlugStatusUnknown PlugStatus = "UNKNOWN STATE"
	PlugStatusError   PlugStatus = "ERROR! (Reload)"
)

// PlugState is a snapshot of one controllable plug.
type PlugState struct {
	Name                 string     `json:"name"`
	Believed             PowerState `json:"believed_state"`
	SwitchOn             bool       `json:"switch_on"` // position of the UI switch
	Locked               bool       `json:"locked"`
	Enabled              bool       `json:"enabled"`
	RequiresConfirmation bool       `json:"requires_confirmation"`
	AwaitingConfirmation bool       `json:"awaiting_confirmation"`
	Status               PlugStatus `json:"status"`
}

// ControllerStatus is the last known state of one charge controller.
type ControllerStatus struct {
	Index  int              `json:"index"`
	Seen   bool             `json:"seen"`
	Down   bool             `json:"down"`
	Report ControllerReport `json:"report"`
}

// PlugTelemetry is the last energy report of a plug.
type PlugTelemetry struct {
	Name   string     `json:"name"`
	Seen   bool       `json:"seen"`
	Energy PlugEnergy `json:"energy"`
}

// SensorReading is the last value seen on a flat misc topic.
type SensorReading struct {
	Topic string  `json:"topic"`
	Seen  bool    `json:"seen"`
	Value float64 `json:"value"`
}

// Totals are derived on every snapshot, never stored.
type Totals struct {
	ControllerWatts    float64 `json:"controller_watts"`
	ControllerDailyKWh float64 `json:"controller_daily_kwh"`
	PlugWatts          float64 `json:"plug_watts"`
	// Degraded is set while any contributing controller is down.
	Degraded bool `json:"degraded"`
}

// ConnectionState classifies the broker banner.
type ConnectionState string

const (
	ConnectionConnecting ConnectionState = "CONNECTING"
	ConnectionUp         ConnectionState = "CONNECTED"
	ConnectionFailed     ConnectionState = "FAILED"
	ConnectionLost       ConnectionState = "LOST"
)

// ConnectionStatus is the broker banner.
type ConnectionStatus struct {
	State     ConnectionState `json:"state"`
	Message   string          `json:"message"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Dashboard is the full in-memory view model.
type Dashboard struct {
	Connection  ConnectionStatus   `json:"connection"`
	Controllers []ControllerStatus `json:"controllers"`
	Plugs       []PlugState        `json:"plugs"`
	PlugEnergy  []PlugTelemetry    `json:"plug_energy"`
	Sensors     []SensorReading    `json:"sensors"`
	Totals      Totals             `json:"totals"`
	GlobalError bool               `json:"global_error"`
}
