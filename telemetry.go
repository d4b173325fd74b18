package solar_dashboard

// ControllerReport is the JSON published on CC<N> by the charge controller reader.
type ControllerReport struct {
	ModbusError bool           `json:"modbusError"`
	Controller  ControllerInfo `json:"controller"`
	Battery     BatteryInfo    `json:"battery"`
	Panels      PanelInfo      `json:"panels"`
	Charging    ChargingInfo   `json:"charging"`
	Faults      []string       `json:"faults"`
	Load        *LoadInfo      `json:"load,omitempty"` // only some readers publish it
}

type ControllerInfo struct {
	ChargingMode   string  `json:"chargingMode"`
	Temperature    float64 `json:"temperature"` // °C
	Days           int     `json:"days"`
	OverDischarges int     `json:"overDischarges"`
	FullCharges    int     `json:"fullCharges"`
}

type BatteryInfo struct {
	StateOfCharge float64 `json:"stateOfCharge"` // %
	Volts         float64 `json:"volts"`
	MinVolts      float64 `json:"minVolts"`
	MaxVolts      float64 `json:"maxVolts"`
	Temperature   float64 `json:"temperature"` // °C
}

type PanelInfo struct {
	Volts float64 `json:"volts"`
	Amps  float64 `json:"amps"`
}

type ChargingInfo struct {
	Amps          float64 `json:"amps"`
	Watts         float64 `json:"watts"`
	MaxAmps       float64 `json:"maxAmps"`
	MaxWatts      float64 `json:"maxWatts"`
	DailyAmpHours float64 `json:"dailyAmpHours"`
	DailyPower    float64 `json:"dailyPower"`    // kWh
	TotalAmpHours float64 `json:"totalAmpHours"` // kAh
	TotalPower    float64 `json:"totalPower"`    // kWh
}

type LoadInfo struct {
	State         bool    `json:"state"`
	Volts         float64 `json:"volts"`
	Amps          float64 `json:"amps"`
	Watts         float64 `json:"watts"`
	MaxAmps       float64 `json:"maxAmps"`
	MaxWatts      float64 `json:"maxWatts"`
	DailyAmpHours float64 `json:"dailyAmpHours"`
	TotalAmpHours float64 `json:"totalAmpHours"`
	DailyPower    float64 `json:"dailyPower"`
	TotalPower    float64 `json:"totalPower"`
}

// PlugStateReport is the tele/<plug>/STATE payload.
type PlugStateReport struct {
	Power string `json:"POWER"`
}

// PlugSensorReport is the tele/<plug>/SENSOR payload.
type PlugSensorReport struct {
	Energy PlugEnergy `json:"ENERGY"`
}

type PlugEnergy struct {
	Power         float64 `json:"Power"`
	Current       float64 `json:"Current"`
	Voltage       float64 `json:"Voltage"`
	Today         float64 `json:"Today"`
	Total         float64 `json:"Total"`
	ApparentPower float64 `json:"ApparentPower"`
	ReactivePower float64 `json:"ReactivePower"`
	Factor        float64 `json:"Factor"`
}
