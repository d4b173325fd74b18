// Package render turns dashboard snapshots into display badges: text plus a
// badge color chosen from the threshold bands of each reading.
package render

import (
	"strconv"
	"strings"

	"solar_dashboard"
)

type Color string

const (
	Success   Color = "bg-success"
	Warning   Color = "bg-warning"
	Danger    Color = "bg-danger"
	Info      Color = "bg-info"
	Primary   Color = "bg-primary"
	Secondary Color = "bg-secondary"
)

type TextColor string

const (
	TextLight TextColor = "text-light"
	TextDark  TextColor = "text-dark"
)

// Badge is one labelled value on the page.
type Badge struct {
	Text      string    `json:"text"`
	Color     Color     `json:"color"`
	TextColor TextColor `json:"text_color"`
}

const placeholder = "-"

func newBadge(text string, c Color) Badge {
	tc := TextLight
	if c == Warning || c == Info {
		tc = TextDark
	}
	return Badge{Text: text, Color: c, TextColor: tc}
}

type ControllerView struct {
	Index            int       `json:"index"`
	Down             bool      `json:"down"`
	ChargeMode       Badge     `json:"charge_mode"`
	StateOfCharge    Badge     `json:"state_of_charge"`
	BatteryVolts     Badge     `json:"battery_volts"`
	BatteryAmps      Badge     `json:"battery_amps"`
	ControllerTemp   Badge     `json:"controller_temp"`
	BatteryTemp      Badge     `json:"battery_temp"`
	PanelVolts       Badge     `json:"panel_volts"`
	PanelAmps        Badge     `json:"panel_amps"`
	PanelWatts       Badge     `json:"panel_watts"`
	BatteryMinVolts  Badge     `json:"battery_min_volts"`
	BatteryMaxVolts  Badge     `json:"battery_max_volts"`
	MaxChargeCurrent Badge     `json:"max_charge_current"`
	PanelMaxPower    Badge     `json:"panel_max_power"`
	DailyAmpHours    Badge     `json:"daily_amp_hours"`
	DailyPower       Badge     `json:"daily_power"`
	Days             Badge     `json:"days"`
	OverDischarges   Badge     `json:"over_discharges"`
	FullCharges      Badge     `json:"full_charges"`
	TotalAmpHours    Badge     `json:"total_amp_hours"`
	TotalPower       Badge     `json:"total_power"`
	AnyFaults        Badge     `json:"any_faults"`
	Faults           string    `json:"faults"`
	Load             *LoadView `json:"load,omitempty"`
}

type LoadView struct {
	State      Badge `json:"state"`
	Volts      Badge `json:"volts"`
	Amps       Badge `json:"amps"`
	Watts      Badge `json:"watts"`
	DailyPower Badge `json:"daily_power"`
	TotalPower Badge `json:"total_power"`
}

type PlugView struct {
	Name                 string `json:"name"`
	Status               Badge  `json:"status"`
	SwitchOn             bool   `json:"switch_on"`
	Enabled              bool   `json:"enabled"`
	Locked               bool   `json:"locked"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
	AwaitingConfirmation bool   `json:"awaiting_confirmation"`
	Power                Badge  `json:"power"`
	Current              Badge  `json:"current"`
	Voltage              Badge  `json:"voltage"`
	Today                Badge  `json:"today"`
	Total                Badge  `json:"total"`
	ApparentPower        Badge  `json:"apparent_power"`
	ReactivePower        Badge  `json:"reactive_power"`
	Factor               Badge  `json:"factor"`
}

type SensorView struct {
	Topic string `json:"topic"`
	Badge Badge  `json:"badge"`
}

type TotalsView struct {
	ControllerWatts Badge `json:"controller_watts"`
	ControllerDaily Badge `json:"controller_daily"`
	PlugWatts       Badge `json:"plug_watts"`
}

// View is what the page and the websocket stream show.
type View struct {
	Connection  solar_dashboard.ConnectionStatus `json:"connection"`
	Controllers []ControllerView                 `json:"controllers"`
	Plugs       []PlugView                       `json:"plugs"`
	Sensors     []SensorView                     `json:"sensors"`
	Totals      TotalsView                       `json:"totals"`
	GlobalError bool                             `json:"global_error"`
}

// Render builds the view for a dashboard snapshot.
func Render(d solar_dashboard.Dashboard, costPerKWh float64) View {
	v := View{
		Connection:  d.Connection,
		Controllers: make([]ControllerView, 0, len(d.Controllers)),
		Plugs:       make([]PlugView, 0, len(d.Plugs)),
		Sensors:     make([]SensorView, 0, len(d.Sensors)),
		Totals:      renderTotals(d.Totals, costPerKWh),
		GlobalError: d.GlobalError,
	}
	for _, c := range d.Controllers {
		v.Controllers = append(v.Controllers, renderController(c))
	}

	energy := make(map[string]solar_dashboard.PlugTelemetry, len(d.PlugEnergy))
	for _, e := range d.PlugEnergy {
		energy[e.Name] = e
	}
	for _, p := range d.Plugs {
		v.Plugs = append(v.Plugs, renderPlug(p, energy[p.Name], costPerKWh))
	}
	for _, s := range d.Sensors {
		v.Sensors = append(v.Sensors, renderSensor(s))
	}
	return v
}

func renderController(c solar_dashboard.ControllerStatus) ControllerView {
	v := ControllerView{Index: c.Index, Down: c.Down}
	r := c.Report

	if !c.Seen {
		grey := newBadge(placeholder, Secondary)
		v.ChargeMode, v.StateOfCharge, v.BatteryVolts, v.BatteryAmps = grey, grey, grey, grey
		v.ControllerTemp, v.BatteryTemp, v.PanelVolts, v.PanelAmps = grey, grey, grey, grey
		v.PanelWatts, v.BatteryMinVolts, v.BatteryMaxVolts, v.MaxChargeCurrent = grey, grey, grey, grey
		v.PanelMaxPower, v.DailyAmpHours, v.DailyPower, v.Days = grey, grey, grey, grey
		v.OverDischarges, v.FullCharges, v.TotalAmpHours, v.TotalPower = grey, grey, grey, grey
		v.AnyFaults = grey
		return v
	}

	// A down controller keeps its last values, all greyed out.
	pick := func(c Color) Color { return c }
	if c.Down {
		pick = func(Color) Color { return Secondary }
	}

	v.ChargeMode = newBadge(r.Controller.ChargingMode, pick(Info))
	v.StateOfCharge = newBadge(num(r.Battery.StateOfCharge)+"%", pick(Info))
	v.BatteryVolts = newBadge(num(r.Battery.Volts)+" V", pick(BatteryVoltsColor(r.Battery.Volts)))
	v.BatteryAmps = newBadge(num(r.Charging.Amps)+" A", pick(Info))
	v.ControllerTemp = newBadge(num(r.Controller.Temperature)+"°C", pick(ControllerTempColor(r.Controller.Temperature)))
	v.BatteryTemp = newBadge(num(r.Battery.Temperature)+"°C", pick(BatteryTempColor(r.Battery.Temperature)))
	v.PanelVolts = newBadge(num(r.Panels.Volts)+" V", pick(Info))
	v.PanelAmps = newBadge(num(r.Panels.Amps)+" A", pick(Info))
	v.PanelWatts = newBadge(num(r.Charging.Watts)+" W", pick(ChargingWattsColor(r.Charging.Watts)))
	v.BatteryMinVolts = newBadge(num(r.Battery.MinVolts)+" V", pick(Info))
	v.BatteryMaxVolts = newBadge(num(r.Battery.MaxVolts)+" V", pick(Info))
	v.MaxChargeCurrent = newBadge(num(r.Charging.MaxAmps)+" A", pick(Info))
	v.PanelMaxPower = newBadge(num(r.Charging.MaxWatts)+" W", pick(Info))
	v.DailyAmpHours = newBadge(num(r.Charging.DailyAmpHours)+" Ah", pick(Info))
	v.DailyPower = newBadge(num(r.Charging.DailyPower)+" KWh", pick(Info))
	v.Days = newBadge(strconv.Itoa(r.Controller.Days), pick(Info))
	v.OverDischarges = newBadge(strconv.Itoa(r.Controller.OverDischarges), pick(Info))
	v.FullCharges = newBadge(strconv.Itoa(r.Controller.FullCharges), pick(Info))
	v.TotalAmpHours = newBadge(fixed(r.Charging.TotalAmpHours, 2)+"KAh", pick(Info))
	v.TotalPower = newBadge(fixed(r.Charging.TotalPower, 2)+"KWh", pick(Info))

	if len(r.Faults) > 0 {
		v.AnyFaults = newBadge("YES", pick(Danger))
	} else {
		v.AnyFaults = newBadge("NO", pick(Success))
	}
	v.Faults = FaultText(r.Faults)

	if r.Load != nil {
		state := newBadge("OFF", pick(Primary))
		if r.Load.State {
			state = newBadge("ON", pick(Success))
		}
		v.Load = &LoadView{
			State:      state,
			Volts:      newBadge(num(r.Load.Volts)+" V", pick(Info)),
			Amps:       newBadge(num(r.Load.Amps)+" A", pick(Info)),
			Watts:      newBadge(num(r.Load.Watts)+" W", pick(Info)),
			DailyPower: newBadge(num(r.Load.DailyPower)+" KWh", pick(Info)),
			TotalPower: newBadge(fixed(r.Load.TotalPower, 2)+"KWh", pick(Info)),
		}
	}
	return v
}

func renderPlug(p solar_dashboard.PlugState, e solar_dashboard.PlugTelemetry, costPerKWh float64) PlugView {
	v := PlugView{
		Name:                 p.Name,
		Status:               newBadge(string(p.Status), PlugStatusColor(p.Status)),
		SwitchOn:             p.SwitchOn,
		Enabled:              p.Enabled,
		Locked:               p.Locked,
		RequiresConfirmation: p.RequiresConfirmation,
		AwaitingConfirmation: p.AwaitingConfirmation,
	}
	if p.Status == solar_dashboard.PlugStatusWaiting {
		v.Status.Text = placeholder
	}

	if !e.Seen {
		grey := newBadge(placeholder, Secondary)
		v.Power, v.Current, v.Voltage, v.Today = grey, grey, grey, grey
		v.Total, v.ApparentPower, v.ReactivePower, v.Factor = grey, grey, grey, grey
		return v
	}
	en := e.Energy
	v.Power = newBadge(num(en.Power)+" W", Info)
	v.Current = newBadge(num(en.Current)+" A", Info)
	v.Voltage = newBadge(num(en.Voltage)+" V", Info)
	v.Today = newBadge(num(en.Today)+"KWh "+Cost(en.Today, costPerKWh), Info)
	v.Total = newBadge(num(en.Total)+"KWh "+Cost(en.Total, costPerKWh), Info)
	v.ApparentPower = newBadge(num(en.ApparentPower)+" VA", Info)
	v.ReactivePower = newBadge(num(en.ReactivePower)+" VAr", Info)
	v.Factor = newBadge(num(en.Factor), Info)
	return v
}

// sensor units keyed by topic; unknown topics are shown bare.
var sensorUnits = map[string]string{
	"Temp": " °C",
	"Hum":  " %",
	"Pres": " hPa",
	"Gas":  " kΩ",
}

func renderSensor(s solar_dashboard.SensorReading) SensorView {
	if !s.Seen {
		return SensorView{Topic: s.Topic, Badge: newBadge(placeholder, Secondary)}
	}
	c := Info
	if s.Topic == "Temp" {
		c = BoxTempColor(s.Value)
	}
	return SensorView{Topic: s.Topic, Badge: newBadge(fixed(s.Value, 2)+sensorUnits[s.Topic], c)}
}

func renderTotals(t solar_dashboard.Totals, costPerKWh float64) TotalsView {
	c := Info
	if t.Degraded {
		c = Secondary
	}
	return TotalsView{
		ControllerWatts: newBadge(num(t.ControllerWatts)+" W", c),
		ControllerDaily: newBadge(fixed(t.ControllerDailyKWh, 3)+" KWh | "+Cost(t.ControllerDailyKWh, costPerKWh), c),
		PlugWatts:       newBadge(num(t.PlugWatts)+" W", Info),
	}
}

func BatteryVoltsColor(v float64) Color {
	switch {
	case v > 31 || v < 24:
		return Danger
	case v > 30.2 || v < 24.8:
		return Warning
	default:
		return Success
	}
}

// bands maps a temperature onto danger, warning, success and info above
// the given lower bounds, secondary below the last one.
func bands(v, danger, warning, success, info float64) Color {
	switch {
	case v > danger:
		return Danger
	case v > warning:
		return Warning
	case v > success:
		return Success
	case v > info:
		return Info
	default:
		return Secondary
	}
}

func ControllerTempColor(v float64) Color { return bands(v, 55, 40, 5, -20) }
func BatteryTempColor(v float64) Color    { return bands(v, 30, 25, 5, -10) }
func BoxTempColor(v float64) Color        { return bands(v, 40, 30, 10, -10) }

func ChargingWattsColor(w float64) Color {
	if w > 0 {
		return Success
	}
	return Info
}

func PlugStatusColor(s solar_dashboard.PlugStatus) Color {
	switch s {
	case solar_dashboard.PlugStatusOn:
		return Success
	case solar_dashboard.PlugStatusOff:
		return Primary
	case solar_dashboard.PlugStatusUnknown, solar_dashboard.PlugStatusError:
		return Danger
	default:
		return Secondary
	}
}

// FaultText lists faults one per line, or "None :)".
func FaultText(faults []string) string {
	if len(faults) == 0 {
		return "None :)"
	}
	lines := make([]string, len(faults))
	for i, f := range faults {
		lines[i] = "- " + f
	}
	return strings.Join(lines, "\n")
}

// Cost prices an energy amount in dollars.
func Cost(kwh, costPerKWh float64) string {
	return "$" + fixed(kwh*costPerKWh, 2)
}

func num(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func fixed(f float64, decimals int) string { return strconv.FormatFloat(f, 'f', decimals, 64) }
