package service

import (
	"solar_dashboard/internal/topic"
)

// Dispatcher is the topic.Handler that feeds routed messages into the
// plug and telemetry services.
type Dispatcher struct {
	plugs     *PlugService
	telemetry *TelemetryService
}

var _ topic.Handler = (*Dispatcher)(nil)

func NewDispatcher(plugs *PlugService, telemetry *TelemetryService) *Dispatcher {
	return &Dispatcher{plugs: plugs, telemetry: telemetry}
}

func (d *Dispatcher) Controller(index int, payload []byte) error {
	return d.telemetry.HandleController(index, payload)
}

func (d *Dispatcher) PlugTelemetry(plug string, kind topic.Kind, payload []byte) error {
	switch kind {
	case topic.KindState:
		return d.plugs.HandleStateReport(plug, payload)
	case topic.KindSensor:
		return d.telemetry.HandlePlugSensor(plug, payload)
	default:
		// LWT, RESULT and friends carry nothing the dashboard shows.
		return nil
	}
}

func (d *Dispatcher) PlugQuery(plug string, kind topic.Kind, payload []byte) error {
	if kind != topic.KindPower {
		return nil
	}
	return d.plugs.HandleQueryResponse(plug, kind, payload)
}

func (d *Dispatcher) PlugCommand(plug string, kind topic.Kind, payload []byte) error {
	if kind != topic.KindPower {
		return nil
	}
	return d.plugs.HandleCommandEcho(plug, kind, payload)
}

func (d *Dispatcher) Misc(name string, payload []byte) error {
	return d.telemetry.HandleMisc(name, payload)
}
