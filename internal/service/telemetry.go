package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"solar_dashboard"
	"solar_dashboard/internal/config"
	"solar_dashboard/internal/logger"
	"solar_dashboard/internal/topic"
)

var (
	ErrUnknownController = errors.New("unknown charge controller")
	ErrUnknownSensor     = errors.New("unknown sensor topic")
)

// TelemetryService keeps the latest reading from every charge controller,
// plug energy meter and box sensor, and derives the aggregates from them.
type TelemetryService struct {
	mu sync.Mutex

	controllers []solar_dashboard.ControllerStatus

	plugs      map[string]*solar_dashboard.PlugTelemetry
	plugOrder  []string
	totalWatts map[string]bool

	sensors     map[string]*solar_dashboard.SensorReading
	sensorOrder []string

	notify Notifier
	log    *logger.Logger
}

func NewTelemetryService(cfg *config.Config, notify Notifier, log *logger.Logger) *TelemetryService {
	if notify == nil {
		notify = noopNotifier{}
	}
	if log == nil {
		log = logger.Nop()
	}
	s := &TelemetryService{
		controllers: make([]solar_dashboard.ControllerStatus, cfg.Controllers),
		plugs:       make(map[string]*solar_dashboard.PlugTelemetry, len(cfg.Plugs)),
		totalWatts:  make(map[string]bool),
		sensors:     make(map[string]*solar_dashboard.SensorReading, len(cfg.MiscTopics)),
		notify:      notify,
		log:         log,
	}
	for i := range s.controllers {
		s.controllers[i].Index = i + 1
	}
	for _, p := range cfg.Plugs {
		s.plugs[p.Name] = &solar_dashboard.PlugTelemetry{Name: p.Name}
		s.plugOrder = append(s.plugOrder, p.Name)
		if p.TotalWatts {
			s.totalWatts[p.Name] = true
		}
	}
	for _, name := range cfg.MiscTopics {
		s.sensors[name] = &solar_dashboard.SensorReading{Topic: name}
		s.sensorOrder = append(s.sensorOrder, name)
	}
	return s
}

// HandleController applies a CC<N> payload. A read error marks the
// controller down and keeps its last good values.
func (s *TelemetryService) HandleController(index int, payload []byte) error {
	var rep solar_dashboard.ControllerReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		return fmt.Errorf("decode controller %d: %w", index, err)
	}

	s.mu.Lock()
	if index < 1 || index > len(s.controllers) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownController, index)
	}
	c := &s.controllers[index-1]
	wasDown := c.Down
	if rep.ModbusError {
		c.Down = true
	} else {
		c.Down = false
		c.Seen = true
		c.Report = rep
	}
	s.mu.Unlock()

	if rep.ModbusError && !wasDown {
		s.log.Warnw("controller_down", "controller", index)
	} else if !rep.ModbusError && wasDown {
		s.log.Infow("controller_recovered", "controller", index)
	}
	s.notify.Changed()
	return nil
}

// HandlePlugSensor applies a tele/<plug>/SENSOR payload.
func (s *TelemetryService) HandlePlugSensor(name string, payload []byte) error {
	var rep solar_dashboard.PlugSensorReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		return fmt.Errorf("decode sensor report for %s: %w", name, err)
	}

	s.mu.Lock()
	p, ok := s.plugs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %q", topic.ErrUnknownPlug, name)
	}
	p.Seen = true
	p.Energy = rep.Energy
	s.mu.Unlock()

	s.notify.Changed()
	return nil
}

// HandleMisc applies a scalar reading on one of the flat sensor topics.
func (s *TelemetryService) HandleMisc(name string, payload []byte) error {
	s.mu.Lock()
	r, ok := s.sensors[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSensor, name)
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		return fmt.Errorf("parse %s reading: %w", name, err)
	}

	s.mu.Lock()
	r.Seen = true
	r.Value = v
	s.mu.Unlock()

	s.notify.Changed()
	return nil
}

// Totals recomputes the aggregates from the latest readings. Down
// controllers contribute nothing and mark the totals degraded.
func (s *TelemetryService) Totals() solar_dashboard.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalsLocked()
}

func (s *TelemetryService) totalsLocked() solar_dashboard.Totals {
	var t solar_dashboard.Totals
	for _, c := range s.controllers {
		if c.Down {
			t.Degraded = true
			continue
		}
		if !c.Seen {
			continue
		}
		t.ControllerWatts += c.Report.Charging.Watts
		t.ControllerDailyKWh += c.Report.Charging.DailyPower
	}
	for _, name := range s.plugOrder {
		if p := s.plugs[name]; s.totalWatts[name] && p.Seen {
			t.PlugWatts += p.Energy.Power
		}
	}
	return t
}

// TelemetrySnapshot is a copy of everything the service holds.
type TelemetrySnapshot struct {
	Controllers []solar_dashboard.ControllerStatus
	PlugEnergy  []solar_dashboard.PlugTelemetry
	Sensors     []solar_dashboard.SensorReading
	Totals      solar_dashboard.Totals
}

func (s *TelemetryService) Snapshot() TelemetrySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := TelemetrySnapshot{
		Controllers: make([]solar_dashboard.ControllerStatus, len(s.controllers)),
		PlugEnergy:  make([]solar_dashboard.PlugTelemetry, 0, len(s.plugOrder)),
		Sensors:     make([]solar_dashboard.SensorReading, 0, len(s.sensorOrder)),
		Totals:      s.totalsLocked(),
	}
	for i, c := range s.controllers {
		c.Report.Faults = append([]string(nil), c.Report.Faults...)
		if c.Report.Load != nil {
			load := *c.Report.Load
			c.Report.Load = &load
		}
		snap.Controllers[i] = c
	}
	for _, name := range s.plugOrder {
		snap.PlugEnergy = append(snap.PlugEnergy, *s.plugs[name])
	}
	for _, name := range s.sensorOrder {
		snap.Sensors = append(snap.Sensors, *s.sensors[name])
	}
	return snap
}
