package service

import (
	"context"
	"testing"
	"time"

	"solar_dashboard"
	"solar_dashboard/internal/logger"
	"solar_dashboard/internal/topic"
)

func newSimulatedService(t *testing.T) (*Service, *SimulatorService) {
	t.Helper()
	sim := NewSimulatorService(newTestConfig(), logger.Nop())
	svc := NewService(newTestRepos(), newTestConfig(), sim, logger.Nop())
	sim.Attach(topic.NewRouter(svc.Dispatcher, logger.Nop()), svc.Status)
	return svc, sim
}

func TestSimulator_PublishBeforeAttach(t *testing.T) {
	sim := NewSimulatorService(newTestConfig(), nil)
	if err := sim.Publish(topic.CommandTopic("HVAC"), topic.QueryPayload); err == nil {
		t.Fatalf("expected error before Attach")
	}
	if err := sim.Run(context.Background(), time.Second); err == nil {
		t.Fatalf("expected Run to require Attach")
	}
}

func TestSimulator_StepReportsEveryDevice(t *testing.T) {
	svc, sim := newSimulatedService(t)
	t0 := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	sim.Step(t0)
	// A quarter period later the sun curve peaks.
	sim.Step(t0.Add(SunPeriod / 4))

	d := svc.Snapshot()
	for _, c := range d.Controllers {
		if !c.Seen || c.Down {
			t.Fatalf("controller %d not reported: %+v", c.Index, c)
		}
	}
	if d.Totals.ControllerWatts != 600+510+420 {
		t.Fatalf("controller watts: got %v", d.Totals.ControllerWatts)
	}
	for _, p := range d.Plugs {
		if p.Believed != solar_dashboard.PowerOff || !p.Enabled {
			t.Fatalf("plug %s: %+v", p.Name, p)
		}
	}
	for _, s := range d.Sensors {
		if !s.Seen {
			t.Fatalf("sensor %s not reported", s.Topic)
		}
	}
}

func TestSimulator_ToggleRoundTrip(t *testing.T) {
	svc, sim := newSimulatedService(t)
	t0 := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	sim.Step(t0)

	out, err := svc.plugs.Toggle(context.Background(), "HVAC", true)
	if err != nil || out != OutcomeToggled {
		t.Fatalf("Toggle: %v %v", out, err)
	}

	// Our own TOGGLE echo disables the control until the next report.
	p, _ := svc.Plug("HVAC")
	if p.Locked || p.Enabled || !p.SwitchOn {
		t.Fatalf("after toggle: %+v", p)
	}

	sim.Step(t0.Add(2 * time.Second))
	p, _ = svc.Plug("HVAC")
	if p.Believed != solar_dashboard.PowerOn || !p.Enabled || p.Status != solar_dashboard.PlugStatusOn {
		t.Fatalf("after report: %+v", p)
	}
	if svc.plugs.GlobalError() {
		t.Fatalf("unexpected global error")
	}

	var watts float64
	for _, e := range svc.Snapshot().PlugEnergy {
		if e.Name == "HVAC" {
			watts = e.Energy.Power
		}
	}
	if watts != PlugLoadWatts {
		t.Fatalf("HVAC watts: got %v, want %v", watts, PlugLoadWatts)
	}
}

func TestSimulator_RunReportsConnected(t *testing.T) {
	svc, sim := newSimulatedService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx, time.Hour) }()

	deadline := time.Now().Add(time.Second)
	for svc.Status.Connection().State != solar_dashboard.ConnectionUp {
		if time.Now().After(deadline) {
			t.Fatalf("simulator never reported connected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
