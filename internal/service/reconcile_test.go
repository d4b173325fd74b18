package service

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"solar_dashboard"
	"solar_dashboard/internal/models"
	"solar_dashboard/internal/topic"
)

// answerWith makes every state query come back with the given reply.
func (f *plugFixture) answerWith(reply solar_dashboard.PowerState) {
	f.pub.mu.Lock()
	f.pub.onQuery = func(plug string) {
		_ = f.svc.HandleQueryResponse(plug, topic.KindPower, []byte(reply))
	}
	f.pub.mu.Unlock()
}

func TestToggle_OffOnOffReturnsToOff(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"15AMP", "20AMP", "WaterHeater", "AC-Heater", "HVAC"} {
		name := name
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			f := newPlugFixture(t)
			f.settle(t, name, solar_dashboard.PowerOff)
			ctx := context.Background()

			// OFF -> ON
			f.answerWith(solar_dashboard.PowerOff)
			out, err := f.svc.Toggle(ctx, name, true)
			if err != nil || out != OutcomeToggled {
				t.Fatalf("toggle ON: outcome=%s err=%v", out, err)
			}
			if p := f.plug(t, name); p.Locked || p.Enabled {
				t.Fatalf("after cycle: lock released, control disabled until telemetry: %+v", p)
			}
			_ = f.svc.HandleCommandEcho(name, topic.KindPower, []byte(topic.TogglePayload))
			f.settle(t, name, solar_dashboard.PowerOn)

			// ON -> OFF
			f.answerWith(solar_dashboard.PowerOn)
			out, err = f.svc.Toggle(ctx, name, false)
			if err != nil || out != OutcomeToggled {
				t.Fatalf("toggle OFF: outcome=%s err=%v", out, err)
			}
			_ = f.svc.HandleCommandEcho(name, topic.KindPower, []byte(topic.TogglePayload))
			f.settle(t, name, solar_dashboard.PowerOff)

			p := f.plug(t, name)
			if p.Locked || !p.Enabled || p.Believed != solar_dashboard.PowerOff {
				t.Fatalf("unexpected final plug: %+v", p)
			}
			if f.svc.GlobalError() {
				t.Fatalf("no global error expected")
			}

			cmd := topic.CommandTopic(name)
			want := []published{
				{cmd, topic.QueryPayload}, {cmd, topic.TogglePayload},
				{cmd, topic.QueryPayload}, {cmd, topic.TogglePayload},
			}
			if got := f.pub.messages(); !reflect.DeepEqual(got, want) {
				t.Fatalf("published %v; want %v", got, want)
			}
			// Our own toggle echoes are not foreign.
			for _, typ := range f.events.types() {
				if typ == models.EventExternalToggle {
					t.Fatalf("own toggle journaled as external: %v", f.events.types())
				}
			}
		})
	}
}

func TestToggle_QueryTimeoutSetsGlobalError(t *testing.T) {
	t.Parallel()
	f := newPlugFixture(t)
	f.settle(t, "HVAC", solar_dashboard.PowerOff)
	f.settle(t, "AC-Heater", solar_dashboard.PowerOff)

	out, err := f.svc.Toggle(context.Background(), "HVAC", true)
	if err != nil || out != OutcomeTimeout {
		t.Fatalf("outcome=%s err=%v", out, err)
	}
	p := f.plug(t, "HVAC")
	if p.Locked {
		t.Fatalf("plug must not stay locked after a timeout")
	}
	if p.Status != solar_dashboard.PlugStatusError || !f.svc.GlobalError() {
		t.Fatalf("expected error status and global error: %+v", p)
	}
	if other := f.plug(t, "AC-Heater"); other.Enabled {
		t.Fatalf("global error must disable every plug")
	}
	if got := f.events.types(); got[len(got)-1] != models.EventTimeout {
		t.Fatalf("journal = %v", got)
	}
}

func TestToggle_ReportDuringCycleIsIgnored(t *testing.T) {
	t.Parallel()
	f := newPlugFixture(t)
	f.settle(t, "HVAC", solar_dashboard.PowerOn)

	// A stale OFF lands between the query and its reply.
	f.pub.onQuery = func(plug string) {
		if err := f.svc.HandleStateReport(plug, stateReport(solar_dashboard.PowerOff)); err != nil {
			t.Errorf("HandleStateReport: %v", err)
		}
		_ = f.svc.HandleQueryResponse(plug, topic.KindPower, []byte("ON"))
	}

	out, err := f.svc.Toggle(context.Background(), "HVAC", false)
	if err != nil || out != OutcomeToggled {
		t.Fatalf("outcome=%s err=%v", out, err)
	}
	p := f.plug(t, "HVAC")
	if p.Believed != solar_dashboard.PowerOn || p.SwitchOn {
		t.Fatalf("stale report must not change believed state or switch: %+v", p)
	}
}

func TestToggle_MismatchSetsGlobalError(t *testing.T) {
	t.Parallel()
	f := newPlugFixture(t)
	f.settle(t, "HVAC", solar_dashboard.PowerOff)
	f.settle(t, "WaterHeater", solar_dashboard.PowerOff)

	// The plug already reports the target before any toggle was sent.
	f.answerWith(solar_dashboard.PowerOn)
	out, err := f.svc.Toggle(context.Background(), "HVAC", true)
	if err != nil || out != OutcomeMismatch {
		t.Fatalf("outcome=%s err=%v", out, err)
	}
	if !f.svc.GlobalError() {
		t.Fatalf("expected global error")
	}
	for _, m := range f.pub.messages() {
		if m.payload == topic.TogglePayload {
			t.Fatalf("no toggle may be sent on mismatch")
		}
	}
	if p := f.plug(t, "HVAC"); p.Status != solar_dashboard.PlugStatusError || p.Locked {
		t.Fatalf("unexpected plug: %+v", p)
	}

	// Controls stay disabled even after good telemetry.
	f.settle(t, "WaterHeater", solar_dashboard.PowerOn)
	f.settle(t, "HVAC", solar_dashboard.PowerOn)
	for _, p := range f.svc.Plugs() {
		if p.Enabled {
			t.Fatalf("plug %s enabled after global error", p.Name)
		}
	}
	if p := f.plug(t, "WaterHeater"); p.Believed != solar_dashboard.PowerOff {
		t.Fatalf("reports are ignored under global error: %+v", p)
	}
	if _, err := f.svc.RequestToggle("WaterHeater", true); !errors.Is(err, ErrControlsDisabled) {
		t.Fatalf("expected ErrControlsDisabled, got %v", err)
	}
	if got := f.events.types(); got[len(got)-1] != models.EventMismatch {
		t.Fatalf("journal = %v", got)
	}
}

func TestRequestToggle_ConfirmThenToggle(t *testing.T) {
	t.Parallel()
	f := newPlugFixture(t)
	f.settle(t, "15AMP", solar_dashboard.PowerOn)
	f.answerWith(solar_dashboard.PowerOn)

	dec, err := f.svc.RequestToggle("15AMP", false)
	if err != nil || dec != DecisionConfirm {
		t.Fatalf("decision=%s err=%v", dec, err)
	}
	p := f.plug(t, "15AMP")
	if !p.Locked || !p.AwaitingConfirmation {
		t.Fatalf("expected plug held for confirmation: %+v", p)
	}
	if len(f.pub.messages()) != 0 {
		t.Fatalf("nothing may be published before confirmation")
	}
	if _, err := f.svc.RequestToggle("15AMP", false); !errors.Is(err, ErrPlugBusy) {
		t.Fatalf("expected ErrPlugBusy, got %v", err)
	}

	if err := f.svc.Confirm("15AMP"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	f.svc.Wait()

	cmd := topic.CommandTopic("15AMP")
	want := []published{{cmd, topic.QueryPayload}, {cmd, topic.TogglePayload}}
	if got := f.pub.messages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("published %v; want %v", got, want)
	}
	if p := f.plug(t, "15AMP"); p.Locked || p.Enabled {
		t.Fatalf("lock released, control waits for telemetry: %+v", p)
	}

	f.settle(t, "15AMP", solar_dashboard.PowerOff)
	p = f.plug(t, "15AMP")
	if p.Believed != solar_dashboard.PowerOff || !p.Enabled {
		t.Fatalf("unexpected plug: %+v", p)
	}
	want2 := []string{models.EventToggleRequested, models.EventToggleSent}
	if got := f.events.types(); !reflect.DeepEqual(got, want2) {
		t.Fatalf("journal = %v; want %v", got, want2)
	}
}

func TestRequestToggle_CancelRevertsWithoutPublishing(t *testing.T) {
	t.Parallel()
	f := newPlugFixture(t)
	f.settle(t, "20AMP", solar_dashboard.PowerOn)

	if dec, err := f.svc.RequestToggle("20AMP", false); err != nil || dec != DecisionConfirm {
		t.Fatalf("decision=%s err=%v", dec, err)
	}
	if err := f.svc.Cancel("20AMP"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	p := f.plug(t, "20AMP")
	if p.Locked || !p.SwitchOn || !p.Enabled || p.AwaitingConfirmation {
		t.Fatalf("cancel must revert and release: %+v", p)
	}
	if len(f.pub.messages()) != 0 {
		t.Fatalf("cancel must not publish")
	}
	if got := f.events.types(); len(got) != 1 || got[0] != models.EventCancelled {
		t.Fatalf("journal = %v", got)
	}
	if err := f.svc.Cancel("20AMP"); !errors.Is(err, ErrNoPendingConfirmation) {
		t.Fatalf("expected ErrNoPendingConfirmation, got %v", err)
	}
}

func TestRequestToggle_UnansweredConfirmationExpires(t *testing.T) {
	t.Parallel()
	f := newPlugFixture(t)
	f.settle(t, "15AMP", solar_dashboard.PowerOn)

	if dec, err := f.svc.RequestToggle("15AMP", false); err != nil || dec != DecisionConfirm {
		t.Fatalf("decision=%s err=%v", dec, err)
	}
	f.clock.Advance(defaultConfirmTimeout - time.Second)
	if p := f.plug(t, "15AMP"); !p.Locked || !p.AwaitingConfirmation {
		t.Fatalf("prompt must hold the plug until its deadline: %+v", p)
	}
	if _, err := f.svc.RequestToggle("15AMP", true); !errors.Is(err, ErrPlugBusy) {
		t.Fatalf("expected ErrPlugBusy while prompting, got %v", err)
	}

	f.clock.Advance(2 * time.Second)
	p := f.plug(t, "15AMP")
	if p.Locked || p.AwaitingConfirmation || !p.SwitchOn {
		t.Fatalf("expired prompt must revert and release: %+v", p)
	}
	if len(f.pub.messages()) != 0 {
		t.Fatalf("expired prompt must not publish")
	}
	if got := f.events.types(); len(got) != 1 || got[0] != models.EventCancelled {
		t.Fatalf("journal = %v", got)
	}
	if err := f.svc.Confirm("15AMP"); !errors.Is(err, ErrNoPendingConfirmation) {
		t.Fatalf("expected ErrNoPendingConfirmation, got %v", err)
	}

	// Telemetry applies again.
	if err := f.svc.HandleStateReport("15AMP", stateReport(solar_dashboard.PowerOff)); err != nil {
		t.Fatalf("HandleStateReport: %v", err)
	}
	if p := f.plug(t, "15AMP"); p.Believed != solar_dashboard.PowerOff || p.SwitchOn {
		t.Fatalf("report after expiry not applied: %+v", p)
	}
}

func TestRequestToggle_ExpiryRunsOnStateReport(t *testing.T) {
	t.Parallel()
	f := newPlugFixture(t)
	f.settle(t, "20AMP", solar_dashboard.PowerOn)

	if _, err := f.svc.RequestToggle("20AMP", false); err != nil {
		t.Fatalf("RequestToggle: %v", err)
	}
	f.clock.Advance(defaultConfirmTimeout)

	// No snapshot is taken in between; the report itself clears the prompt.
	if err := f.svc.HandleStateReport("20AMP", stateReport(solar_dashboard.PowerOff)); err != nil {
		t.Fatalf("HandleStateReport: %v", err)
	}
	if p := f.plug(t, "20AMP"); p.Locked || p.Believed != solar_dashboard.PowerOff {
		t.Fatalf("unexpected plug: %+v", p)
	}
}

func TestRequestToggle_ConfirmPlugTurningOnStartsImmediately(t *testing.T) {
	t.Parallel()
	f := newPlugFixture(t)
	f.settle(t, "15AMP", solar_dashboard.PowerOff)
	f.answerWith(solar_dashboard.PowerOff)

	dec, err := f.svc.RequestToggle("15AMP", true)
	if err != nil || dec != DecisionStarted {
		t.Fatalf("decision=%s err=%v", dec, err)
	}
	f.svc.Wait()
	if n := len(f.pub.messages()); n != 2 {
		t.Fatalf("expected query and toggle, got %d messages", n)
	}
}

func TestRequestToggle_DisabledControl(t *testing.T) {
	t.Parallel()
	f := newPlugFixture(t)

	if _, err := f.svc.RequestToggle("HVAC", true); !errors.Is(err, ErrPlugDisabled) {
		t.Fatalf("expected ErrPlugDisabled before any telemetry, got %v", err)
	}
}

func TestToggle_PublishFailureReleasesLock(t *testing.T) {
	t.Parallel()
	f := newPlugFixture(t)
	f.settle(t, "HVAC", solar_dashboard.PowerOff)
	f.pub.err = errors.New("not connected")

	out, err := f.svc.Toggle(context.Background(), "HVAC", true)
	if err == nil || out != OutcomeNotSent {
		t.Fatalf("outcome=%s err=%v", out, err)
	}
	p := f.plug(t, "HVAC")
	if p.Locked || p.SwitchOn || f.svc.GlobalError() {
		t.Fatalf("unexpected plug after failed publish: %+v", p)
	}
}

func TestToggle_ToggleFailureReleasesLock(t *testing.T) {
	t.Parallel()
	f := newPlugFixture(t)
	f.settle(t, "HVAC", solar_dashboard.PowerOff)
	f.answerWith(solar_dashboard.PowerOff)
	f.pub.toggleErr = errors.New("broker gone")

	out, err := f.svc.Toggle(context.Background(), "HVAC", true)
	if err == nil || out != OutcomeNotSent {
		t.Fatalf("outcome=%s err=%v", out, err)
	}
	if p := f.plug(t, "HVAC"); p.Locked || p.SwitchOn {
		t.Fatalf("unexpected plug: %+v", p)
	}
	// The echo of some other client's toggle is foreign again.
	_ = f.svc.HandleCommandEcho("HVAC", topic.KindPower, []byte(topic.TogglePayload))
	if got := f.events.types(); got[len(got)-1] != models.EventExternalToggle {
		t.Fatalf("journal = %v", got)
	}
}

func TestToggle_LostEchoIsWrittenOff(t *testing.T) {
	t.Parallel()
	f := newPlugFixture(t)
	f.settle(t, "HVAC", solar_dashboard.PowerOff)
	f.answerWith(solar_dashboard.PowerOff)

	out, err := f.svc.Toggle(context.Background(), "HVAC", true)
	if err != nil || out != OutcomeToggled {
		t.Fatalf("outcome=%s err=%v", out, err)
	}
	// Our echo never comes back.
	f.clock.Advance(ownEchoWindow + time.Second)
	f.settle(t, "HVAC", solar_dashboard.PowerOn)

	_ = f.svc.HandleCommandEcho("HVAC", topic.KindPower, []byte(topic.TogglePayload))
	if got := f.events.types(); got[len(got)-1] != models.EventExternalToggle {
		t.Fatalf("toggle after a lost echo must be external, journal = %v", got)
	}
	_ = f.svc.HandleCommandEcho("HVAC", topic.KindPower, []byte(topic.TogglePayload))
	if n := countType(f.events.types(), models.EventExternalToggle); n != 2 {
		t.Fatalf("external toggles = %d", n)
	}
}

func countType(types []string, typ string) int {
	n := 0
	for _, got := range types {
		if got == typ {
			n++
		}
	}
	return n
}
