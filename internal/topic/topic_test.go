package topic

import (
	"errors"
	"testing"

	"solar_dashboard/internal/logger"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in      string
		cat     Category
		subject string
		kind    Kind
		index   int
	}{
		{"CC1", CategoryController, "1", KindNone, 1},
		{"CC3", CategoryController, "3", KindNone, 3},
		{"CC12", CategoryUnknown, "", KindNone, 0},
		{"CCA", CategoryUnknown, "", KindNone, 0},
		{"CCx", CategoryUnknown, "", KindNone, 0},
		{"CC", CategoryUnknown, "", KindNone, 0},
		{"tele/WaterHeater/STATE", CategoryPlugTelemetry, "WaterHeater", KindState, 0},
		{"tele/15AMP/SENSOR", CategoryPlugTelemetry, "15AMP", KindSensor, 0},
		{"tele/15AMP/LWT", CategoryPlugTelemetry, "15AMP", KindOther, 0},
		{"stat/HVAC/POWER", CategoryPlugQuery, "HVAC", KindPower, 0},
		{"stat/HVAC/RESULT", CategoryPlugQuery, "HVAC", KindOther, 0},
		{"cmnd/AC-Heater/Power", CategoryPlugCommand, "AC-Heater", KindPower, 0},
		{"cmnd/AC-Heater/POWER", CategoryPlugCommand, "AC-Heater", KindOther, 0},
		{"tele/only", CategoryUnknown, "", KindNone, 0},
		{"tele//STATE", CategoryUnknown, "", KindNone, 0},
		{"stat/a/b/c", CategoryUnknown, "", KindNone, 0},
		{"Temp", CategoryMisc, "Temp", KindNone, 0},
		{"", CategoryUnknown, "", KindNone, 0},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := Parse(tc.in)
			if got.Category != tc.cat || got.Subject != tc.subject || got.Kind != tc.kind || got.Index != tc.index {
				t.Fatalf("Parse(%q) = %+v", tc.in, got)
			}
			if got.Raw != tc.in {
				t.Fatalf("raw not kept: %q", got.Raw)
			}
		})
	}
}

func TestCommandTopic(t *testing.T) {
	if got := CommandTopic("WaterHeater"); got != "cmnd/WaterHeater/Power" {
		t.Fatalf("got %q", got)
	}
}

type recordingHandler struct {
	calls []string
	err   error
}

func (h *recordingHandler) Controller(index int, payload []byte) error {
	h.calls = append(h.calls, "controller")
	return h.err
}
func (h *recordingHandler) PlugTelemetry(plug string, kind Kind, payload []byte) error {
	h.calls = append(h.calls, "tele:"+plug+":"+kind.String())
	return h.err
}
func (h *recordingHandler) PlugQuery(plug string, kind Kind, payload []byte) error {
	h.calls = append(h.calls, "stat:"+plug+":"+kind.String())
	return h.err
}
func (h *recordingHandler) PlugCommand(plug string, kind Kind, payload []byte) error {
	h.calls = append(h.calls, "cmnd:"+plug+":"+kind.String())
	return h.err
}
func (h *recordingHandler) Misc(name string, payload []byte) error {
	h.calls = append(h.calls, "misc:"+name)
	return h.err
}

func TestRouter_DispatchesEachCategoryOnce(t *testing.T) {
	h := &recordingHandler{}
	r := NewRouter(h, logger.Nop())

	for _, tpc := range []string{"CC2", "tele/HVAC/STATE", "stat/HVAC/POWER", "cmnd/HVAC/Power", "Hum", "tele/x"} {
		r.Route(tpc, []byte("x"))
	}

	want := []string{"controller", "tele:HVAC:state", "stat:HVAC:power", "cmnd:HVAC:power", "misc:Hum"}
	if len(h.calls) != len(want) {
		t.Fatalf("calls=%v", h.calls)
	}
	for i := range want {
		if h.calls[i] != want[i] {
			t.Fatalf("call %d = %q, want %q", i, h.calls[i], want[i])
		}
	}
}

func TestRouter_HandlerErrorsDoNotEscape(t *testing.T) {
	for _, err := range []error{ErrUnknownPlug, errors.New("bad payload")} {
		h := &recordingHandler{err: err}
		r := NewRouter(h, logger.Nop())
		rt := r.Route("tele/Nope/STATE", []byte(`{}`))
		if rt.Category != CategoryPlugTelemetry || len(h.calls) != 1 {
			t.Fatalf("unexpected route %+v calls=%v", rt, h.calls)
		}
	}
}
