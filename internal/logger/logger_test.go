package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestToZapLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		DebugLevel: zapcore.DebugLevel,
		InfoLevel:  zapcore.InfoLevel,
		WarnLevel:  zapcore.WarnLevel,
		ErrorLevel: zapcore.ErrorLevel,
		"verbose":  defaultZapLevel,
		"":         defaultZapLevel,
	}
	for in, want := range cases {
		if got := toZapLevel(in); got != want {
			t.Fatalf("toZapLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewEncoder(t *testing.T) {
	entry := zapcore.Entry{Level: zapcore.InfoLevel, Message: "plug_toggled"}
	fields := []zapcore.Field{{Key: "plug", Type: zapcore.StringType, String: "HVAC"}}

	buf, err := newEncoder(FormatJSON).EncodeEntry(entry, fields)
	if err != nil {
		t.Fatalf("json encode: %v", err)
	}
	if got := buf.String(); got[0] != '{' {
		t.Fatalf("expected JSON output, got %q", got)
	}

	buf, err = newEncoder(FormatConsole).EncodeEntry(entry, fields)
	if err != nil {
		t.Fatalf("console encode: %v", err)
	}
	if got := buf.String(); got[0] == '{' {
		t.Fatalf("expected console output, got %q", got)
	}
}

func TestGetIsSingleton(t *testing.T) {
	a := Get(InfoLevel, FormatConsole)
	b := Get(DebugLevel, FormatJSON)
	if a != b || a == nil {
		t.Fatalf("Get must return the same instance")
	}
	if Nop() == nil {
		t.Fatalf("Nop returned nil")
	}
}
