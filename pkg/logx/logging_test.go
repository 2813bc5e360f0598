package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerWritesFieldsInOrder(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "pipeline"), String("k", "first"))
	log.Warn("provider failed", String("k", "second"), Err(errors.New("boom")))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if m["comp"] != "pipeline" {
		t.Fatalf("comp = %v", m["comp"])
	}
	if m["err"] != "boom" {
		t.Fatalf("err = %v", m["err"])
	}
	if m["level"] != "warn" || m["message"] != "provider failed" {
		t.Fatalf("unexpected event: %v", m)
	}
	if !strings.Contains(buf.String(), `"k":"second"`) {
		t.Fatalf("call-site field missing: %s", buf.String())
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("ignored", String("k", "v"))
	if l.With(String("a", "b")).IsZero() {
		t.Fatal("derived logger carries fields and is not zero")
	}
}

func TestFormatForChat(t *testing.T) {
	line := []byte(`{"level":"warn","time":"x","caller":"a.go:1","message":"sink failed","sink":"email","capture":"20250101000000_000"}`)
	got := formatForChat(line)
	want := "[WARN] sink failed\n- capture=20250101000000_000\n- sink=email"
	if got != want {
		t.Fatalf("formatForChat =\n%q\nwant\n%q", got, want)
	}

	if got := formatForChat([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("non-json = %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"", "debug", "INFO", "warning", "Error"} {
		if !ValidLevel(s) {
			t.Fatalf("ValidLevel(%q) = false", s)
		}
	}
	if ValidLevel("loud") {
		t.Fatal("ValidLevel(loud) = true")
	}
}
