package log

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestConfigure_ServiceAndVersion(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf, Service: "vidforge-test", Version: "v0.0.0"})
	defer Configure(Config{})

	ql := WithComponent("queue")
	ql.Info().Str("event", "test.emit").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v (%q)", err, buf.String())
	}
	if entry["service"] != "vidforge-test" {
		t.Errorf("expected service vidforge-test, got %v", entry["service"])
	}
	if entry["version"] != "v0.0.0" {
		t.Errorf("expected version v0.0.0, got %v", entry["version"])
	}
	if entry["component"] != "queue" {
		t.Errorf("expected component queue, got %v", entry["component"])
	}
	if entry["event"] != "test.emit" {
		t.Errorf("expected event test.emit, got %v", entry["event"])
	}
}

func TestConfigure_Reconfigure(t *testing.T) {
	var first, second bytes.Buffer
	Configure(Config{Level: "info", Output: &first, Service: "a"})
	Configure(Config{Level: "info", Output: &second, Service: "b"})
	defer Configure(Config{})

	bl := Base()
	bl.Info().Msg("after reconfigure")

	if first.Len() != 0 {
		t.Errorf("first writer should not receive logs after reconfigure, got %q", first.String())
	}
	if second.Len() == 0 {
		t.Error("second writer should receive logs after reconfigure")
	}
}

func TestDerive_AttachesFields(t *testing.T) {
	var buf bytes.Buffer
	Configure(Config{Level: "debug", Output: &buf})
	defer Configure(Config{})

	l := Derive(func(c *zerolog.Context) {
		*c = c.Str("task_id", "t-1")
	})
	l.Info().Msg("derived")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if entry["task_id"] != "t-1" {
		t.Errorf("expected task_id t-1, got %v", entry["task_id"])
	}
}
