package serialbus

import "testing"

func TestConfigValidation(t *testing.T) {
	if _, err := NewAdapter(Config{Port: "/dev/ttyUSB0"}); err == nil {
		t.Fatalf("missing source_id must be rejected")
	}
	if _, err := NewAdapter(Config{SourceID: "s"}); err == nil {
		t.Fatalf("missing port must be rejected")
	}

	a, err := NewAdapter(Config{SourceID: "s", Port: "/dev/ttyUSB0"})
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if a.cfg.BaudRate != 115200 || a.cfg.Delimiter != '\n' || a.cfg.MaxFrame != 1024 {
		t.Fatalf("defaults not applied: %+v", a.cfg)
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	a, err := NewAdapter(Config{SourceID: "s", Port: "/dev/ttyUSB0"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
}
