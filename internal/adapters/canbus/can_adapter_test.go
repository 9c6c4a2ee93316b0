package canbus

import "testing"

func TestConfigValidation(t *testing.T) {
	if _, err := NewAdapter(Config{Interface: "can0"}); err == nil {
		t.Fatalf("missing source_id must be rejected")
	}

	a, err := NewAdapter(Config{SourceID: "c", FrameIDs: []uint32{0x101, 0x2A0}})
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if a.cfg.Interface != "can0" {
		t.Fatalf("interface default not applied: %+v", a.cfg)
	}
	if !a.accept[0x101] || !a.accept[0x2A0] || a.accept[0x999] {
		t.Fatalf("frame filter not built: %+v", a.accept)
	}
}

func TestStopWithoutStartIsNoop(t *testing.T) {
	a, err := NewAdapter(Config{SourceID: "c"})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if err := a.Stop(); err != nil {
		t.Fatalf("stop before start: %v", err)
	}
}
