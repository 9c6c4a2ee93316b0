package opcsig

import (
	"testing"
	"time"
)

func TestConfigValidation(t *testing.T) {
	if _, err := NewAdapter(Config{Endpoint: "opc.tcp://localhost:4840", Nodes: []string{"ns=2;s=Trigger"}}); err == nil {
		t.Fatalf("missing source_id must be rejected")
	}
	if _, err := NewAdapter(Config{SourceID: "plc", Nodes: []string{"ns=2;s=Trigger"}}); err == nil {
		t.Fatalf("missing endpoint must be rejected")
	}
	if _, err := NewAdapter(Config{SourceID: "plc", Endpoint: "opc.tcp://localhost:4840"}); err == nil {
		t.Fatalf("empty node list must be rejected")
	}

	a, err := NewAdapter(Config{
		SourceID: "plc",
		Endpoint: "opc.tcp://localhost:4840",
		Nodes:    []string{"ns=2;s=Trigger"},
	})
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if a.cfg.PublishInterval != 100*time.Millisecond || a.cfg.SecurityMode != "None" {
		t.Fatalf("defaults not applied: %+v", a.cfg)
	}
}
