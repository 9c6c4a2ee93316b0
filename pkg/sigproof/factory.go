package sigproof

import (
	"fmt"

	"github.com/veridrive/sigproof/internal/adapters/canbus"
	"github.com/veridrive/sigproof/internal/adapters/gpio"
	"github.com/veridrive/sigproof/internal/adapters/netsig"
	"github.com/veridrive/sigproof/internal/adapters/opcsig"
	"github.com/veridrive/sigproof/internal/adapters/serialbus"
	"github.com/veridrive/sigproof/internal/app/config"
	"github.com/veridrive/sigproof/internal/ports"
)

// buildAdapters constructs one signal adapter per configured source.
// Construction validates config only; no device is opened until the
// session starts the adapter.
func buildAdapters(src config.SourcesConfig) ([]ports.SignalAdapter, error) {
	var out []ports.SignalAdapter

	for _, c := range src.GPIO {
		a, err := gpio.NewAdapter(c)
		if err != nil {
			return nil, fmt.Errorf("gpio source %q: %w", c.SourceID, err)
		}
		out = append(out, a)
	}
	for _, c := range src.Network {
		a, err := netsig.NewAdapter(c)
		if err != nil {
			return nil, fmt.Errorf("network source %q: %w", c.SourceID, err)
		}
		out = append(out, a)
	}
	for _, c := range src.Serial {
		a, err := serialbus.NewAdapter(c)
		if err != nil {
			return nil, fmt.Errorf("serial source %q: %w", c.SourceID, err)
		}
		out = append(out, a)
	}
	for _, c := range src.CAN {
		a, err := canbus.NewAdapter(c)
		if err != nil {
			return nil, fmt.Errorf("can source %q: %w", c.SourceID, err)
		}
		out = append(out, a)
	}
	for _, c := range src.OPCUA {
		a, err := opcsig.NewAdapter(c)
		if err != nil {
			return nil, fmt.Errorf("opcua source %q: %w", c.SourceID, err)
		}
		out = append(out, a)
	}

	return out, nil
}
