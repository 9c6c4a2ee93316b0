package domain

// Protocol identifies the transport a signal source speaks.
type Protocol string

const (
	ProtocolGPIO    Protocol = "gpio"
	ProtocolNetwork Protocol = "network"
	ProtocolSerial  Protocol = "serial"
	ProtocolCAN     Protocol = "can"
	ProtocolOPCUA   Protocol = "opcua"
)

// Valid reports whether p names a known protocol.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolGPIO, ProtocolNetwork, ProtocolSerial, ProtocolCAN, ProtocolOPCUA:
		return true
	}
	return false
}

// SignalEvent is one timestamped sample from an external ground-truth source.
// Timestamp is in seconds on the source's own clock until the synchronizer
// rewrites it onto the session reference clock. Immutable once created.
type SignalEvent struct {
	SourceID  string            `json:"source_id"`
	Timestamp float64           `json:"ts"`
	Raw       []byte            `json:"raw,omitempty"`
	Protocol  Protocol          `json:"protocol"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// Seq is the per-source arrival sequence assigned by the adapter.
	// Tie-breaking during correlation depends on it.
	Seq uint64 `json:"seq"`

	// Calibrated is set by the synchronizer once the event timestamp has
	// been mapped through an observed offset/drift pair.
	Calibrated bool `json:"calibrated"`
}
