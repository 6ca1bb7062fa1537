package firewall

import (
	"errors"

	"github.com/pzverkov/satcom-uplink/pkg/ccsds"
)

// Observer receives telemetry from a Firewall.
// Implementations should be lightweight; callbacks run on the inspection path
// and may be called concurrently.
type Observer interface {
	OnDecodeFailure(e Event)
	OnUnauthorized(e Event)
	OnAuthFailure(e Event)
	OnAccepted(e Event)
}

// Event describes one inspected packet.
// Packet fields are only meaningful when HasPacket is true.
type Event struct {
	Source    string
	Verdict   Verdict
	Severity  Severity
	Reason    string
	Size      int
	HasPacket bool

	// Kind is the failed validation step for malformed packets.
	Kind ccsds.ValidationKind

	Command         string
	GroundStationID string
	SequenceCount   uint16
	APID            uint16
}

func newEvent(d Decision, source string, size int) Event {
	e := Event{
		Source:   source,
		Verdict:  d.Verdict,
		Severity: d.Verdict.Severity(),
		Reason:   d.Reason,
		Size:     size,
	}
	if d.Packet != nil {
		fillPacket(&e, d.Packet)
	}
	var ve *ccsds.ValidationError
	if errors.As(d.Err, &ve) {
		e.Kind = ve.Kind
	}
	return e
}

func fillPacket(e *Event, p *ccsds.ParsedPacket) {
	e.HasPacket = true
	e.Command = p.Command
	e.GroundStationID = p.GroundStationID
	e.SequenceCount = p.SequenceCount
	e.APID = p.APID
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) OnDecodeFailure(Event) {}
func (NopObserver) OnUnauthorized(Event)  {}
func (NopObserver) OnAuthFailure(Event)   {}
func (NopObserver) OnAccepted(Event)      {}

// MultiObserver fans events out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) OnDecodeFailure(e Event) {
	for _, o := range m {
		o.OnDecodeFailure(e)
	}
}

func (m MultiObserver) OnUnauthorized(e Event) {
	for _, o := range m {
		o.OnUnauthorized(e)
	}
}

func (m MultiObserver) OnAuthFailure(e Event) {
	for _, o := range m {
		o.OnAuthFailure(e)
	}
}

func (m MultiObserver) OnAccepted(e Event) {
	for _, o := range m {
		o.OnAccepted(e)
	}
}
