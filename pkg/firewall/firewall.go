// Package firewall decides whether a received uplink packet is executed.
//
// Inspection runs three checks in a fixed order and stops at the first
// failure:
//
//  1. Structure: the packet must parse (see ccsds.Parse).
//  2. Policy: the claimed ground station must be on the allow-list.
//  3. Authenticity: the trailer must verify under the shared key.
//
// The allow-list is checked before the tag so an unlisted identity and a
// forged tag are reported as different events. Both reject; the first means
// an attacker named the wrong station, the second that it could not forge the
// tag for an allowed one.
package firewall

import (
	"sort"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	qerrors "github.com/pzverkov/satcom-uplink/internal/errors"
	"github.com/pzverkov/satcom-uplink/pkg/ccsds"
	"github.com/pzverkov/satcom-uplink/pkg/crypto"
)

// Rejection and acceptance reasons.
const (
	ReasonNotAuthorized = "ground station not authorized"
	ReasonAuthFailed    = "authentication failed"
	ReasonAccepted      = "command accepted"
)

// Verdict classifies the outcome of an inspection.
type Verdict int

const (
	// VerdictAccepted means the packet passed every check
	VerdictAccepted Verdict = iota

	// VerdictMalformed means the packet failed structural validation
	VerdictMalformed

	// VerdictUnauthorized means the ground station is not on the allow-list
	VerdictUnauthorized

	// VerdictAuthFailed means the tag did not verify
	VerdictAuthFailed
)

// String returns a short name for the verdict
func (v Verdict) String() string {
	switch v {
	case VerdictAccepted:
		return "accepted"
	case VerdictMalformed:
		return "malformed"
	case VerdictUnauthorized:
		return "unauthorized"
	case VerdictAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// Severity returns the telemetry severity of the verdict.
func (v Verdict) Severity() Severity {
	switch v {
	case VerdictAccepted:
		return SeverityInfo
	case VerdictMalformed:
		return SeverityWarning
	default:
		return SeverityCritical
	}
}

// Severity ranks telemetry events.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

// String returns the severity name
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Decision is the result of inspecting one packet.
type Decision struct {
	Accepted bool
	Verdict  Verdict
	Reason   string

	// Packet is set whenever the packet parsed, including policy and
	// authentication rejections. It is nil for malformed packets.
	Packet *ccsds.ParsedPacket

	// Err is the *ccsds.ValidationError for malformed packets.
	Err error
}

// Config configures a Firewall.
type Config struct {
	// Key is the shared HMAC key.
	Key []byte

	// Digest is the trailer algorithm (default HMAC-SHA256).
	Digest constants.DigestAlgorithm

	// AllowedGroundStations lists the identities whose commands may execute.
	// An empty list rejects every packet as unauthorized.
	AllowedGroundStations []string

	// Observer receives one event per inspected packet (optional).
	Observer Observer
}

// Firewall validates packets against the allow-list and the shared key.
// It has no mutable state; Inspect is safe for concurrent use.
type Firewall struct {
	verifier *crypto.Verifier
	allowed  map[string]struct{}
	observer Observer
}

// New creates a Firewall from cfg.
func New(cfg Config) (*Firewall, error) {
	if cfg.Digest == 0 {
		cfg.Digest = constants.DigestHMACSHA256
	}
	verifier, err := crypto.NewVerifier(cfg.Key, cfg.Digest)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedGroundStations))
	for _, id := range cfg.AllowedGroundStations {
		allowed[id] = struct{}{}
	}

	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	return &Firewall{
		verifier: verifier,
		allowed:  allowed,
		observer: observer,
	}, nil
}

// Inspect parses raw and decides whether its command may execute.
// source is the sender address, used only for telemetry.
//
// The Observer is notified exactly once per call, before Inspect returns.
func (f *Firewall) Inspect(raw []byte, source string) Decision {
	packet, err := ccsds.Parse(raw)
	if err != nil {
		d := Decision{Verdict: VerdictMalformed, Reason: decodeReason(err), Err: err}
		f.observer.OnDecodeFailure(newEvent(d, source, len(raw)))
		return d
	}

	if !f.IsAllowed(packet.GroundStationID) {
		d := Decision{Verdict: VerdictUnauthorized, Reason: ReasonNotAuthorized, Packet: packet}
		f.observer.OnUnauthorized(newEvent(d, source, len(raw)))
		return d
	}

	if !f.verifier.Verify(packet.RawWithoutSignature, packet.Signature) {
		d := Decision{Verdict: VerdictAuthFailed, Reason: ReasonAuthFailed, Packet: packet}
		f.observer.OnAuthFailure(newEvent(d, source, len(raw)))
		return d
	}

	d := Decision{Accepted: true, Verdict: VerdictAccepted, Reason: ReasonAccepted, Packet: packet}
	f.observer.OnAccepted(newEvent(d, source, len(raw)))
	return d
}

// IsAllowed reports whether id is on the allow-list.
func (f *Firewall) IsAllowed(id string) bool {
	_, ok := f.allowed[id]
	return ok
}

// AllowedGroundStations returns the allow-list, sorted.
func (f *Firewall) AllowedGroundStations() []string {
	ids := make([]string, 0, len(f.allowed))
	for id := range f.allowed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Algorithm returns the trailer digest algorithm.
func (f *Firewall) Algorithm() constants.DigestAlgorithm {
	return f.verifier.Algorithm()
}

func decodeReason(err error) string {
	var ve *qerrors.ValidationError
	if qerrors.As(err, &ve) {
		return ve.Reason
	}
	return err.Error()
}
