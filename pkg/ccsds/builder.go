package ccsds

import (
	"sync"
	"time"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	qerrors "github.com/pzverkov/satcom-uplink/internal/errors"
	"github.com/pzverkov/satcom-uplink/pkg/crypto"
)

var (
	errInvalidAPID          = qerrors.NewProtocolError("build", qerrors.ErrInvalidAPID)
	errInvalidSequenceCount = qerrors.NewProtocolError("build", qerrors.ErrInvalidSequenceCount)
	errFieldTooLong         = qerrors.NewProtocolError("build", qerrors.ErrFieldTooLong)
	errPacketTooLarge       = qerrors.NewProtocolError("build", qerrors.ErrPacketTooLarge)
	errInvalidUTF8          = qerrors.NewProtocolError("build", qerrors.ErrInvalidUTF8)
)

// SequencePolicy selects how a Builder synchronizes its sequence counter.
type SequencePolicy int

const (
	// SequenceExclusive is for a builder owned by a single goroutine.
	// The counter is not locked; concurrent Build calls are a data race.
	SequenceExclusive SequencePolicy = iota

	// SequenceShared serializes counter reservation so concurrent Build calls
	// receive distinct, consecutive sequence counts.
	SequenceShared
)

// String returns a human-readable name for the policy
func (p SequencePolicy) String() string {
	switch p {
	case SequenceExclusive:
		return "exclusive"
	case SequenceShared:
		return "shared"
	default:
		return "unknown"
	}
}

// ParseSequencePolicy maps a configuration name to a policy.
func ParseSequencePolicy(name string) (SequencePolicy, bool) {
	switch name {
	case "", "exclusive":
		return SequenceExclusive, true
	case "shared":
		return SequenceShared, true
	default:
		return 0, false
	}
}

// CommandMetadata describes the next packet a Builder will produce.
//
// Timestamp is taken when Describe is called, not when the packet is built,
// so it can differ from the timestamp embedded by a later Build. It is
// advisory and meant for telemetry.
type CommandMetadata struct {
	Command         string
	GroundStationID string
	SequenceCount   uint16
	APID            uint16
	Timestamp       time.Time
}

// BuilderOption configures a Builder.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	apid   int
	policy SequencePolicy
	clock  func() time.Time
	digest constants.DigestAlgorithm
	start  int
}

// WithAPID sets the application process identifier (0..2047).
func WithAPID(apid int) BuilderOption {
	return func(o *builderOptions) {
		o.apid = apid
	}
}

// WithSequencePolicy sets the counter synchronization policy.
func WithSequencePolicy(p SequencePolicy) BuilderOption {
	return func(o *builderOptions) {
		o.policy = p
	}
}

// WithClock sets the time source used for packet timestamps.
func WithClock(clock func() time.Time) BuilderOption {
	return func(o *builderOptions) {
		o.clock = clock
	}
}

// WithDigest sets the trailer digest algorithm.
func WithDigest(alg constants.DigestAlgorithm) BuilderOption {
	return func(o *builderOptions) {
		o.digest = alg
	}
}

// WithInitialSequence sets the first sequence count (0..16383).
func WithInitialSequence(n int) BuilderOption {
	return func(o *builderOptions) {
		o.start = n
	}
}

// Builder produces signed command packets for one sender identity.
//
// The builder owns the signing key and a 14-bit sequence counter. The counter
// advances exactly once per successful Build and wraps from 16383 to 0. It is
// not persisted. Failed builds leave it unchanged.
type Builder struct {
	signer *crypto.Signer
	apid   uint16
	policy SequencePolicy
	clock  func() time.Time

	mu  sync.Mutex // guards seq under SequenceShared
	seq uint16
}

// NewBuilder creates a Builder that signs with key.
func NewBuilder(key []byte, opts ...BuilderOption) (*Builder, error) {
	o := builderOptions{
		apid:   constants.DefaultAPID,
		policy: SequenceExclusive,
		clock:  time.Now,
		digest: constants.DigestHMACSHA256,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.apid < 0 || o.apid > constants.MaxAPID {
		return nil, errInvalidAPID
	}
	if o.start < 0 || o.start >= constants.SequenceCountModulus {
		return nil, errInvalidSequenceCount
	}
	if o.policy != SequenceExclusive && o.policy != SequenceShared {
		return nil, qerrors.NewProtocolError("build", qerrors.ErrInvalidConfig)
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	signer, err := crypto.NewSigner(key, o.digest)
	if err != nil {
		return nil, err
	}

	return &Builder{
		signer: signer,
		apid:   uint16(o.apid),
		policy: o.policy,
		clock:  o.clock,
		seq:    uint16(o.start),
	}, nil
}

// Build creates a fully signed packet carrying command on behalf of groundStationID.
//
// Returns an error, without consuming a sequence count, if either string is not
// valid UTF-8, longer than 65535 bytes, or the packet would not fit the 16-bit
// packet data length.
func (b *Builder) Build(command, groundStationID string) ([]byte, error) {
	f := Fields{
		APID:            b.apid,
		Timestamp:       unixSeconds(b.clock()),
		GroundStationID: groundStationID,
		Command:         command,
	}
	if err := f.validate(); err != nil {
		return nil, err
	}

	f.SequenceCount = b.reserve()

	packet := appendUnsigned(nil, &f)
	return append(packet, b.signer.Sign(packet)...), nil
}

// Describe returns the metadata of the next packet without building it.
// See CommandMetadata for how its timestamp relates to Build.
func (b *Builder) Describe(command, groundStationID string) CommandMetadata {
	return CommandMetadata{
		Command:         command,
		GroundStationID: groundStationID,
		SequenceCount:   b.SequenceCount(),
		APID:            b.apid,
		Timestamp:       b.clock().UTC(),
	}
}

// SequenceCount returns the count the next packet will carry.
func (b *Builder) SequenceCount() uint16 {
	if b.policy == SequenceShared {
		b.mu.Lock()
		defer b.mu.Unlock()
	}
	return b.seq
}

// APID returns the application process identifier of the builder.
func (b *Builder) APID() uint16 {
	return b.apid
}

// Policy returns the counter synchronization policy.
func (b *Builder) Policy() SequencePolicy {
	return b.policy
}

// Algorithm returns the trailer digest algorithm.
func (b *Builder) Algorithm() constants.DigestAlgorithm {
	return b.signer.Algorithm()
}

// reserve returns the current count and advances the counter.
func (b *Builder) reserve() uint16 {
	if b.policy == SequenceShared {
		b.mu.Lock()
		defer b.mu.Unlock()
	}
	n := b.seq
	b.seq = (n + 1) % constants.SequenceCountModulus
	return n
}

func unixSeconds(t time.Time) uint64 {
	s := t.Unix()
	if s < 0 {
		return 0
	}
	return uint64(s)
}
