// Package constants defines wire-format parameters and protocol constants for the
// authenticated CCSDS command uplink.
//
// The packet layout follows the CCSDS Space Packet Protocol (CCSDS 133.0-B)
// primary header, extended with a simulator-specific secondary header and an
// HMAC trailer.
package constants

// Protocol identification
const (
	// ProtocolName identifies the uplink protocol in logs and traces
	ProtocolName = "CCSDS-HMAC-UPLINK-v1"
)

// CCSDS Primary Header fields (CCSDS 133.0-B-2, section 4.1.3)
const (
	// PrimaryHeaderSize is the size of the CCSDS primary header in bytes
	PrimaryHeaderSize = 6

	// PacketVersion is the only supported packet version number (3 bits)
	PacketVersion = 0

	// PacketTypeCommand marks a telecommand packet (1 bit)
	PacketTypeCommand = 1

	// SecondaryHeaderPresent is the required secondary header flag (1 bit)
	SecondaryHeaderPresent = 1

	// SequenceFlagsStandalone marks an unsegmented packet (2 bits)
	SequenceFlagsStandalone = 3

	// MaxAPID is the largest 11-bit application process identifier
	MaxAPID = 0x7FF

	// SequenceCountModulus is the wrap point of the 14-bit sequence counter
	SequenceCountModulus = 1 << 14

	// MaxPacketDataLength is the largest value of the 16-bit packet data length field
	MaxPacketDataLength = 0xFFFF

	// MaxPacketSize is the longest packet the primary header can describe
	MaxPacketSize = PrimaryHeaderSize + MaxPacketDataLength + 1
)

// Bit layout of the first two primary header words
const (
	VersionShift       = 13
	VersionMask        = 0x7
	PacketTypeShift    = 12
	SecondaryFlagShift = 11
	APIDMask           = 0x7FF

	SequenceFlagsShift = 14
	SequenceFlagsMask  = 0x3
	SequenceCountMask  = 0x3FFF
)

// Secondary header and payload fields
const (
	// TimestampSize is the size of the big-endian seconds-since-epoch timestamp
	TimestampSize = 8

	// LengthPrefixSize is the size of the ground station ID and command length prefixes
	LengthPrefixSize = 2

	// SecondaryHeaderFixedSize is the timestamp plus the ground station ID length
	SecondaryHeaderFixedSize = TimestampSize + LengthPrefixSize

	// MaxFieldLength is the largest ground station ID or command that fits a length prefix
	MaxFieldLength = 0xFFFF
)

// Authentication trailer
const (
	// DigestSize is the size of the HMAC trailer in bytes (256-bit digest)
	DigestSize = 32

	// MinPacketSize is the shortest byte string the parser will examine
	MinPacketSize = PrimaryHeaderSize + DigestSize

	// FIPSMinKeySize is the minimum HMAC key length accepted in FIPS builds (112 bits)
	FIPSMinKeySize = 14
)

// Defaults shared by the bus, ground station and CLI
const (
	// DefaultAPID is the application ID used when none is configured
	DefaultAPID = 100

	// DefaultGroundStationID is the identity claimed by the reference ground station
	DefaultGroundStationID = "GS-ALPHA"

	// DefaultHost is the bus bind / ground station target host
	DefaultHost = "127.0.0.1"

	// DefaultPort is the bus UDP port
	DefaultPort = 5000

	// MaxDatagramSize is the default receive buffer size of the bus listener.
	// It holds any packet a builder can produce.
	MaxDatagramSize = MaxPacketSize

	// MalformedPacketSize is the length of the junk datagram sent by the rogue transmitter
	MalformedPacketSize = 24

	// KeyEnvVar is the environment variable holding the shared HMAC key
	KeyEnvVar = "SATCOM_KEY"

	// DemoKey is the non-secret fallback key for local demos
	DemoKey = "CHANGE_ME_DEMO_KEY"
)

// DigestAlgorithm identifies the keyed digest used for the packet trailer.
type DigestAlgorithm uint16

const (
	// DigestHMACSHA256 uses HMAC with SHA-256
	DigestHMACSHA256 DigestAlgorithm = 0x0001

	// DigestHMACSHA3256 uses HMAC with SHA3-256
	DigestHMACSHA3256 DigestAlgorithm = 0x0002
)

// String returns a human-readable name for the digest algorithm
func (d DigestAlgorithm) String() string {
	switch d {
	case DigestHMACSHA256:
		return "HMAC-SHA256"
	case DigestHMACSHA3256:
		return "HMAC-SHA3-256"
	default:
		return "Unknown"
	}
}

// IsSupported returns true if the digest algorithm is supported
func (d DigestAlgorithm) IsSupported() bool {
	return d == DigestHMACSHA256 || d == DigestHMACSHA3256
}

// ParseDigestAlgorithm maps a configuration name to a digest algorithm.
// Returns 0 for unknown names.
func ParseDigestAlgorithm(name string) DigestAlgorithm {
	switch name {
	case "", "hmac-sha256", "HMAC-SHA256", "sha256":
		return DigestHMACSHA256
	case "hmac-sha3-256", "HMAC-SHA3-256", "sha3-256":
		return DigestHMACSHA3256
	default:
		return 0
	}
}
