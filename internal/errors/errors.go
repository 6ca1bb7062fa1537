// Package errors defines custom error types for the CCSDS command uplink.
// These errors carry enough detail to tell which validation step rejected a
// packet while never including key material or computed tags.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for digest operations
var (
	// ErrUnsupportedDigest indicates an unknown digest algorithm was requested
	ErrUnsupportedDigest = errors.New("crypto: unsupported digest algorithm")

	// ErrWeakKey indicates a key shorter than the FIPS minimum in a FIPS build
	ErrWeakKey = errors.New("crypto: HMAC key too short")

	// ErrSelfTestFailed indicates a known-answer self test failed
	ErrSelfTestFailed = errors.New("crypto: self test failed")
)

// Sentinel errors for packet construction
var (
	// ErrInvalidAPID indicates an APID outside 0..2047
	ErrInvalidAPID = errors.New("ccsds: APID out of range")

	// ErrInvalidSequenceCount indicates a sequence count outside 0..16383
	ErrInvalidSequenceCount = errors.New("ccsds: sequence count out of range")

	// ErrFieldTooLong indicates a ground station ID or command exceeding 65535 bytes
	ErrFieldTooLong = errors.New("ccsds: field exceeds length prefix")

	// ErrPacketTooLarge indicates the packet data length does not fit 16 bits
	ErrPacketTooLarge = errors.New("ccsds: packet exceeds maximum data length")

	// ErrInvalidUTF8 indicates a string field is not valid UTF-8
	ErrInvalidUTF8 = errors.New("ccsds: field is not valid UTF-8")
)

// Sentinel errors for packet validation, one per validation step
var (
	ErrPacketTooShort          = errors.New("ccsds: packet too short")
	ErrUnsupportedHeader       = errors.New("ccsds: unsupported header values")
	ErrFragmentedPacket        = errors.New("ccsds: fragmented packet")
	ErrLengthMismatch          = errors.New("ccsds: packet length mismatch")
	ErrSecondaryHeaderMissing  = errors.New("ccsds: secondary header truncated")
	ErrGroundStationIncomplete = errors.New("ccsds: ground station identifier incomplete")
	ErrGroundStationEncoding   = errors.New("ccsds: ground station identifier encoding")
	ErrCommandLengthMissing    = errors.New("ccsds: command length missing")
	ErrCommandTruncated        = errors.New("ccsds: command truncated")
	ErrCommandEncoding         = errors.New("ccsds: command encoding")
	ErrTrailingData            = errors.New("ccsds: trailing data after command")
)

// Sentinel errors for configuration and secrets
var (
	// ErrKeyRequired indicates no HMAC key was supplied and demo fallback is disabled
	ErrKeyRequired = errors.New("config: HMAC key not provided")

	// ErrInvalidConfig indicates a configuration value is out of range
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Sentinel errors for the bus runtime
var (
	// ErrNoFirewall indicates a bus was configured without a firewall
	ErrNoFirewall = errors.New("bus: firewall is required")

	// ErrDatagramOversize indicates a datagram longer than the bus receive buffer
	ErrDatagramOversize = errors.New("bus: datagram exceeds receive buffer")
)

// ValidationKind identifies the validation step that rejected a packet.
type ValidationKind int

// Validation kinds, in the order the parser checks them.
const (
	KindTooShort ValidationKind = iota + 1
	KindUnsupportedHeader
	KindFragmented
	KindLengthMismatch
	KindSecondaryHeaderTruncated
	KindGroundStationIncomplete
	KindGroundStationEncoding
	KindCommandLengthMissing
	KindCommandTruncated
	KindCommandEncoding
	KindTrailingData
)

var kindSentinels = map[ValidationKind]error{
	KindTooShort:                 ErrPacketTooShort,
	KindUnsupportedHeader:        ErrUnsupportedHeader,
	KindFragmented:               ErrFragmentedPacket,
	KindLengthMismatch:           ErrLengthMismatch,
	KindSecondaryHeaderTruncated: ErrSecondaryHeaderMissing,
	KindGroundStationIncomplete:  ErrGroundStationIncomplete,
	KindGroundStationEncoding:    ErrGroundStationEncoding,
	KindCommandLengthMissing:     ErrCommandLengthMissing,
	KindCommandTruncated:         ErrCommandTruncated,
	KindCommandEncoding:          ErrCommandEncoding,
	KindTrailingData:             ErrTrailingData,
}

var kindNames = [...]string{
	KindTooShort:                 "too_short",
	KindUnsupportedHeader:        "unsupported_header",
	KindFragmented:               "fragmented",
	KindLengthMismatch:           "length_mismatch",
	KindSecondaryHeaderTruncated: "secondary_header_truncated",
	KindGroundStationIncomplete:  "ground_station_incomplete",
	KindGroundStationEncoding:    "ground_station_encoding",
	KindCommandLengthMissing:     "command_length_missing",
	KindCommandTruncated:         "command_truncated",
	KindCommandEncoding:          "command_encoding",
	KindTrailingData:             "trailing_data",
}

// String returns the snake_case name used in logs and the kind metric label.
func (k ValidationKind) String() string {
	if k <= 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// ValidationError is the single error kind returned when a packet fails to decode.
type ValidationError struct {
	Kind   ValidationKind // Validation step that failed
	Reason string         // Human-readable description
}

func (e *ValidationError) Error() string {
	return "packet validation: " + e.Reason
}

// Unwrap returns the sentinel for the failing step so errors.Is works per kind.
func (e *ValidationError) Unwrap() error {
	return kindSentinels[e.Kind]
}

// NewValidationError creates a new ValidationError
func NewValidationError(kind ValidationKind, reason string) *ValidationError {
	return &ValidationError{Kind: kind, Reason: reason}
}

// Validationf creates a ValidationError with a formatted reason
func Validationf(kind ValidationKind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// CryptoError wraps a cryptographic error with additional context
type CryptoError struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// NewCryptoError creates a new CryptoError
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// ProtocolError wraps a protocol error with additional context
type ProtocolError struct {
	Phase string // Protocol phase (e.g., "build", "config")
	Err   error  // Underlying error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol %s: %v", e.Phase, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError creates a new ProtocolError
func NewProtocolError(phase string, err error) *ProtocolError {
	return &ProtocolError{Phase: phase, Err: err}
}

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
