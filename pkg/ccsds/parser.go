package ccsds

import (
	"encoding/binary"
	"time"
	"unicode/utf8"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	qerrors "github.com/pzverkov/satcom-uplink/internal/errors"
)

// ValidationError is returned by Parse for every structural failure.
type ValidationError = qerrors.ValidationError

// ParsedPacket is the structured view of a decoded command packet.
// It owns its byte slices; they do not alias the buffer passed to Parse.
type ParsedPacket struct {
	Command         string
	GroundStationID string
	Timestamp       uint64 // seconds since the Unix epoch
	SequenceCount   uint16
	APID            uint16

	// RawWithoutSignature is every byte except the trailer: the exact span the
	// tag was computed over.
	RawWithoutSignature []byte

	// Signature is the trailing authentication tag.
	Signature []byte
}

// Time returns the packet timestamp in UTC.
func (p *ParsedPacket) Time() time.Time {
	return time.Unix(int64(p.Timestamp), 0).UTC()
}

// Fields returns the signed contents of the packet.
func (p *ParsedPacket) Fields() Fields {
	return Fields{
		APID:            p.APID,
		SequenceCount:   p.SequenceCount,
		Timestamp:       p.Timestamp,
		GroundStationID: p.GroundStationID,
		Command:         p.Command,
	}
}

// MarshalUnsigned re-serializes the header fields and payload of the packet.
// The result is byte-for-byte equal to RawWithoutSignature.
func (p *ParsedPacket) MarshalUnsigned() []byte {
	f := p.Fields()
	return appendUnsigned(nil, &f)
}

// Parse decodes and structurally validates a received packet.
//
// Validation fails fast in this order: minimum length, header values, sequence
// flags, packet data length, secondary header, ground station ID, command
// length, command bytes, trailing data. Every failure is a *ValidationError
// whose Kind names the failing step; no packet is returned with it.
//
// The trailer is split off but not verified.
func Parse(raw []byte) (*ParsedPacket, error) {
	if len(raw) < constants.MinPacketSize {
		return nil, qerrors.NewValidationError(qerrors.KindTooShort,
			"packet too short to contain CCSDS header and signature")
	}

	hdr := DecodePrimaryHeader(raw)
	if !hdr.IsCommand() {
		return nil, qerrors.NewValidationError(qerrors.KindUnsupportedHeader,
			"unsupported CCSDS header values")
	}
	if !hdr.IsStandalone() {
		return nil, qerrors.NewValidationError(qerrors.KindFragmented,
			"fragmented packets are not supported")
	}
	if expected := hdr.TotalLength(); expected != len(raw) {
		return nil, qerrors.Validationf(qerrors.KindLengthMismatch,
			"packet length mismatch: expected %d bytes, received %d", expected, len(raw))
	}

	signed := len(raw) - constants.DigestSize
	body := raw[constants.PrimaryHeaderSize:signed]

	if len(body) < constants.SecondaryHeaderFixedSize {
		return nil, qerrors.NewValidationError(qerrors.KindSecondaryHeaderTruncated,
			"secondary header missing or truncated")
	}
	timestamp := binary.BigEndian.Uint64(body[0:constants.TimestampSize])
	idLen := int(binary.BigEndian.Uint16(body[constants.TimestampSize:constants.SecondaryHeaderFixedSize]))

	idEnd := constants.SecondaryHeaderFixedSize + idLen
	if idEnd > len(body) {
		return nil, qerrors.NewValidationError(qerrors.KindGroundStationIncomplete,
			"ground station identifier is incomplete")
	}
	id := body[constants.SecondaryHeaderFixedSize:idEnd]
	if !utf8.Valid(id) {
		return nil, qerrors.NewValidationError(qerrors.KindGroundStationEncoding,
			"ground station identifier is not valid UTF-8")
	}

	if idEnd+constants.LengthPrefixSize > len(body) {
		return nil, qerrors.NewValidationError(qerrors.KindCommandLengthMissing,
			"payload command length missing")
	}
	cmdLen := int(binary.BigEndian.Uint16(body[idEnd : idEnd+constants.LengthPrefixSize]))
	cmdStart := idEnd + constants.LengthPrefixSize
	cmdEnd := cmdStart + cmdLen
	if cmdEnd > len(body) {
		return nil, qerrors.NewValidationError(qerrors.KindCommandTruncated,
			"payload command bytes truncated")
	}
	cmd := body[cmdStart:cmdEnd]
	if !utf8.Valid(cmd) {
		return nil, qerrors.NewValidationError(qerrors.KindCommandEncoding,
			"payload command is not valid UTF-8")
	}
	if cmdEnd != len(body) {
		return nil, qerrors.Validationf(qerrors.KindTrailingData,
			"payload has %d unexpected bytes after command", len(body)-cmdEnd)
	}

	owned := make([]byte, len(raw))
	copy(owned, raw)

	return &ParsedPacket{
		Command:             string(cmd),
		GroundStationID:     string(id),
		Timestamp:           timestamp,
		SequenceCount:       hdr.SequenceCount,
		APID:                hdr.APID,
		RawWithoutSignature: owned[:signed:signed],
		Signature:           owned[signed:],
	}, nil
}

// ValidationKind identifies the validation step that rejected a packet.
type ValidationKind = qerrors.ValidationKind

// Validation kinds, in the order Parse checks them.
const (
	KindTooShort                 = qerrors.KindTooShort
	KindUnsupportedHeader        = qerrors.KindUnsupportedHeader
	KindFragmented               = qerrors.KindFragmented
	KindLengthMismatch           = qerrors.KindLengthMismatch
	KindSecondaryHeaderTruncated = qerrors.KindSecondaryHeaderTruncated
	KindGroundStationIncomplete  = qerrors.KindGroundStationIncomplete
	KindGroundStationEncoding    = qerrors.KindGroundStationEncoding
	KindCommandLengthMissing     = qerrors.KindCommandLengthMissing
	KindCommandTruncated         = qerrors.KindCommandTruncated
	KindCommandEncoding          = qerrors.KindCommandEncoding
	KindTrailingData             = qerrors.KindTrailingData
)
