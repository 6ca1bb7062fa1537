// Package ccsds builds and parses authenticated CCSDS command packets.
//
// Wire Format:
//
// All integers are big-endian.
//
//	+----------------+------------------------------+-------------------+---------+
//	| Primary Header | Secondary Header             | Payload           | Trailer |
//	| 6B             | Timestamp | IDLen | ID       | CmdLen | Command  | HMAC    |
//	|                | 8B        | 2B    | IDLen B  | 2B     | CmdLen B | 32B     |
//	+----------------+------------------------------+-------------------+---------+
//
// Primary Header Format:
//
//	word 1: version (3) | type (1) | secondary flag (1) | APID (11)
//	word 2: sequence flags (2) | sequence count (14)
//	word 3: packet data length
//
// The packet data length follows the CCSDS convention: the number of bytes after
// the primary header minus one, trailer included. The trailer is the HMAC of
// every byte that precedes it.
//
// Parsing validates structure only. Authenticity is checked by the firewall,
// which verifies the trailer over ParsedPacket.RawWithoutSignature.
package ccsds

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/pzverkov/satcom-uplink/internal/constants"
)

// PrimaryHeader is the unpacked CCSDS primary header.
type PrimaryHeader struct {
	Version             uint8
	PacketType          uint8
	SecondaryHeaderFlag uint8
	APID                uint16
	SequenceFlags       uint8
	SequenceCount       uint16
	PacketLength        uint16
}

// commandHeader returns the header every packet built here carries.
func commandHeader(apid, seq, packetLength uint16) PrimaryHeader {
	return PrimaryHeader{
		Version:             constants.PacketVersion,
		PacketType:          constants.PacketTypeCommand,
		SecondaryHeaderFlag: constants.SecondaryHeaderPresent,
		APID:                apid,
		SequenceFlags:       constants.SequenceFlagsStandalone,
		SequenceCount:       seq,
		PacketLength:        packetLength,
	}
}

// AppendTo packs the header into three big-endian words and appends them to b.
// Fields wider than their bit allocation are masked.
func (h PrimaryHeader) AppendTo(b []byte) []byte {
	w1 := uint16(h.Version&constants.VersionMask)<<constants.VersionShift |
		uint16(h.PacketType&0x1)<<constants.PacketTypeShift |
		uint16(h.SecondaryHeaderFlag&0x1)<<constants.SecondaryFlagShift |
		h.APID&constants.APIDMask
	w2 := uint16(h.SequenceFlags&constants.SequenceFlagsMask)<<constants.SequenceFlagsShift |
		h.SequenceCount&constants.SequenceCountMask

	b = binary.BigEndian.AppendUint16(b, w1)
	b = binary.BigEndian.AppendUint16(b, w2)
	return binary.BigEndian.AppendUint16(b, h.PacketLength)
}

// Bytes returns the 6-byte encoding of the header.
func (h PrimaryHeader) Bytes() []byte {
	return h.AppendTo(make([]byte, 0, constants.PrimaryHeaderSize))
}

// DecodePrimaryHeader unpacks the first six bytes of b.
// The caller must ensure len(b) >= PrimaryHeaderSize.
func DecodePrimaryHeader(b []byte) PrimaryHeader {
	w1 := binary.BigEndian.Uint16(b[0:2])
	w2 := binary.BigEndian.Uint16(b[2:4])
	return PrimaryHeader{
		Version:             uint8(w1>>constants.VersionShift) & constants.VersionMask,
		PacketType:          uint8(w1>>constants.PacketTypeShift) & 0x1,
		SecondaryHeaderFlag: uint8(w1>>constants.SecondaryFlagShift) & 0x1,
		APID:                w1 & constants.APIDMask,
		SequenceFlags:       uint8(w2>>constants.SequenceFlagsShift) & constants.SequenceFlagsMask,
		SequenceCount:       w2 & constants.SequenceCountMask,
		PacketLength:        binary.BigEndian.Uint16(b[4:6]),
	}
}

// IsCommand reports whether the header carries the only supported combination
// of version, packet type and secondary header flag.
func (h PrimaryHeader) IsCommand() bool {
	return h.Version == constants.PacketVersion &&
		h.PacketType == constants.PacketTypeCommand &&
		h.SecondaryHeaderFlag == constants.SecondaryHeaderPresent
}

// IsStandalone reports whether the packet is unsegmented.
func (h PrimaryHeader) IsStandalone() bool {
	return h.SequenceFlags == constants.SequenceFlagsStandalone
}

// TotalLength returns the packet size in bytes implied by PacketLength.
func (h PrimaryHeader) TotalLength() int {
	return int(h.PacketLength) + 1 + constants.PrimaryHeaderSize
}

// Fields are the signed contents of a command packet.
type Fields struct {
	APID            uint16
	SequenceCount   uint16
	Timestamp       uint64 // seconds since the Unix epoch
	GroundStationID string
	Command         string
}

// validate checks the fields against the limits of the wire format.
func (f *Fields) validate() error {
	if f.APID > constants.MaxAPID {
		return errInvalidAPID
	}
	if int(f.SequenceCount) >= constants.SequenceCountModulus {
		return errInvalidSequenceCount
	}
	if len(f.GroundStationID) > constants.MaxFieldLength || len(f.Command) > constants.MaxFieldLength {
		return errFieldTooLong
	}
	if dataLength(f) > constants.MaxPacketDataLength {
		return errPacketTooLarge
	}
	if !utf8.ValidString(f.GroundStationID) || !utf8.ValidString(f.Command) {
		return errInvalidUTF8
	}
	return nil
}

// dataLength returns the packet data length field for f.
func dataLength(f *Fields) int {
	return constants.SecondaryHeaderFixedSize + len(f.GroundStationID) +
		constants.LengthPrefixSize + len(f.Command) +
		constants.DigestSize - 1
}

// EncodeUnsigned serializes f into the unsigned packet: primary header,
// secondary header and payload. The trailer is computed over the result.
func EncodeUnsigned(f Fields) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	return appendUnsigned(nil, &f), nil
}

// appendUnsigned writes the unsigned packet for f to b. f must be valid.
func appendUnsigned(b []byte, f *Fields) []byte {
	n := dataLength(f)
	if b == nil {
		b = make([]byte, 0, n+1+constants.PrimaryHeaderSize)
	}

	b = commandHeader(f.APID, f.SequenceCount, uint16(n)).AppendTo(b)

	// Secondary header
	b = binary.BigEndian.AppendUint64(b, f.Timestamp)
	b = binary.BigEndian.AppendUint16(b, uint16(len(f.GroundStationID)))
	b = append(b, f.GroundStationID...)

	// Payload
	b = binary.BigEndian.AppendUint16(b, uint16(len(f.Command)))
	b = append(b, f.Command...)

	return b
}
