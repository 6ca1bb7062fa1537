package ccsds_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/pzverkov/satcom-uplink/internal/constants"
	qerrors "github.com/pzverkov/satcom-uplink/internal/errors"
	"github.com/pzverkov/satcom-uplink/pkg/ccsds"
	"github.com/pzverkov/satcom-uplink/pkg/crypto"
)

// craft assembles a packet with an arbitrary header and body and a zero
// trailer. PacketLength is set to match the body.
func craft(h ccsds.PrimaryHeader, body []byte) []byte {
	h.PacketLength = uint16(len(body) + constants.DigestSize - 1)
	raw := h.AppendTo(nil)
	raw = append(raw, body...)
	return append(raw, make([]byte, constants.DigestSize)...)
}

func commandHeader() ccsds.PrimaryHeader {
	return ccsds.PrimaryHeader{
		Version:             0,
		PacketType:          1,
		SecondaryHeaderFlag: 1,
		APID:                100,
		SequenceFlags:       3,
	}
}

// body assembles a secondary header and payload with explicit length prefixes.
func body(idLen uint16, id string, cmdLen uint16, cmd string) []byte {
	b := binary.BigEndian.AppendUint64(nil, 1700000000)
	b = binary.BigEndian.AppendUint16(b, idLen)
	b = append(b, id...)
	b = binary.BigEndian.AppendUint16(b, cmdLen)
	return append(b, cmd...)
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		groundID string
		apid     int
	}{
		{"typical", "CMD: ORIENT +10", "GS-ALPHA", 42},
		{"empty command", "", "GS-ALPHA", 0},
		{"empty ground ID", "CMD: PING", "", constants.MaxAPID},
		{"unicode", "CMD: ROTATE 90°", "GS-Ωmega", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder(t, ccsds.WithAPID(tt.apid), ccsds.WithClock(fixedClock(1700000000)))
			packet := mustBuild(t, b, tt.command, tt.groundID)

			parsed, err := ccsds.Parse(packet)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if parsed.Command != tt.command {
				t.Errorf("Command = %q, want %q", parsed.Command, tt.command)
			}
			if parsed.GroundStationID != tt.groundID {
				t.Errorf("GroundStationID = %q, want %q", parsed.GroundStationID, tt.groundID)
			}
			if int(parsed.APID) != tt.apid {
				t.Errorf("APID = %d, want %d", parsed.APID, tt.apid)
			}
			if parsed.Timestamp != 1700000000 {
				t.Errorf("Timestamp = %d", parsed.Timestamp)
			}
			if parsed.SequenceCount != 0 {
				t.Errorf("SequenceCount = %d, want 0", parsed.SequenceCount)
			}
			if len(parsed.Signature) != constants.DigestSize {
				t.Errorf("Signature length = %d", len(parsed.Signature))
			}
			if !bytes.Equal(parsed.RawWithoutSignature, packet[:len(packet)-constants.DigestSize]) {
				t.Error("RawWithoutSignature is not the signed span")
			}
			if !crypto.Verify(parsed.RawWithoutSignature, parsed.Signature, testKey) {
				t.Error("signature does not verify")
			}
		})
	}
}

func TestParseReserialization(t *testing.T) {
	b := newBuilder(t, ccsds.WithAPID(513), ccsds.WithInitialSequence(9000))
	parsed, err := ccsds.Parse(mustBuild(t, b, "CMD: SAFE MODE", "GS-CHARLIE"))
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(parsed.MarshalUnsigned(), parsed.RawWithoutSignature) {
		t.Errorf("MarshalUnsigned() = %x\nwant %x", parsed.MarshalUnsigned(), parsed.RawWithoutSignature)
	}

	encoded, err := ccsds.EncodeUnsigned(parsed.Fields())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(encoded, parsed.RawWithoutSignature) {
		t.Error("EncodeUnsigned(Fields()) does not reproduce the signed span")
	}
}

func TestParseDoesNotAliasInput(t *testing.T) {
	b := newBuilder(t)
	packet := mustBuild(t, b, "CMD", "GS-ALPHA")
	parsed, err := ccsds.Parse(packet)
	if err != nil {
		t.Fatal(err)
	}
	want := append([]byte(nil), parsed.RawWithoutSignature...)

	for i := range packet {
		packet[i] = 0
	}
	if !bytes.Equal(parsed.RawWithoutSignature, want) {
		t.Error("ParsedPacket aliases the input buffer")
	}
}

func TestParseValidationKinds(t *testing.T) {
	valid := craft(commandHeader(), body(2, "GS", 3, "CMD"))

	withHeader := func(mod func(*ccsds.PrimaryHeader)) []byte {
		h := commandHeader()
		mod(&h)
		return craft(h, body(2, "GS", 3, "CMD"))
	}

	tests := []struct {
		name string
		raw  []byte
		kind ccsds.ValidationKind
	}{
		{"empty", nil, ccsds.KindTooShort},
		{"one short of minimum", make([]byte, constants.MinPacketSize-1), ccsds.KindTooShort},
		{"version 1", withHeader(func(h *ccsds.PrimaryHeader) { h.Version = 1 }), ccsds.KindUnsupportedHeader},
		{"telemetry type", withHeader(func(h *ccsds.PrimaryHeader) { h.PacketType = 0 }), ccsds.KindUnsupportedHeader},
		{"no secondary header", withHeader(func(h *ccsds.PrimaryHeader) { h.SecondaryHeaderFlag = 0 }), ccsds.KindUnsupportedHeader},
		{"first segment", withHeader(func(h *ccsds.PrimaryHeader) { h.SequenceFlags = 1 }), ccsds.KindFragmented},
		{"continuation segment", withHeader(func(h *ccsds.PrimaryHeader) { h.SequenceFlags = 0 }), ccsds.KindFragmented},
		{"extra byte", append(append([]byte(nil), valid...), 0), ccsds.KindLengthMismatch},
		{"missing byte", valid[:len(valid)-1], ccsds.KindLengthMismatch},
		{"minimum length no body", craft(commandHeader(), nil), ccsds.KindSecondaryHeaderTruncated},
		{"nine byte secondary header", craft(commandHeader(), make([]byte, 9)), ccsds.KindSecondaryHeaderTruncated},
		{"ground ID runs past span", craft(commandHeader(), body(100, "GS", 0, "")), ccsds.KindGroundStationIncomplete},
		{"ground ID not UTF-8", craft(commandHeader(), body(2, "\xff\xfe", 0, "")), ccsds.KindGroundStationEncoding},
		{"no command length", craft(commandHeader(), body(2, "GS", 0, "")[:12]), ccsds.KindCommandLengthMissing},
		{"one byte of command length", craft(commandHeader(), body(2, "GS", 0, "")[:13]), ccsds.KindCommandLengthMissing},
		{"command runs past span", craft(commandHeader(), body(2, "GS", 50, "CMD")), ccsds.KindCommandTruncated},
		{"command not UTF-8", craft(commandHeader(), body(2, "GS", 2, "\xc3\x28")), ccsds.KindCommandEncoding},
		{"bytes after command", craft(commandHeader(), body(2, "GS", 1, "CMD")), ccsds.KindTrailingData},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := ccsds.Parse(tt.raw)
			if err == nil {
				t.Fatalf("Parse() accepted malformed packet: %+v", parsed)
			}
			if parsed != nil {
				t.Error("Parse() returned a packet together with an error")
			}

			var ve *ccsds.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("error %T is not a ValidationError", err)
			}
			if ve.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v (reason %q)", ve.Kind, tt.kind, ve.Reason)
			}
			if ve.Reason == "" {
				t.Error("empty reason")
			}
		})
	}

	if _, err := ccsds.Parse(valid); err != nil {
		t.Errorf("crafted baseline rejected: %v", err)
	}
}

func TestParseReasons(t *testing.T) {
	tests := []struct {
		name   string
		raw    []byte
		reason string
	}{
		{"too short", make([]byte, 24), "packet too short to contain CCSDS header and signature"},
		{"length", append(craft(commandHeader(), body(2, "GS", 3, "CMD")), 1, 2), "packet length mismatch: expected 55 bytes, received 57"},
	}
	for _, tt := range tests {
		_, err := ccsds.Parse(tt.raw)
		var ve *ccsds.ValidationError
		if !errors.As(err, &ve) || ve.Reason != tt.reason {
			t.Errorf("%s: reason = %v, want %q", tt.name, err, tt.reason)
		}
	}
}

func TestParseRandomBytes(t *testing.T) {
	for i := 0; i < 100; i++ {
		raw, err := crypto.SecureRandomBytes(constants.MalformedPacketSize)
		if err != nil {
			t.Fatal(err)
		}
		_, err = ccsds.Parse(raw)
		if !errors.Is(err, qerrors.ErrPacketTooShort) {
			t.Fatalf("Parse(24 random bytes) = %v, want too short", err)
		}
	}
}

func TestParseFragmentedBuiltPacket(t *testing.T) {
	b := newBuilder(t)
	packet := mustBuild(t, b, "CMD: ORIENT +10", "GS-ALPHA")
	packet[2] &^= 0xC0

	_, err := ccsds.Parse(packet)
	if !errors.Is(err, qerrors.ErrFragmentedPacket) {
		t.Fatalf("Parse() = %v, want fragmented", err)
	}
	if err.Error() != "packet validation: fragmented packets are not supported" {
		t.Errorf("Error() = %q", err.Error())
	}
}

// TestTamperDetection flips every bit of a built packet in turn. Each flip must
// produce a structural failure or a tag that no longer verifies.
func TestTamperDetection(t *testing.T) {
	b := newBuilder(t, ccsds.WithAPID(101))
	packet := mustBuild(t, b, "CMD: FIRE_THRUSTER", "GS-ALPHA")

	for i := range packet {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), packet...)
			tampered[i] ^= 1 << bit

			parsed, err := ccsds.Parse(tampered)
			if err != nil {
				continue
			}
			if crypto.Verify(parsed.RawWithoutSignature, parsed.Signature, testKey) {
				t.Fatalf("flip of byte %d bit %d was accepted", i, bit)
			}
		}
	}
}

func TestParseFinalByteTamper(t *testing.T) {
	b := newBuilder(t, ccsds.WithAPID(101))
	packet := mustBuild(t, b, "CMD: FIRE_THRUSTER", "GS-ALPHA")
	packet[len(packet)-1] ^= 0xFF

	parsed, err := ccsds.Parse(packet)
	if err != nil {
		t.Fatalf("trailer tamper should still parse: %v", err)
	}
	if crypto.Verify(parsed.RawWithoutSignature, parsed.Signature, testKey) {
		t.Error("tampered trailer verified")
	}
}

func TestPrimaryHeaderRoundTrip(t *testing.T) {
	h := ccsds.PrimaryHeader{
		Version:             5,
		PacketType:          0,
		SecondaryHeaderFlag: 1,
		APID:                0x5A5,
		SequenceFlags:       2,
		SequenceCount:       0x2AAA,
		PacketLength:        0xBEEF,
	}
	raw := h.Bytes()
	if len(raw) != constants.PrimaryHeaderSize {
		t.Fatalf("Bytes() length = %d", len(raw))
	}
	if got := ccsds.DecodePrimaryHeader(raw); got != h {
		t.Errorf("DecodePrimaryHeader(Bytes()) = %+v, want %+v", got, h)
	}
	if h.IsCommand() || h.IsStandalone() {
		t.Error("non-command header reported as supported")
	}
}

func BenchmarkParse(b *testing.B) {
	builder, _ := ccsds.NewBuilder(testKey)
	packet, _ := builder.Build("CMD: ORIENT +10", "GS-ALPHA")
	b.SetBytes(int64(len(packet)))
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := ccsds.Parse(packet); err != nil {
			b.Fatal(err)
		}
	}
}
