// Package satcomuplink implements an authenticated command uplink for a
// satellite bus using CCSDS space packets with an HMAC trailer.
//
// A ground station signs each telecommand with a pre-shared key. The
// satellite bus parses every received datagram, checks the claimed ground
// station against an allow-list and verifies the trailer before a command
// may execute. Malformed, unauthorized and spoofed packets are rejected and
// reported as security events.
//
// # Quick Start
//
// Satellite side:
//
//	import (
//		"github.com/pzverkov/satcom-uplink/pkg/bus"
//		"github.com/pzverkov/satcom-uplink/pkg/firewall"
//	)
//
//	fw, _ := firewall.New(firewall.Config{
//		Key:                   key,
//		AllowedGroundStations: []string{"GS-ALPHA"},
//	})
//	b, _ := bus.New(bus.Config{Firewall: fw})
//	_ = b.ListenAndServe(ctx)
//
// Ground side:
//
//	import "github.com/pzverkov/satcom-uplink/pkg/ground"
//
//	station, _ := ground.New(ground.Config{Key: key, GroundStationID: "GS-ALPHA"})
//	meta, _ := station.Send(ctx, "DEPLOY_SOLAR_PANELS")
//
// # Package Structure
//
//   - pkg/crypto: HMAC-SHA256 / HMAC-SHA3-256 signing, key checks, self tests
//   - pkg/ccsds: Packet builder and parser (primary header, secondary header, trailer)
//   - pkg/firewall: Allow-list and signature verdicts for received packets
//   - pkg/bus: UDP listener, rate limiting and command dispatch
//   - pkg/ground: Ground station sender
//   - pkg/rogue: Spoofed, malformed and replayed traffic, including pcap replay
//   - pkg/metrics: Logging, counters, Prometheus export, health and tracing
//   - internal/config: YAML and environment configuration
//   - internal/telemetry: Console and rotating file log sinks
//   - internal/constants: Wire sizes, header values and defaults
//   - internal/errors: Sentinel and typed errors
//
// # Packet Layout
//
//	+----------------------+---------------------------+------------------+---------+
//	| primary header (6 B) | timestamp (8 B)           | command len (2 B)| HMAC    |
//	| ver|type|sh|APID     | ground ID len (2 B) + ID  | command          | (32 B)  |
//	| seq flags|count      |                           |                  |         |
//	| data length          |                           |                  |         |
//	+----------------------+---------------------------+------------------+---------+
//
// All integers are big-endian. The HMAC covers every preceding byte.
//
// # Testing
//
//	go test ./...                                # All tests
//	go test -fuzz=FuzzParse ./test/fuzz/         # Fuzz tests
//	go test -run TestKAT ./pkg/crypto            # Known Answer Tests
//	go test -bench=. ./test/benchmark            # Benchmarks
//	go test -tags otel ./pkg/metrics             # OpenTelemetry adapter
//
// # Security Properties
//
//   - Integrity and authenticity of each packet under the shared key
//   - Constant-time tag comparison
//   - No confidentiality: commands travel in clear text
//   - No replay protection: a captured packet verifies again
package satcomuplink
