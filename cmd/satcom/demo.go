package main

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pzverkov/satcom-uplink/pkg/bus"
	"github.com/pzverkov/satcom-uplink/pkg/ccsds"
	"github.com/pzverkov/satcom-uplink/pkg/crypto"
	"github.com/pzverkov/satcom-uplink/pkg/firewall"
	"github.com/pzverkov/satcom-uplink/pkg/ground"
	"github.com/pzverkov/satcom-uplink/pkg/rogue"
)

const (
	demoCommand      = "DEPLOY_SOLAR_PANELS"
	demoIntruderID   = "GS-INTRUDER"
	demoVerdictWait  = 2 * time.Second
	demoBanner       = "SATCOM Uplink Demo"
	demoBannerDetail = "CCSDS telecommand + HMAC trailer"
)

// demoObserver forwards firewall events so the demo can print each verdict.
type demoObserver struct {
	events chan firewall.Event
}

func (o demoObserver) OnDecodeFailure(e firewall.Event) { o.events <- e }
func (o demoObserver) OnUnauthorized(e firewall.Event)  { o.events <- e }
func (o demoObserver) OnAuthFailure(e firewall.Event)   { o.events <- e }
func (o demoObserver) OnAccepted(e firewall.Event)      { o.events <- e }

type demoStep struct {
	title string
	want  firewall.Verdict
	send  func(ctx context.Context) error
}

func newDemoCmd(a *app) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the bus and every transmitter in one process",
		Long: `Start an in-process satellite bus on a loopback port, then send it a
legitimate command, a spoofed command, random bytes, a command from a ground
station off the allow-list and a replay of the captured legitimate packet.
Each firewall verdict is printed as it happens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runDemo(cmd.Context(), key)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "shared HMAC key (default $SATCOM_KEY or the demo key)")
	return cmd
}

func (a *app) runDemo(ctx context.Context, keyFlag string) error {
	fmt.Fprintln(a.out, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintf(a.out, "║      %-53s║\n", demoBanner)
	fmt.Fprintf(a.out, "║      %-53s║\n", demoBannerDetail)
	fmt.Fprintln(a.out, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(a.out)

	key, err := a.key(keyFlag)
	if err != nil {
		return err
	}
	defer crypto.Zeroize(key)

	events := make(chan firewall.Event, 16)
	fw, err := a.newFirewall(key, demoObserver{events: events})
	if err != nil {
		return err
	}

	// Executed packets are handed back to this goroutine, which owns a.out.
	captured := make(chan *ccsds.ParsedPacket, 16)
	handler := bus.HandlerFunc(func(_ context.Context, p *ccsds.ParsedPacket, _ string) error {
		captured <- p
		return nil
	})

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("demo: bind loopback: %w", err)
	}
	defer conn.Close()

	b, err := a.newBus(fw, handler)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- b.Serve(ctx, conn) }()

	port := conn.LocalAddr().(*net.UDPAddr).Port
	fmt.Fprintf(a.out, "✓ Satellite bus listening on %s\n", conn.LocalAddr())
	fmt.Fprintf(a.out, "  Allowed ground stations: %s\n\n", strings.Join(fw.AllowedGroundStations(), ", "))

	groundID := a.cfg.Uplink.GroundStationID
	station, err := a.demoStation(key, groundID, port)
	if err != nil {
		return err
	}
	intruder, err := a.demoStation(key, demoIntruderID, port)
	if err != nil {
		return err
	}
	mallory := rogue.New("127.0.0.1", port, a.logger)

	var lastPacket []byte
	steps := []demoStep{
		{
			title: fmt.Sprintf("Legitimate %s from %s", demoCommand, groundID),
			want:  firewall.VerdictAccepted,
			send: func(ctx context.Context) error {
				_, err := station.Send(ctx, demoCommand)
				return err
			},
		},
		{
			title: fmt.Sprintf("Spoofed %s signed with a guessed key", demoCommand),
			want:  firewall.VerdictAuthFailed,
			send: func(ctx context.Context) error {
				_, err := mallory.Spoof(ctx, demoCommand, groundID)
				return err
			},
		},
		{
			title: "Random bytes",
			want:  firewall.VerdictMalformed,
			send: func(ctx context.Context) error {
				_, err := mallory.SendMalformed(ctx)
				return err
			},
		},
		{
			title: fmt.Sprintf("Valid signature from %s (not on the allow-list)", demoIntruderID),
			want:  firewall.VerdictUnauthorized,
			send: func(ctx context.Context) error {
				_, err := intruder.Send(ctx, demoCommand)
				return err
			},
		},
		{
			title: "Replay of the captured legitimate packet",
			want:  firewall.VerdictAccepted,
			send: func(ctx context.Context) error {
				return mallory.Replay(ctx, lastPacket)
			},
		},
	}

	mismatches := 0
	for i, step := range steps {
		fmt.Fprintf(a.out, "[%d] %s\n", i+1, step.title)
		if err := step.send(ctx); err != nil {
			return err
		}

		select {
		case e := <-events:
			mark := "✓"
			if e.Verdict != step.want {
				mark = "✗"
				mismatches++
			}
			fmt.Fprintf(a.out, "    %s %s: %s\n", mark, strings.ToUpper(e.Verdict.String()), e.Reason)
		case <-time.After(demoVerdictWait):
			return fmt.Errorf("demo: no verdict for step %d", i+1)
		}

		if step.want == firewall.VerdictAccepted {
			select {
			case p := <-captured:
				lastPacket = append(append([]byte(nil), p.RawWithoutSignature...), p.Signature...)
				fmt.Fprintf(a.out, "    ⇒ executing %q for %s\n", p.Command, p.GroundStationID)
			case <-time.After(demoVerdictWait):
				return fmt.Errorf("demo: command from step %d did not execute", i+1)
			}
		}
		fmt.Fprintln(a.out)
	}

	fmt.Fprintln(a.out, "Replay protection is not part of the uplink: the replayed packet carries a valid tag.")

	cancel()
	if err := <-served; err != nil {
		return err
	}

	snap := a.collector.Snapshot()
	fmt.Fprintln(a.out)
	fmt.Fprintln(a.out, "Bus counters:")
	fmt.Fprintf(a.out, "  Datagrams received: %d\n", snap.DatagramsReceived)
	fmt.Fprintf(a.out, "  Commands executed:  %d\n", snap.CommandsExecuted)
	fmt.Fprintf(a.out, "  Rejected:           %d (malformed %d, unauthorized %d, auth failed %d)\n",
		snap.Rejected(), snap.DecodeFailures, snap.Unauthorized, snap.AuthFailures)

	if mismatches > 0 {
		return fmt.Errorf("demo: %d verdict(s) did not match", mismatches)
	}
	return nil
}

func (a *app) demoStation(key []byte, groundID string, port int) (*ground.Station, error) {
	return ground.New(ground.Config{
		Host:            "127.0.0.1",
		Port:            port,
		Key:             key,
		GroundStationID: groundID,
		APID:            a.cfg.Uplink.APID,
		Digest:          a.cfg.DigestAlgorithm(),
		SequencePolicy:  a.cfg.SequencePolicy(),
		Collector:       a.collector,
		Logger:          a.logger,
	})
}
