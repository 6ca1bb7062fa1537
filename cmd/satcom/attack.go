package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pzverkov/satcom-uplink/pkg/rogue"
)

func newAttackCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attack",
		Short: "Send hostile traffic the bus must reject",
		Long: `Act as a rogue transmitter in range of the satellite.

spoof      signs a command with a freshly generated key
malformed  sends random bytes that are not a CCSDS packet
replay     retransmits a captured packet byte for byte`,
	}
	cmd.AddCommand(newSpoofCmd(a), newMalformedCmd(a), newReplayCmd(a))
	return cmd
}

func (a *app) transmitter(e *endpointFlags) *rogue.Transmitter {
	host, port := e.resolve(a.cfg)
	return rogue.New(host, port, a.logger)
}

func newSpoofCmd(a *app) *cobra.Command {
	var (
		endpoint endpointFlags
		groundID string
	)
	cmd := &cobra.Command{
		Use:     "spoof <command>",
		Short:   "Send a command signed with the wrong key",
		Example: `  satcom attack spoof DEPLOY_SOLAR_PANELS --ground-id GS-ALPHA`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := a.transmitter(&endpoint)
			packet, err := t.Spoof(cmd.Context(), args[0], groundID)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Spoofed %q (%d bytes) sent to %s\n", args[0], len(packet), t.Target())
			fmt.Fprintf(a.out, "  Packet: %s\n", hex.EncodeToString(packet))
			return nil
		},
	}
	endpoint.register(cmd)
	cmd.Flags().StringVar(&groundID, "ground-id", "", "claimed ground station identity (default GS-ALPHA)")
	return cmd
}

func newMalformedCmd(a *app) *cobra.Command {
	var endpoint endpointFlags
	cmd := &cobra.Command{
		Use:   "malformed",
		Short: "Send random bytes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := a.transmitter(&endpoint)
			payload, err := t.SendMalformed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Malformed datagram (%d bytes) sent to %s\n", len(payload), t.Target())
			return nil
		},
	}
	endpoint.register(cmd)
	return cmd
}

func newReplayCmd(a *app) *cobra.Command {
	var (
		endpoint endpointFlags
		pcapPath string
		dstPort  int
	)
	cmd := &cobra.Command{
		Use:   "replay [packet-hex]",
		Short: "Retransmit a captured packet",
		Long: `Retransmit a packet given as hex, or every UDP payload in a pcap capture.

With --pcap, --dst-port keeps only datagrams addressed to that port
(0 replays every UDP payload).`,
		Example: `  satcom attack replay 1864c000002900...
  satcom attack replay --pcap uplink.pcap --dst-port 5000`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := a.transmitter(&endpoint)

			if pcapPath != "" {
				if len(args) > 0 {
					return fmt.Errorf("give either a packet or --pcap, not both")
				}
				n, err := t.ReplayPcap(cmd.Context(), pcapPath, dstPort)
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Replayed %d datagram(s) from %s to %s\n", n, pcapPath, t.Target())
				return nil
			}

			if len(args) == 0 {
				return fmt.Errorf("packet hex or --pcap is required")
			}
			packet, err := hex.DecodeString(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("invalid packet hex: %w", err)
			}
			if err := t.Replay(cmd.Context(), packet); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Replayed %d bytes to %s\n", len(packet), t.Target())
			return nil
		},
	}
	endpoint.register(cmd)
	cmd.Flags().StringVar(&pcapPath, "pcap", "", "pcap capture to replay")
	cmd.Flags().IntVar(&dstPort, "dst-port", 0, "only replay datagrams sent to this UDP port")
	return cmd
}
