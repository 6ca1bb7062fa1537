package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pzverkov/satcom-uplink/pkg/crypto"
	"github.com/pzverkov/satcom-uplink/pkg/ground"
)

func newSendCmd(a *app) *cobra.Command {
	var (
		endpoint endpointFlags
		key      string
		groundID string
		count    int
	)

	cmd := &cobra.Command{
		Use:   "send <command>",
		Short: "Send one authenticated command as the ground station",
		Example: `  satcom send PING
  satcom send DEPLOY_SOLAR_PANELS --ground-id GS-BRAVO --port 6000`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := a.key(key)
			if err != nil {
				return err
			}
			defer crypto.Zeroize(k)

			if groundID == "" {
				groundID = a.cfg.Uplink.GroundStationID
			}
			host, port := endpoint.resolve(a.cfg)

			station, err := ground.New(ground.Config{
				Host:            host,
				Port:            port,
				Key:             k,
				GroundStationID: groundID,
				APID:            a.cfg.Uplink.APID,
				Digest:          a.cfg.DigestAlgorithm(),
				SequencePolicy:  a.cfg.SequencePolicy(),
				Collector:       a.collector,
				Logger:          a.logger,
			})
			if err != nil {
				return err
			}

			for i := 0; i < count; i++ {
				meta, err := station.Send(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "Sent %q as %s (apid=%d seq=%d) to %s\n",
					meta.Command, meta.GroundStationID, meta.APID, meta.SequenceCount, station.Target())
			}
			return nil
		},
	}

	endpoint.register(cmd)
	f := cmd.Flags()
	f.StringVar(&key, "key", "", "shared HMAC key (default $SATCOM_KEY)")
	f.StringVar(&groundID, "ground-id", "", "ground station identity (default from config)")
	f.IntVar(&count, "count", 1, "number of times to send the command")
	return cmd
}
