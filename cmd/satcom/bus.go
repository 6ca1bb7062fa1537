package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pzverkov/satcom-uplink/pkg/bus"
	"github.com/pzverkov/satcom-uplink/pkg/crypto"
	"github.com/pzverkov/satcom-uplink/pkg/firewall"
	"github.com/pzverkov/satcom-uplink/pkg/metrics"
)

// healthHeapLimit is the heap size above which /health reports unhealthy.
const healthHeapLimit = 1 << 30

type busOptions struct {
	endpoint  endpointFlags
	key       string
	allowed   []string
	workers   int
	obsAddr   string
	perSource float64
	burst     int
}

func newBusCmd(a *app) *cobra.Command {
	var o busOptions

	cmd := &cobra.Command{
		Use:   "bus",
		Short: "Run the satellite bus listener",
		Long: `Listen for uplink datagrams and execute the commands the firewall accepts.

Every datagram is parsed, checked against the ground station allow-list and
verified against the shared key. Rejections are logged as security alerts.`,
		Example: `  # Listen on the default 127.0.0.1:5000
  SATCOM_KEY=secret satcom bus

  # Two ground stations, four workers, metrics on :9100
  satcom bus --allowed-ground-stations GS-ALPHA,GS-BRAVO --workers 4 --obs-addr :9100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("allowed-ground-stations") {
				a.cfg.Uplink.AllowedGroundStations = o.allowed
			}
			if flags.Changed("workers") {
				a.cfg.Bus.Workers = o.workers
			}
			if flags.Changed("obs-addr") {
				a.cfg.Observability.Addr = o.obsAddr
			}
			if flags.Changed("rate-limit") {
				a.cfg.Bus.RateLimit.PerSource = o.perSource
			}
			if flags.Changed("burst") {
				a.cfg.Bus.RateLimit.Burst = o.burst
			}
			a.cfg.Bus.Host, a.cfg.Bus.Port = o.endpoint.resolve(a.cfg)
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.runBus(ctx, o.key)
		},
	}

	o.endpoint.register(cmd)
	f := cmd.Flags()
	f.StringVar(&o.key, "key", "", "shared HMAC key (default $SATCOM_KEY)")
	f.StringSliceVar(&o.allowed, "allowed-ground-stations", nil, "ground station identities allowed to command the bus")
	f.IntVar(&o.workers, "workers", 1, "concurrent datagram handlers")
	f.StringVar(&o.obsAddr, "obs-addr", "", "observability server address (metrics: /metrics, health: /health). Empty disables")
	f.Float64Var(&o.perSource, "rate-limit", 0, "datagrams per second allowed per source IP (0 disables)")
	f.IntVar(&o.burst, "burst", 0, "per-source burst size")
	return cmd
}

// newFirewall builds the firewall for the configured allow-list.
func (a *app) newFirewall(key []byte, extra ...firewall.Observer) (*firewall.Firewall, error) {
	var observer firewall.Observer = metrics.NewFirewallObserver(a.collector, a.logger)
	if len(extra) > 0 {
		observer = append(firewall.MultiObserver{observer}, extra...)
	}
	return firewall.New(firewall.Config{
		Key:                   key,
		Digest:                a.cfg.DigestAlgorithm(),
		AllowedGroundStations: a.cfg.Uplink.AllowedGroundStations,
		Observer:              observer,
	})
}

func (a *app) newBus(fw bus.Inspector, handler bus.CommandHandler) (*bus.Bus, error) {
	return bus.New(bus.Config{
		Host:            a.cfg.Bus.Host,
		Port:            a.cfg.Bus.Port,
		Firewall:        fw,
		Handler:         handler,
		Workers:         a.cfg.Bus.Workers,
		MaxDatagramSize: a.cfg.Bus.MaxDatagramSize,
		RateLimit: bus.RateLimitConfig{
			PerSource: a.cfg.Bus.RateLimit.PerSource,
			Burst:     a.cfg.Bus.RateLimit.Burst,
		},
		Collector: a.collector,
		Logger:    a.logger,
	})
}

func (a *app) runBus(ctx context.Context, keyFlag string) error {
	key, err := a.key(keyFlag)
	if err != nil {
		return err
	}
	defer crypto.Zeroize(key)

	fw, err := a.newFirewall(key)
	if err != nil {
		return err
	}
	b, err := a.newBus(fw, nil)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Satellite bus on %s\n", b.Address())
	fmt.Fprintf(a.out, "  Allowed ground stations: %s\n", strings.Join(fw.AllowedGroundStations(), ", "))
	fmt.Fprintf(a.out, "  Digest: %s\n", fw.Algorithm())

	if addr := a.cfg.Observability.Addr; addr != "" {
		server := metrics.NewServer(metrics.ServerConfig{
			Collector:        a.collector,
			Version:          getVersion(),
			Namespace:        a.cfg.Observability.Namespace,
			EnablePrometheus: true,
			EnableHealth:     true,
		})
		server.AddHealthCheck("self_test", metrics.SelfTestCheck(crypto.SelfTestPassed))
		server.AddHealthCheck("listening", metrics.ListeningCheck(func() string {
			if addr := b.Addr(); addr != nil {
				return addr.String()
			}
			return ""
		}))
		server.AddHealthCheck("memory", metrics.MemoryCheck(healthHeapLimit))

		go func() {
			if err := server.Run(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("observability server error", metrics.Fields{"error": err.Error()})
			}
		}()
		fmt.Fprintf(a.out, "  Observability: %s (metrics: /metrics, health: /health)\n", addr)
	}

	return b.ListenAndServe(ctx)
}
