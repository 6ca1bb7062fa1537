package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pzverkov/satcom-uplink/internal/config"
	"github.com/pzverkov/satcom-uplink/internal/telemetry"
	"github.com/pzverkov/satcom-uplink/pkg/metrics"
)

// app carries the state shared by every subcommand once the root
// pre-run has loaded configuration.
type app struct {
	configFile string
	logLevel   string
	logFormat  string
	tracing    string
	requireKey bool

	cfg       *config.Config
	sink      *telemetry.Sink
	logger    *metrics.Logger
	collector *metrics.Collector

	out    io.Writer
	errOut io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "satcom",
		Short: "satcom - authenticated CCSDS command uplink",
		Long: `satcom sends and receives CCSDS telecommand packets authenticated with a
shared-key HMAC trailer.

The satellite bus admits a command only when the packet parses, its ground
station is on the allow-list and its tag verifies. The ground station signs
commands; the rogue transmitter produces the traffic the bus must reject.

Key resolution: --key, then $SATCOM_KEY, then the demo key (with a warning,
unless --require-key is set).`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.teardown()
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configFile, "config", "c", "", "config file path (YAML); empty uses defaults and $SATCOM_* overrides")
	pf.StringVar(&a.logLevel, "log-level", "", "log level override: debug, info, warn, error, critical, silent")
	pf.StringVar(&a.logFormat, "log-format", "", "log format override: text or json")
	pf.StringVar(&a.tracing, "tracing", "none", "tracing mode: none, simple, otel (requires -tags otel)")
	pf.BoolVar(&a.requireKey, "require-key", false, "refuse to fall back to the demo key")

	root.AddCommand(
		newBusCmd(a),
		newSendCmd(a),
		newAttackCmd(a),
		newDemoCmd(a),
		newBenchCmd(a),
		newSelfTestCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}

	sink, err := telemetry.Setup(cfg.Log, a.errOut)
	if err != nil {
		return err
	}
	sink.Install()

	mode := a.tracing
	if !cmd.Flags().Changed("tracing") && cfg.Observability.Tracing {
		mode = "simple"
		if metrics.OTelEnabled() {
			mode = "otel"
		}
	}
	if err := setupTracing(mode, sink.Logger.Named("trace")); err != nil {
		_ = sink.Close()
		return err
	}

	a.collector = metrics.NewCollector(metrics.Labels{"service": "satcom"})
	metrics.SetGlobal(a.collector)

	a.cfg = cfg
	a.sink = sink
	a.logger = sink.Logger.With(metrics.Fields{"app": "satcom"})
	return nil
}

func (a *app) teardown() error {
	if a.sink == nil {
		return nil
	}
	return a.sink.Close()
}

func setupTracing(mode string, logger *metrics.Logger) error {
	switch strings.ToLower(mode) {
	case "none", "":
		metrics.SetTracer(metrics.NoOpTracer{})
	case "simple":
		metrics.SetTracer(metrics.NewSimpleTracer(metrics.WithSpanLogger(logger)))
	case "otel":
		if !metrics.OTelEnabled() {
			return fmt.Errorf("otel tracing not enabled (build with -tags otel)")
		}
		metrics.SetTracer(metrics.NewOTelTracer("satcom-uplink"))
	default:
		return fmt.Errorf("invalid tracing mode: %s (use none, simple, or otel)", mode)
	}
	return nil
}

// key resolves the shared HMAC key for a command.
func (a *app) key(explicit string) ([]byte, error) {
	key, demo, err := config.ResolveKey(explicit, !a.requireKey)
	if err != nil {
		return nil, err
	}
	if demo {
		a.logger.Warn("using the demo HMAC key; set SATCOM_KEY or --key for real deployments")
	}
	return key, nil
}

// endpointFlags are the --host/--port pair shared by commands that talk to the bus.
type endpointFlags struct {
	host string
	port int
}

func (e *endpointFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&e.host, "host", "", "bus host (default from config)")
	cmd.Flags().IntVar(&e.port, "port", 0, "bus UDP port (default from config)")
}

func (e *endpointFlags) resolve(cfg *config.Config) (string, int) {
	host, port := e.host, e.port
	if host == "" {
		host = cfg.Bus.Host
	}
	if port == 0 {
		port = cfg.Bus.Port
	}
	return host, port
}
