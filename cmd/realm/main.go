package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/realm/internal/logging"
	"github.com/signalsfoundry/realm/internal/observability"
	"github.com/signalsfoundry/realm/realm"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// Replaced in tests.
var (
	initTracing = observability.InitTracing
	newRegistry = prometheus.NewRegistry
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel     string
	logFormat    string
	metrics      bool
	noCycleGuard bool

	trace            string
	traceEndpoint    string
	traceSampleRatio float64
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "realm",
		Short:         "Query towns, their vassalage and their road network",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error (default $LOG_LEVEL or info)")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: text or json (default $LOG_FORMAT or text)")
	pf.BoolVar(&flags.metrics, "metrics", false, "print Prometheus metrics to stdout on exit")
	pf.BoolVar(&flags.noCycleGuard, "no-cycle-guard", false, "allow vassalships that make a town its own ancestor")
	pf.StringVar(&flags.trace, "trace", "", "export spans: stdout (to stderr) or otlp; empty disables tracing")
	pf.StringVar(&flags.traceEndpoint, "trace-endpoint", "localhost:4317", "OTLP gRPC collector for --trace otlp")
	pf.Float64Var(&flags.traceSampleRatio, "trace-sample-ratio", 1, "fraction of route query spans to keep; scenario loads and trims are always kept")

	root.AddCommand(
		newRunCmd(flags),
		newLoadCmd(flags),
		newRouteCmd(flags),
		newServeCmd(flags),
	)
	return root
}

// session is the realm plus the ambient wiring one command invocation
// needs.
type session struct {
	realm     *realm.Realm
	log       logging.Logger
	collector *observability.RealmCollector
	shutdown  func(context.Context) error
	flags     *globalFlags
	out       io.Writer
}

func newSession(cmd *cobra.Command, flags *globalFlags) (*session, error) {
	ctx := cmd.Context()

	cfg := logging.ConfigFromEnv()
	if flags.logLevel != "" {
		cfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Format = flags.logFormat
	}
	cfg.Output = cmd.ErrOrStderr()
	log := logging.New(cfg)

	shutdown, err := initTracing(ctx, observability.TracingConfig{
		Exporter:         flags.trace,
		Endpoint:         flags.traceEndpoint,
		ServiceName:      "realm",
		RouteSampleRatio: flags.traceSampleRatio,
		Output:           cmd.ErrOrStderr(),
		Attributes: []attribute.KeyValue{
			attribute.String("realm.command", cmd.Name()),
			attribute.Bool("realm.cycle_guard", !flags.noCycleGuard),
		},
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	collector, err := observability.NewRealmCollector(newRegistry())
	if err != nil {
		observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdown, log)
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	r := realm.New(log,
		realm.WithMetricsRecorder(collector),
		realm.WithQueryRecorder(collector),
		realm.WithVassalCycleGuard(!flags.noCycleGuard),
	)
	return &session{
		realm:     r,
		log:       log,
		collector: collector,
		shutdown:  shutdown,
		flags:     flags,
		out:       cmd.OutOrStdout(),
	}, nil
}

// close flushes traces and, when asked for, prints the metrics.
func (s *session) close(ctx context.Context) error {
	observability.ShutdownWithTimeout(context.WithoutCancel(ctx), s.shutdown, s.log)
	if !s.flags.metrics {
		return nil
	}
	return s.collector.WriteText(s.out)
}

func (s *session) loadScenario(ctx context.Context, path string) (*realm.Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()
	return realm.LoadScenario(ctx, s.realm, f, realm.FormatFromPath(path))
}
