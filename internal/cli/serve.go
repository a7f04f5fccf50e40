package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rileyhilliard/dgxops/internal/api"
	"github.com/rileyhilliard/dgxops/internal/config"
	"github.com/rileyhilliard/dgxops/internal/events"
	"github.com/rileyhilliard/dgxops/internal/host"
	"github.com/rileyhilliard/dgxops/internal/logger"
	"github.com/rileyhilliard/dgxops/internal/monitor"
	"github.com/rileyhilliard/dgxops/internal/operation"
	"github.com/rileyhilliard/dgxops/internal/parallel"
	"github.com/rileyhilliard/dgxops/internal/reconcile"
	"github.com/rileyhilliard/dgxops/internal/service"
	"github.com/rileyhilliard/dgxops/internal/store"
	"github.com/rileyhilliard/dgxops/pkg/sshutil"
)

var serveListenFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dgxops daemon",
	Long: `Run the daemon that owns SSH sessions, operations and telemetry.

Every other command talks to it over HTTP. Stop it with Ctrl+C; open
sessions are closed and in-flight requests are given time to finish.

Examples:
  dgxops serve
  dgxops serve --listen 0.0.0.0:7420`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		listen := cfg.Server.Listen
		if serveListenFlag != "" {
			listen = serveListenFlag
		}
		return serve(ctx, cfg, listen)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListenFlag, "listen", "", "address to listen on (default: server.listen from config)")
	rootCmd.AddCommand(serveCmd)
}

// daemon is every long-lived component of a running dgxops.
type daemon struct {
	store    *store.Store
	events   events.Publisher
	registry *host.Registry
	service  *service.Service
}

// Close stops components in reverse dependency order: the service drains
// background launches, the registry drops sessions and their tasks, then
// the event stream and the database are closed.
func (d *daemon) Close() {
	d.service.Close()
	d.registry.Close()
	if err := d.events.Close(); err != nil {
		logger.New("serve").Warn("closing event stream: %v", err)
	}
	if err := d.store.Close(); err != nil {
		logger.New("serve").Warn("closing database: %v", err)
	}
}

// newDaemon wires the store, registry, tracker, status loop, collector,
// syncer and orchestrator into a service.
func newDaemon(ctx context.Context, c *config.Config, dialer sshutil.Dialer) (*daemon, error) {
	st, err := store.Open(ctx, config.ExpandLocal(c.Database.Path), logger.New("store"))
	if err != nil {
		return nil, err
	}

	pub := events.New(c.Events.Kafka.Brokers, c.Events.Kafka.Topic, logger.New("events"))

	regOpts := host.OptionsFromConfig(c.SSH)
	regOpts.Logger = logger.New("registry")
	regOpts.Events = pub
	reg := host.NewRegistry(st, dialer, regOpts)

	tracker := operation.NewTracker(st.Operations, reg, operation.Options{
		LogDir: c.Operations.LogDir,
		Logger: logger.New("operations"),
		Events: pub,
	})

	reconcile.NewLoop(reg, reconcile.LoopConfig{
		Interval: c.Status.Interval,
		Logger:   logger.New("status"),
	}).Attach(reg)

	metricsOpts := monitor.OptionsFromConfig(c.Metrics)
	metricsOpts.Samples = st.Metrics
	metricsOpts.Logger = logger.New("metrics")
	metricsOpts.Events = pub
	collector := monitor.NewCollector(reg, metricsOpts)
	collector.Attach(reg)

	syncer := reconcile.NewSyncer(tracker, reconcile.SyncerOptions{
		Classifier:  reconcile.NewExitFileClassifier(tracker, c.Sync.UnknownExit),
		Concurrency: c.Sync.Concurrency,
		Logger:      logger.New("sync"),
	})

	orch := parallel.NewOrchestrator(reg, parallel.Config{
		Timeout: c.SSH.DialTimeout + c.SSH.ProbeTimeout,
		Logger:  logger.New("parallel"),
	})

	svc := service.New(service.Deps{
		Registry:     reg,
		Tracker:      tracker,
		Syncer:       syncer,
		Orchestrator: orch,
		Collector:    collector,
	}, service.Options{
		AutoLaunch: c.Operations.AutoLaunch,
		Logger:     logger.New("service"),
	})

	return &daemon{store: st, events: pub, registry: reg, service: svc}, nil
}

func serve(ctx context.Context, c *config.Config, listen string) error {
	log := logger.New("serve")

	dialer := sshutil.NetDialer{Options: sshutil.DialOptions{
		Timeout:               c.SSH.DialTimeout,
		StrictHostKeyChecking: c.SSH.StrictHostKeyChecking,
	}}
	d, err := newDaemon(ctx, c, dialer)
	if err != nil {
		return err
	}
	defer d.Close()
	defer sshutil.CloseAgent()

	if configPath != "" {
		log.Info("using config %s", configPath)
	}
	log.Info("dgxops %s listening on %s", formatVersion(version), listen)
	if len(c.Events.Kafka.Brokers) > 0 {
		log.Info("publishing events to %s on %v", c.Events.Kafka.Topic, c.Events.Kafka.Brokers)
	}

	srv := api.NewServer(d.service, logger.New("api"))
	srv.Version = version
	if err := srv.ListenAndServe(ctx, listen); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
