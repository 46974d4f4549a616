package main

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/c360/lnrelay/config"
	"github.com/c360/lnrelay/control"
	"github.com/c360/lnrelay/dispatch"
	"github.com/c360/lnrelay/health"
	"github.com/c360/lnrelay/metric"
	"github.com/c360/lnrelay/natsclient"
	"github.com/c360/lnrelay/node"
	"github.com/c360/lnrelay/pkg/retry"
	"github.com/c360/lnrelay/pkg/tlsutil"
	"github.com/c360/lnrelay/relay"
)

const (
	natsConnectTimeout = 10 * time.Second
	healthInterval     = 15 * time.Second
)

// registry is what the supervisor needs from a node source
type registry interface {
	relay.NodeResolver
	relay.NodeLister
}

// bus is the NATS surface shared by dispatch and control
type bus interface {
	dispatch.Publisher
	control.Subscriber
}

type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metric.MetricsRegistry
	monitor *health.Monitor

	nats       *natsclient.Client
	bus        bus
	nodes      registry
	kvRegistry *node.KVRegistry
	supervisor *relay.Supervisor
	control    control.Channel
	server     *metric.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metric.NewMetricsRegistry(),
		monitor: health.NewMonitor(),
	}

	if cfg.NATS.Enabled {
		if err := a.connectNATS(ctx); err != nil {
			return nil, err
		}
	}

	if err := a.assemble(ctx); err != nil {
		a.cleanup()
		return nil, err
	}
	return a, nil
}

// assemble builds the registry, supervisor, control channel and metrics
// server on top of whatever bus is already attached
func (a *app) assemble(ctx context.Context) error {
	if err := a.setupRegistry(ctx); err != nil {
		return err
	}

	tlsConfig, err := clientTLS(a.cfg)
	if err != nil {
		return err
	}

	sup, err := relay.New(a.cfg.Relay, a.nodes, a.dispatcher(),
		relay.WithLogger(a.logger),
		relay.WithMetrics(a.metrics),
		relay.WithTLSConfig(tlsConfig),
	)
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}
	a.supervisor = sup
	a.monitor.Register("relay", sup.Health)

	a.control = a.controlChannel()

	if a.cfg.Metrics.Enabled {
		a.server = metric.NewServer(a.cfg.Metrics.Port, a.cfg.Metrics.Path, a.metrics,
			metric.WithHealth(func() health.Status {
				return a.monitor.AggregateHealth(appName)
			}))
	}
	return nil
}

func clientTLS(cfg *config.Config) (*tls.Config, error) {
	client := cfg.Security.TLS.Client
	if client.IsZero() {
		return nil, nil
	}
	tlsConfig, err := tlsutil.LoadClientTLSConfig(client)
	if err != nil {
		return nil, fmt.Errorf("load client TLS config: %w", err)
	}
	return tlsConfig, nil
}

func (a *app) connectNATS(ctx context.Context) error {
	core := a.metrics.CoreMetrics()
	natsCfg := a.cfg.NATS

	opts := []natsclient.ClientOption{
		natsclient.WithLogger(a.logger),
		natsclient.WithMaxReconnects(natsCfg.MaxReconnects),
		natsclient.WithReconnectWait(natsCfg.ReconnectWait),
		natsclient.WithName(natsCfg.Name),
		natsclient.WithReconnectCallback(core.RecordNATSReconnect),
		natsclient.WithHealthChangeCallback(core.RecordNATSStatus),
	}
	switch {
	case natsCfg.Token != "":
		opts = append(opts, natsclient.WithToken(natsCfg.Token))
	case natsCfg.Username != "":
		opts = append(opts, natsclient.WithCredentials(natsCfg.Username, natsCfg.Password))
	}

	client, err := natsclient.NewClient(strings.Join(natsCfg.URLs, ","), opts...)
	if err != nil {
		return fmt.Errorf("create NATS client: %w", err)
	}

	a.logger.Info("Connecting to NATS", "urls", natsCfg.URLs)
	err = retry.Do(ctx, retry.Startup(), func() error {
		return client.Connect(ctx)
	})
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
	defer cancel()
	if err := client.WaitForConnection(waitCtx); err != nil {
		_ = client.Close(context.Background())
		return fmt.Errorf("NATS connection timeout: %w", err)
	}

	a.nats = client
	a.bus = client
	a.monitor.Register("nats", func() health.Status {
		status := client.Status()
		core.RecordCircuitBreakerState(status == natsclient.StatusCircuitOpen)
		return health.FromConnection("nats", client.IsHealthy(), status.String())
	})
	a.logger.Info("Connected to NATS", "url", client.URL())
	return nil
}

func (a *app) setupRegistry(ctx context.Context) error {
	if a.cfg.Registry.Mode != config.RegistryKV {
		static, err := node.NewStaticRegistry(a.cfg.Nodes)
		if err != nil {
			return fmt.Errorf("create node registry: %w", err)
		}
		a.nodes = static
		a.logger.Info("Using static node registry", "nodes", len(a.cfg.Nodes))
		return nil
	}

	kv, err := a.nats.KeyValueBucket(ctx, jetstream.KeyValueConfig{
		Bucket:      a.cfg.Registry.Bucket,
		Description: "lnrelay node descriptors",
	})
	if err != nil {
		return fmt.Errorf("open node bucket %s: %w", a.cfg.Registry.Bucket, err)
	}

	reg := node.NewKVRegistry(kv, a.logger)
	if a.cfg.Registry.Seed {
		for _, d := range a.cfg.Nodes {
			if err := reg.Put(ctx, d); err != nil {
				return fmt.Errorf("seed node %d: %w", d.Index, err)
			}
		}
	}
	if err := reg.Start(ctx); err != nil {
		return fmt.Errorf("start node registry: %w", err)
	}

	a.kvRegistry = reg
	a.nodes = reg
	a.logger.Info("Using KV node registry",
		"bucket", a.cfg.Registry.Bucket,
		"nodes", reg.Len())
	return nil
}

func (a *app) dispatcher() relay.Dispatcher {
	sink := dispatch.NewLogSink(a.logger)
	if a.bus == nil {
		return sink
	}
	return dispatch.Fanout{
		dispatch.NewNATS(a.bus, a.cfg.NATS.SubjectPrefix,
			dispatch.WithMetrics(a.metrics.CoreMetrics())),
		sink,
	}
}

// controlChannel returns nil without a bus. Standalone relays only serve
// the nodes opened by relay.connect_on_start.
func (a *app) controlChannel() control.Channel {
	if a.bus == nil {
		if !a.cfg.Relay.ConnectOnStart {
			a.logger.Warn("NATS disabled and connect_on_start off, no node will be opened")
		} else {
			a.logger.Info("NATS disabled, control commands unavailable")
		}
		return nil
	}
	subject := control.Subject(a.cfg.NATS.SubjectPrefix, a.cfg.Relay.Implementation)
	a.logger.Info("Listening for control commands", "subject", subject)
	return control.NewNATSChannel(a.bus, subject, a.logger, a.metrics.CoreMetrics())
}

func (a *app) run(ctx context.Context, shutdownTimeout time.Duration) error {
	if a.server != nil {
		if err := a.server.Start(); err != nil {
			a.cleanup()
			return fmt.Errorf("start metrics server: %w", err)
		}
		a.logger.Info("Metrics server listening", "address", a.server.Address())
	}

	if err := a.supervisor.Start(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("start supervisor: %w", err)
	}

	handler := control.RateLimited(a.supervisor.HandleCommand,
		control.NewLimiter(a.cfg.Control.RateLimit, a.cfg.Control.Burst))

	g, gctx := errgroup.WithContext(ctx)
	if a.control != nil {
		g.Go(func() error {
			if err := a.control.Listen(gctx, handler); err != nil {
				return fmt.Errorf("control channel: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		a.recordHealth(gctx)
		return nil
	})

	a.logger.Info("lnrelay started",
		"implementation", a.cfg.Relay.Implementation,
		"registry", a.cfg.Registry.Mode,
		"nats", a.bus != nil)

	<-gctx.Done()
	if ctx.Err() != nil {
		a.logger.Info("Received shutdown signal")
	}

	runErr := g.Wait()
	if runErr != nil {
		a.logger.Error("Relay stopped unexpectedly", "error", runErr)
	}

	return stderrors.Join(runErr, a.shutdown(shutdownTimeout))
}

func (a *app) recordHealth(ctx context.Context) {
	core := a.metrics.CoreMetrics()
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		status := a.monitor.AggregateHealth(appName)
		for _, sub := range status.SubStatuses {
			core.RecordHealth(sub.Component, sub.Status)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *app) shutdown(timeout time.Duration) error {
	a.logger.Info("Shutting down", "timeout", timeout)

	var errs []error
	if err := a.supervisor.Stop(timeout); err != nil {
		errs = append(errs, fmt.Errorf("stop supervisor: %w", err))
	}
	a.cleanup()

	if err := stderrors.Join(errs...); err != nil {
		a.logger.Error("Shutdown completed with errors", "error", err)
		return err
	}
	a.logger.Info("Shutdown complete")
	return nil
}

// cleanup releases everything newApp acquired besides the supervisor
func (a *app) cleanup() {
	if a.server != nil {
		if err := a.server.Stop(); err != nil {
			a.logger.Warn("Failed to stop metrics server", "error", err)
		}
	}
	if a.kvRegistry != nil {
		if err := a.kvRegistry.Stop(); err != nil {
			a.logger.Warn("Failed to stop node registry", "error", err)
		}
	}
	a.closeNATS()
}

func (a *app) closeNATS() {
	if a.nats == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), natsConnectTimeout)
	defer cancel()
	if err := a.nats.Close(ctx); err != nil {
		a.logger.Warn("Failed to close NATS connection", "error", err)
	}
}
