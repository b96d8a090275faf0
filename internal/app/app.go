// Package app assembles machinewatch from its parts with fx.
//
// CoreModule provides everything a discovery cycle needs: the device store,
// the event publisher, the UDP scanner, the broadcast resolver and the
// serialized reconciler. ServeModule adds the long-running pieces of
// `machinewatch serve`: the HTTP API, the background poller and the mDNS
// advertisement. One-shot commands use CoreModule alone and pull what they
// need out with fx.Populate.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/muurk/machinewatch/internal/broadcast"
	"github.com/muurk/machinewatch/internal/config"
	"github.com/muurk/machinewatch/internal/discovery"
	"github.com/muurk/machinewatch/internal/events"
	"github.com/muurk/machinewatch/internal/logging"
	"github.com/muurk/machinewatch/internal/reconcile"
	"github.com/muurk/machinewatch/internal/store"
)

// connectTimeout bounds store and broker connection attempts at startup
const connectTimeout = 10 * time.Second

// New creates the fx application for cfg. Extra options typically add
// ServeModule or an fx.Populate target.
func New(cfg *config.Config, opts ...fx.Option) *fx.App {
	return fx.New(
		fx.Supply(cfg),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		CoreModule,
		fx.Options(opts...),
	)
}

var CoreModule = fx.Module("core",
	fx.Provide(
		NewLogger,
		NewStore,
		NewPublisher,
		NewScanner,
		broadcast.NewResolver,
		NewReconciler,
		NewSerial,
		func(s *reconcile.Serial) reconcile.Runner { return s },
	),
)

// NewLogger hands the process logger to the graph
func NewLogger() *zap.Logger {
	return logging.GetLogger()
}

// NewStore opens the configured device store, wrapped in the Redis cache
// when enabled. The store is closed when the app stops.
func NewStore(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (store.Store, error) {
	var st store.Store

	switch cfg.Database.Driver {
	case config.DatabasePostgres:
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()

		pg, err := store.NewPostgres(ctx, store.PostgresConfig{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return nil, err
		}
		st = pg
	default:
		st = store.NewMemory()
	}

	if cfg.Cache.Enabled {
		client, err := store.NewRedisClient(cfg.Cache.URL)
		if err != nil {
			st.Close()
			return nil, err
		}
		st = store.NewCached(st, client, cfg.Cache.TTL, log.Named("cache"))
	}

	log.Debug("Device store ready",
		zap.String("driver", cfg.Database.Driver),
		zap.Bool("cache", cfg.Cache.Enabled),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return st.Close()
		},
	})
	return st, nil
}

// NewPublisher connects the configured sighting sink
func NewPublisher(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (events.Publisher, error) {
	var (
		pub events.Publisher
		err error
	)

	switch cfg.Events.Driver {
	case config.EventsNATS:
		pub, err = events.ConnectNATS(cfg.Events.NATSURL, cfg.Events.Subject, log.Named("nats"))
	case config.EventsKafka:
		pub, err = events.NewKafka(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
	default:
		return events.Nop{}, nil
	}
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return pub.Close()
		},
	})
	return pub, nil
}

// NewScanner builds the UDP scanner from the discovery settings
func NewScanner(cfg *config.Config) *discovery.Scanner {
	return &discovery.Scanner{
		ListenPort: cfg.Discovery.Port,
		TargetPort: cfg.Discovery.Port,
		Beacon:     []byte(cfg.Discovery.Beacon),
		Timeout:    cfg.Discovery.Timeout,
	}
}

// NewReconciler ties the scanner, resolver, store and publisher together
func NewReconciler(cfg *config.Config, scanner *discovery.Scanner, resolver *broadcast.Resolver,
	st store.Store, pub events.Publisher, log *zap.Logger) *reconcile.Reconciler {
	return reconcile.New(scanner, st,
		reconcile.WithResolver(resolver.ResolvePrimary),
		reconcile.WithPublisher(pub),
		reconcile.WithLogger(log.Named("reconcile")),
		reconcile.WithDefaultTimeout(cfg.Discovery.Timeout),
	)
}

// NewSerial guards the reconciler so only one cycle runs at a time
func NewSerial(r *reconcile.Reconciler) *reconcile.Serial {
	return reconcile.NewSerial(r)
}

// DefaultRequest is the cycle request built from the config file alone
func DefaultRequest(cfg *config.Config) reconcile.Request {
	return reconcile.Request{
		BroadcastIP: cfg.Discovery.BroadcastIP,
		Timeout:     cfg.Discovery.Timeout,
	}
}

// Run starts an app, calls fn and stops the app again. It is used by
// one-shot commands that populate their dependencies with fx.Populate.
func Run(ctx context.Context, a *fx.App, fn func(context.Context) error) error {
	startCtx, cancel := context.WithTimeout(ctx, a.StartTimeout())
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}

	runErr := fn(ctx)

	stopCtx, cancelStop := context.WithTimeout(context.Background(), a.StopTimeout())
	defer cancelStop()
	if err := a.Stop(stopCtx); err != nil && runErr == nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return runErr
}
