package app

import (
	"context"
	"errors"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/muurk/machinewatch/internal/config"
	"github.com/muurk/machinewatch/internal/discovery"
	"github.com/muurk/machinewatch/internal/poller"
	"github.com/muurk/machinewatch/internal/reconcile"
	"github.com/muurk/machinewatch/internal/server"
	"github.com/muurk/machinewatch/internal/store"
	"github.com/muurk/machinewatch/internal/version"
)

var ServeModule = fx.Module("serve",
	fx.Provide(NewServer),
	fx.Invoke(InvokeServer, InvokePoller, InvokeAdvertiser),
)

// NewServer builds the HTTP API and streams every finished cycle to its
// websocket clients.
func NewServer(cfg *config.Config, serial *reconcile.Serial, st store.Store, log *zap.Logger) *server.Server {
	srv := server.New(server.Config{
		Host:           cfg.HTTP.Host,
		Port:           cfg.HTTP.Port,
		DefaultTimeout: cfg.Discovery.Timeout,
	}, serial, st, log.Named("http"))

	serial.Subscribe(srv.Hub().Broadcast)
	return srv
}

// InvokeServer starts the HTTP server with the app
func InvokeServer(lc fx.Lifecycle, srv *server.Server) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return srv.Start()
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

// InvokePoller runs discovery in the background when poll_interval is set
func InvokePoller(lc fx.Lifecycle, cfg *config.Config, runner reconcile.Runner, log *zap.Logger) {
	if cfg.Discovery.PollInterval <= 0 {
		return
	}

	p := poller.New(runner, DefaultRequest(cfg), cfg.Discovery.PollInterval, log.Named("poller"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("Poller stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

// InvokeAdvertiser announces the API over mDNS. A registration failure is
// logged and does not stop the server.
func InvokeAdvertiser(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) {
	if !cfg.Advertise.Enabled {
		return
	}

	var adv *discovery.Advertisement
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			a, err := discovery.Advertise(cfg.Advertise.Instance, cfg.HTTP.Port, cfg.Discovery.Port, version.Version)
			if err != nil {
				log.Warn("mDNS advertisement unavailable", zap.Error(err))
				return nil
			}
			adv = a
			return nil
		},
		OnStop: func(context.Context) error {
			if adv != nil {
				adv.Shutdown()
			}
			return nil
		},
	})
}
