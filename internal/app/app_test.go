package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"

	"github.com/muurk/machinewatch/internal/config"
	"github.com/muurk/machinewatch/internal/events"
	"github.com/muurk/machinewatch/internal/reconcile"
	"github.com/muurk/machinewatch/internal/store"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Advertise.Enabled = false
	cfg.HTTP.Host = "127.0.0.1"
	return cfg
}

func TestCoreModuleResolves(t *testing.T) {
	var (
		runner reconcile.Runner
		serial *reconcile.Serial
		st     store.Store
		pub    events.Publisher
	)

	app := fxtest.New(t,
		fx.Supply(testConfig()),
		CoreModule,
		fx.Populate(&runner, &serial, &st, &pub),
	)
	app.RequireStart()
	defer app.RequireStop()

	assert.Same(t, serial, runner)
	assert.IsType(t, &store.Memory{}, st)
	assert.IsType(t, events.Nop{}, pub)
}

func TestServeModuleValidates(t *testing.T) {
	err := fx.ValidateApp(
		fx.Supply(testConfig()),
		CoreModule,
		ServeModule,
	)
	assert.NoError(t, err)
}

func TestNewStoreCacheRequiresValidURL(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.URL = "not-a-redis-url"

	_, err := NewStore(fxtest.NewLifecycle(t), cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestNewScannerFromConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.Port = 4001
	cfg.Discovery.Beacon = "M12345"
	cfg.Discovery.Timeout = 2 * time.Second

	s := NewScanner(cfg)
	assert.Equal(t, 4001, s.ListenPort)
	assert.Equal(t, 4001, s.TargetPort)
	assert.Equal(t, []byte("M12345"), s.Beacon)
	assert.Equal(t, 2*time.Second, s.Timeout)
}

func TestRunStopsAfterCallback(t *testing.T) {
	var st store.Store
	a := New(testConfig(), fx.Populate(&st))

	called := false
	err := Run(context.Background(), a, func(ctx context.Context) error {
		called = true
		_, err := store.Upsert(ctx, st, &store.Record{IPAddress: "10.0.0.5", Port: 3001, Status: "IDLE"})
		return err
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestDefaultRequest(t *testing.T) {
	cfg := testConfig()
	cfg.Discovery.BroadcastIP = "192.168.1.255"

	req := DefaultRequest(cfg)
	assert.Equal(t, "192.168.1.255", req.BroadcastIP)
	assert.Equal(t, cfg.Discovery.Timeout, req.Timeout)
}
