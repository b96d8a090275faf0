package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func sighting(addr, status string, at time.Time) *Record {
	return &Record{
		IPAddress:          addr,
		Port:               3001,
		Status:             status,
		RunningTimeMinutes: ptr(10),
		JobName:            "bracket",
		Filename:           "bracket.nc",
		RawResponse:        "Status: " + status,
		LastSeen:           at,
	}
}

// plainStore hides Memory's Upsert so the generic path is exercised
type plainStore struct {
	*Memory
	findErr error
}

func (p plainStore) FindByAddress(ctx context.Context, addr string) (*Record, error) {
	if p.findErr != nil {
		return nil, p.findErr
	}
	return p.Memory.FindByAddress(ctx, addr)
}

func (plainStore) Upsert() {}

func TestMemoryUpsertInsertsThenUpdates(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)

	inserted, err := Upsert(ctx, m, sighting("10.0.0.5", "RUNNING", t0))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = Upsert(ctx, m, sighting("10.0.0.5", "IDLE", t1))
	require.NoError(t, err)
	assert.False(t, inserted)

	rec, err := m.FindByAddress(ctx, "10.0.0.5")
	require.NoError(t, err)
	assert.Equal(t, "IDLE", rec.Status)
	assert.Equal(t, t0, rec.FirstSeen)
	assert.Equal(t, t1, rec.LastSeen)

	all, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGenericUpsertPath(t *testing.T) {
	ctx := context.Background()
	s := plainStore{Memory: NewMemory()}

	inserted, err := Upsert(ctx, s, sighting("10.0.0.7", "RUNNING", time.Time{}))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = Upsert(ctx, s, sighting("10.0.0.7", "ALARM", time.Time{}))
	require.NoError(t, err)
	assert.False(t, inserted)

	rec, err := s.FindByAddress(ctx, "10.0.0.7")
	require.NoError(t, err)
	assert.Equal(t, "ALARM", rec.Status)
	assert.False(t, rec.LastSeen.IsZero())
	assert.False(t, rec.FirstSeen.IsZero())
}

func TestGenericUpsertLookupFailure(t *testing.T) {
	boom := errors.New("connection refused")
	s := plainStore{Memory: NewMemory(), findErr: boom}

	_, err := Upsert(context.Background(), s, sighting("10.0.0.7", "RUNNING", time.Now()))
	assert.ErrorIs(t, err, boom)
}

func TestUpsertRequiresAddress(t *testing.T) {
	_, err := Upsert(context.Background(), NewMemory(), &Record{})
	assert.Error(t, err)
}

func TestMemoryNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.FindByAddress(ctx, "10.0.0.1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.Update(ctx, "10.0.0.1", sighting("10.0.0.1", "IDLE", time.Now())), ErrNotFound)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Upsert(ctx, sighting("10.0.0.2", "RUNNING", time.Now()))
	require.NoError(t, err)

	rec, err := m.FindByAddress(ctx, "10.0.0.2")
	require.NoError(t, err)
	*rec.RunningTimeMinutes = 999
	rec.Status = "MUTATED"

	again, err := m.FindByAddress(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", again.Status)
	assert.Equal(t, 10.0, *again.RunningTimeMinutes)
}

func TestMemoryListOrdered(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, addr := range []string{"10.0.0.9", "10.0.0.1", "10.0.0.5"} {
		_, err := Upsert(ctx, m, sighting(addr, "IDLE", time.Now()))
		require.NoError(t, err)
	}

	all, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "10.0.0.1", all[0].IPAddress)
	assert.Equal(t, "10.0.0.9", all[2].IPAddress)
}

func unreachableRedis() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
}

func TestCachedFallsBackWhenRedisDown(t *testing.T) {
	ctx := context.Background()
	c := NewCached(NewMemory(), unreachableRedis(), 0, nil)
	defer c.Close()

	inserted, err := Upsert(ctx, c, sighting("10.0.0.3", "RUNNING", time.Now()))
	require.NoError(t, err)
	assert.True(t, inserted)

	rec, err := c.FindByAddress(ctx, "10.0.0.3")
	require.NoError(t, err)
	assert.Equal(t, "RUNNING", rec.Status)

	_, err = c.FindByAddress(ctx, "10.0.0.4")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, c.Ping(ctx))
}

func TestPostgresUpsert(t *testing.T) {
	url := os.Getenv("MACHINEWATCH_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MACHINEWATCH_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	p, err := NewPostgres(ctx, PostgresConfig{URL: url})
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Ping(ctx))

	addr := "198.51.100." + time.Now().Format("05")
	_, _ = p.pool.Exec(ctx, "DELETE FROM machine_discovery_status WHERE ip_address = $1", addr)

	inserted, err := Upsert(ctx, p, sighting(addr, "RUNNING", time.Now().UTC()))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = Upsert(ctx, p, sighting(addr, "IDLE", time.Now().UTC()))
	require.NoError(t, err)
	assert.False(t, inserted)

	rec, err := p.FindByAddress(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, "IDLE", rec.Status)
	assert.Nil(t, rec.BalanceTimeMinutes)

	_, err = p.FindByAddress(ctx, "203.0.113.250")
	assert.ErrorIs(t, err, ErrNotFound)
}
