// Package reconcile runs discovery cycles: it resolves the broadcast
// address, scans for machines, parses their replies and merges them into
// the device store.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/machinewatch/internal/discovery"
	"github.com/muurk/machinewatch/internal/events"
	"github.com/muurk/machinewatch/internal/protocol"
	"github.com/muurk/machinewatch/internal/store"
)

// Scanner collects discovery replies for one window
type Scanner interface {
	Scan(ctx context.Context, broadcastIP string, timeout time.Duration) ([]discovery.Response, error)
}

// ResolveFunc returns the primary broadcast address, or false if none
type ResolveFunc func(ctx context.Context) (string, bool, error)

// Request parameterizes one cycle. Empty fields fall back to defaults.
type Request struct {
	BroadcastIP string
	Timeout     time.Duration
}

// Device is a parsed reply with its origin attached
type Device struct {
	protocol.MachineStatus
	IPAddress   string `json:"ip_address"`
	Port        int    `json:"port"`
	RawResponse string `json:"raw_response"`
}

// Result summarizes a completed cycle
type Result struct {
	CycleID         string    `json:"cycle_id"`
	BroadcastIP     string    `json:"broadcast_ip"`
	DiscoveredCount int       `json:"discovered_count"`
	InsertedCount   int       `json:"inserted_count"`
	UpdatedCount    int       `json:"updated_count"`
	Devices         []Device  `json:"devices"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Message is the human-readable outcome shown by the API and CLI
func (r *Result) Message() string {
	if r.DiscoveredCount == 0 {
		return "No devices found within timeout."
	}
	return fmt.Sprintf("Found and updated %d device(s). Inserted %d new device(s).",
		r.UpdatedCount, r.InsertedCount)
}

// Reconciler runs discovery cycles. It holds no locks; see Serial.
type Reconciler struct {
	scanner        Scanner
	store          store.Store
	resolve        ResolveFunc
	publisher      events.Publisher
	log            *zap.Logger
	now            func() time.Time
	defaultTimeout time.Duration
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithResolver sets how the broadcast address is found when a request has none
func WithResolver(fn ResolveFunc) Option {
	return func(r *Reconciler) { r.resolve = fn }
}

// WithPublisher publishes a sighting for every persisted device
func WithPublisher(p events.Publisher) Option {
	return func(r *Reconciler) {
		if p != nil {
			r.publisher = p
		}
	}
}

// WithLogger sets the logger; nil keeps the nop logger
func WithLogger(log *zap.Logger) Option {
	return func(r *Reconciler) {
		if log != nil {
			r.log = log
		}
	}
}

// WithClock replaces the clock used for cycle and sighting timestamps
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithDefaultTimeout sets the window used when a request has no timeout
func WithDefaultTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.defaultTimeout = d
		}
	}
}

// New creates a Reconciler over scanner and s
func New(scanner Scanner, s store.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		scanner:        scanner,
		store:          s,
		resolve:        func(context.Context) (string, bool, error) { return "", false, nil },
		publisher:      events.Nop{},
		log:            zap.NewNop(),
		now:            func() time.Time { return time.Now().UTC() },
		defaultTimeout: discovery.DefaultScanTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunCycle resolves the target, scans, parses every reply and upserts the
// devices one at a time, one per source address. The first storage error aborts the cycle.
func (r *Reconciler) RunCycle(ctx context.Context, req Request) (*Result, error) {
	target, err := r.target(ctx, req.BroadcastIP)
	if err != nil {
		return nil, err
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	res := &Result{
		CycleID:     uuid.NewString(),
		BroadcastIP: target,
		StartedAt:   r.now(),
	}
	log := r.log.With(zap.String("cycle", res.CycleID), zap.String("broadcast", target))
	log.Debug("starting discovery cycle", zap.Duration("timeout", timeout))

	responses, err := r.scanner.Scan(ctx, target, timeout)
	if err != nil {
		return nil, &DiscoveryError{BroadcastIP: target, Err: err}
	}

	res.Devices = devicesFrom(responses)
	res.DiscoveredCount = len(res.Devices)

	for _, dev := range res.Devices {
		seenAt := r.now()
		inserted, err := store.Upsert(ctx, r.store, recordFor(dev, seenAt))
		if err != nil {
			return nil, &PersistenceError{
				IPAddress: dev.IPAddress,
				Inserted:  res.InsertedCount,
				Updated:   res.UpdatedCount,
				Err:       err,
			}
		}
		if inserted {
			res.InsertedCount++
		} else {
			res.UpdatedCount++
		}
		r.publish(ctx, log, res.CycleID, dev, inserted, seenAt)
	}

	res.FinishedAt = r.now()
	log.Info("discovery cycle complete",
		zap.Int("discovered", res.DiscoveredCount),
		zap.Int("inserted", res.InsertedCount),
		zap.Int("updated", res.UpdatedCount))
	return res, nil
}

func (r *Reconciler) target(ctx context.Context, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	addr, ok, err := r.resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoBroadcastAddress, err)
	}
	if !ok || addr == "" {
		return "", ErrNoBroadcastAddress
	}
	return addr, nil
}

func (r *Reconciler) publish(ctx context.Context, log *zap.Logger, cycleID string, dev Device, inserted bool, at time.Time) {
	err := r.publisher.Publish(ctx, events.Sighting{
		CycleID:            cycleID,
		IPAddress:          dev.IPAddress,
		Port:               dev.Port,
		Status:             dev.Status,
		RunningTimeMinutes: dev.RunningTimeMinutes,
		JobName:            dev.JobName,
		BalanceTimeMinutes: dev.BalanceTimeMinutes,
		Filename:           dev.Filename,
		Inserted:           inserted,
		ObservedAt:         at,
	})
	if err != nil {
		log.Warn("failed to publish sighting", zap.String("ip", dev.IPAddress), zap.Error(err))
	}
}

// devicesFrom parses every reply, keeping one device per source address.
// A later reply from the same address replaces the earlier one in place.
func devicesFrom(responses []discovery.Response) []Device {
	devices := make([]Device, 0, len(responses))
	index := make(map[string]int, len(responses))

	for _, resp := range responses {
		raw := protocol.Sanitize(resp.RawPayload)
		dev := Device{
			MachineStatus: protocol.ParseStatus(raw),
			IPAddress:     resp.SourceAddress,
			Port:          resp.SourcePort,
			RawResponse:   raw,
		}
		if i, ok := index[dev.IPAddress]; ok {
			devices[i] = dev
			continue
		}
		index[dev.IPAddress] = len(devices)
		devices = append(devices, dev)
	}
	return devices
}

func recordFor(dev Device, seenAt time.Time) *store.Record {
	return &store.Record{
		IPAddress:          dev.IPAddress,
		Port:               dev.Port,
		Status:             dev.Status,
		RunningTimeMinutes: dev.RunningTimeMinutes,
		JobName:            dev.JobName,
		BalanceTimeMinutes: dev.BalanceTimeMinutes,
		Filename:           dev.Filename,
		RawResponse:        dev.RawResponse,
		LastSeen:           seenAt,
	}
}
