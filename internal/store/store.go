// Package store persists the latest status of every discovered machine,
// keyed by the network address the machine answered from.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no record exists for an address
var ErrNotFound = errors.New("device record not found")

// Record is the persisted state of one discovered machine
type Record struct {
	IPAddress          string    `json:"ip_address"`
	Port               int       `json:"port"`
	Status             string    `json:"status"`
	RunningTimeMinutes *float64  `json:"running_time_minutes"`
	JobName            string    `json:"job_name"`
	BalanceTimeMinutes *float64  `json:"balance_time_minutes"`
	Filename           string    `json:"filename"`
	RawResponse        string    `json:"raw_response"`
	FirstSeen          time.Time `json:"first_seen"`
	LastSeen           time.Time `json:"last_seen"`
}

// Clone returns a deep copy of r
func (r *Record) Clone() *Record {
	c := *r
	if r.RunningTimeMinutes != nil {
		v := *r.RunningTimeMinutes
		c.RunningTimeMinutes = &v
	}
	if r.BalanceTimeMinutes != nil {
		v := *r.BalanceTimeMinutes
		c.BalanceTimeMinutes = &v
	}
	return &c
}

// applySighting overwrites the fields a new sighting carries.
// FirstSeen is left alone.
func (r *Record) applySighting(s *Record) {
	r.Port = s.Port
	r.Status = s.Status
	r.RunningTimeMinutes = s.RunningTimeMinutes
	r.JobName = s.JobName
	r.BalanceTimeMinutes = s.BalanceTimeMinutes
	r.Filename = s.Filename
	r.RawResponse = s.RawResponse
	r.LastSeen = s.LastSeen
}

// Store is keyed access to device records
type Store interface {
	// FindByAddress returns the record for addr or ErrNotFound
	FindByAddress(ctx context.Context, addr string) (*Record, error)
	// Insert adds a new record
	Insert(ctx context.Context, rec *Record) error
	// Update overwrites the sighting fields of an existing record.
	// Returns ErrNotFound if no record exists for addr.
	Update(ctx context.Context, addr string, rec *Record) error
	// List returns all records ordered by address
	List(ctx context.Context) ([]*Record, error)
	// Ping checks that the backing storage is reachable
	Ping(ctx context.Context) error
	// Close releases resources
	Close() error
}

// Upserter is implemented by stores that can insert-or-update atomically
type Upserter interface {
	Upsert(ctx context.Context, rec *Record) (inserted bool, err error)
}

// Upsert inserts rec if no record exists for its address and updates the
// existing record otherwise. It reports whether a new record was created.
// LastSeen defaults to now.
func Upsert(ctx context.Context, s Store, rec *Record) (bool, error) {
	if rec.IPAddress == "" {
		return false, errors.New("record has no ip address")
	}
	if rec.LastSeen.IsZero() {
		rec.LastSeen = time.Now().UTC()
	}

	if u, ok := s.(Upserter); ok {
		return u.Upsert(ctx, rec)
	}

	_, err := s.FindByAddress(ctx, rec.IPAddress)
	switch {
	case err == nil:
		if err := s.Update(ctx, rec.IPAddress, rec); err != nil {
			return false, fmt.Errorf("failed to update %s: %w", rec.IPAddress, err)
		}
		return false, nil
	case errors.Is(err, ErrNotFound):
		if rec.FirstSeen.IsZero() {
			rec.FirstSeen = rec.LastSeen
		}
		if err := s.Insert(ctx, rec); err != nil {
			return false, fmt.Errorf("failed to insert %s: %w", rec.IPAddress, err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("failed to look up %s: %w", rec.IPAddress, err)
	}
}
