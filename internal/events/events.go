// Package events publishes a notification for every machine sighting a
// discovery cycle persists.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultSubject is the NATS subject and Kafka topic sightings go to
const DefaultSubject = "machinewatch.discovery.sighting"

// Sighting describes one machine seen during a discovery cycle
type Sighting struct {
	CycleID            string    `json:"cycle_id"`
	IPAddress          string    `json:"ip_address"`
	Port               int       `json:"port"`
	Status             string    `json:"status"`
	RunningTimeMinutes *float64  `json:"running_time_minutes"`
	JobName            string    `json:"job_name"`
	BalanceTimeMinutes *float64  `json:"balance_time_minutes"`
	Filename           string    `json:"filename"`
	Inserted           bool      `json:"inserted"`
	ObservedAt         time.Time `json:"observed_at"`
}

func (s Sighting) encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sighting for %s: %w", s.IPAddress, err)
	}
	return data, nil
}

// Publisher sends sightings to a message bus
type Publisher interface {
	Publish(ctx context.Context, s Sighting) error
	Close() error
}

// Nop discards every sighting
type Nop struct{}

func (Nop) Publish(context.Context, Sighting) error { return nil }

func (Nop) Close() error { return nil }
