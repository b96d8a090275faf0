package reconcile

import (
	"errors"
	"fmt"
)

// ErrNoBroadcastAddress means no override was given and none could be
// detected from the host interfaces. Discovery is not attempted.
var ErrNoBroadcastAddress = errors.New("could not determine broadcast IP address")

// DiscoveryError is a transport failure of the UDP scan.
// No partial results are kept.
type DiscoveryError struct {
	// BroadcastIP is the address the scan targeted
	BroadcastIP string
	// Underlying socket error
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery to %s failed: %v", e.BroadcastIP, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// PersistenceError is the first storage failure of a cycle.
// The counts reflect the devices persisted before it.
type PersistenceError struct {
	// IPAddress is the device whose upsert failed
	IPAddress string
	Inserted  int
	Updated   int
	// Underlying storage error
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist device %s after %d insert(s) and %d update(s): %v",
		e.IPAddress, e.Inserted, e.Updated, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsConfigurationError reports whether err is a missing broadcast address
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrNoBroadcastAddress)
}
