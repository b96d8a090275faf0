package reconcile

import (
	"context"
	"sync"
)

// Runner runs one discovery cycle
type Runner interface {
	RunCycle(ctx context.Context, req Request) (*Result, error)
}

// Observer is called after every successful cycle
type Observer func(*Result)

// Serial lets one cycle run at a time in this process, so the HTTP route
// and the poller never race for the discovery port.
type Serial struct {
	runner Runner
	sem    chan struct{}

	mu        sync.RWMutex
	observers []Observer
	last      *Result
}

// NewSerial wraps runner
func NewSerial(runner Runner) *Serial {
	return &Serial{runner: runner, sem: make(chan struct{}, 1)}
}

// RunCycle waits for any running cycle to finish, then runs one.
// Waiting is abandoned if ctx is done.
func (s *Serial) RunCycle(ctx context.Context, req Request) (*Result, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	res, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = res
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()

	for _, obs := range observers {
		obs(res)
	}
	return res, nil
}

// run holds the slot for the duration of one cycle, released even if the
// runner panics
func (s *Serial) run(ctx context.Context, req Request) (*Result, error) {
	defer func() { <-s.sem }()
	return s.runner.RunCycle(ctx, req)
}

// Subscribe registers fn to be called with every successful result
func (s *Serial) Subscribe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Last returns the most recent successful result, or nil
func (s *Serial) Last() *Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
