package strategy

import (
	"context"
	"sync"
	"time"

	"strategy-swarm/internal/domain"
)

// StubStrategy is a controllable strategy for testing. It records calls and
// can be configured to fail, block, or emit a fixed signal.
type StubStrategy struct {
	mu sync.Mutex

	symbol   string
	signal   *domain.Signal
	err      error
	applyErr error
	delay    time.Duration

	cycles   int
	applied  []map[string]domain.ParamValue
	released bool
}

// NewStubStrategy creates a stub bound to symbol that holds by default.
func NewStubStrategy(symbol string) *StubStrategy {
	return &StubStrategy{symbol: symbol}
}

// ID returns the strategy identifier.
func (s *StubStrategy) ID() string { return "STUB_" + s.symbol }

// Symbol returns the bound symbol.
func (s *StubStrategy) Symbol() string { return s.symbol }

// GenerateSignal records the call and returns the configured result.
func (s *StubStrategy) GenerateSignal(ctx context.Context, _ *domain.MarketSnapshot) (*domain.Signal, error) {
	s.mu.Lock()
	s.cycles++
	err := s.err
	signal := s.signal
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if signal != nil {
		return signal, nil
	}
	return &domain.Signal{Symbol: s.symbol, Action: domain.ActionHold, GeneratedAt: time.Now()}, nil
}

// ApplyParameters records applied parameter sets.
func (s *StubStrategy) ApplyParameters(params map[string]domain.ParamValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return s.applyErr
	}
	s.applied = append(s.applied, params)
	return nil
}

// Release marks the stub released.
func (s *StubStrategy) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	return nil
}

// FailWith makes subsequent GenerateSignal calls return err.
func (s *StubStrategy) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// FailApplyWith makes subsequent ApplyParameters calls return err.
func (s *StubStrategy) FailApplyWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyErr = err
}

// BlockFor makes subsequent GenerateSignal calls sleep for d.
func (s *StubStrategy) BlockFor(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Cycles returns the number of GenerateSignal calls.
func (s *StubStrategy) Cycles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles
}

// AppliedCount returns the number of ApplyParameters calls.
func (s *StubStrategy) AppliedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applied)
}

// Released reports whether Release was called.
func (s *StubStrategy) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Ensure StubStrategy implements Strategy
var _ Strategy = (*StubStrategy)(nil)
