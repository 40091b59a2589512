// Package regime provides market-regime classification sources. The
// classification heuristics themselves are deliberately simple; agents and
// the evolution engine only consume the RegimeReading interface.
package regime

import (
	"context"
	"sync"

	"strategy-swarm/internal/domain"
)

// Source classifies the current market regime for a symbol.
type Source interface {
	Current(ctx context.Context, symbol string) (domain.RegimeReading, error)
}

// StaticSource always reports a fixed reading. Used in tests and by the
// offline evolve command.
type StaticSource struct {
	mu      sync.RWMutex
	reading domain.RegimeReading
}

// NewStaticSource creates a source pinned to the given regime.
func NewStaticSource(r domain.Regime, confidence float64) *StaticSource {
	return &StaticSource{reading: domain.RegimeReading{Primary: r, Confidence: confidence}}
}

// Compile-time interface check.
var _ Source = (*StaticSource)(nil)

// Current returns the pinned reading.
func (s *StaticSource) Current(_ context.Context, _ string) (domain.RegimeReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reading, nil
}

// Set repins the reading; used by tests to simulate regime changes.
func (s *StaticSource) Set(r domain.Regime, confidence float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reading = domain.RegimeReading{Primary: r, Confidence: confidence}
}
