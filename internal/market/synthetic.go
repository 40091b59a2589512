package market

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"strategy-swarm/internal/domain"
)

// SyntheticSource generates a seeded random-walk price series per symbol.
// Each Snapshot call advances the walk one step.
type SyntheticSource struct {
	mu      sync.Mutex
	rng     *rand.Rand
	series  map[string][]float64
	start   float64
	step    float64 // per-step relative volatility
	history int     // history window returned in snapshots
}

// SyntheticOptions configures a SyntheticSource.
type SyntheticOptions struct {
	Seed       int64
	StartPrice float64 // default 100
	Volatility float64 // default 0.01
	History    int     // default 64
}

// NewSyntheticSource creates a deterministic random-walk source.
func NewSyntheticSource(opts SyntheticOptions) *SyntheticSource {
	start := opts.StartPrice
	if start == 0 {
		start = 100
	}
	step := opts.Volatility
	if step == 0 {
		step = 0.01
	}
	history := opts.History
	if history == 0 {
		history = 64
	}

	return &SyntheticSource{
		rng:     rand.New(rand.NewSource(opts.Seed)),
		series:  make(map[string][]float64),
		start:   start,
		step:    step,
		history: history,
	}
}

// Compile-time interface check.
var _ Source = (*SyntheticSource)(nil)

// Snapshot advances the symbol's walk one step and returns the new state.
func (s *SyntheticSource) Snapshot(_ context.Context, symbol string) (*domain.MarketSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	series := s.series[symbol]
	last := s.start
	if len(series) > 0 {
		last = series[len(series)-1]
	}

	next := last * (1 + s.step*s.rng.NormFloat64())
	if next <= 0 {
		next = last
	}
	series = append(series, next)
	if len(series) > s.history {
		series = series[len(series)-s.history:]
	}
	s.series[symbol] = series

	hist := make([]float64, len(series))
	copy(hist, series)

	return &domain.MarketSnapshot{
		Symbol:    symbol,
		Price:     next,
		BidVolume: 50 + 100*s.rng.Float64(),
		AskVolume: 50 + 100*s.rng.Float64(),
		History:   hist,
		Timestamp: time.Now(),
	}, nil
}
