package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"strategy-swarm/internal/domain"
)

// MomentumStrategy buys when the short moving average runs ahead of the
// long one by more than a threshold, sells on the mirror condition.
// Parameters: lookback (INT), threshold (FLOAT), size (FLOAT).
type MomentumStrategy struct {
	symbol    string
	lookback  int
	threshold float64
	size      float64
	released  bool
}

// NewMomentumStrategy creates a momentum strategy bound to symbol.
func NewMomentumStrategy(symbol string, lookback int, threshold, size float64) *MomentumStrategy {
	return &MomentumStrategy{
		symbol:    symbol,
		lookback:  lookback,
		threshold: threshold,
		size:      size,
	}
}

// ID returns the strategy identifier including parameters.
func (s *MomentumStrategy) ID() string {
	return fmt.Sprintf("MOMENTUM_%s_%d_%g", s.symbol, s.lookback, s.threshold)
}

// Symbol returns the bound symbol.
func (s *MomentumStrategy) Symbol() string {
	return s.symbol
}

// GenerateSignal compares short vs long moving averages of the snapshot
// history. Insufficient history holds.
func (s *MomentumStrategy) GenerateSignal(_ context.Context, snap *domain.MarketSnapshot) (*domain.Signal, error) {
	if s.released {
		return nil, ErrReleased
	}
	if snap == nil {
		return nil, ErrNilSnapshot
	}

	signal := &domain.Signal{
		Symbol:      s.symbol,
		Action:      domain.ActionHold,
		GeneratedAt: time.Now(),
	}

	long := sma(snap.History, s.lookback)
	short := sma(snap.History, (s.lookback+1)/2)
	if long == 0 || short == 0 {
		return signal, nil
	}

	drift := (short - long) / long
	switch {
	case drift > s.threshold:
		signal.Action = domain.ActionBuy
	case drift < -s.threshold:
		signal.Action = domain.ActionSell
	default:
		return signal, nil
	}

	signal.Size = s.size
	signal.Confidence = clamp01(math.Abs(drift) / (2 * s.threshold))
	return signal, nil
}

// ApplyParameters applies genome parameters to the live instance.
func (s *MomentumStrategy) ApplyParameters(params map[string]domain.ParamValue) error {
	if s.released {
		return ErrReleased
	}

	lookback, err := intParam(params, "lookback", s.lookback)
	if err != nil {
		return fmt.Errorf("momentum lookback: %w", err)
	}
	threshold, err := floatParam(params, "threshold", s.threshold)
	if err != nil {
		return fmt.Errorf("momentum threshold: %w", err)
	}
	size, err := floatParam(params, "size", s.size)
	if err != nil {
		return fmt.Errorf("momentum size: %w", err)
	}

	s.lookback = lookback
	s.threshold = threshold
	s.size = size
	return nil
}

// Release frees the instance.
func (s *MomentumStrategy) Release() error {
	s.released = true
	return nil
}

// Ensure MomentumStrategy implements Strategy
var _ Strategy = (*MomentumStrategy)(nil)
