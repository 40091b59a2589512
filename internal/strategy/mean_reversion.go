package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"strategy-swarm/internal/domain"
)

// MeanReversionStrategy fades deviations from the rolling mean: buys when
// price drops more than a band below the mean, sells above.
// Parameters: lookback (INT), band (FLOAT), size (FLOAT).
type MeanReversionStrategy struct {
	symbol   string
	lookback int
	band     float64
	size     float64
	released bool
}

// NewMeanReversionStrategy creates a mean-reversion strategy bound to symbol.
func NewMeanReversionStrategy(symbol string, lookback int, band, size float64) *MeanReversionStrategy {
	return &MeanReversionStrategy{
		symbol:   symbol,
		lookback: lookback,
		band:     band,
		size:     size,
	}
}

// ID returns the strategy identifier including parameters.
func (s *MeanReversionStrategy) ID() string {
	return fmt.Sprintf("MEAN_REVERSION_%s_%d_%g", s.symbol, s.lookback, s.band)
}

// Symbol returns the bound symbol.
func (s *MeanReversionStrategy) Symbol() string {
	return s.symbol
}

// GenerateSignal fades the deviation of the current price from the rolling
// mean. Insufficient history holds.
func (s *MeanReversionStrategy) GenerateSignal(_ context.Context, snap *domain.MarketSnapshot) (*domain.Signal, error) {
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

	mean := sma(snap.History, s.lookback)
	if mean == 0 || snap.Price == 0 {
		return signal, nil
	}

	deviation := (snap.Price - mean) / mean
	switch {
	case deviation < -s.band:
		signal.Action = domain.ActionBuy
	case deviation > s.band:
		signal.Action = domain.ActionSell
	default:
		return signal, nil
	}

	signal.Size = s.size
	signal.Confidence = clamp01(math.Abs(deviation) / (2 * s.band))
	return signal, nil
}

// ApplyParameters applies genome parameters to the live instance.
func (s *MeanReversionStrategy) ApplyParameters(params map[string]domain.ParamValue) error {
	if s.released {
		return ErrReleased
	}

	lookback, err := intParam(params, "lookback", s.lookback)
	if err != nil {
		return fmt.Errorf("mean reversion lookback: %w", err)
	}
	band, err := floatParam(params, "band", s.band)
	if err != nil {
		return fmt.Errorf("mean reversion band: %w", err)
	}
	size, err := floatParam(params, "size", s.size)
	if err != nil {
		return fmt.Errorf("mean reversion size: %w", err)
	}

	s.lookback = lookback
	s.band = band
	s.size = size
	return nil
}

// Release frees the instance.
func (s *MeanReversionStrategy) Release() error {
	s.released = true
	return nil
}

// Ensure MeanReversionStrategy implements Strategy
var _ Strategy = (*MeanReversionStrategy)(nil)
