package strategy

import (
	"context"
	"fmt"
	"time"

	"strategy-swarm/internal/domain"
)

// BreakoutStrategy buys when price clears the rolling high and the book is
// bid-heavy, sells when it breaks the rolling low on an ask-heavy book.
// Parameters: lookback (INT), volume_ratio (FLOAT), size (FLOAT).
type BreakoutStrategy struct {
	symbol      string
	lookback    int
	volumeRatio float64
	size        float64
	released    bool
}

// NewBreakoutStrategy creates a breakout strategy bound to symbol.
func NewBreakoutStrategy(symbol string, lookback int, volumeRatio, size float64) *BreakoutStrategy {
	return &BreakoutStrategy{
		symbol:      symbol,
		lookback:    lookback,
		volumeRatio: volumeRatio,
		size:        size,
	}
}

// ID returns the strategy identifier including parameters.
func (s *BreakoutStrategy) ID() string {
	return fmt.Sprintf("BREAKOUT_%s_%d_%g", s.symbol, s.lookback, s.volumeRatio)
}

// Symbol returns the bound symbol.
func (s *BreakoutStrategy) Symbol() string {
	return s.symbol
}

// GenerateSignal checks rolling high/low breaks confirmed by book imbalance.
func (s *BreakoutStrategy) GenerateSignal(_ context.Context, snap *domain.MarketSnapshot) (*domain.Signal, error) {
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

	if len(snap.History) < s.lookback || s.lookback <= 0 {
		return signal, nil
	}

	window := snap.History[len(snap.History)-s.lookback:]
	high, low := window[0], window[0]
	for _, v := range window[1:] {
		if v > high {
			high = v
		}
		if v < low {
			low = v
		}
	}

	switch {
	case snap.Price > high && snap.AskVolume > 0 && snap.BidVolume/snap.AskVolume >= s.volumeRatio:
		signal.Action = domain.ActionBuy
		signal.Confidence = clamp01((snap.Price - high) / high * 100)
	case snap.Price < low && snap.BidVolume > 0 && snap.AskVolume/snap.BidVolume >= s.volumeRatio:
		signal.Action = domain.ActionSell
		signal.Confidence = clamp01((low - snap.Price) / low * 100)
	default:
		return signal, nil
	}

	signal.Size = s.size
	return signal, nil
}

// ApplyParameters applies genome parameters to the live instance.
func (s *BreakoutStrategy) ApplyParameters(params map[string]domain.ParamValue) error {
	if s.released {
		return ErrReleased
	}

	lookback, err := intParam(params, "lookback", s.lookback)
	if err != nil {
		return fmt.Errorf("breakout lookback: %w", err)
	}
	volumeRatio, err := floatParam(params, "volume_ratio", s.volumeRatio)
	if err != nil {
		return fmt.Errorf("breakout volume_ratio: %w", err)
	}
	size, err := floatParam(params, "size", s.size)
	if err != nil {
		return fmt.Errorf("breakout size: %w", err)
	}

	s.lookback = lookback
	s.volumeRatio = volumeRatio
	s.size = size
	return nil
}

// Release frees the instance.
func (s *BreakoutStrategy) Release() error {
	s.released = true
	return nil
}

// Ensure BreakoutStrategy implements Strategy
var _ Strategy = (*BreakoutStrategy)(nil)
