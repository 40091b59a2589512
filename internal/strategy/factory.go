package strategy

import (
	"errors"
	"fmt"

	"strategy-swarm/internal/domain"
)

// Factory errors
var (
	ErrUnknownStrategyType = errors.New("unknown strategy type")
)

// Defaults used when a genome omits a parameter.
const (
	defaultLookback    = 20
	defaultThreshold   = 0.01
	defaultBand        = 0.02
	defaultVolumeRatio = 1.5
	defaultSize        = 0.1
)

// FromConfig creates a Strategy bound to the config's symbol and applies
// the genome's parameters. A nil genome yields defaults.
func FromConfig(cfg domain.AgentConfig, genome *domain.Genome) (Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var s Strategy
	switch cfg.StrategyType {
	case TypeMomentum:
		s = NewMomentumStrategy(cfg.Symbol, defaultLookback, defaultThreshold, defaultSize)
	case TypeMeanReversion:
		s = NewMeanReversionStrategy(cfg.Symbol, defaultLookback, defaultBand, defaultSize)
	case TypeBreakout:
		s = NewBreakoutStrategy(cfg.Symbol, defaultLookback, defaultVolumeRatio, defaultSize)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategyType, cfg.StrategyType)
	}

	if genome != nil {
		if err := s.ApplyParameters(genome.Parameters); err != nil {
			return nil, fmt.Errorf("apply genome parameters: %w", err)
		}
	}
	return s, nil
}
