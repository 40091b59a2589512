package strategy

import (
	"context"

	"strategy-swarm/internal/domain"
)

// Strategy produces trading signals from market snapshots. A strategy
// instance is bound to one symbol at construction; genome parameters may be
// re-applied while the instance is live.
type Strategy interface {
	// ID returns the strategy identifier (includes type and symbol).
	ID() string

	// Symbol returns the symbol the instance is bound to.
	Symbol() string

	// GenerateSignal runs one strategy cycle against a market snapshot.
	GenerateSignal(ctx context.Context, snap *domain.MarketSnapshot) (*domain.Signal, error)

	// ApplyParameters applies genome parameters to the live instance.
	// Unknown keys are ignored; invalid values for known keys error.
	ApplyParameters(params map[string]domain.ParamValue) error

	// Release frees resources owned by the instance. The instance must not
	// be used after Release.
	Release() error
}

// Strategy type constants.
const (
	TypeMomentum      = "MOMENTUM"
	TypeMeanReversion = "MEAN_REVERSION"
	TypeBreakout      = "BREAKOUT"
)
