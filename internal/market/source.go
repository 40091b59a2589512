// Package market provides market-data access for strategy cycles. Real
// feed connectivity is out of scope; the synthetic source backs demos and
// tests.
package market

import (
	"context"

	"strategy-swarm/internal/domain"
)

// Source provides market snapshots per symbol.
type Source interface {
	// Snapshot returns the current market state for a symbol, including
	// recent price history (oldest first).
	Snapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error)
}
