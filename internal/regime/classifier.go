package regime

import (
	"context"
	"math"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/market"
)

// RollingClassifier derives a regime label from the price history of a
// market snapshot: realized volatility first, then net drift direction.
type RollingClassifier struct {
	source market.Source

	// Thresholds on per-step return statistics.
	volThreshold   float64 // stdev above this → VOLATILE
	driftThreshold float64 // |mean| above this → BULL / BEAR
	minHistory     int
}

// ClassifierOptions configures a RollingClassifier.
type ClassifierOptions struct {
	VolThreshold   float64 // default 0.02
	DriftThreshold float64 // default 0.002
	MinHistory     int     // default 16
}

// NewRollingClassifier creates a classifier reading from the given source.
func NewRollingClassifier(source market.Source, opts ClassifierOptions) *RollingClassifier {
	vol := opts.VolThreshold
	if vol == 0 {
		vol = 0.02
	}
	drift := opts.DriftThreshold
	if drift == 0 {
		drift = 0.002
	}
	minHistory := opts.MinHistory
	if minHistory == 0 {
		minHistory = 16
	}

	return &RollingClassifier{
		source:         source,
		volThreshold:   vol,
		driftThreshold: drift,
		minHistory:     minHistory,
	}
}

// Compile-time interface check.
var _ Source = (*RollingClassifier)(nil)

// Current classifies the symbol from its recent price history. With too
// little history the reading is UNKNOWN at zero confidence.
func (c *RollingClassifier) Current(ctx context.Context, symbol string) (domain.RegimeReading, error) {
	snap, err := c.source.Snapshot(ctx, symbol)
	if err != nil {
		return domain.RegimeReading{Primary: domain.RegimeUnknown}, err
	}
	if len(snap.History) < c.minHistory {
		return domain.RegimeReading{Primary: domain.RegimeUnknown}, nil
	}

	mean, stdev := returnStats(snap.History)

	switch {
	case stdev > c.volThreshold:
		conf := clampConf(stdev / (2 * c.volThreshold))
		return domain.RegimeReading{Primary: domain.RegimeVolatile, Confidence: conf}, nil
	case mean > c.driftThreshold:
		return domain.RegimeReading{Primary: domain.RegimeBull, Confidence: clampConf(mean / (2 * c.driftThreshold))}, nil
	case mean < -c.driftThreshold:
		return domain.RegimeReading{Primary: domain.RegimeBear, Confidence: clampConf(-mean / (2 * c.driftThreshold))}, nil
	default:
		return domain.RegimeReading{Primary: domain.RegimeSideways, Confidence: 0.5}, nil
	}
}

// returnStats computes mean and stdev of per-step relative returns.
func returnStats(prices []float64) (mean, stdev float64) {
	var returns []float64
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			continue
		}
		returns = append(returns, (prices[i]-prices[i-1])/prices[i-1])
	}
	if len(returns) == 0 {
		return 0, 0
	}

	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(len(returns))
	return mean, math.Sqrt(variance)
}

func clampConf(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
