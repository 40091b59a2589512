package evolution

import (
	"context"
	"errors"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/storage"
)

// Cross-chain fitness bonuses, applied on top of the base composite score.
const (
	crossChainSuccessWeight = 0.1  // × success rate
	crossChainLatencyBonus  = 0.05 // flat, for sub-30s average bridge latency
	crossChainLatencyCutoff = 30_000.0
	crossChainFeeWeight     = 0.001 // × fee savings USD
	crossChainFeeBonusCap   = 0.05
)

// fitnessFor derives a genome's fitness from its latest performance record.
// A genome with no record scores exactly 0: it is never excluded by
// default and never favored.
func (e *Engine) fitnessFor(ctx context.Context, genomeID string) float64 {
	if e.performance == nil {
		return 0
	}

	rec, err := e.performance.GetLatest(ctx, genomeID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.logger.Printf("evolution: fitness lookup for %s: %v", genomeID, err)
		}
		return 0
	}
	return fitnessFromMetrics(rec.Metrics)
}

// fitnessFromMetrics computes the composite fitness:
// 0.3·sharpe + 0.2·pnlStability + 0.2·(1−maxDrawdown) + 0.3·winRate,
// plus cross-chain bonuses when cross-chain metrics exist.
func fitnessFromMetrics(m domain.PerformanceMetrics) float64 {
	fitness := m.Score()

	if cc := m.CrossChain; cc != nil {
		fitness += crossChainSuccessWeight * cc.SuccessRate
		if cc.AvgLatencyMs > 0 && cc.AvgLatencyMs < crossChainLatencyCutoff {
			fitness += crossChainLatencyBonus
		}
		feeBonus := crossChainFeeWeight * cc.FeeSavingsUSD
		if feeBonus > crossChainFeeBonusCap {
			feeBonus = crossChainFeeBonusCap
		}
		if feeBonus > 0 {
			fitness += feeBonus
		}
	}
	return fitness
}

// fitnessTable computes fitness for every genome currently in the pool.
func (e *Engine) fitnessTable(ctx context.Context) map[string]float64 {
	table := make(map[string]float64, len(e.pool))
	for id := range e.pool {
		table[id] = e.fitnessFor(ctx, id)
	}
	return table
}
