package evolution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/regime"
)

func TestOpportunityForRegime(t *testing.T) {
	volatile := OpportunityForRegime(domain.RegimeVolatile)
	assert.True(t, volatile.Eligible)
	assert.Equal(t, 0.6, volatile.Score)
	assert.Equal(t, []string{"solana", "arbitrum", "base"}, volatile.TargetChains)

	bull := OpportunityForRegime(domain.RegimeBull)
	assert.True(t, bull.Eligible)
	assert.Equal(t, 0.35, bull.Score)

	bear := OpportunityForRegime(domain.RegimeBear)
	assert.True(t, bear.Eligible)
	assert.Equal(t, 0.15, bear.Score)

	assert.False(t, OpportunityForRegime(domain.RegimeSideways).Eligible)
	assert.False(t, OpportunityForRegime(domain.RegimeUnknown).Eligible)
}

func TestCrossChainVariant(t *testing.T) {
	parent := testGenome("parent", map[string]domain.ParamValue{
		"lookback":  domain.IntParam(20),
		"threshold": domain.FloatParam(0.01),
	})
	opp := OpportunityForRegime(domain.RegimeVolatile)

	child := crossChainVariant(parent, opp)

	assert.True(t, child.CrossChain)
	assert.Equal(t, opp.TargetChains, child.TargetChains)
	assert.Equal(t, []string{"parent"}, child.ParentIDs)
	assert.NotEqual(t, parent.ID, child.ID)

	// Strategy parameters are inherited unchanged
	assert.Equal(t, int64(20), child.Parameters["lookback"].Int)
	assert.Equal(t, 0.01, child.Parameters["threshold"].Float)

	// Routing parameters are added
	assert.Equal(t, "wormhole", child.Parameters["bridge_provider"].String)
	assert.Equal(t, int64(30_000), child.Parameters["max_bridge_latency_ms"].Int)
	assert.Equal(t, float64(12), child.Parameters["bridge_fee_cap_bps"].Float)
	assert.Equal(t, int64(2), child.Parameters["route_retry_limit"].Int)

	// The parent stays single-chain
	assert.False(t, parent.CrossChain)
	_, exists := parent.Parameters["bridge_provider"]
	assert.False(t, exists)
}

func TestCrossChainPromotionInCycle(t *testing.T) {
	// High-fitness single-chain genome in a volatile regime with the draw
	// forced to succeed: verify a bred child is a promoted variant.
	f := newFixture(t, Config{
		MaxStrategiesInPool: 20,
		OffspringPerCycle:   1,
		EnableCrossChain:    true,
		Seed:                1,
	})
	f.addGenome(t, "star", 0.9)

	f.engine.regimes.(*regime.StaticSource).Set(domain.RegimeVolatile, 0.9)

	// The opportunity score is 0.6; try several cycles so the promotion
	// draw lands at least once.
	promoted := false
	for i := 0; i < 10 && !promoted; i++ {
		f.engine.ExecuteMutationCycle(context.Background())
		for _, s := range f.engine.TopN(context.Background(), 10) {
			if s.Genome.CrossChain {
				promoted = true
			}
		}
	}
	assert.True(t, promoted)
}
