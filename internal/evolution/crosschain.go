package evolution

import (
	"time"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/idhash"
)

// CrossChainOpportunity describes whether a regime supports expanding a
// genome across chains, and how attractive that expansion is.
type CrossChainOpportunity struct {
	Eligible     bool
	TargetChains []string
	Score        float64 // promotion probability, [0,1]
}

// crossChainLookup is the fixed regime → opportunity table. Volatile
// markets reward cross-venue routing the most; quiet ones not at all.
var crossChainLookup = map[domain.Regime]CrossChainOpportunity{
	domain.RegimeVolatile: {
		Eligible:     true,
		TargetChains: []string{"solana", "arbitrum", "base"},
		Score:        0.6,
	},
	domain.RegimeBull: {
		Eligible:     true,
		TargetChains: []string{"solana", "ethereum"},
		Score:        0.35,
	},
	domain.RegimeBear: {
		Eligible:     true,
		TargetChains: []string{"solana", "arbitrum"},
		Score:        0.15,
	},
	domain.RegimeSideways: {},
	domain.RegimeUnknown:  {},
}

// OpportunityForRegime returns the cross-chain opportunity for a regime.
func OpportunityForRegime(r domain.Regime) CrossChainOpportunity {
	return crossChainLookup[r]
}

// crossChainPromotionThreshold is the minimum fitness for promotion.
const crossChainPromotionThreshold = 0.6

// crossChainVariant clones a genome into a cross-chain variant: the clone
// keeps the parent's strategy parameters and gains routing/bridge
// parameters instead of undergoing standard mutation.
func crossChainVariant(parent *domain.Genome, opp CrossChainOpportunity) *domain.Genome {
	child := parent.Clone()
	now := time.Now()

	child.CrossChain = true
	child.TargetChains = append([]string(nil), opp.TargetChains...)
	if child.Parameters == nil {
		child.Parameters = make(map[string]domain.ParamValue)
	}
	child.Parameters["bridge_provider"] = domain.StringParam("wormhole")
	child.Parameters["max_bridge_latency_ms"] = domain.IntParam(30_000)
	child.Parameters["bridge_fee_cap_bps"] = domain.FloatParam(12)
	child.Parameters["route_retry_limit"] = domain.IntParam(2)

	child.ParentIDs = []string{parent.ID}
	child.BirthTime = now
	child.Version = 0
	child.Performance = domain.PerformanceMetrics{}
	child.ID = idhash.ComputeGenomeID(child.Symbol, child.StrategyType, child.Generation, child.Parameters, now.UnixNano())
	return child
}
