package evolution

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-swarm/internal/domain"
)

func typedGenome(id, strategyType string) *domain.Genome {
	g := testGenome(id, nil)
	g.StrategyType = strategyType
	return g
}

func TestTableBiasModel(t *testing.T) {
	m := NewTableBiasModel()

	momentum := typedGenome("m", "MOMENTUM")
	assert.Equal(t, 0.3, m.CalculateBiasScore(momentum, domain.RegimeBull))
	assert.Equal(t, 0.1, m.CalculateBiasScore(momentum, domain.RegimeBear))
	assert.Equal(t, 0.0, m.CalculateBiasScore(momentum, domain.RegimeSideways))
	assert.Equal(t, 0.0, m.CalculateBiasScore(momentum, domain.RegimeUnknown))

	reversion := typedGenome("r", "MEAN_REVERSION")
	assert.Equal(t, 0.3, m.CalculateBiasScore(reversion, domain.RegimeSideways))

	bridged := typedGenome("b", "BREAKOUT")
	bridged.CrossChain = true
	assert.InDelta(t, 0.35, m.CalculateBiasScore(bridged, domain.RegimeVolatile), 1e-9)
	// The cross-chain edge applies in volatile regimes only
	assert.Equal(t, 0.2, m.CalculateBiasScore(bridged, domain.RegimeBull))
}

func TestSortCandidatesByFitness(t *testing.T) {
	cands := []candidate{
		{genome: typedGenome("b", "MOMENTUM"), fitness: 0.5},
		{genome: typedGenome("c", "MOMENTUM"), fitness: 0.9},
		{genome: typedGenome("a", "MOMENTUM"), fitness: 0.5},
	}
	sortCandidatesByFitness(cands)

	assert.Equal(t, "c", cands[0].genome.ID)
	// Equal fitness breaks ties by id ascending
	assert.Equal(t, "a", cands[1].genome.ID)
	assert.Equal(t, "b", cands[2].genome.ID)
}

func TestSelectParents_Truncation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cands := []candidate{
		{genome: typedGenome("low", "MOMENTUM"), fitness: 0.1},
		{genome: typedGenome("high", "MOMENTUM"), fitness: 0.9},
		{genome: typedGenome("mid", "MOMENTUM"), fitness: 0.5},
	}

	parents := selectParents(rng, cands, 2, domain.RegimeUnknown, nil, false)
	require.Len(t, parents, 2)
	assert.Equal(t, "high", parents[0].ID)
	assert.Equal(t, "mid", parents[1].ID)
}

func TestSelectParents_CountBoundedByPool(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cands := []candidate{
		{genome: typedGenome("only", "MOMENTUM"), fitness: 0.5},
	}

	parents := selectParents(rng, cands, 2, domain.RegimeUnknown, nil, false)
	require.Len(t, parents, 1)
	assert.Equal(t, "only", parents[0].ID)

	assert.Nil(t, selectParents(rng, nil, 2, domain.RegimeUnknown, nil, false))
}

func TestRouletteSelect_DistinctParents(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	cands := []candidate{
		{genome: typedGenome("a", "MOMENTUM"), fitness: 0.9},
		{genome: typedGenome("b", "MOMENTUM"), fitness: 0.5},
		{genome: typedGenome("c", "MOMENTUM"), fitness: 0.1},
	}

	for trial := 0; trial < 50; trial++ {
		parents := rouletteSelect(rng, cands, 2, domain.RegimeBull, NewTableBiasModel())
		require.Len(t, parents, 2)
		assert.NotEqual(t, parents[0].ID, parents[1].ID)
	}
}

func TestRouletteSelect_ZeroMassFallsBack(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cands := []candidate{
		{genome: typedGenome("a", "MOMENTUM"), fitness: 0},
		{genome: typedGenome("b", "MOMENTUM"), fitness: 0},
	}

	assert.Nil(t, rouletteSelect(rng, cands, 1, domain.RegimeBull, NewTableBiasModel()))

	// selectParents degrades to truncation in that case
	parents := selectParents(rng, cands, 1, domain.RegimeBull, NewTableBiasModel(), true)
	require.Len(t, parents, 1)
	assert.Equal(t, "a", parents[0].ID)
}

func TestRouletteSelect_BiasShiftsDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	// Equal raw fitness; in a bull regime the MOMENTUM genome carries a
	// +0.3 bias and must win the majority of draws.
	cands := []candidate{
		{genome: typedGenome("trend", "MOMENTUM"), fitness: 0.5},
		{genome: typedGenome("fade", "MEAN_REVERSION"), fitness: 0.5},
	}

	wins := 0
	const draws = 2000
	for i := 0; i < draws; i++ {
		parents := rouletteSelect(rng, cands, 1, domain.RegimeBull, NewTableBiasModel())
		require.Len(t, parents, 1)
		if parents[0].ID == "trend" {
			wins++
		}
	}

	// Expected share 0.65/1.15 ≈ 0.565; allow generous slack.
	assert.Greater(t, wins, draws/2)
}
