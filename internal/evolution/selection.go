package evolution

import (
	"math/rand"
	"sort"

	"strategy-swarm/internal/domain"
)

// BiasModel scores how well a genome suits a market regime. The returned
// bias is added multiplicatively: adjusted = fitness · (1 + bias).
type BiasModel interface {
	CalculateBiasScore(g *domain.Genome, r domain.Regime) float64
}

// TableBiasModel is the default BiasModel: a fixed table keyed by regime
// and strategy type. Missing entries bias 0.
type TableBiasModel struct {
	table map[domain.Regime]map[string]float64
}

// NewTableBiasModel creates the default regime bias table. Trend-following
// types are favored in directional regimes, mean reversion in sideways
// markets, and cross-chain capability in volatile ones.
func NewTableBiasModel() *TableBiasModel {
	return &TableBiasModel{
		table: map[domain.Regime]map[string]float64{
			domain.RegimeBull: {
				"MOMENTUM": 0.3,
				"BREAKOUT": 0.2,
			},
			domain.RegimeBear: {
				"MEAN_REVERSION": 0.25,
				"MOMENTUM":       0.1,
			},
			domain.RegimeSideways: {
				"MEAN_REVERSION": 0.3,
			},
			domain.RegimeVolatile: {
				"BREAKOUT": 0.25,
			},
		},
	}
}

// Compile-time interface check.
var _ BiasModel = (*TableBiasModel)(nil)

// CalculateBiasScore looks up the bias for (regime, strategy type).
// Cross-chain genomes get an extra edge in volatile regimes.
func (m *TableBiasModel) CalculateBiasScore(g *domain.Genome, r domain.Regime) float64 {
	bias := m.table[r][g.StrategyType]
	if g.CrossChain && r == domain.RegimeVolatile {
		bias += 0.1
	}
	return bias
}

// candidate is one genome with its cycle fitness.
type candidate struct {
	genome  *domain.Genome
	fitness float64
}

// sortCandidatesByFitness orders candidates fitness-descending with the
// genome id as a deterministic tie-break.
func sortCandidatesByFitness(cands []candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].fitness == cands[j].fitness {
			return cands[i].genome.ID < cands[j].genome.ID
		}
		return cands[i].fitness > cands[j].fitness
	})
}

// selectParents picks up to count distinct parents. When biased selection
// is enabled and the adjusted fitness mass is positive, a roulette draw
// over regime-adjusted fitness is used; otherwise plain fitness-descending
// truncation.
func selectParents(rng *rand.Rand, cands []candidate, count int, r domain.Regime, bias BiasModel, biased bool) []*domain.Genome {
	if len(cands) == 0 || count <= 0 {
		return nil
	}
	if count > len(cands) {
		count = len(cands)
	}

	if biased && bias != nil {
		if parents := rouletteSelect(rng, cands, count, r, bias); parents != nil {
			return parents
		}
	}
	return truncationSelect(cands, count)
}

// rouletteSelect builds a cumulative-probability table over candidates
// sorted by regime-adjusted fitness descending and draws until count
// distinct parents are chosen or candidates run out. Returns nil when the
// adjusted mass is not positive, signalling the caller to fall back.
func rouletteSelect(rng *rand.Rand, cands []candidate, count int, r domain.Regime, bias BiasModel) []*domain.Genome {
	adjusted := make([]candidate, len(cands))
	total := 0.0
	for i, c := range cands {
		adj := c.fitness * (1 + bias.CalculateBiasScore(c.genome, r))
		if adj < 0 {
			adj = 0
		}
		adjusted[i] = candidate{genome: c.genome, fitness: adj}
		total += adj
	}
	if total <= 0 {
		return nil
	}
	sortCandidatesByFitness(adjusted)

	cumulative := make([]float64, len(adjusted))
	running := 0.0
	for i, c := range adjusted {
		running += c.fitness / total
		cumulative[i] = running
	}

	picked := make(map[string]bool, count)
	var parents []*domain.Genome
	// Bounded retries: duplicates are rejected and redrawn until count
	// distinct parents are found or the draw budget runs out.
	for attempts := 0; len(parents) < count && attempts < 10*len(adjusted)+10; attempts++ {
		draw := rng.Float64()
		idx := sort.SearchFloat64s(cumulative, draw)
		if idx >= len(adjusted) {
			idx = len(adjusted) - 1
		}
		g := adjusted[idx].genome
		if picked[g.ID] {
			continue
		}
		picked[g.ID] = true
		parents = append(parents, g)
	}
	return parents
}

// truncationSelect takes the top count candidates by plain fitness.
func truncationSelect(cands []candidate, count int) []*domain.Genome {
	sorted := make([]candidate, len(cands))
	copy(sorted, cands)
	sortCandidatesByFitness(sorted)

	if count > len(sorted) {
		count = len(sorted)
	}
	parents := make([]*domain.Genome, 0, count)
	for _, c := range sorted[:count] {
		parents = append(parents, c.genome)
	}
	return parents
}
