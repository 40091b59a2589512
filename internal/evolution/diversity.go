package evolution

import (
	"math"

	"strategy-swarm/internal/domain"
)

// fitnessDiversity is the population standard deviation of fitness.
// Zero for pools with fewer than two members.
func fitnessDiversity(fitness []float64) float64 {
	if len(fitness) < 2 {
		return 0
	}

	mean := 0.0
	for _, f := range fitness {
		mean += f
	}
	mean /= float64(len(fitness))

	variance := 0.0
	for _, f := range fitness {
		d := f - mean
		variance += d * d
	}
	variance /= float64(len(fitness))
	return math.Sqrt(variance)
}

// parameterDiversity is the mean pairwise normalized parameter distance.
// Zero for pools with fewer than two members.
func parameterDiversity(genomes []*domain.Genome) float64 {
	if len(genomes) < 2 {
		return 0
	}

	total := 0.0
	pairs := 0
	for i := 0; i < len(genomes); i++ {
		for j := i + 1; j < len(genomes); j++ {
			total += pairDistance(genomes[i], genomes[j])
			pairs++
		}
	}
	return total / float64(pairs)
}

// pairDistance averages per-key distances over the keys both genomes
// share. Numeric distance is |a−b| / max(1, |a|+|b|); bool/string distance
// is 0 if equal, else 1. Pairs sharing no keys are fully distinct.
func pairDistance(a, b *domain.Genome) float64 {
	total := 0.0
	shared := 0
	for key, av := range a.Parameters {
		bv, ok := b.Parameters[key]
		if !ok {
			continue
		}
		shared++
		total += valueDistance(av, bv)
	}
	if shared == 0 {
		return 1
	}
	return total / float64(shared)
}

func valueDistance(a, b domain.ParamValue) float64 {
	if a.Kind != b.Kind {
		return 1
	}
	switch a.Kind {
	case domain.ParamFloat:
		return numericDistance(a.Float, b.Float)
	case domain.ParamInt:
		return numericDistance(float64(a.Int), float64(b.Int))
	default:
		if a.Equal(b) {
			return 0
		}
		return 1
	}
}

func numericDistance(x, y float64) float64 {
	denom := math.Abs(x) + math.Abs(y)
	if denom < 1 {
		denom = 1
	}
	return math.Abs(x-y) / denom
}

// ancestryDiversity is |unique parent ids| / population size. Zero for
// pools with fewer than two members.
func ancestryDiversity(genomes []*domain.Genome) float64 {
	if len(genomes) < 2 {
		return 0
	}

	unique := make(map[string]struct{})
	for _, g := range genomes {
		for _, pid := range g.ParentIDs {
			unique[pid] = struct{}{}
		}
	}
	return float64(len(unique)) / float64(len(genomes))
}
