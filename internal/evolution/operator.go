package evolution

import (
	"fmt"
	"math/rand"
	"time"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/idhash"
)

// MutationOperator breeds new genomes from existing ones. Implementations
// are pure with respect to their inputs: parents are never modified.
type MutationOperator interface {
	// Mutate returns a new genome derived from g with each parameter
	// perturbed independently with probability rate.
	Mutate(g *domain.Genome, rate float64) (*domain.Genome, error)

	// CrossOver returns a new genome mixing parameters of a and b.
	CrossOver(a, b *domain.Genome) (*domain.Genome, error)
}

// JitterOperator is the default MutationOperator: float parameters are
// jittered relatively, ints stepped, bools flipped. String parameters pass
// through unchanged.
type JitterOperator struct {
	rng *rand.Rand

	// FloatSpread is the relative jitter half-width for floats (default 0.2).
	FloatSpread float64
}

// NewJitterOperator creates a seeded default operator.
func NewJitterOperator(seed int64) *JitterOperator {
	return &JitterOperator{
		rng:         rand.New(rand.NewSource(seed)),
		FloatSpread: 0.2,
	}
}

// Compile-time interface check.
var _ MutationOperator = (*JitterOperator)(nil)

// Mutate perturbs each parameter independently with probability rate.
func (o *JitterOperator) Mutate(g *domain.Genome, rate float64) (*domain.Genome, error) {
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("mutate parent: %w", err)
	}

	child := g.Clone()
	for key, v := range child.Parameters {
		if o.rng.Float64() >= rate {
			continue
		}
		switch v.Kind {
		case domain.ParamFloat:
			jitter := 1 + o.FloatSpread*(2*o.rng.Float64()-1)
			child.Parameters[key] = domain.FloatParam(v.Float * jitter)
		case domain.ParamInt:
			step := int64(1)
			if o.rng.Intn(2) == 0 {
				step = -1
			}
			next := v.Int + step
			if next < 1 {
				next = 1
			}
			child.Parameters[key] = domain.IntParam(next)
		case domain.ParamBool:
			child.Parameters[key] = domain.BoolParam(!v.Bool)
		case domain.ParamString:
			// No meaningful neighborhood for free strings.
		}
	}

	o.finalize(child, g.ID)
	return child, nil
}

// CrossOver picks each shared parameter uniformly from one parent; keys
// unique to either parent are inherited as-is.
func (o *JitterOperator) CrossOver(a, b *domain.Genome) (*domain.Genome, error) {
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("crossover parent a: %w", err)
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("crossover parent b: %w", err)
	}

	child := a.Clone()
	for key, bv := range b.Parameters {
		if _, shared := child.Parameters[key]; !shared {
			child.Parameters[key] = bv
			continue
		}
		if o.rng.Intn(2) == 1 {
			child.Parameters[key] = bv
		}
	}

	o.finalize(child, a.ID, b.ID)
	return child, nil
}

// finalize stamps identity fields on a bred child. Generation is stamped
// later by the engine, which owns the counter.
func (o *JitterOperator) finalize(child *domain.Genome, parentIDs ...string) {
	now := time.Now()
	child.ParentIDs = parentIDs
	child.BirthTime = now
	child.Version = 0
	child.Performance = domain.PerformanceMetrics{}
	child.ID = idhash.ComputeGenomeID(child.Symbol, child.StrategyType, child.Generation, child.Parameters, now.UnixNano())
}
