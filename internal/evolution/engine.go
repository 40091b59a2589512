// Package evolution implements the genome pool manager: periodic cycles
// that prune low performers, select parents, breed offspring, and record
// generation lineage and diversity metrics.
package evolution

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/regime"
	"strategy-swarm/internal/storage"
	"strategy-swarm/internal/telemetry"
)

// Config holds the evolutionary parameters of an Engine.
type Config struct {
	Symbol string

	MaxStrategiesInPool     int     // pool size bound (default 50)
	MinPerformanceThreshold float64 // prune floor for the bottom band
	OffspringPerCycle       int     // breeding target per cycle (default 5)

	BaseMutationProbability float64 // default 0.1
	CrossoverProbability    float64 // default 0.3

	// MaxIterationsWithoutImprovement triggers adaptive mutation-rate
	// scaling once reached (default 10).
	MaxIterationsWithoutImprovement int

	// GenerationHistorySize caps the in-memory generation ring (default 100).
	GenerationHistorySize int

	// EnableBiasedSelection turns on regime-bias-weighted roulette parent
	// selection; otherwise plain truncation selection is used.
	EnableBiasedSelection bool

	// EnableCrossChain turns on cross-chain variant promotion.
	EnableCrossChain bool

	// Seed seeds the engine's random source; 0 uses the current time.
	Seed int64
}

// adaptiveRateCap bounds the scaled mutation probability.
const adaptiveRateCap = 0.9

// Options wires an Engine's collaborators.
type Options struct {
	Config      Config
	Performance storage.PerformanceStore
	Genomes     storage.GenomeStore     // optional, used by Seed/persistOffspring
	Generations storage.GenerationStore // optional durable archive
	Regimes     regime.Source
	Operator    MutationOperator // default: NewJitterOperator
	Bias        BiasModel        // default: NewTableBiasModel
	Telemetry   telemetry.Sink
	Logger      *log.Logger
}

// Engine owns the bounded genome pool. The pool is exclusively owned by
// the engine; cycles are serialized by its mutex and agents only ever see
// genome copies.
type Engine struct {
	cfg Config

	performance storage.PerformanceStore
	genomes     storage.GenomeStore
	generations storage.GenerationStore
	regimes     regime.Source
	operator    MutationOperator
	bias        BiasModel
	sink        telemetry.Sink
	logger      *log.Logger

	mu          sync.Mutex
	pool        map[string]*domain.Genome
	generation  int
	bestFitness float64
	stale       int // iterations since strict best-fitness improvement
	history     []*domain.GenerationMetadata
	rng         *rand.Rand
}

// New creates an Engine with an empty pool.
func New(opts Options) *Engine {
	cfg := opts.Config
	if cfg.MaxStrategiesInPool <= 0 {
		cfg.MaxStrategiesInPool = 50
	}
	if cfg.OffspringPerCycle <= 0 {
		cfg.OffspringPerCycle = 5
	}
	if cfg.BaseMutationProbability <= 0 {
		cfg.BaseMutationProbability = 0.1
	}
	if cfg.CrossoverProbability <= 0 {
		cfg.CrossoverProbability = 0.3
	}
	if cfg.MaxIterationsWithoutImprovement <= 0 {
		cfg.MaxIterationsWithoutImprovement = 10
	}
	if cfg.GenerationHistorySize <= 0 {
		cfg.GenerationHistorySize = 100
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	operator := opts.Operator
	if operator == nil {
		operator = NewJitterOperator(seed)
	}
	bias := opts.Bias
	if bias == nil {
		bias = NewTableBiasModel()
	}
	sink := opts.Telemetry
	if sink == nil {
		sink = telemetry.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Engine{
		cfg:         cfg,
		performance: opts.Performance,
		genomes:     opts.Genomes,
		generations: opts.Generations,
		regimes:     opts.Regimes,
		operator:    operator,
		bias:        bias,
		sink:        sink,
		logger:      logger,
		pool:        make(map[string]*domain.Genome),
		bestFitness: math.Inf(-1),
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// AddGenome inserts a genome into the pool (initial load or external
// sync). Rejects duplicates and structurally invalid genomes.
func (e *Engine) AddGenome(g *domain.Genome) error {
	if err := g.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.pool[g.ID]; exists {
		return storage.ErrDuplicateKey
	}
	e.pool[g.ID] = g.Clone()
	return nil
}

// SeedFromStore loads genomes for the configured symbol from the genome
// store into the pool, up to the pool bound.
func (e *Engine) SeedFromStore(ctx context.Context) (int, error) {
	if e.genomes == nil {
		return 0, nil
	}

	stored, err := e.genomes.GetBySymbol(ctx, e.cfg.Symbol)
	if err != nil {
		return 0, fmt.Errorf("seed pool: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	loaded := 0
	for _, g := range stored {
		if len(e.pool) >= e.cfg.MaxStrategiesInPool {
			break
		}
		if _, exists := e.pool[g.ID]; exists {
			continue
		}
		e.pool[g.ID] = g
		loaded++
	}
	return loaded, nil
}

// Reset empties the pool and clears improvement tracking. The generation
// counter is preserved; history is kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pool = make(map[string]*domain.Genome)
	e.bestFitness = math.Inf(-1)
	e.stale = 0
}

// PoolSize returns the current number of genomes in the pool.
func (e *Engine) PoolSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pool)
}

// Generation returns the current generation counter.
func (e *Engine) Generation() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generation
}

// BestFitness returns the best fitness seen across completed cycles.
// Returns 0 before the first completed cycle.
func (e *Engine) BestFitness() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if math.IsInf(e.bestFitness, -1) {
		return 0
	}
	return e.bestFitness
}

// TopN returns the n best genomes by current fitness, descending. The
// returned genomes are copies.
func (e *Engine) TopN(ctx context.Context, n int) []domain.ScoredGenome {
	e.mu.Lock()
	defer e.mu.Unlock()

	cands := e.candidatesLocked(e.fitnessTable(ctx))
	sortCandidatesByFitness(cands)
	if n < 0 {
		n = 0
	}
	if n > len(cands) {
		n = len(cands)
	}

	result := make([]domain.ScoredGenome, 0, n)
	for _, c := range cands[:n] {
		result = append(result, domain.ScoredGenome{Genome: c.genome.Clone(), Score: c.fitness})
	}
	return result
}

// GenerationHistory returns a copy of the in-memory generation ring,
// oldest first.
func (e *Engine) GenerationHistory() []*domain.GenerationMetadata {
	e.mu.Lock()
	defer e.mu.Unlock()

	result := make([]*domain.GenerationMetadata, len(e.history))
	for i, m := range e.history {
		copy := *m
		result[i] = &copy
	}
	return result
}

// ExecuteMutationCycle runs one evolutionary cycle: prune, breed, advance
// the generation, and record metadata. All faults inside the cycle are
// caught here and reported via telemetry; the call never panics or errors
// to its caller, and offspring inserted before a fault remain in the pool.
func (e *Engine) ExecuteMutationCycle(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	currentRegime := e.currentRegime(ctx)

	var cycleErr error
	offspring := 0
	func() {
		defer func() {
			if r := recover(); r != nil {
				cycleErr = fmt.Errorf("evolution cycle panic: %v", r)
			}
		}()
		offspring, cycleErr = e.runCycleLocked(ctx, currentRegime)
	}()

	// The generation counter advances by exactly 1 per cycle call,
	// offspring or not, fault or not.
	e.generation++

	fitness := e.fitnessTable(ctx)
	best := math.Inf(-1)
	avg := 0.0
	for _, f := range fitness {
		if f > best {
			best = f
		}
		avg += f
	}
	if len(fitness) > 0 {
		avg /= float64(len(fitness))
	} else {
		best = 0
	}

	if best > e.bestFitness {
		e.bestFitness = best
		e.stale = 0
	} else {
		e.stale++
	}

	genomes := make([]*domain.Genome, 0, len(e.pool))
	fitnessValues := make([]float64, 0, len(e.pool))
	for id, g := range e.pool {
		genomes = append(genomes, g)
		fitnessValues = append(fitnessValues, fitness[id])
	}

	meta := &domain.GenerationMetadata{
		Generation:         e.generation,
		Timestamp:          time.Now(),
		Regime:             currentRegime,
		AvgFitness:         avg,
		BestFitness:        maxOrZero(best),
		PopulationSize:     len(e.pool),
		OffspringBred:      offspring,
		ParameterDiversity: parameterDiversity(genomes),
		FitnessDiversity:   fitnessDiversity(fitnessValues),
		AncestryDiversity:  ancestryDiversity(genomes),
	}
	e.recordGenerationLocked(ctx, meta)

	if cycleErr != nil {
		e.logger.Printf("evolution: cycle %d error: %v", e.generation, cycleErr)
		e.sink.Emit("evolution.cycle_error", map[string]any{
			"generation": e.generation,
			"error":      cycleErr.Error(),
		})
		return
	}
	e.sink.Emit("evolution.cycle_complete", map[string]any{
		"generation":   e.generation,
		"offspring":    offspring,
		"pool_size":    len(e.pool),
		"best_fitness": meta.BestFitness,
	})
}

// runCycleLocked performs prune and breeding (steps 1–4). Caller holds the
// engine mutex.
func (e *Engine) runCycleLocked(ctx context.Context, currentRegime domain.Regime) (int, error) {
	fitness := e.fitnessTable(ctx)

	e.pruneLocked(fitness)

	rate := e.adaptiveMutationRate()

	// Offspring budget derives from free capacity: a full pool breeds
	// nothing this cycle, even right after pruning freed no room.
	budget := e.cfg.OffspringPerCycle
	if free := e.cfg.MaxStrategiesInPool - len(e.pool); free < budget {
		budget = free
	}
	if budget <= 0 {
		return 0, nil
	}

	opp := CrossChainOpportunity{}
	if e.cfg.EnableCrossChain {
		opp = OpportunityForRegime(currentRegime)
	}

	bred := 0
	for slot := 0; slot < budget; slot++ {
		cands := e.candidatesLocked(fitness)
		parents := selectParents(e.rng, cands, 2, currentRegime, e.bias, e.cfg.EnableBiasedSelection)
		if len(parents) == 0 {
			break // empty pool, nothing to breed from
		}

		child, err := e.breedLocked(parents, fitness, rate, opp)
		if err != nil {
			return bred, err
		}

		child.Generation = e.generation + 1
		if err := child.Validate(); err != nil {
			return bred, fmt.Errorf("offspring validation: %w", err)
		}

		e.pool[child.ID] = child
		fitness[child.ID] = 0 // no recorded performance yet
		bred++
		e.persistOffspring(ctx, child)

		e.sink.Emit("evolution.offspring", map[string]any{
			"genome_id":   child.ID,
			"parents":     child.ParentIDs,
			"generation":  child.Generation,
			"cross_chain": child.CrossChain,
		})
	}
	return bred, nil
}

// breedLocked produces one offspring: a cross-chain promotion when the
// lead parent qualifies and wins the opportunity draw, otherwise standard
// crossover or mutation.
func (e *Engine) breedLocked(parents []*domain.Genome, fitness map[string]float64, rate float64, opp CrossChainOpportunity) (*domain.Genome, error) {
	lead := parents[0]

	if opp.Eligible && !lead.CrossChain &&
		fitness[lead.ID] > crossChainPromotionThreshold &&
		e.rng.Float64() < opp.Score {
		child := crossChainVariant(lead, opp)
		e.sink.Emit("evolution.crosschain_promoted", map[string]any{
			"parent_id": lead.ID,
			"chains":    child.TargetChains,
		})
		return child, nil
	}

	if len(parents) == 2 && e.rng.Float64() < e.cfg.CrossoverProbability {
		return e.operator.CrossOver(parents[0], parents[1])
	}
	return e.operator.Mutate(lead, rate)
}

// pruneLocked enforces the pool bound: rank by fitness descending, always
// keep the top floor(0.8·max), and remove from the remaining bottom band
// only genomes below the performance threshold.
func (e *Engine) pruneLocked(fitness map[string]float64) {
	if len(e.pool) <= e.cfg.MaxStrategiesInPool {
		return
	}

	cands := e.candidatesLocked(fitness)
	sortCandidatesByFitness(cands)

	keepTop := int(math.Floor(0.8 * float64(e.cfg.MaxStrategiesInPool)))
	removed := 0
	for i, c := range cands {
		if i < keepTop {
			continue
		}
		if c.fitness < e.cfg.MinPerformanceThreshold {
			delete(e.pool, c.genome.ID)
			removed++
		}
	}

	if removed > 0 {
		e.sink.Emit("evolution.pruned", map[string]any{
			"removed":   removed,
			"pool_size": len(e.pool),
		})
	}
}

// adaptiveMutationRate scales the base rate once the engine has gone
// MaxIterationsWithoutImprovement cycles without a strict best-fitness
// improvement, capped at 0.9.
func (e *Engine) adaptiveMutationRate() float64 {
	rate := e.cfg.BaseMutationProbability
	if e.stale >= e.cfg.MaxIterationsWithoutImprovement {
		rate *= 1 + float64(e.stale)/float64(e.cfg.MaxIterationsWithoutImprovement)
		if rate > adaptiveRateCap {
			rate = adaptiveRateCap
		}
	}
	return rate
}

// candidatesLocked builds the candidate list from the current pool.
func (e *Engine) candidatesLocked(fitness map[string]float64) []candidate {
	cands := make([]candidate, 0, len(e.pool))
	for id, g := range e.pool {
		cands = append(cands, candidate{genome: g, fitness: fitness[id]})
	}
	return cands
}

// currentRegime reads the regime source; failures degrade to UNKNOWN.
func (e *Engine) currentRegime(ctx context.Context) domain.Regime {
	if e.regimes == nil {
		return domain.RegimeUnknown
	}
	reading, err := e.regimes.Current(ctx, e.cfg.Symbol)
	if err != nil {
		e.logger.Printf("evolution: regime read failed: %v", err)
		return domain.RegimeUnknown
	}
	return reading.Primary
}

// persistOffspring mirrors a bred genome into the genome store,
// best-effort: pool state is authoritative, store failures only log.
func (e *Engine) persistOffspring(ctx context.Context, g *domain.Genome) {
	if e.genomes == nil {
		return
	}
	if err := e.genomes.Insert(ctx, g); err != nil {
		e.logger.Printf("evolution: persist offspring %s: %v", g.ID, err)
	}
}

// recordGenerationLocked appends to the capped FIFO ring and archives to
// the generation store, best-effort.
func (e *Engine) recordGenerationLocked(ctx context.Context, meta *domain.GenerationMetadata) {
	e.history = append(e.history, meta)
	if len(e.history) > e.cfg.GenerationHistorySize {
		e.history = e.history[len(e.history)-e.cfg.GenerationHistorySize:]
	}

	if e.generations != nil {
		if err := e.generations.Insert(ctx, meta); err != nil {
			e.logger.Printf("evolution: archive generation %d: %v", meta.Generation, err)
		}
	}
}

func maxOrZero(v float64) float64 {
	if math.IsInf(v, -1) {
		return 0
	}
	return v
}
