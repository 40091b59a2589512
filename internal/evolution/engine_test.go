package evolution

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/regime"
	"strategy-swarm/internal/storage/memory"
	"strategy-swarm/internal/telemetry"
)

// testFixture bundles an engine with its backing stores.
type testFixture struct {
	engine  *Engine
	genomes *memory.GenomeStore
	perf    *memory.PerformanceStore
}

func newFixture(t *testing.T, cfg Config) *testFixture {
	t.Helper()

	if cfg.Symbol == "" {
		cfg.Symbol = "SOL-USDC"
	}
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}

	genomes := memory.NewGenomeStore()
	perf := memory.NewPerformanceStore(genomes)

	engine := New(Options{
		Config:      cfg,
		Performance: perf,
		Genomes:     genomes,
		Generations: memory.NewGenerationStore(),
		Regimes:     regime.NewStaticSource(domain.RegimeSideways, 0.5),
		Telemetry:   telemetry.Nop{},
	})
	return &testFixture{engine: engine, genomes: genomes, perf: perf}
}

// addGenome inserts a pool genome with a recorded score. A negative score
// means no performance record at all.
func (f *testFixture) addGenome(t *testing.T, id string, score float64) {
	t.Helper()

	g := &domain.Genome{
		ID:            id,
		Symbol:        "SOL-USDC",
		StrategyType:  "MOMENTUM",
		SchemaVersion: domain.GenomeSchemaVersion,
		Parameters: map[string]domain.ParamValue{
			"lookback":  domain.IntParam(20),
			"threshold": domain.FloatParam(0.01),
		},
		BirthTime: time.Now(),
	}
	require.NoError(t, f.engine.AddGenome(g))

	if score >= 0 {
		// WinRate carries the whole target: score = 0.2·(1-0) + 0.3·winRate
		// would distort; zero out the drawdown term by setting MaxDrawdown=1.
		rec := &domain.PerformanceRecord{
			GenomeID:   id,
			Symbol:     "SOL-USDC",
			Regime:     domain.RegimeSideways,
			Metrics:    metricsWithScore(score),
			RecordedAt: time.Now(),
		}
		require.NoError(t, f.perf.RecordStrategyPerformance(context.Background(), rec))
	}
}

// metricsWithScore builds metrics whose composite score is exactly target:
// MaxDrawdown=1 cancels the drawdown term and sharpe carries target/0.3.
func metricsWithScore(target float64) domain.PerformanceMetrics {
	return domain.PerformanceMetrics{
		SharpeRatio: target / 0.3,
		MaxDrawdown: 1,
	}
}

func TestMetricsWithScore(t *testing.T) {
	assert.InDelta(t, 0.9, metricsWithScore(0.9).Score(), 1e-9)
}

func TestEngine_PruningPolicy(t *testing.T) {
	f := newFixture(t, Config{
		MaxStrategiesInPool:     2,
		MinPerformanceThreshold: 0.3,
	})
	f.addGenome(t, "A", 0.9)
	f.addGenome(t, "B", 0.5)
	f.addGenome(t, "C", 0.1)

	f.engine.ExecuteMutationCycle(context.Background())

	// C is below threshold in the bottom band and must go; B is in the
	// bottom band but above threshold and survives.
	top := f.engine.TopN(context.Background(), 10)
	ids := make([]string, 0, len(top))
	for _, s := range top {
		ids = append(ids, s.Genome.ID)
	}
	assert.ElementsMatch(t, []string{"A", "B"}, ids)
}

func TestEngine_PoolBoundAfterCycles(t *testing.T) {
	f := newFixture(t, Config{
		MaxStrategiesInPool:     6,
		MinPerformanceThreshold: 0.3,
		OffspringPerCycle:       4,
	})
	for i := 0; i < 3; i++ {
		f.addGenome(t, fmt.Sprintf("g%d", i), 0.5+0.1*float64(i))
	}

	for i := 0; i < 10; i++ {
		f.engine.ExecuteMutationCycle(context.Background())
		assert.LessOrEqual(t, f.engine.PoolSize(), 6, "cycle %d exceeded pool bound", i)
	}
}

func TestEngine_GenerationAdvancesByExactlyOne(t *testing.T) {
	// Pool at capacity: zero offspring, counter still advances.
	f := newFixture(t, Config{
		MaxStrategiesInPool: 2,
		OffspringPerCycle:   5,
	})
	f.addGenome(t, "A", 0.9)
	f.addGenome(t, "B", 0.5)

	for want := 1; want <= 3; want++ {
		f.engine.ExecuteMutationCycle(context.Background())
		assert.Equal(t, want, f.engine.Generation())
	}
}

func TestEngine_ZeroOffspringAtCapacity(t *testing.T) {
	f := newFixture(t, Config{
		MaxStrategiesInPool: 2,
		OffspringPerCycle:   5,
	})
	f.addGenome(t, "A", 0.9)
	f.addGenome(t, "B", 0.5)

	f.engine.ExecuteMutationCycle(context.Background())

	assert.Equal(t, 2, f.engine.PoolSize())
	history := f.engine.GenerationHistory()
	require.Len(t, history, 1)
	assert.Equal(t, 0, history[0].OffspringBred)
}

func TestEngine_BreedsUpToBudget(t *testing.T) {
	f := newFixture(t, Config{
		MaxStrategiesInPool: 10,
		OffspringPerCycle:   3,
	})
	f.addGenome(t, "A", 0.9)
	f.addGenome(t, "B", 0.5)

	f.engine.ExecuteMutationCycle(context.Background())

	assert.Equal(t, 5, f.engine.PoolSize())
	history := f.engine.GenerationHistory()
	require.Len(t, history, 1)
	assert.Equal(t, 3, history[0].OffspringBred)
}

func TestEngine_OffspringLineageStamped(t *testing.T) {
	f := newFixture(t, Config{
		MaxStrategiesInPool: 4,
		OffspringPerCycle:   1,
	})
	f.addGenome(t, "A", 0.9)

	f.engine.ExecuteMutationCycle(context.Background())

	top := f.engine.TopN(context.Background(), 10)
	require.Len(t, top, 2)

	var child *domain.Genome
	for _, s := range top {
		if s.Genome.ID != "A" {
			child = s.Genome
		}
	}
	require.NotNil(t, child)
	assert.Equal(t, []string{"A"}, child.ParentIDs)
	assert.Equal(t, 1, child.Generation)
	assert.False(t, child.BirthTime.IsZero())
	// No recorded performance: fitness exactly 0
	for _, s := range top {
		if s.Genome.ID == child.ID {
			assert.Equal(t, 0.0, s.Score)
		}
	}
}

func TestEngine_FitnessFloorZeroWithoutRecord(t *testing.T) {
	f := newFixture(t, Config{MaxStrategiesInPool: 4})
	f.addGenome(t, "unscored", -1) // no performance record

	assert.Equal(t, 0.0, f.engine.fitnessFor(context.Background(), "unscored"))
	assert.Equal(t, 0.0, f.engine.fitnessFor(context.Background(), "never-seen"))
}

func TestEngine_CrossChainBonuses(t *testing.T) {
	base := metricsWithScore(0.5)
	assert.InDelta(t, 0.5, fitnessFromMetrics(base), 1e-9)

	cc := base
	cc.CrossChain = &domain.CrossChainMetrics{
		SuccessRate:   0.8,
		AvgLatencyMs:  20_000,
		FeeSavingsUSD: 500,
	}
	// +0.08 success, +0.05 latency, +0.05 fee (capped from 0.5)
	assert.InDelta(t, 0.5+0.08+0.05+0.05, fitnessFromMetrics(cc), 1e-9)

	slow := base
	slow.CrossChain = &domain.CrossChainMetrics{SuccessRate: 0.8, AvgLatencyMs: 60_000}
	assert.InDelta(t, 0.5+0.08, fitnessFromMetrics(slow), 1e-9)
}

func TestEngine_AdaptiveMutationRate(t *testing.T) {
	f := newFixture(t, Config{
		MaxStrategiesInPool:             4,
		BaseMutationProbability:         0.1,
		MaxIterationsWithoutImprovement: 5,
	})

	f.engine.stale = 0
	assert.InDelta(t, 0.1, f.engine.adaptiveMutationRate(), 1e-9)

	f.engine.stale = 4 // below the trigger
	assert.InDelta(t, 0.1, f.engine.adaptiveMutationRate(), 1e-9)

	f.engine.stale = 5
	assert.InDelta(t, 0.1*(1+1.0), f.engine.adaptiveMutationRate(), 1e-9)

	f.engine.stale = 1000 // capped
	assert.InDelta(t, 0.9, f.engine.adaptiveMutationRate(), 1e-9)
}

func TestEngine_ImprovementTracking(t *testing.T) {
	f := newFixture(t, Config{MaxStrategiesInPool: 2, OffspringPerCycle: 1})
	f.addGenome(t, "A", 0.5)
	f.addGenome(t, "B", 0.4)

	f.engine.ExecuteMutationCycle(context.Background())
	assert.Equal(t, 0, f.engine.stale, "first cycle improves over -inf")
	assert.InDelta(t, 0.5, f.engine.BestFitness(), 1e-9)

	// No new performance: no strict improvement
	f.engine.ExecuteMutationCycle(context.Background())
	assert.Equal(t, 1, f.engine.stale)

	// Record a better score for A
	rec := &domain.PerformanceRecord{
		GenomeID: "A", Symbol: "SOL-USDC", Regime: domain.RegimeSideways,
		Metrics: metricsWithScore(0.8), RecordedAt: time.Now(),
	}
	require.NoError(t, f.perf.RecordStrategyPerformance(context.Background(), rec))

	f.engine.ExecuteMutationCycle(context.Background())
	assert.Equal(t, 0, f.engine.stale)
	assert.InDelta(t, 0.8, f.engine.BestFitness(), 1e-9)
}

// faultyOperator fails after a configured number of successful breeds.
type faultyOperator struct {
	inner     MutationOperator
	succeed   int
	callCount int
}

func (o *faultyOperator) Mutate(g *domain.Genome, rate float64) (*domain.Genome, error) {
	o.callCount++
	if o.callCount > o.succeed {
		return nil, errors.New("operator exploded")
	}
	return o.inner.Mutate(g, rate)
}

func (o *faultyOperator) CrossOver(a, b *domain.Genome) (*domain.Genome, error) {
	o.callCount++
	if o.callCount > o.succeed {
		return nil, errors.New("operator exploded")
	}
	return o.inner.CrossOver(a, b)
}

func TestEngine_CycleErrorCaughtAndPartialOffspringRemain(t *testing.T) {
	genomes := memory.NewGenomeStore()
	perf := memory.NewPerformanceStore(genomes)

	engine := New(Options{
		Config: Config{
			Symbol:              "SOL-USDC",
			MaxStrategiesInPool: 10,
			OffspringPerCycle:   3,
			Seed:                42,
		},
		Performance: perf,
		Operator:    &faultyOperator{inner: NewJitterOperator(1), succeed: 1},
		Telemetry:   telemetry.Nop{},
	})

	g := &domain.Genome{
		ID: "A", Symbol: "SOL-USDC", StrategyType: "MOMENTUM",
		SchemaVersion: domain.GenomeSchemaVersion,
		Parameters:    map[string]domain.ParamValue{"lookback": domain.IntParam(20)},
	}
	require.NoError(t, engine.AddGenome(g))

	// Must not panic or propagate despite the mid-cycle fault.
	engine.ExecuteMutationCycle(context.Background())

	// One offspring was bred before the fault; it stays (no rollback).
	assert.Equal(t, 2, engine.PoolSize())
	// The generation counter still advanced.
	assert.Equal(t, 1, engine.Generation())
}

func TestEngine_HistoryRingCapped(t *testing.T) {
	f := newFixture(t, Config{
		MaxStrategiesInPool:   2,
		GenerationHistorySize: 3,
	})
	f.addGenome(t, "A", 0.5)
	f.addGenome(t, "B", 0.4)

	for i := 0; i < 5; i++ {
		f.engine.ExecuteMutationCycle(context.Background())
	}

	history := f.engine.GenerationHistory()
	require.Len(t, history, 3)
	// Oldest entries evicted FIFO
	assert.Equal(t, 3, history[0].Generation)
	assert.Equal(t, 5, history[2].Generation)
}

func TestEngine_SeedFromStore(t *testing.T) {
	f := newFixture(t, Config{MaxStrategiesInPool: 2})
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		g := &domain.Genome{
			ID: id, Symbol: "SOL-USDC", StrategyType: "MOMENTUM",
			SchemaVersion: domain.GenomeSchemaVersion,
			BirthTime:     time.Now(),
		}
		require.NoError(t, f.genomes.Insert(ctx, g))
	}

	loaded, err := f.engine.SeedFromStore(ctx)
	require.NoError(t, err)
	// Bounded by pool capacity
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 2, f.engine.PoolSize())
}

func TestEngine_TopNClampsCount(t *testing.T) {
	f := newFixture(t, Config{MaxStrategiesInPool: 4})
	f.addGenome(t, "A", 0.5)
	f.addGenome(t, "B", 0.8)
	ctx := context.Background()

	assert.Len(t, f.engine.TopN(ctx, 10), 2)
	assert.Empty(t, f.engine.TopN(ctx, 0))
	assert.Empty(t, f.engine.TopN(ctx, -3))
}

func TestEngine_AddGenomeRejectsDuplicates(t *testing.T) {
	f := newFixture(t, Config{MaxStrategiesInPool: 4})
	f.addGenome(t, "A", 0.5)

	g := &domain.Genome{
		ID: "A", Symbol: "SOL-USDC", StrategyType: "MOMENTUM",
		SchemaVersion: domain.GenomeSchemaVersion,
	}
	err := f.engine.AddGenome(g)
	assert.Error(t, err)
}
