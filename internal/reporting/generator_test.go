package reporting

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/storage/memory"
)

func seedHistory(t *testing.T, store *memory.GenerationStore) {
	t.Helper()
	ctx := context.Background()

	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	regimes := []domain.Regime{domain.RegimeBull, domain.RegimeBull, domain.RegimeVolatile}
	best := []float64{0.4, 0.7, 0.6}

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Insert(ctx, &domain.GenerationMetadata{
			Generation:     i + 1,
			Timestamp:      base.Add(time.Duration(i) * time.Minute),
			Regime:         regimes[i],
			AvgFitness:     best[i] / 2,
			BestFitness:    best[i],
			PopulationSize: 5 + i,
			OffspringBred:  2,
		}))
	}
}

func seedPerformance(t *testing.T, genomes *memory.GenomeStore, perf *memory.PerformanceStore) {
	t.Helper()
	ctx := context.Background()

	g := &domain.Genome{
		ID:            "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899",
		Symbol:        "SOL-USDC",
		StrategyType:  "MOMENTUM",
		SchemaVersion: domain.GenomeSchemaVersion,
		Generation:    2,
		BirthTime:     time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, genomes.Insert(ctx, g))
	require.NoError(t, perf.RecordStrategyPerformance(ctx, &domain.PerformanceRecord{
		GenomeID:   g.ID,
		Symbol:     "SOL-USDC",
		Regime:     domain.RegimeBull,
		Metrics:    domain.PerformanceMetrics{SharpeRatio: 2, MaxDrawdown: 1},
		RecordedAt: time.Date(2026, 4, 1, 1, 0, 0, 0, time.UTC),
	}))
}

func TestGenerator_Generate(t *testing.T) {
	generations := memory.NewGenerationStore()
	genomes := memory.NewGenomeStore()
	perf := memory.NewPerformanceStore(genomes)
	seedHistory(t, generations)
	seedPerformance(t, genomes, perf)

	fixed := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	gen := NewGenerator(generations, perf).WithClock(func() time.Time { return fixed })

	report, err := gen.Generate(context.Background(), "SOL-USDC", 1, 3)
	require.NoError(t, err)

	assert.Equal(t, fixed, report.GeneratedAt)
	assert.Equal(t, "SOL-USDC", report.Symbol)
	require.Len(t, report.Generations, 3)

	assert.Equal(t, 1, report.Summary.FirstGeneration)
	assert.Equal(t, 3, report.Summary.LastGeneration)
	assert.InDelta(t, 0.7, report.Summary.BestFitness, 1e-9)
	assert.Equal(t, 2, report.Summary.BestGeneration)
	assert.Equal(t, 6, report.Summary.TotalOffspring)
	assert.Equal(t, 7, report.Summary.FinalPopulation)
	assert.Equal(t, 2, report.Summary.RegimeCounts[domain.RegimeBull])
	assert.Equal(t, 1, report.Summary.RegimeCounts[domain.RegimeVolatile])

	require.Len(t, report.TopGenomes, 1)
	assert.Equal(t, "MOMENTUM", report.TopGenomes[0].StrategyType)
	assert.InDelta(t, 0.6, report.TopGenomes[0].Score, 1e-9)
}

func TestGenerator_GenerateEmptyRange(t *testing.T) {
	generations := memory.NewGenerationStore()
	genomes := memory.NewGenomeStore()
	perf := memory.NewPerformanceStore(genomes)

	gen := NewGenerator(generations, perf)

	report, err := gen.Generate(context.Background(), "SOL-USDC", 1, 10)
	require.NoError(t, err)
	assert.Empty(t, report.Generations)
	assert.Empty(t, report.TopGenomes)
	assert.Equal(t, 0, report.Summary.TotalOffspring)
}

func TestRenderMarkdown(t *testing.T) {
	generations := memory.NewGenerationStore()
	genomes := memory.NewGenomeStore()
	perf := memory.NewPerformanceStore(genomes)
	seedHistory(t, generations)
	seedPerformance(t, genomes, perf)

	gen := NewGenerator(generations, perf)
	report, err := gen.Generate(context.Background(), "SOL-USDC", 1, 3)
	require.NoError(t, err)

	md := RenderMarkdown(report)
	assert.Contains(t, md, "# Evolution Report: SOL-USDC")
	assert.Contains(t, md, "## Generation History")
	assert.Contains(t, md, "| BULL | 2 |")
	assert.Contains(t, md, "| VOLATILE | 1 |")
	assert.Contains(t, md, "## Top Genomes")
	assert.Contains(t, md, "MOMENTUM")
}

func TestRenderMarkdownEmpty(t *testing.T) {
	md := RenderMarkdown(&Report{Symbol: "SOL-USDC"})
	assert.Contains(t, md, "No generation history available.")
	assert.Contains(t, md, "No scored genomes available.")
}

func TestRenderCSV(t *testing.T) {
	rows := []GenerationRow{
		{
			Generation:     1,
			Timestamp:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			Regime:         domain.RegimeBull,
			AvgFitness:     0.2,
			BestFitness:    0.4,
			PopulationSize: 5,
			OffspringBred:  2,
		},
	}

	csv := RenderCSV(rows)
	lines := strings.Split(strings.TrimSpace(csv), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "generation,timestamp,regime"))
	assert.Equal(t, "1,2026-04-01T00:00:00Z,BULL,0.200000,0.400000,5,2,0.000000,0.000000,0.000000", lines[1])
}
