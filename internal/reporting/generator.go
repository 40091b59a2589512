package reporting

import (
	"context"
	"fmt"
	"time"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/idhash"
	"strategy-swarm/internal/storage"
)

// topGenomeLimit caps the best-genomes table.
const topGenomeLimit = 10

// Generator produces evolution reports from stored data.
type Generator struct {
	generations storage.GenerationStore
	performance storage.PerformanceStore
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(generations storage.GenerationStore, performance storage.PerformanceStore) *Generator {
	return &Generator{
		generations: generations,
		performance: performance,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a report for one symbol over [fromGen, toGen].
func (g *Generator) Generate(ctx context.Context, symbol string, fromGen, toGen int) (*Report, error) {
	records, err := g.generations.GetRange(ctx, fromGen, toGen)
	if err != nil {
		return nil, fmt.Errorf("load generation range: %w", err)
	}

	rows := make([]GenerationRow, 0, len(records))
	for _, m := range records {
		rows = append(rows, GenerationRow{
			Generation:         m.Generation,
			Timestamp:          m.Timestamp,
			Regime:             m.Regime,
			AvgFitness:         m.AvgFitness,
			BestFitness:        m.BestFitness,
			PopulationSize:     m.PopulationSize,
			OffspringBred:      m.OffspringBred,
			ParameterDiversity: m.ParameterDiversity,
			FitnessDiversity:   m.FitnessDiversity,
			AncestryDiversity:  m.AncestryDiversity,
		})
	}

	top, err := g.topGenomes(ctx, symbol)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt: g.now(),
		Symbol:      symbol,
		Summary:     summarize(rows),
		Generations: rows,
		TopGenomes:  top,
	}, nil
}

// topGenomes loads the current best performers for the symbol.
func (g *Generator) topGenomes(ctx context.Context, symbol string) ([]TopGenomeRow, error) {
	scored, err := g.performance.QueryTopPerforming(ctx, domain.TopQuery{
		Symbol: symbol,
		Limit:  topGenomeLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("query top genomes: %w", err)
	}

	rows := make([]TopGenomeRow, 0, len(scored))
	for _, sg := range scored {
		rows = append(rows, TopGenomeRow{
			GenomeID:     sg.Genome.ID,
			ShortID:      idhash.ShortID(sg.Genome.ID),
			StrategyType: sg.Genome.StrategyType,
			Generation:   sg.Genome.Generation,
			Score:        sg.Score,
			CrossChain:   sg.Genome.CrossChain,
		})
	}
	return rows, nil
}

// summarize aggregates the generation rows.
func summarize(rows []GenerationRow) Summary {
	s := Summary{RegimeCounts: make(map[domain.Regime]int)}
	if len(rows) == 0 {
		return s
	}

	s.FirstGeneration = rows[0].Generation
	s.LastGeneration = rows[len(rows)-1].Generation
	s.FinalPopulation = rows[len(rows)-1].PopulationSize
	s.BestGeneration = rows[0].Generation
	s.BestFitness = rows[0].BestFitness

	for _, row := range rows {
		s.TotalOffspring += row.OffspringBred
		s.RegimeCounts[row.Regime]++
		if row.BestFitness > s.BestFitness {
			s.BestFitness = row.BestFitness
			s.BestGeneration = row.Generation
		}
	}
	return s
}
