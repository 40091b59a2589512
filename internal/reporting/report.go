package reporting

import (
	"time"

	"strategy-swarm/internal/domain"
)

// Report is the evolution-history report for one symbol.
type Report struct {
	GeneratedAt time.Time
	Symbol      string

	Summary Summary

	// Generations, ordered by generation ASC.
	Generations []GenerationRow

	// TopGenomes, ranked by score descending.
	TopGenomes []TopGenomeRow
}

// Summary aggregates the reported generation range.
type Summary struct {
	FirstGeneration int
	LastGeneration  int
	BestFitness     float64
	BestGeneration  int
	TotalOffspring  int
	FinalPopulation int

	// RegimeCounts counts generations completed under each regime.
	RegimeCounts map[domain.Regime]int
}

// GenerationRow is one generation in the history table.
type GenerationRow struct {
	Generation         int
	Timestamp          time.Time
	Regime             domain.Regime
	AvgFitness         float64
	BestFitness        float64
	PopulationSize     int
	OffspringBred      int
	ParameterDiversity float64
	FitnessDiversity   float64
	AncestryDiversity  float64
}

// TopGenomeRow is one entry in the best-genomes table.
type TopGenomeRow struct {
	GenomeID     string
	ShortID      string
	StrategyType string
	Generation   int
	Score        float64
	CrossChain   bool
}
