package domain

import "time"

// PerformanceRecord is one persisted performance observation for a genome.
// Records are append-only; fitness derivation reads the latest record per
// genome.
type PerformanceRecord struct {
	GenomeID       string             `json:"genome_id"`
	Symbol         string             `json:"symbol"`
	Regime         Regime             `json:"regime"`
	Metrics        PerformanceMetrics `json:"metrics"`
	CyclesObserved uint64             `json:"cycles_observed"`
	RecordedAt     time.Time          `json:"recorded_at"`
}

// TopQuery selects the best-performing genomes for a symbol, optionally
// narrowed to one regime.
type TopQuery struct {
	Symbol   string
	Regime   *Regime // nil matches any regime
	Limit    int
	MinScore float64 // exclusive lower bound on score
}

// ScoredGenome pairs a genome with its derived performance score.
type ScoredGenome struct {
	Genome *Genome
	Score  float64
}
