package domain

import "time"

// GenerationMetadata records the outcome of one completed evolutionary cycle.
// The engine keeps a capped FIFO ring of these; the generation store archives
// them durably.
type GenerationMetadata struct {
	Generation     int       `json:"generation"`
	Timestamp      time.Time `json:"timestamp"`
	Regime         Regime    `json:"regime"`
	AvgFitness     float64   `json:"avg_fitness"`
	BestFitness    float64   `json:"best_fitness"`
	PopulationSize int       `json:"population_size"`
	OffspringBred  int       `json:"offspring_bred"`

	// Diversity metrics; all zero for a single-member pool.
	ParameterDiversity float64 `json:"parameter_diversity"`
	FitnessDiversity   float64 `json:"fitness_diversity"`
	AncestryDiversity  float64 `json:"ancestry_diversity"`
}
