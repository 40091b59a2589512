package storage

import (
	"context"
	"time"

	"strategy-swarm/internal/domain"
)

// GenomeStore provides access to genome storage.
type GenomeStore interface {
	// Insert adds a new genome. Returns ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, g *domain.Genome) error

	// Update refreshes parameters/metrics of an existing genome in place.
	// Returns ErrNotFound if the id does not exist.
	Update(ctx context.Context, g *domain.Genome) error

	// GetByID retrieves a genome by id. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, genomeID string) (*domain.Genome, error)

	// GetBySymbol retrieves all genomes for a symbol, ordered by birth time ASC.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.Genome, error)

	// Delete removes a genome. Returns ErrNotFound if the id does not exist.
	Delete(ctx context.Context, genomeID string) error
}

// PerformanceStore provides access to per-genome performance records.
// Records are append-only; queries rank genomes by the score derived from
// the latest record per genome.
type PerformanceStore interface {
	// RecordStrategyPerformance appends one performance observation.
	RecordStrategyPerformance(ctx context.Context, rec *domain.PerformanceRecord) error

	// QueryTopPerforming returns the best-performing genomes for the query,
	// ranked by score descending. Genomes at or below MinScore are excluded.
	QueryTopPerforming(ctx context.Context, q domain.TopQuery) ([]domain.ScoredGenome, error)

	// GetHistory retrieves performance records for a genome within
	// [from, to] inclusive, ordered by recording time ASC.
	GetHistory(ctx context.Context, genomeID string, from, to time.Time) ([]*domain.PerformanceRecord, error)

	// GetLatest retrieves the most recent record for a genome.
	// Returns ErrNotFound if no record exists.
	GetLatest(ctx context.Context, genomeID string) (*domain.PerformanceRecord, error)
}

// GenerationStore archives generation metadata durably. The evolution
// engine keeps its own bounded in-memory ring; this store is the long-term
// history behind it.
type GenerationStore interface {
	// Insert archives one generation record.
	Insert(ctx context.Context, m *domain.GenerationMetadata) error

	// GetRange retrieves records with generation in [fromGen, toGen]
	// inclusive, ordered by generation ASC.
	GetRange(ctx context.Context, fromGen, toGen int) ([]*domain.GenerationMetadata, error)
}
