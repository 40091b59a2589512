package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/storage"
)

// PerformanceStore is an in-memory implementation of storage.PerformanceStore.
// It needs a GenomeStore to materialize genomes for ranked queries.
type PerformanceStore struct {
	genomes *GenomeStore

	mu      sync.RWMutex
	records map[string][]*domain.PerformanceRecord // keyed by genome id, append order
}

// NewPerformanceStore creates a new in-memory performance store backed by
// the given genome store.
func NewPerformanceStore(genomes *GenomeStore) *PerformanceStore {
	return &PerformanceStore{
		genomes: genomes,
		records: make(map[string][]*domain.PerformanceRecord),
	}
}

// Compile-time interface check.
var _ storage.PerformanceStore = (*PerformanceStore)(nil)

// RecordStrategyPerformance appends one performance observation.
func (s *PerformanceStore) RecordStrategyPerformance(_ context.Context, rec *domain.PerformanceRecord) error {
	if rec == nil || rec.GenomeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *rec
	if copy.Metrics.CrossChain != nil {
		cc := *rec.Metrics.CrossChain
		copy.Metrics.CrossChain = &cc
	}
	s.records[rec.GenomeID] = append(s.records[rec.GenomeID], &copy)
	return nil
}

// QueryTopPerforming returns genomes ranked by the score of their latest
// record, descending. Genomes at or below MinScore are excluded, as are
// genomes with no record at all.
func (s *PerformanceStore) QueryTopPerforming(ctx context.Context, q domain.TopQuery) ([]domain.ScoredGenome, error) {
	if q.Symbol == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	type scored struct {
		genomeID string
		score    float64
	}
	var candidates []scored
	for genomeID, recs := range s.records {
		latest := latestMatching(recs, q)
		if latest == nil {
			continue
		}
		score := latest.Metrics.Score()
		if score <= q.MinScore {
			continue
		}
		candidates = append(candidates, scored{genomeID: genomeID, score: score})
	}
	s.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score == candidates[j].score {
			return candidates[i].genomeID < candidates[j].genomeID
		}
		return candidates[i].score > candidates[j].score
	})

	if q.Limit > 0 && len(candidates) > q.Limit {
		candidates = candidates[:q.Limit]
	}

	result := make([]domain.ScoredGenome, 0, len(candidates))
	for _, c := range candidates {
		g, err := s.genomes.GetByID(ctx, c.genomeID)
		if err != nil {
			// Performance recorded for a genome that was since pruned;
			// skip rather than fail the whole query.
			continue
		}
		result = append(result, domain.ScoredGenome{Genome: g, Score: c.score})
	}
	return result, nil
}

// latestMatching returns the record with the greatest RecordedAt that
// matches symbol and, when set, regime.
func latestMatching(recs []*domain.PerformanceRecord, q domain.TopQuery) *domain.PerformanceRecord {
	var latest *domain.PerformanceRecord
	for _, rec := range recs {
		if rec.Symbol != q.Symbol {
			continue
		}
		if q.Regime != nil && rec.Regime != *q.Regime {
			continue
		}
		if latest == nil || rec.RecordedAt.After(latest.RecordedAt) {
			latest = rec
		}
	}
	return latest
}

// GetHistory retrieves records for a genome within [from, to] inclusive,
// ordered by recording time ASC.
func (s *PerformanceStore) GetHistory(_ context.Context, genomeID string, from, to time.Time) ([]*domain.PerformanceRecord, error) {
	if genomeID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PerformanceRecord
	for _, rec := range s.records[genomeID] {
		if rec.RecordedAt.Before(from) || rec.RecordedAt.After(to) {
			continue
		}
		copy := *rec
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].RecordedAt.Before(result[j].RecordedAt)
	})
	return result, nil
}

// GetLatest retrieves the most recent record for a genome. Returns
// ErrNotFound if no record exists.
func (s *PerformanceStore) GetLatest(_ context.Context, genomeID string) (*domain.PerformanceRecord, error) {
	if genomeID == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[genomeID]
	if len(recs) == 0 {
		return nil, storage.ErrNotFound
	}

	latest := recs[0]
	for _, rec := range recs[1:] {
		if rec.RecordedAt.After(latest.RecordedAt) {
			latest = rec
		}
	}
	copy := *latest
	return &copy, nil
}
