package memory

import (
	"context"
	"sort"
	"sync"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/storage"
)

// GenomeStore is an in-memory implementation of storage.GenomeStore.
type GenomeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Genome // keyed by genome id
}

// NewGenomeStore creates a new in-memory genome store.
func NewGenomeStore() *GenomeStore {
	return &GenomeStore{
		data: make(map[string]*domain.Genome),
	}
}

// Compile-time interface check.
var _ storage.GenomeStore = (*GenomeStore)(nil)

// Insert adds a new genome. Returns ErrDuplicateKey if the id exists.
func (s *GenomeStore) Insert(_ context.Context, g *domain.Genome) error {
	if g == nil || g.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[g.ID]; exists {
		return storage.ErrDuplicateKey
	}

	s.data[g.ID] = g.Clone()
	return nil
}

// Update refreshes an existing genome in place. Returns ErrNotFound if the
// id does not exist.
func (s *GenomeStore) Update(_ context.Context, g *domain.Genome) error {
	if g == nil || g.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[g.ID]; !exists {
		return storage.ErrNotFound
	}

	s.data[g.ID] = g.Clone()
	return nil
}

// GetByID retrieves a genome by id. Returns ErrNotFound if not exists.
func (s *GenomeStore) GetByID(_ context.Context, genomeID string) (*domain.Genome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, exists := s.data[genomeID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return g.Clone(), nil
}

// GetBySymbol retrieves all genomes for a symbol, ordered by birth time ASC.
func (s *GenomeStore) GetBySymbol(_ context.Context, symbol string) ([]*domain.Genome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Genome
	for _, g := range s.data {
		if g.Symbol == symbol {
			result = append(result, g.Clone())
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].BirthTime.Equal(result[j].BirthTime) {
			return result[i].ID < result[j].ID
		}
		return result[i].BirthTime.Before(result[j].BirthTime)
	})
	return result, nil
}

// Delete removes a genome. Returns ErrNotFound if the id does not exist.
func (s *GenomeStore) Delete(_ context.Context, genomeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[genomeID]; !exists {
		return storage.ErrNotFound
	}
	delete(s.data, genomeID)
	return nil
}
