package memory

import (
	"context"
	"sort"
	"sync"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/storage"
)

// GenerationStore is an in-memory implementation of storage.GenerationStore.
type GenerationStore struct {
	mu   sync.RWMutex
	data []*domain.GenerationMetadata
}

// NewGenerationStore creates a new in-memory generation archive.
func NewGenerationStore() *GenerationStore {
	return &GenerationStore{}
}

// Compile-time interface check.
var _ storage.GenerationStore = (*GenerationStore)(nil)

// Insert archives one generation record.
func (s *GenerationStore) Insert(_ context.Context, m *domain.GenerationMetadata) error {
	if m == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy := *m
	s.data = append(s.data, &copy)
	return nil
}

// GetRange retrieves records with generation in [fromGen, toGen] inclusive,
// ordered by generation ASC.
func (s *GenerationStore) GetRange(_ context.Context, fromGen, toGen int) ([]*domain.GenerationMetadata, error) {
	if fromGen < 0 || toGen < fromGen {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.GenerationMetadata
	for _, m := range s.data {
		if m.Generation < fromGen || m.Generation > toGen {
			continue
		}
		copy := *m
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Generation < result[j].Generation
	})
	return result, nil
}
