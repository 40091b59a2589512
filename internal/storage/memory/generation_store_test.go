package memory

import (
	"context"
	"testing"
	"time"

	"strategy-swarm/internal/domain"
)

func TestGenerationStore_InsertAndRange(t *testing.T) {
	store := NewGenerationStore()
	ctx := context.Background()

	for _, gen := range []int{3, 1, 2, 5} {
		m := &domain.GenerationMetadata{
			Generation:     gen,
			Timestamp:      time.Unix(int64(gen)*100, 0),
			Regime:         domain.RegimeSideways,
			BestFitness:    float64(gen) * 0.1,
			PopulationSize: 10,
		}
		if err := store.Insert(ctx, m); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := store.GetRange(ctx, 1, 3)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(got))
	}
	for i, want := range []int{1, 2, 3} {
		if got[i].Generation != want {
			t.Errorf("Record %d: generation %d, want %d", i, got[i].Generation, want)
		}
	}
}

func TestGenerationStore_InvalidRange(t *testing.T) {
	store := NewGenerationStore()
	ctx := context.Background()

	if _, err := store.GetRange(ctx, -1, 5); err == nil {
		t.Error("Expected error for negative fromGen")
	}
	if _, err := store.GetRange(ctx, 5, 2); err == nil {
		t.Error("Expected error for inverted range")
	}
}

func TestGenerationStore_EmptyRange(t *testing.T) {
	store := NewGenerationStore()
	ctx := context.Background()

	got, err := store.GetRange(ctx, 0, 100)
	if err != nil {
		t.Fatalf("GetRange failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected empty result, got %d records", len(got))
	}
}
