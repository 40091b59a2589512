package clickhouse

import (
	"context"
	"fmt"
	"time"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/storage"
)

// GenerationStore implements storage.GenerationStore using ClickHouse.
type GenerationStore struct {
	conn *Conn
}

// NewGenerationStore creates a new GenerationStore.
func NewGenerationStore(conn *Conn) *GenerationStore {
	return &GenerationStore{conn: conn}
}

// Compile-time interface check.
var _ storage.GenerationStore = (*GenerationStore)(nil)

// Insert archives one generation record.
func (s *GenerationStore) Insert(ctx context.Context, m *domain.GenerationMetadata) error {
	if m == nil {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO generation_history (
			generation, timestamp, regime,
			avg_fitness, best_fitness, population_size, offspring_bred,
			parameter_diversity, fitness_diversity, ancestry_diversity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		uint32(m.Generation),
		m.Timestamp,
		string(m.Regime),
		m.AvgFitness,
		m.BestFitness,
		uint32(m.PopulationSize),
		uint32(m.OffspringBred),
		m.ParameterDiversity,
		m.FitnessDiversity,
		m.AncestryDiversity,
	)
	if err != nil {
		return fmt.Errorf("insert generation record: %w", err)
	}
	return nil
}

// InsertBulk archives multiple generation records in one batch.
func (s *GenerationStore) InsertBulk(ctx context.Context, records []*domain.GenerationMetadata) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO generation_history (
			generation, timestamp, regime,
			avg_fitness, best_fitness, population_size, offspring_bred,
			parameter_diversity, fitness_diversity, ancestry_diversity
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, m := range records {
		if m == nil {
			return storage.ErrInvalidInput
		}
		err = batch.Append(
			uint32(m.Generation),
			m.Timestamp,
			string(m.Regime),
			m.AvgFitness,
			m.BestFitness,
			uint32(m.PopulationSize),
			uint32(m.OffspringBred),
			m.ParameterDiversity,
			m.FitnessDiversity,
			m.AncestryDiversity,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetRange retrieves records with generation in [fromGen, toGen] inclusive,
// ordered by generation ASC.
func (s *GenerationStore) GetRange(ctx context.Context, fromGen, toGen int) ([]*domain.GenerationMetadata, error) {
	if fromGen < 0 || toGen < fromGen {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT generation, timestamp, regime,
		       avg_fitness, best_fitness, population_size, offspring_bred,
		       parameter_diversity, fitness_diversity, ancestry_diversity
		FROM generation_history
		WHERE generation >= ? AND generation <= ?
		ORDER BY generation ASC, timestamp ASC
	`

	rows, err := s.conn.Query(ctx, query, uint32(fromGen), uint32(toGen))
	if err != nil {
		return nil, fmt.Errorf("query generation range: %w", err)
	}
	defer rows.Close()

	var result []*domain.GenerationMetadata
	for rows.Next() {
		var (
			generation     uint32
			timestamp      time.Time
			regimeStr      string
			avgFitness     float64
			bestFitness    float64
			populationSize uint32
			offspringBred  uint32
			paramDiv       float64
			fitnessDiv     float64
			ancestryDiv    float64
		)

		err := rows.Scan(
			&generation,
			&timestamp,
			&regimeStr,
			&avgFitness,
			&bestFitness,
			&populationSize,
			&offspringBred,
			&paramDiv,
			&fitnessDiv,
			&ancestryDiv,
		)
		if err != nil {
			return nil, fmt.Errorf("scan generation record: %w", err)
		}

		result = append(result, &domain.GenerationMetadata{
			Generation:         int(generation),
			Timestamp:          timestamp,
			Regime:             domain.Regime(regimeStr),
			AvgFitness:         avgFitness,
			BestFitness:        bestFitness,
			PopulationSize:     int(populationSize),
			OffspringBred:      int(offspringBred),
			ParameterDiversity: paramDiv,
			FitnessDiversity:   fitnessDiv,
			AncestryDiversity:  ancestryDiv,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate generation records: %w", err)
	}
	return result, nil
}
