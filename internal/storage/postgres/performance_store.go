package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/storage"
)

// PerformanceStore implements storage.PerformanceStore using PostgreSQL.
// Records are append-only; ranked queries derive the score from the latest
// record per genome inside the database.
type PerformanceStore struct {
	pool *Pool
}

// NewPerformanceStore creates a new PerformanceStore.
func NewPerformanceStore(pool *Pool) *PerformanceStore {
	return &PerformanceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PerformanceStore = (*PerformanceStore)(nil)

// RecordStrategyPerformance appends one performance observation.
func (s *PerformanceStore) RecordStrategyPerformance(ctx context.Context, rec *domain.PerformanceRecord) error {
	if rec == nil || rec.GenomeID == "" {
		return storage.ErrInvalidInput
	}

	var ccSuccessRate, ccAvgLatencyMs, ccFeeSavingsUSD *float64
	if cc := rec.Metrics.CrossChain; cc != nil {
		ccSuccessRate = &cc.SuccessRate
		ccAvgLatencyMs = &cc.AvgLatencyMs
		ccFeeSavingsUSD = &cc.FeeSavingsUSD
	}

	query := `
		INSERT INTO performance_records (
			genome_id, symbol, regime,
			sharpe_ratio, max_drawdown, win_rate, pnl_stability,
			cc_success_rate, cc_avg_latency_ms, cc_fee_savings_usd,
			cycles_observed, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		rec.GenomeID,
		rec.Symbol,
		string(rec.Regime),
		rec.Metrics.SharpeRatio,
		rec.Metrics.MaxDrawdown,
		rec.Metrics.WinRate,
		rec.Metrics.PnlStability,
		ccSuccessRate,
		ccAvgLatencyMs,
		ccFeeSavingsUSD,
		rec.CyclesObserved,
		rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert performance record: %w", err)
	}
	return nil
}

// QueryTopPerforming returns genomes ranked by the score of their latest
// record, descending. Genomes at or below MinScore are excluded, as are
// genomes that no longer exist in the genomes table.
func (s *PerformanceStore) QueryTopPerforming(ctx context.Context, q domain.TopQuery) ([]domain.ScoredGenome, error) {
	if q.Symbol == "" {
		return nil, storage.ErrInvalidInput
	}

	var regime *string
	if q.Regime != nil {
		r := string(*q.Regime)
		regime = &r
	}
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}

	query := `
		SELECT g.genome_id, g.symbol, g.strategy_type, g.schema_version,
		       g.parameters, g.performance, g.generation, g.parent_ids,
		       g.birth_time, g.cross_chain, g.target_chains, g.version,
		       latest.score
		FROM (
			SELECT DISTINCT ON (genome_id)
				genome_id,
				0.3 * sharpe_ratio + 0.2 * pnl_stability +
				0.2 * (1 - max_drawdown) + 0.3 * win_rate AS score
			FROM performance_records
			WHERE symbol = $1 AND ($2::text IS NULL OR regime = $2)
			ORDER BY genome_id, recorded_at DESC, id DESC
		) latest
		JOIN genomes g ON g.genome_id = latest.genome_id
		WHERE latest.score > $3
		ORDER BY latest.score DESC, latest.genome_id ASC
		LIMIT $4
	`

	rows, err := s.pool.Query(ctx, query, q.Symbol, regime, q.MinScore, limit)
	if err != nil {
		return nil, fmt.Errorf("query top performing: %w", err)
	}
	defer rows.Close()

	var result []domain.ScoredGenome
	for rows.Next() {
		var g domain.Genome
		var paramsJSON, perfJSON []byte
		var score float64

		err := rows.Scan(
			&g.ID,
			&g.Symbol,
			&g.StrategyType,
			&g.SchemaVersion,
			&paramsJSON,
			&perfJSON,
			&g.Generation,
			&g.ParentIDs,
			&g.BirthTime,
			&g.CrossChain,
			&g.TargetChains,
			&g.Version,
			&score,
		)
		if err != nil {
			return nil, fmt.Errorf("scan scored genome: %w", err)
		}
		if err := json.Unmarshal(paramsJSON, &g.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal genome parameters: %w", err)
		}
		if err := json.Unmarshal(perfJSON, &g.Performance); err != nil {
			return nil, fmt.Errorf("unmarshal genome performance: %w", err)
		}
		if len(g.ParentIDs) == 0 {
			g.ParentIDs = nil
		}
		if len(g.TargetChains) == 0 {
			g.TargetChains = nil
		}
		result = append(result, domain.ScoredGenome{Genome: &g, Score: score})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scored genomes: %w", err)
	}
	return result, nil
}

// GetHistory retrieves records for a genome within [from, to] inclusive,
// ordered by recording time ASC.
func (s *PerformanceStore) GetHistory(ctx context.Context, genomeID string, from, to time.Time) ([]*domain.PerformanceRecord, error) {
	if genomeID == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT genome_id, symbol, regime,
		       sharpe_ratio, max_drawdown, win_rate, pnl_stability,
		       cc_success_rate, cc_avg_latency_ms, cc_fee_savings_usd,
		       cycles_observed, recorded_at
		FROM performance_records
		WHERE genome_id = $1 AND recorded_at >= $2 AND recorded_at <= $3
		ORDER BY recorded_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, genomeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get performance history: %w", err)
	}
	defer rows.Close()

	var records []*domain.PerformanceRecord
	for rows.Next() {
		rec, err := scanPerformanceRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan performance record: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate performance records: %w", err)
	}
	return records, nil
}

// GetLatest retrieves the most recent record for a genome. Returns
// ErrNotFound if no record exists.
func (s *PerformanceStore) GetLatest(ctx context.Context, genomeID string) (*domain.PerformanceRecord, error) {
	if genomeID == "" {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT genome_id, symbol, regime,
		       sharpe_ratio, max_drawdown, win_rate, pnl_stability,
		       cc_success_rate, cc_avg_latency_ms, cc_fee_savings_usd,
		       cycles_observed, recorded_at
		FROM performance_records
		WHERE genome_id = $1
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`

	row := s.pool.QueryRow(ctx, query, genomeID)
	rec, err := scanPerformanceRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest performance record: %w", err)
	}
	return rec, nil
}

// scanPerformanceRecord scans a single row into a PerformanceRecord.
func scanPerformanceRecord(row pgx.Row) (*domain.PerformanceRecord, error) {
	var rec domain.PerformanceRecord
	var regimeStr string
	var ccSuccessRate, ccAvgLatencyMs, ccFeeSavingsUSD *float64

	err := row.Scan(
		&rec.GenomeID,
		&rec.Symbol,
		&regimeStr,
		&rec.Metrics.SharpeRatio,
		&rec.Metrics.MaxDrawdown,
		&rec.Metrics.WinRate,
		&rec.Metrics.PnlStability,
		&ccSuccessRate,
		&ccAvgLatencyMs,
		&ccFeeSavingsUSD,
		&rec.CyclesObserved,
		&rec.RecordedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Regime = domain.Regime(regimeStr)
	if ccSuccessRate != nil || ccAvgLatencyMs != nil || ccFeeSavingsUSD != nil {
		cc := &domain.CrossChainMetrics{}
		if ccSuccessRate != nil {
			cc.SuccessRate = *ccSuccessRate
		}
		if ccAvgLatencyMs != nil {
			cc.AvgLatencyMs = *ccAvgLatencyMs
		}
		if ccFeeSavingsUSD != nil {
			cc.FeeSavingsUSD = *ccFeeSavingsUSD
		}
		rec.Metrics.CrossChain = cc
	}
	return &rec, nil
}
