package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/storage"
)

// GenomeStore implements storage.GenomeStore using PostgreSQL.
// Parameters and performance metrics are stored as JSONB so schema-version
// bumps do not require a table migration.
type GenomeStore struct {
	pool *Pool
}

// NewGenomeStore creates a new GenomeStore.
func NewGenomeStore(pool *Pool) *GenomeStore {
	return &GenomeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GenomeStore = (*GenomeStore)(nil)

// Insert adds a new genome. Returns ErrDuplicateKey if the id exists.
func (s *GenomeStore) Insert(ctx context.Context, g *domain.Genome) error {
	if g == nil || g.ID == "" {
		return storage.ErrInvalidInput
	}

	paramsJSON, perfJSON, err := marshalGenomeJSON(g)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO genomes (
			genome_id, symbol, strategy_type, schema_version, parameters, performance,
			generation, parent_ids, birth_time, cross_chain, target_chains, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err = s.pool.Exec(ctx, query,
		g.ID,
		g.Symbol,
		g.StrategyType,
		g.SchemaVersion,
		paramsJSON,
		perfJSON,
		g.Generation,
		g.ParentIDs,
		g.BirthTime,
		g.CrossChain,
		g.TargetChains,
		g.Version,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert genome: %w", err)
	}
	return nil
}

// Update refreshes an existing genome in place. Returns ErrNotFound if the
// id does not exist.
func (s *GenomeStore) Update(ctx context.Context, g *domain.Genome) error {
	if g == nil || g.ID == "" {
		return storage.ErrInvalidInput
	}

	paramsJSON, perfJSON, err := marshalGenomeJSON(g)
	if err != nil {
		return err
	}

	query := `
		UPDATE genomes SET
			symbol = $2,
			strategy_type = $3,
			schema_version = $4,
			parameters = $5,
			performance = $6,
			generation = $7,
			parent_ids = $8,
			birth_time = $9,
			cross_chain = $10,
			target_chains = $11,
			version = $12,
			updated_at = now()
		WHERE genome_id = $1
	`

	tag, err := s.pool.Exec(ctx, query,
		g.ID,
		g.Symbol,
		g.StrategyType,
		g.SchemaVersion,
		paramsJSON,
		perfJSON,
		g.Generation,
		g.ParentIDs,
		g.BirthTime,
		g.CrossChain,
		g.TargetChains,
		g.Version,
	)
	if err != nil {
		return fmt.Errorf("update genome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a genome by id. Returns ErrNotFound if not exists.
func (s *GenomeStore) GetByID(ctx context.Context, genomeID string) (*domain.Genome, error) {
	query := `
		SELECT genome_id, symbol, strategy_type, schema_version, parameters, performance,
		       generation, parent_ids, birth_time, cross_chain, target_chains, version
		FROM genomes
		WHERE genome_id = $1
	`

	row := s.pool.QueryRow(ctx, query, genomeID)
	g, err := scanGenome(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get genome by id: %w", err)
	}
	return g, nil
}

// GetBySymbol retrieves all genomes for a symbol, ordered by birth time ASC.
func (s *GenomeStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.Genome, error) {
	query := `
		SELECT genome_id, symbol, strategy_type, schema_version, parameters, performance,
		       generation, parent_ids, birth_time, cross_chain, target_chains, version
		FROM genomes
		WHERE symbol = $1
		ORDER BY birth_time ASC, genome_id ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("get genomes by symbol: %w", err)
	}
	defer rows.Close()

	return scanGenomes(rows)
}

// Delete removes a genome. Returns ErrNotFound if the id does not exist.
func (s *GenomeStore) Delete(ctx context.Context, genomeID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM genomes WHERE genome_id = $1`, genomeID)
	if err != nil {
		return fmt.Errorf("delete genome: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// marshalGenomeJSON encodes the JSONB columns of a genome row.
func marshalGenomeJSON(g *domain.Genome) (paramsJSON, perfJSON []byte, err error) {
	params := g.Parameters
	if params == nil {
		params = map[string]domain.ParamValue{}
	}
	paramsJSON, err = json.Marshal(params)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal genome parameters: %w", err)
	}
	perfJSON, err = json.Marshal(g.Performance)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal genome performance: %w", err)
	}
	return paramsJSON, perfJSON, nil
}

// scanGenome scans a single row into a Genome.
func scanGenome(row pgx.Row) (*domain.Genome, error) {
	var g domain.Genome
	var paramsJSON, perfJSON []byte

	err := row.Scan(
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
	)
	if err != nil {
		return nil, err
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
	return &g, nil
}

// scanGenomes scans multiple rows into a slice of Genome.
func scanGenomes(rows pgx.Rows) ([]*domain.Genome, error) {
	var genomes []*domain.Genome

	for rows.Next() {
		g, err := scanGenome(rows)
		if err != nil {
			return nil, fmt.Errorf("scan genome row: %w", err)
		}
		genomes = append(genomes, g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate genome rows: %w", err)
	}
	return genomes, nil
}
