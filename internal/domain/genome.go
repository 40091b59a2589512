package domain

import "time"

// ParamKind discriminates the value held by a ParamValue.
type ParamKind string

// Parameter kinds. Exactly one field of ParamValue is populated per kind.
const (
	ParamFloat  ParamKind = "FLOAT"
	ParamInt    ParamKind = "INT"
	ParamBool   ParamKind = "BOOL"
	ParamString ParamKind = "STRING"
)

// ParamValue is a closed tagged value for one genome parameter.
// The Kind field selects which of the value fields is meaningful.
type ParamValue struct {
	Kind   ParamKind `json:"kind"`
	Float  float64   `json:"float,omitempty"`
	Int    int64     `json:"int,omitempty"`
	Bool   bool      `json:"bool,omitempty"`
	String string    `json:"string,omitempty"`
}

// FloatParam builds a FLOAT parameter value.
func FloatParam(v float64) ParamValue { return ParamValue{Kind: ParamFloat, Float: v} }

// IntParam builds an INT parameter value.
func IntParam(v int64) ParamValue { return ParamValue{Kind: ParamInt, Int: v} }

// BoolParam builds a BOOL parameter value.
func BoolParam(v bool) ParamValue { return ParamValue{Kind: ParamBool, Bool: v} }

// StringParam builds a STRING parameter value.
func StringParam(v string) ParamValue { return ParamValue{Kind: ParamString, String: v} }

// Equal reports whether two parameter values are identical in kind and value.
func (p ParamValue) Equal(other ParamValue) bool {
	return p == other
}

// GenomeSchemaVersion is the current parameter-schema version stamped on
// genomes at creation and validated at mutation/crossover boundaries.
const GenomeSchemaVersion = 1

// CrossChainMetrics holds execution metrics for cross-chain-capable genomes.
type CrossChainMetrics struct {
	SuccessRate   float64 `json:"success_rate"`    // completed / attempted routes
	AvgLatencyMs  float64 `json:"avg_latency_ms"`  // mean bridge round-trip
	FeeSavingsUSD float64 `json:"fee_savings_usd"` // cumulative vs single-chain execution
}

// PerformanceMetrics holds the risk-adjusted metrics a genome is scored on.
type PerformanceMetrics struct {
	SharpeRatio  float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"` // fraction in [0,1], peak-to-trough
	WinRate      float64 `json:"win_rate"`
	PnlStability float64 `json:"pnl_stability"`

	// CrossChain is set only for cross-chain-capable genomes.
	CrossChain *CrossChainMetrics `json:"cross_chain,omitempty"`
}

// Score computes the base composite performance score:
// 0.3·sharpe + 0.2·pnlStability + 0.2·(1−maxDrawdown) + 0.3·winRate.
// Cross-chain bonuses are applied on top of this by the evolution engine.
func (m PerformanceMetrics) Score() float64 {
	return 0.3*m.SharpeRatio +
		0.2*m.PnlStability +
		0.2*(1-m.MaxDrawdown) +
		0.3*m.WinRate
}

// Genome is one strategy variant under evolutionary management: a parameter
// set plus performance and lineage metadata. Agents hold value copies, never
// aliases into the engine's pool.
type Genome struct {
	ID            string                `json:"id"` // sha256 hex, see idhash
	Symbol        string                `json:"symbol"`
	StrategyType  string                `json:"strategy_type"`
	SchemaVersion int                   `json:"schema_version"`
	Parameters    map[string]ParamValue `json:"parameters"`

	Performance PerformanceMetrics `json:"performance"`

	// Lineage metadata, stamped at breeding time.
	Generation int       `json:"generation"`
	ParentIDs  []string  `json:"parent_ids,omitempty"`
	BirthTime  time.Time `json:"birth_time"`

	// Cross-chain capability.
	CrossChain   bool     `json:"cross_chain"`
	TargetChains []string `json:"target_chains,omitempty"`

	// Version counts local parameter refreshes (regime-driven reloads, syncs).
	Version int `json:"version"`
}

// Clone returns a deep copy of the genome. Maps and slices are duplicated so
// the copy never aliases pool-owned state.
func (g *Genome) Clone() *Genome {
	if g == nil {
		return nil
	}
	clone := *g

	if g.Parameters != nil {
		clone.Parameters = make(map[string]ParamValue, len(g.Parameters))
		for k, v := range g.Parameters {
			clone.Parameters[k] = v
		}
	}
	if g.ParentIDs != nil {
		clone.ParentIDs = append([]string(nil), g.ParentIDs...)
	}
	if g.TargetChains != nil {
		clone.TargetChains = append([]string(nil), g.TargetChains...)
	}
	if g.Performance.CrossChain != nil {
		cc := *g.Performance.CrossChain
		clone.Performance.CrossChain = &cc
	}
	return &clone
}

// Validate checks structural integrity at mutation/crossover boundaries.
func (g *Genome) Validate() error {
	if g == nil || g.ID == "" {
		return ErrInvalidGenome
	}
	if g.Symbol == "" || g.StrategyType == "" {
		return ErrInvalidGenome
	}
	if g.SchemaVersion != GenomeSchemaVersion {
		return ErrSchemaVersion
	}
	for _, v := range g.Parameters {
		switch v.Kind {
		case ParamFloat, ParamInt, ParamBool, ParamString:
		default:
			return ErrInvalidGenome
		}
	}
	return nil
}
