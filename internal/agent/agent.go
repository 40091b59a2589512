// Package agent implements the per-agent lifecycle state machine and cycle
// execution. An agent pairs one strategy instance with one symbol and a
// genome snapshot; the runtime schedules its cycles, the evolution engine
// supplies replacement genomes.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/market"
	"strategy-swarm/internal/regime"
	"strategy-swarm/internal/storage"
	"strategy-swarm/internal/strategy"
	"strategy-swarm/internal/telemetry"
)

// Lifecycle errors.
var (
	// ErrInvalidState is returned for calls that are not valid in the
	// agent's current state. Fatal to that call only, never retried
	// internally.
	ErrInvalidState = errors.New("invalid agent state transition")

	// ErrSyncDisabled is returned by UpdateGenome when the agent config
	// does not permit external synchronization.
	ErrSyncDisabled = errors.New("genome sync disabled for agent")
)

const (
	defaultRegimeCheckInterval = 30 * time.Second
	timingWindowSize           = 64
)

// Factory constructs a strategy instance for a config and optional genome.
type Factory func(cfg domain.AgentConfig, genome *domain.Genome) (strategy.Strategy, error)

// CycleResult is the outcome of one ExecuteCycle call. Err carries a
// recoverable per-cycle failure; the agent stays RUNNING either way.
type CycleResult struct {
	AgentID  string
	Signal   *domain.Signal
	Duration time.Duration
	Err      error
}

// Agent owns one strategy instance bound to one symbol.
type Agent struct {
	id     string
	nodeID string
	region string

	performance storage.PerformanceStore
	regimes     regime.Source
	market      market.Source
	sink        telemetry.Sink
	factory     Factory
	logger      *log.Logger

	// runMu serializes lifecycle operations and cycle execution, so an
	// in-flight cycle always completes before a stop or sync takes effect.
	runMu sync.Mutex

	// mu guards the snapshot state below; held only briefly.
	mu              sync.RWMutex
	cfg             domain.AgentConfig
	state           domain.AgentState
	retired         bool
	genome          *domain.Genome
	strat           strategy.Strategy
	lastRegime      domain.Regime
	lastRegimeCheck time.Time
	timings         []time.Duration
	timingNext      int
	cyclesRun       uint64
	cycleErrors     uint64
	structuralErrs  uint64
	lastCycleTime   time.Time
}

// Options configures a new Agent.
type Options struct {
	ID     string
	NodeID string
	Region string
	Config domain.AgentConfig

	// Genome is optional; when nil, Start retrieves the best genome for
	// the symbol from the performance store.
	Genome *domain.Genome

	Performance storage.PerformanceStore
	Regimes     regime.Source
	Market      market.Source
	Telemetry   telemetry.Sink
	Logger      *log.Logger

	// Factory defaults to strategy.FromConfig.
	Factory Factory
}

// New creates an agent in the CREATED state.
func New(opts Options) (*Agent, error) {
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.ID == "" {
		return nil, fmt.Errorf("%w: missing agent id", domain.ErrInvalidConfig)
	}

	factory := opts.Factory
	if factory == nil {
		factory = func(cfg domain.AgentConfig, g *domain.Genome) (strategy.Strategy, error) {
			return strategy.FromConfig(cfg, g)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	sink := opts.Telemetry
	if sink == nil {
		sink = telemetry.Nop{}
	}

	return &Agent{
		id:          opts.ID,
		nodeID:      opts.NodeID,
		region:      opts.Region,
		cfg:         opts.Config,
		performance: opts.Performance,
		regimes:     opts.Regimes,
		market:      opts.Market,
		sink:        sink,
		factory:     factory,
		logger:      logger,
		state:       domain.AgentCreated,
		genome:      opts.Genome.Clone(),
		timings:     make([]time.Duration, 0, timingWindowSize),
	}, nil
}

// ID returns the agent id.
func (a *Agent) ID() string { return a.id }

// State returns the current lifecycle state.
func (a *Agent) State() domain.AgentState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

// Retired reports whether the agent has been permanently retired.
func (a *Agent) Retired() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.retired
}

// Retire marks the agent retired. Retired agents are excluded from
// auto-restart permanently.
func (a *Agent) Retire() {
	a.mu.Lock()
	a.retired = true
	a.mu.Unlock()
}

// Config returns a copy of the current config.
func (a *Agent) Config() domain.AgentConfig {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cfg
}

// Genome returns a copy of the agent's current genome, nil if none.
func (a *Agent) Genome() *domain.Genome {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.genome.Clone()
}

// Start transitions CREATED/STOPPED → STARTING → RUNNING. It constructs
// the strategy instance, retrieves a genome from the performance store when
// none was supplied, and applies it. Internal failure marks the agent
// FAILED and returns the error.
func (a *Agent) Start(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.mu.Lock()
	if a.state != domain.AgentCreated && a.state != domain.AgentStopped {
		state := a.state
		a.mu.Unlock()
		return fmt.Errorf("%w: start from %s", ErrInvalidState, state)
	}
	a.state = domain.AgentStarting
	cfg := a.cfg
	genome := a.genome
	a.mu.Unlock()

	if genome == nil && a.performance != nil {
		top, err := a.performance.QueryTopPerforming(ctx, domain.TopQuery{
			Symbol:   cfg.Symbol,
			Limit:    1,
			MinScore: -math.MaxFloat64,
		})
		if err != nil {
			return a.failStructural("retrieve genome", err)
		}
		if len(top) > 0 {
			genome = top[0].Genome
		}
	}

	strat, err := a.factory(cfg, genome)
	if err != nil {
		return a.failStructural("initialize strategy", err)
	}

	a.mu.Lock()
	a.strat = strat
	a.genome = genome
	a.state = domain.AgentRunning
	a.mu.Unlock()

	a.sink.Emit("agent.started", map[string]any{"agent_id": a.id, "symbol": cfg.Symbol})
	return nil
}

// Stop transitions to STOPPED from any state except STOPPED. The strategy
// instance is released; when mutation is permitted, the current genome and
// latest metrics are persisted first. Internal failure marks FAILED.
func (a *Agent) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.mu.Lock()
	if a.state == domain.AgentStopped {
		a.mu.Unlock()
		return fmt.Errorf("%w: stop from STOPPED", ErrInvalidState)
	}
	a.state = domain.AgentStopping
	strat := a.strat
	genome := a.genome
	cfg := a.cfg
	lastRegime := a.lastRegime
	cycles := a.cyclesRun
	a.mu.Unlock()

	if strat != nil {
		if err := strat.Release(); err != nil {
			return a.failStructural("release strategy", err)
		}
	}

	if cfg.AllowMutation && genome != nil && a.performance != nil {
		rec := &domain.PerformanceRecord{
			GenomeID:       genome.ID,
			Symbol:         genome.Symbol,
			Regime:         regimeOrUnknown(lastRegime),
			Metrics:        genome.Performance,
			CyclesObserved: cycles,
			RecordedAt:     time.Now(),
		}
		if err := a.performance.RecordStrategyPerformance(ctx, rec); err != nil {
			return a.failStructural("persist performance", err)
		}
	}

	a.mu.Lock()
	a.strat = nil
	a.state = domain.AgentStopped
	a.mu.Unlock()

	a.sink.Emit("agent.stopped", map[string]any{"agent_id": a.id})
	return nil
}

// Restart stops then starts the agent. A stop rejected only because the
// agent is already STOPPED does not block the start.
func (a *Agent) Restart(ctx context.Context) error {
	if err := a.Stop(ctx); err != nil && !errors.Is(err, ErrInvalidState) {
		return err
	}
	return a.Start(ctx)
}

// ExecuteCycle runs one strategy cycle. Valid only while RUNNING. Regime
// changes are checked at most once per RegimeCheckInterval and trigger a
// memory refresh for the new regime. Per-cycle failures are counted and
// reported in the result; they never change agent state.
func (a *Agent) ExecuteCycle(ctx context.Context) (CycleResult, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.mu.Lock()
	if a.state != domain.AgentRunning {
		state := a.state
		a.mu.Unlock()
		return CycleResult{AgentID: a.id}, fmt.Errorf("%w: execute cycle from %s", ErrInvalidState, state)
	}
	strat := a.strat
	cfg := a.cfg
	a.mu.Unlock()

	started := time.Now()
	a.maybeCheckRegime(ctx, cfg)

	result := CycleResult{AgentID: a.id}
	snap, err := a.snapshot(ctx, cfg.Symbol)
	if err == nil {
		result.Signal, err = strat.GenerateSignal(ctx, snap)
	}
	result.Duration = time.Since(started)

	a.mu.Lock()
	a.cyclesRun++
	a.lastCycleTime = time.Now()
	if len(a.timings) < timingWindowSize {
		a.timings = append(a.timings, result.Duration)
	} else {
		a.timings[a.timingNext] = result.Duration
		a.timingNext = (a.timingNext + 1) % timingWindowSize
	}
	if err != nil {
		a.cycleErrors++
	}
	a.mu.Unlock()

	if err != nil {
		result.Err = err
		a.sink.Emit("agent.cycle_error", map[string]any{"agent_id": a.id, "error": err.Error()})
	}
	return result, nil
}

// snapshot fetches market state; a nil market source yields a bare
// snapshot so strategies still cycle in store-only deployments.
func (a *Agent) snapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	if a.market == nil {
		return &domain.MarketSnapshot{Symbol: symbol, Timestamp: time.Now()}, nil
	}
	return a.market.Snapshot(ctx, symbol)
}

// maybeCheckRegime polls the regime source at most once per configured
// interval and refreshes memory when the primary regime changed. Regime
// source failures are ignored; the next interval retries.
func (a *Agent) maybeCheckRegime(ctx context.Context, cfg domain.AgentConfig) {
	if a.regimes == nil {
		return
	}

	interval := cfg.RegimeCheckInterval
	if interval == 0 {
		interval = defaultRegimeCheckInterval
	}

	a.mu.Lock()
	if !a.lastRegimeCheck.IsZero() && time.Since(a.lastRegimeCheck) < interval {
		a.mu.Unlock()
		return
	}
	a.lastRegimeCheck = time.Now()
	previous := a.lastRegime
	a.mu.Unlock()

	reading, err := a.regimes.Current(ctx, cfg.Symbol)
	if err != nil {
		return
	}

	a.mu.Lock()
	a.lastRegime = reading.Primary
	a.mu.Unlock()

	if previous != "" && previous != reading.Primary {
		a.sink.Emit("agent.regime_changed", map[string]any{
			"agent_id": a.id,
			"from":     string(previous),
			"to":       string(reading.Primary),
		})
		a.RefreshMemoryForRegime(ctx, reading.Primary)
	}
}

// RefreshMemoryForRegime queries the performance store for the best genome
// for (symbol, regime) and, when one is found, applies its parameters to
// the live strategy and bumps the genome's local version counter.
func (a *Agent) RefreshMemoryForRegime(ctx context.Context, r domain.Regime) {
	if a.performance == nil {
		return
	}

	a.mu.RLock()
	cfg := a.cfg
	strat := a.strat
	a.mu.RUnlock()
	if strat == nil {
		return
	}

	top, err := a.performance.QueryTopPerforming(ctx, domain.TopQuery{
		Symbol:   cfg.Symbol,
		Regime:   &r,
		Limit:    1,
		MinScore: -math.MaxFloat64,
	})
	if err != nil || len(top) == 0 {
		return
	}
	best := top[0].Genome

	if err := strat.ApplyParameters(best.Parameters); err != nil {
		a.logger.Printf("agent %s: regime refresh parameter apply failed: %v", a.id, err)
		return
	}

	a.mu.Lock()
	if a.genome != nil {
		a.genome.Parameters = best.Clone().Parameters
		a.genome.Version++
	} else {
		a.genome = best.Clone()
	}
	a.mu.Unlock()
}

// UpdateGenome replaces the agent's genome from an external source. Only
// permitted when the config allows synchronization; the agent transiently
// enters SYNCING and returns to RUNNING. Failure marks FAILED.
func (a *Agent) UpdateGenome(externalGenome *domain.Genome) error {
	if externalGenome == nil {
		return domain.ErrInvalidGenome
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.mu.Lock()
	if !a.cfg.AllowSync {
		a.mu.Unlock()
		return ErrSyncDisabled
	}
	if a.state != domain.AgentRunning {
		state := a.state
		a.mu.Unlock()
		return fmt.Errorf("%w: sync genome from %s", ErrInvalidState, state)
	}
	a.state = domain.AgentSyncing
	strat := a.strat
	a.mu.Unlock()

	if err := strat.ApplyParameters(externalGenome.Parameters); err != nil {
		return a.failStructural("apply synced genome", err)
	}

	a.mu.Lock()
	a.genome = externalGenome.Clone()
	a.genome.Version++
	a.state = domain.AgentRunning
	a.mu.Unlock()

	a.sink.Emit("agent.genome_synced", map[string]any{"agent_id": a.id, "genome_id": externalGenome.ID})
	return nil
}

// UpdateConfig applies a new config. Changing the symbol requires the
// agent to be CREATED or STOPPED (the strategy instance binds the symbol
// at construction); everything else applies hot.
func (a *Agent) UpdateConfig(cfg domain.AgentConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	symbolChange := cfg.Symbol != a.cfg.Symbol || cfg.StrategyType != a.cfg.StrategyType
	if symbolChange && a.state != domain.AgentCreated && a.state != domain.AgentStopped {
		return fmt.Errorf("%w: symbol change while %s", ErrInvalidState, a.state)
	}
	a.cfg = cfg
	return nil
}

// MarkFailed forces the agent into FAILED. Used by the runtime when a
// cycle times out or panics beyond the agent's own error handling.
func (a *Agent) MarkFailed(reason string) {
	a.mu.Lock()
	a.state = domain.AgentFailed
	a.structuralErrs++
	a.mu.Unlock()

	a.sink.Emit("agent.failed", map[string]any{"agent_id": a.id, "reason": reason})
}

// Status returns a point-in-time snapshot for coordination reports.
func (a *Agent) Status() domain.AgentStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	status := domain.AgentStatus{
		AgentID:       a.id,
		NodeID:        a.nodeID,
		Region:        a.region,
		Symbol:        a.cfg.Symbol,
		State:         a.state,
		CyclesRun:     a.cyclesRun,
		CycleErrors:   a.cycleErrors,
		StateErrors:   a.structuralErrs,
		AvgCycleTime:  avgDuration(a.timings),
		LastCycleTime: a.lastCycleTime,
		Retired:       a.retired,
	}
	if a.genome != nil {
		status.GenomeID = a.genome.ID
		status.Generation = a.genome.Generation
	}
	return status
}

// failStructural records a structural failure: state → FAILED, error
// counter bumped, error wrapped and returned.
func (a *Agent) failStructural(op string, err error) error {
	a.mu.Lock()
	a.state = domain.AgentFailed
	a.structuralErrs++
	a.mu.Unlock()

	a.sink.Emit("agent.failed", map[string]any{"agent_id": a.id, "op": op, "error": err.Error()})
	return fmt.Errorf("agent %s: %s: %w", a.id, op, err)
}

func regimeOrUnknown(r domain.Regime) domain.Regime {
	if r == "" {
		return domain.RegimeUnknown
	}
	return r
}

func avgDuration(timings []time.Duration) time.Duration {
	if len(timings) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range timings {
		total += d
	}
	return total / time.Duration(len(timings))
}
