// Package runtime owns the per-node agent registry and the periodic loops
// that drive it: the tick loop executes agent cycles, the coordination
// loop exchanges status and commands with the swarm coordinator, and the
// memory-sync loop persists agent genomes.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"strategy-swarm/internal/agent"
	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/market"
	"strategy-swarm/internal/observability"
	"strategy-swarm/internal/regime"
	"strategy-swarm/internal/storage"
	"strategy-swarm/internal/swarm"
	"strategy-swarm/internal/telemetry"
)

// Runtime errors.
var (
	// ErrCapacity is returned by CreateAgent when the registry is full.
	// The registry is left untouched.
	ErrCapacity = errors.New("agent capacity reached")

	// ErrAgentNotFound is returned for operations targeting an unknown
	// agent id.
	ErrAgentNotFound = errors.New("agent not found")
)

const (
	defaultMaxAgents          = 32
	defaultTickInterval       = 5 * time.Second
	defaultCoordInterval      = 30 * time.Second
	defaultMemorySyncInterval = time.Minute
	defaultCycleTimeout       = 10 * time.Second
	defaultMaxRestartAttempts = 3
)

// Options configures a Runtime.
type Options struct {
	NodeID string
	Region string

	// MaxAgents bounds the registry (default 32).
	MaxAgents int

	TickInterval       time.Duration // default 5s
	CoordInterval      time.Duration // default 30s
	MemorySyncInterval time.Duration // default 1m

	// DefaultCycleTimeout applies to agents whose config leaves
	// CycleTimeout zero (default 10s).
	DefaultCycleTimeout time.Duration

	// MaxRestartAttempts bounds consecutive auto-restarts of a failed
	// agent before it is left FAILED (default 3).
	MaxRestartAttempts int

	// DisableAutoRestart skips the post-tick restart scan entirely:
	// FAILED agents stay FAILED until restarted explicitly.
	DisableAutoRestart bool

	Coordinator swarm.CoordinatorService
	Performance storage.PerformanceStore
	Genomes     storage.GenomeStore
	Regimes     regime.Source
	Market      market.Source
	Telemetry   telemetry.Sink
	Metrics     *observability.Metrics // optional
	Logger      *log.Logger

	// Factory overrides the strategy factory on created agents (tests).
	Factory agent.Factory
}

// Runtime is the per-node agent scheduler.
type Runtime struct {
	nodeID string
	region string

	maxAgents          int
	tickInterval       time.Duration
	coordInterval      time.Duration
	memorySyncInterval time.Duration
	cycleTimeout       time.Duration
	maxRestarts        int
	autoRestart        bool

	coordinator swarm.CoordinatorService
	performance storage.PerformanceStore
	genomes     storage.GenomeStore
	regimes     regime.Source
	market      market.Source
	sink        telemetry.Sink
	metrics     *observability.Metrics
	logger      *log.Logger
	factory     agent.Factory

	// mu guards the registry and counters; every registry mutation is a
	// single critical section.
	mu              sync.Mutex
	agents          map[string]*agent.Agent
	restartAttempts map[string]int
	created         uint64
	retired         uint64
	failed          uint64
	restarted       uint64
	ticks           uint64
	cycleErrors     uint64

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a stopped Runtime with an empty registry.
func New(opts Options) *Runtime {
	maxAgents := opts.MaxAgents
	if maxAgents <= 0 {
		maxAgents = defaultMaxAgents
	}
	tickInterval := opts.TickInterval
	if tickInterval <= 0 {
		tickInterval = defaultTickInterval
	}
	coordInterval := opts.CoordInterval
	if coordInterval <= 0 {
		coordInterval = defaultCoordInterval
	}
	syncInterval := opts.MemorySyncInterval
	if syncInterval <= 0 {
		syncInterval = defaultMemorySyncInterval
	}
	cycleTimeout := opts.DefaultCycleTimeout
	if cycleTimeout <= 0 {
		cycleTimeout = defaultCycleTimeout
	}
	maxRestarts := opts.MaxRestartAttempts
	if maxRestarts <= 0 {
		maxRestarts = defaultMaxRestartAttempts
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	sink := opts.Telemetry
	if sink == nil {
		sink = telemetry.Nop{}
	}

	return &Runtime{
		nodeID:             opts.NodeID,
		region:             opts.Region,
		maxAgents:          maxAgents,
		tickInterval:       tickInterval,
		coordInterval:      coordInterval,
		memorySyncInterval: syncInterval,
		cycleTimeout:       cycleTimeout,
		maxRestarts:        maxRestarts,
		autoRestart:        !opts.DisableAutoRestart,
		coordinator:        opts.Coordinator,
		performance:        opts.Performance,
		genomes:            opts.Genomes,
		regimes:            opts.Regimes,
		market:             opts.Market,
		sink:               sink,
		metrics:            opts.Metrics,
		logger:             logger,
		factory:            opts.Factory,
		agents:             make(map[string]*agent.Agent),
		restartAttempts:    make(map[string]int),
	}
}

// Start launches the tick, coordination, and memory-sync loops. Idempotent
// while running.
func (r *Runtime) Start(ctx context.Context) error {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if r.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	if r.coordinator != nil {
		if err := r.coordinator.JoinSwarm(loopCtx, r.nodeID, r.region); err != nil {
			r.logger.Printf("runtime %s: join swarm: %v", r.nodeID, err)
		}
	}

	r.wg.Add(3)
	go r.tickLoop(loopCtx)
	go r.coordinationLoop(loopCtx)
	go r.memorySyncLoop(loopCtx)

	r.logger.Printf("runtime %s started: tick=%v coord=%v sync=%v max_agents=%d",
		r.nodeID, r.tickInterval, r.coordInterval, r.memorySyncInterval, r.maxAgents)
	return nil
}

// Stop cancels the loops, waits for them, and stops all agents.
func (r *Runtime) Stop(ctx context.Context) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	if !r.running {
		return
	}
	r.cancel()
	r.wg.Wait()
	r.running = false

	if r.coordinator != nil {
		if err := r.coordinator.LeaveSwarm(ctx, r.nodeID); err != nil {
			r.logger.Printf("runtime %s: leave swarm: %v", r.nodeID, err)
		}
	}

	for _, a := range r.snapshotAgents() {
		if err := a.Stop(ctx); err != nil && !errors.Is(err, agent.ErrInvalidState) {
			r.logger.Printf("runtime %s: stop agent %s: %v", r.nodeID, a.ID(), err)
		}
	}
	r.logger.Printf("runtime %s stopped", r.nodeID)
}

// CreateAgent registers a new agent and starts it. Returns ErrCapacity
// with the registry untouched when the node is full.
func (r *Runtime) CreateAgent(ctx context.Context, cfg domain.AgentConfig, genome *domain.Genome) (string, error) {
	if err := cfg.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	if len(r.agents) >= r.maxAgents {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: %d agents", ErrCapacity, r.maxAgents)
	}

	id := uuid.NewString()
	a, err := agent.New(agent.Options{
		ID:          id,
		NodeID:      r.nodeID,
		Region:      r.region,
		Config:      cfg,
		Genome:      genome,
		Performance: r.performance,
		Regimes:     r.regimes,
		Market:      r.market,
		Telemetry:   r.sink,
		Logger:      r.logger,
		Factory:     r.factory,
	})
	if err != nil {
		r.mu.Unlock()
		return "", err
	}
	r.agents[id] = a
	r.created++
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.AgentsCreated.Inc()
	}

	if err := a.Start(ctx); err != nil {
		// The agent stays registered in FAILED; the auto-restart scan
		// may recover it.
		r.noteFailure()
		return id, err
	}
	return id, nil
}

// Agent returns the registered agent for id.
func (r *Runtime) Agent(id string) (*agent.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return a, nil
}

// StopAgent stops a registered agent.
func (r *Runtime) StopAgent(ctx context.Context, id string) error {
	a, err := r.Agent(id)
	if err != nil {
		return err
	}
	return a.Stop(ctx)
}

// RestartAgent stops and restarts a registered agent.
func (r *Runtime) RestartAgent(ctx context.Context, id string) error {
	a, err := r.Agent(id)
	if err != nil {
		return err
	}
	if err := a.Restart(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.restarted++
	delete(r.restartAttempts, id)
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.AgentsRestarted.Inc()
	}
	return nil
}

// RetireAgent permanently retires an agent: it is stopped, excluded from
// auto-restart, and removed from the registry. Terminal.
func (r *Runtime) RetireAgent(ctx context.Context, id string) error {
	a, err := r.Agent(id)
	if err != nil {
		return err
	}

	a.Retire()
	if err := a.Stop(ctx); err != nil && !errors.Is(err, agent.ErrInvalidState) {
		r.logger.Printf("runtime %s: retire agent %s: stop: %v", r.nodeID, id, err)
	}

	r.mu.Lock()
	delete(r.agents, id)
	delete(r.restartAttempts, id)
	r.retired++
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.AgentsRetired.Inc()
	}
	r.sink.Emit("runtime.agent_retired", map[string]any{"agent_id": id})
	return nil
}

// SyncGenome pushes an external genome into a registered agent.
func (r *Runtime) SyncGenome(id string, genome *domain.Genome) error {
	a, err := r.Agent(id)
	if err != nil {
		return err
	}
	return a.UpdateGenome(genome)
}

// UpdateAgentConfig applies a config change. A symbol or strategy-type
// change requires a full stop → reconfigure → restart; everything else
// applies hot.
func (r *Runtime) UpdateAgentConfig(ctx context.Context, id string, cfg domain.AgentConfig) error {
	a, err := r.Agent(id)
	if err != nil {
		return err
	}

	current := a.Config()
	rebind := cfg.Symbol != current.Symbol || cfg.StrategyType != current.StrategyType
	if !rebind {
		return a.UpdateConfig(cfg)
	}

	if err := a.Stop(ctx); err != nil && !errors.Is(err, agent.ErrInvalidState) {
		return err
	}
	if err := a.UpdateConfig(cfg); err != nil {
		return err
	}
	return a.Start(ctx)
}

// Statuses returns a snapshot of all registered agents.
func (r *Runtime) Statuses() []domain.AgentStatus {
	agents := r.snapshotAgents()
	statuses := make([]domain.AgentStatus, 0, len(agents))
	for _, a := range agents {
		statuses = append(statuses, a.Status())
	}
	return statuses
}

// Metrics returns a counter snapshot with per-state population counts.
func (r *Runtime) Metrics() domain.RuntimeMetrics {
	agents := r.snapshotAgents()
	counts := make(map[domain.AgentState]int)
	for _, a := range agents {
		counts[a.State()]++
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.RuntimeMetrics{
		AgentsCreated:   r.created,
		AgentsRetired:   r.retired,
		AgentsFailed:    r.failed,
		AgentsRestarted: r.restarted,
		TicksCompleted:  r.ticks,
		CycleErrors:     r.cycleErrors,
		StateCounts:     counts,
	}
}

// AgentCount returns the current registry size.
func (r *Runtime) AgentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

// Tick runs one scheduling round: all running agents execute a cycle
// concurrently, each under its own timeout, then failed agents are
// scanned for auto-restart unless that is disabled. Exposed for
// offline drivers and tests; the
// tick loop calls it on every interval.
func (r *Runtime) Tick(ctx context.Context) {
	started := time.Now()

	running := make([]*agent.Agent, 0)
	for _, a := range r.snapshotAgents() {
		if a.State() == domain.AgentRunning {
			running = append(running, a)
		}
	}

	var wg sync.WaitGroup
	for _, a := range running {
		wg.Add(1)
		go func(a *agent.Agent) {
			defer wg.Done()
			r.runAgentCycle(ctx, a)
		}(a)
	}
	wg.Wait()

	if r.autoRestart {
		r.restartScan(ctx)
	}

	r.mu.Lock()
	r.ticks++
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.TicksCompleted.Inc()
		r.metrics.TickDuration.Observe(time.Since(started).Seconds())
		r.metrics.LastSuccessfulTick.SetToCurrentTime()
	}
}

// runAgentCycle executes one agent cycle under a per-agent timeout. A
// panic or timeout is a structural fault isolated to that agent: it is
// marked FAILED and the tick continues.
func (r *Runtime) runAgentCycle(ctx context.Context, a *agent.Agent) {
	timeout := a.Config().CycleTimeout
	if timeout <= 0 {
		timeout = r.cycleTimeout
	}
	cycleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan agent.CycleResult, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Printf("runtime %s: agent %s cycle panic: %v", r.nodeID, a.ID(), rec)
				a.MarkFailed(fmt.Sprintf("cycle panic: %v", rec))
				r.noteFailure()
				done <- agent.CycleResult{AgentID: a.ID()}
			}
		}()
		result, err := a.ExecuteCycle(cycleCtx)
		if err != nil {
			// Lifecycle race (agent stopped between snapshot and cycle):
			// not a fault.
			result.Err = nil
		}
		done <- result
	}()

	select {
	case result := <-done:
		if result.Err != nil {
			r.mu.Lock()
			r.cycleErrors++
			r.mu.Unlock()
			if r.metrics != nil {
				r.metrics.AgentCycleErrors.Inc()
			}
		}
		if r.metrics != nil {
			r.metrics.CycleDuration.Observe(result.Duration.Seconds())
		}
	case <-cycleCtx.Done():
		a.MarkFailed("cycle timeout")
		r.noteFailure()
		if r.metrics != nil {
			r.metrics.CycleTimeouts.Inc()
		}
		r.logger.Printf("runtime %s: agent %s cycle timed out after %v", r.nodeID, a.ID(), timeout)
	}
}

// restartScan restarts FAILED agents that are not retired, up to the
// per-agent attempt bound. Beyond the bound the agent is left FAILED.
func (r *Runtime) restartScan(ctx context.Context) {
	for _, a := range r.snapshotAgents() {
		if a.State() != domain.AgentFailed || a.Retired() {
			continue
		}
		id := a.ID()

		r.mu.Lock()
		r.restartAttempts[id]++
		attempts := r.restartAttempts[id]
		r.mu.Unlock()

		if attempts > r.maxRestarts {
			r.logger.Printf("runtime %s: agent %s exceeded %d restart attempts, leaving FAILED",
				r.nodeID, id, r.maxRestarts)
			continue
		}

		if err := a.Restart(ctx); err != nil {
			r.logger.Printf("runtime %s: auto-restart agent %s (attempt %d): %v", r.nodeID, id, attempts, err)
			continue
		}

		r.mu.Lock()
		r.restarted++
		delete(r.restartAttempts, id)
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.AgentsRestarted.Inc()
		}
		r.sink.Emit("runtime.agent_restarted", map[string]any{"agent_id": id, "attempt": attempts})
	}
}

// Coordinate runs one coordination round: report status, apply the
// returned commands sequentially, cache peers. Errors are logged, never
// fatal to the loop.
func (r *Runtime) Coordinate(ctx context.Context) {
	if r.coordinator == nil {
		return
	}

	status := domain.NodeStatus{
		NodeID:        r.nodeID,
		Region:        r.region,
		AgentStatuses: r.Statuses(),
		Metrics:       r.Metrics(),
	}

	result, err := r.coordinator.Coordinate(ctx, status)
	if err != nil {
		r.logger.Printf("runtime %s: coordination: %v", r.nodeID, err)
		if r.metrics != nil {
			r.metrics.CoordinationRounds.WithLabelValues("error").Inc()
		}
		return
	}

	for _, cmd := range result.Commands {
		r.applyCommand(ctx, cmd)
	}
	if result.Peers != nil {
		r.coordinator.UpdatePeers(result.Peers)
	}

	if r.metrics != nil {
		r.metrics.CoordinationRounds.WithLabelValues("ok").Inc()
		r.metrics.PeersKnown.Set(float64(len(result.Peers)))
		r.metrics.LastSuccessfulCoordinate.SetToCurrentTime()
	}
}

// applyCommand executes one coordinator command. Unknown types are logged
// and skipped; command failures never abort the round.
func (r *Runtime) applyCommand(ctx context.Context, cmd domain.Command) {
	var err error
	switch cmd.Type {
	case domain.CmdStartAgent:
		if cmd.Config == nil {
			err = domain.ErrInvalidConfig
		} else {
			_, err = r.CreateAgent(ctx, *cmd.Config, cmd.Genome)
		}
	case domain.CmdStopAgent:
		err = r.StopAgent(ctx, cmd.AgentID)
	case domain.CmdSyncGenome:
		err = r.SyncGenome(cmd.AgentID, cmd.Genome)
	case domain.CmdRetireAgent:
		err = r.RetireAgent(ctx, cmd.AgentID)
	case domain.CmdUpdateAgentConfig:
		if cmd.Config == nil {
			err = domain.ErrInvalidConfig
		} else {
			err = r.UpdateAgentConfig(ctx, cmd.AgentID, *cmd.Config)
		}
	default:
		r.logger.Printf("runtime %s: unknown command type %q, skipping", r.nodeID, cmd.Type)
		if r.metrics != nil {
			r.metrics.CommandsApplied.WithLabelValues(string(cmd.Type), "unknown").Inc()
		}
		return
	}

	status := "ok"
	if err != nil {
		status = "error"
		r.logger.Printf("runtime %s: command %s for %s: %v", r.nodeID, cmd.Type, cmd.AgentID, err)
	}
	if r.metrics != nil {
		r.metrics.CommandsApplied.WithLabelValues(string(cmd.Type), status).Inc()
	}
}

// SyncMemory persists the genome and latest metrics of every running
// agent that permits mutation. Store failures are logged per agent.
func (r *Runtime) SyncMemory(ctx context.Context) {
	for _, a := range r.snapshotAgents() {
		if a.State() != domain.AgentRunning || !a.Config().AllowMutation {
			continue
		}
		genome := a.Genome()
		if genome == nil {
			continue
		}

		if err := r.persistGenome(ctx, genome); err != nil {
			r.logger.Printf("runtime %s: memory sync genome %s: %v", r.nodeID, genome.ID, err)
			if r.metrics != nil {
				r.metrics.MemorySyncsTotal.WithLabelValues("error").Inc()
			}
			continue
		}

		if r.performance != nil {
			rec := &domain.PerformanceRecord{
				GenomeID:       genome.ID,
				Symbol:         genome.Symbol,
				Regime:         domain.RegimeUnknown,
				Metrics:        genome.Performance,
				CyclesObserved: a.Status().CyclesRun,
				RecordedAt:     time.Now(),
			}
			if err := r.performance.RecordStrategyPerformance(ctx, rec); err != nil {
				r.logger.Printf("runtime %s: memory sync performance %s: %v", r.nodeID, genome.ID, err)
				if r.metrics != nil {
					r.metrics.MemorySyncsTotal.WithLabelValues("error").Inc()
				}
				continue
			}
		}
		if r.metrics != nil {
			r.metrics.MemorySyncsTotal.WithLabelValues("ok").Inc()
		}
	}
}

// persistGenome upserts a genome into the genome store.
func (r *Runtime) persistGenome(ctx context.Context, g *domain.Genome) error {
	if r.genomes == nil {
		return nil
	}
	err := r.genomes.Update(ctx, g)
	if errors.Is(err, storage.ErrNotFound) {
		return r.genomes.Insert(ctx, g)
	}
	return err
}

func (r *Runtime) tickLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

func (r *Runtime) coordinationLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.coordInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Coordinate(ctx)
		}
	}
}

func (r *Runtime) memorySyncLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.memorySyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.SyncMemory(ctx)
		}
	}
}

// snapshotAgents copies the registry under the lock.
func (r *Runtime) snapshotAgents() []*agent.Agent {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents := make([]*agent.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	return agents
}

// noteFailure bumps the failure counter and gauge.
func (r *Runtime) noteFailure() {
	r.mu.Lock()
	r.failed++
	r.mu.Unlock()
	if r.metrics != nil {
		r.metrics.AgentsFailed.Inc()
	}
}
