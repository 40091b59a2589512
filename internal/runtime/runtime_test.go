package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/storage/memory"
	"strategy-swarm/internal/strategy"
	"strategy-swarm/internal/swarm"
)

func testConfig() domain.AgentConfig {
	return domain.AgentConfig{
		Symbol:       "SOL-USDC",
		StrategyType: "MOMENTUM",
	}
}

// stubFactory hands out stub strategies and remembers them by symbol.
type stubFactory struct {
	mu    sync.Mutex
	stubs []*strategy.StubStrategy
}

func (f *stubFactory) build(cfg domain.AgentConfig, _ *domain.Genome) (strategy.Strategy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := strategy.NewStubStrategy(cfg.Symbol)
	f.stubs = append(f.stubs, s)
	return s, nil
}

func (f *stubFactory) last() *strategy.StubStrategy {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.stubs) == 0 {
		return nil
	}
	return f.stubs[len(f.stubs)-1]
}

// panicStrategy panics on every cycle.
type panicStrategy struct {
	symbol string
}

func (p *panicStrategy) ID() string     { return "PANIC_" + p.symbol }
func (p *panicStrategy) Symbol() string { return p.symbol }
func (p *panicStrategy) GenerateSignal(context.Context, *domain.MarketSnapshot) (*domain.Signal, error) {
	panic("strategy exploded")
}
func (p *panicStrategy) ApplyParameters(map[string]domain.ParamValue) error { return nil }
func (p *panicStrategy) Release() error                                     { return nil }

// hardBlockStrategy ignores context cancellation while sleeping.
type hardBlockStrategy struct {
	symbol string
	block  time.Duration
}

func (h *hardBlockStrategy) ID() string     { return "BLOCK_" + h.symbol }
func (h *hardBlockStrategy) Symbol() string { return h.symbol }
func (h *hardBlockStrategy) GenerateSignal(context.Context, *domain.MarketSnapshot) (*domain.Signal, error) {
	time.Sleep(h.block)
	return &domain.Signal{Symbol: h.symbol, Action: domain.ActionHold, GeneratedAt: time.Now()}, nil
}
func (h *hardBlockStrategy) ApplyParameters(map[string]domain.ParamValue) error { return nil }
func (h *hardBlockStrategy) Release() error                                     { return nil }

func newTestRuntime(t *testing.T, opts Options) *Runtime {
	t.Helper()

	if opts.NodeID == "" {
		opts.NodeID = "node-test"
	}
	if opts.Region == "" {
		opts.Region = "local"
	}
	return New(opts)
}

func TestRuntime_CreateAgentAndTick(t *testing.T) {
	factory := &stubFactory{}
	rt := newTestRuntime(t, Options{Factory: factory.build})
	ctx := context.Background()

	id, err := rt.CreateAgent(ctx, testConfig(), nil)
	require.NoError(t, err)

	a, err := rt.Agent(id)
	require.NoError(t, err)
	assert.Equal(t, domain.AgentRunning, a.State())

	rt.Tick(ctx)
	rt.Tick(ctx)

	assert.Equal(t, 2, factory.last().Cycles())
	metrics := rt.Metrics()
	assert.Equal(t, uint64(1), metrics.AgentsCreated)
	assert.Equal(t, uint64(2), metrics.TicksCompleted)
	assert.Equal(t, 1, metrics.StateCounts[domain.AgentRunning])
}

func TestRuntime_CapacityRejectionLeavesRegistryUnchanged(t *testing.T) {
	factory := &stubFactory{}
	rt := newTestRuntime(t, Options{MaxAgents: 1, Factory: factory.build})
	ctx := context.Background()

	_, err := rt.CreateAgent(ctx, testConfig(), nil)
	require.NoError(t, err)

	_, err = rt.CreateAgent(ctx, testConfig(), nil)
	assert.ErrorIs(t, err, ErrCapacity)
	assert.Equal(t, 1, rt.AgentCount())
	assert.Equal(t, uint64(1), rt.Metrics().AgentsCreated)
}

func TestRuntime_TickFaultIsolation(t *testing.T) {
	// One agent panics every cycle; its neighbor must keep cycling.
	factory := &stubFactory{}
	var built int
	panicFactory := func(cfg domain.AgentConfig, _ *domain.Genome) (strategy.Strategy, error) {
		built++
		if built > 1 {
			// Auto-restart cannot rebuild the strategy: agent stays FAILED.
			return nil, errors.New("no more strategies")
		}
		return &panicStrategy{symbol: cfg.Symbol}, nil
	}

	rt := newTestRuntime(t, Options{Factory: factory.build})
	ctx := context.Background()

	healthyID, err := rt.CreateAgent(ctx, testConfig(), nil)
	require.NoError(t, err)

	// Swap the factory for the second agent only.
	rt.factory = panicFactory
	faultyID, err := rt.CreateAgent(ctx, testConfig(), nil)
	require.NoError(t, err)

	rt.Tick(ctx)

	healthy, _ := rt.Agent(healthyID)
	faulty, _ := rt.Agent(faultyID)

	assert.Equal(t, domain.AgentRunning, healthy.State())
	assert.Equal(t, 1, factory.last().Cycles())
	assert.Equal(t, domain.AgentFailed, faulty.State())
	assert.GreaterOrEqual(t, rt.Metrics().AgentsFailed, uint64(1))
}

func TestRuntime_CycleTimeoutMarksFailedThenRestarts(t *testing.T) {
	blockFactory := func(cfg domain.AgentConfig, _ *domain.Genome) (strategy.Strategy, error) {
		return &hardBlockStrategy{symbol: cfg.Symbol, block: 150 * time.Millisecond}, nil
	}
	rt := newTestRuntime(t, Options{
		Factory:             blockFactory,
		DefaultCycleTimeout: 20 * time.Millisecond,
	})
	ctx := context.Background()

	id, err := rt.CreateAgent(ctx, testConfig(), nil)
	require.NoError(t, err)

	rt.Tick(ctx)

	// The timeout marked the agent FAILED mid-tick; the restart scan then
	// brought it back.
	a, _ := rt.Agent(id)
	assert.Equal(t, domain.AgentRunning, a.State())
	metrics := rt.Metrics()
	assert.Equal(t, uint64(1), metrics.AgentsFailed)
	assert.Equal(t, uint64(1), metrics.AgentsRestarted)
}

func TestRuntime_AutoRestartDisabledLeavesAgentFailed(t *testing.T) {
	panicFactory := func(cfg domain.AgentConfig, _ *domain.Genome) (strategy.Strategy, error) {
		return &panicStrategy{symbol: cfg.Symbol}, nil
	}
	rt := newTestRuntime(t, Options{Factory: panicFactory, DisableAutoRestart: true})
	ctx := context.Background()

	id, err := rt.CreateAgent(ctx, testConfig(), nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		rt.Tick(ctx)
	}

	a, _ := rt.Agent(id)
	assert.Equal(t, domain.AgentFailed, a.State())
	metrics := rt.Metrics()
	assert.Equal(t, uint64(0), metrics.AgentsRestarted)
}

func TestRuntime_RestartAttemptsBounded(t *testing.T) {
	var built int
	failOnceFactory := func(cfg domain.AgentConfig, _ *domain.Genome) (strategy.Strategy, error) {
		built++
		if built == 1 {
			return &panicStrategy{symbol: cfg.Symbol}, nil
		}
		return nil, fmt.Errorf("factory failure %d", built)
	}
	rt := newTestRuntime(t, Options{Factory: failOnceFactory, MaxRestartAttempts: 2})
	ctx := context.Background()

	id, err := rt.CreateAgent(ctx, testConfig(), nil)
	require.NoError(t, err)

	// Each tick: the panic (tick 1) or prior failure leaves the agent
	// FAILED; restart attempts burn down and then stop.
	for i := 0; i < 5; i++ {
		rt.Tick(ctx)
	}

	a, _ := rt.Agent(id)
	assert.Equal(t, domain.AgentFailed, a.State())
	// Attempts stop at the bound: factory called once per allowed attempt.
	assert.LessOrEqual(t, built, 1+2+1)
}

func TestRuntime_RetireAgentIsTerminal(t *testing.T) {
	factory := &stubFactory{}
	rt := newTestRuntime(t, Options{Factory: factory.build})
	ctx := context.Background()

	id, err := rt.CreateAgent(ctx, testConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, rt.RetireAgent(ctx, id))

	_, err = rt.Agent(id)
	assert.ErrorIs(t, err, ErrAgentNotFound)
	assert.Equal(t, 0, rt.AgentCount())
	assert.Equal(t, uint64(1), rt.Metrics().AgentsRetired)
	assert.True(t, factory.last().Released())

	// Retiring twice is an error, not a crash
	assert.ErrorIs(t, rt.RetireAgent(ctx, id), ErrAgentNotFound)
}

func TestRuntime_UpdateAgentConfigHotApply(t *testing.T) {
	factory := &stubFactory{}
	rt := newTestRuntime(t, Options{Factory: factory.build})
	ctx := context.Background()

	id, err := rt.CreateAgent(ctx, testConfig(), nil)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.AllowSync = true
	require.NoError(t, rt.UpdateAgentConfig(ctx, id, cfg))

	a, _ := rt.Agent(id)
	assert.Equal(t, domain.AgentRunning, a.State())
	assert.True(t, a.Config().AllowSync)
	// No rebind happened
	assert.Len(t, factory.stubs, 1)
}

func TestRuntime_UpdateAgentConfigSymbolChangeRebinds(t *testing.T) {
	factory := &stubFactory{}
	rt := newTestRuntime(t, Options{Factory: factory.build})
	ctx := context.Background()

	id, err := rt.CreateAgent(ctx, testConfig(), nil)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Symbol = "ETH-USDC"
	require.NoError(t, rt.UpdateAgentConfig(ctx, id, cfg))

	a, _ := rt.Agent(id)
	assert.Equal(t, domain.AgentRunning, a.State())
	assert.Equal(t, "ETH-USDC", a.Config().Symbol)

	// The old instance was released and a new one bound to the new symbol
	require.Len(t, factory.stubs, 2)
	assert.True(t, factory.stubs[0].Released())
	assert.Equal(t, "ETH-USDC", factory.stubs[1].Symbol())
}

func TestRuntime_CoordinateAppliesCommands(t *testing.T) {
	factory := &stubFactory{}
	coord := swarm.NewLoopbackCoordinator()
	rt := newTestRuntime(t, Options{Factory: factory.build, Coordinator: coord})
	ctx := context.Background()

	cfg := testConfig()
	coord.Enqueue(
		domain.Command{Type: domain.CmdStartAgent, Config: &cfg},
		domain.Command{Type: domain.CommandType("REBALANCE_LIQUIDITY")}, // unknown, skipped
	)
	coord.UpdatePeers([]domain.PeerInfo{{NodeID: "node-2"}})

	rt.Coordinate(ctx)

	assert.Equal(t, 1, rt.AgentCount())
	assert.Equal(t, "node-test", coord.LastStatus.NodeID)

	// Retire the agent through a second round
	statuses := rt.Statuses()
	require.Len(t, statuses, 1)
	coord.Enqueue(domain.Command{Type: domain.CmdRetireAgent, AgentID: statuses[0].AgentID})

	rt.Coordinate(ctx)
	assert.Equal(t, 0, rt.AgentCount())
}

func TestRuntime_CoordinateSyncGenome(t *testing.T) {
	factory := &stubFactory{}
	coord := swarm.NewLoopbackCoordinator()
	rt := newTestRuntime(t, Options{Factory: factory.build, Coordinator: coord})
	ctx := context.Background()

	cfg := testConfig()
	cfg.AllowSync = true
	id, err := rt.CreateAgent(ctx, cfg, nil)
	require.NoError(t, err)

	genome := &domain.Genome{
		ID:            "g-sync",
		Symbol:        "SOL-USDC",
		StrategyType:  "MOMENTUM",
		SchemaVersion: domain.GenomeSchemaVersion,
		Parameters:    map[string]domain.ParamValue{"lookback": domain.IntParam(30)},
		BirthTime:     time.Now(),
	}
	coord.Enqueue(domain.Command{Type: domain.CmdSyncGenome, AgentID: id, Genome: genome})

	rt.Coordinate(ctx)

	a, _ := rt.Agent(id)
	assert.Equal(t, domain.AgentRunning, a.State())
	assert.Equal(t, "g-sync", a.Genome().ID)
	assert.Equal(t, 1, factory.last().AppliedCount())
}

func TestRuntime_SyncMemoryPersistsGenomes(t *testing.T) {
	factory := &stubFactory{}
	genomes := memory.NewGenomeStore()
	perf := memory.NewPerformanceStore(genomes)
	rt := newTestRuntime(t, Options{
		Factory:     factory.build,
		Genomes:     genomes,
		Performance: perf,
	})
	ctx := context.Background()

	genome := &domain.Genome{
		ID:            "g-mem",
		Symbol:        "SOL-USDC",
		StrategyType:  "MOMENTUM",
		SchemaVersion: domain.GenomeSchemaVersion,
		BirthTime:     time.Now(),
	}

	cfg := testConfig()
	cfg.AllowMutation = true
	_, err := rt.CreateAgent(ctx, cfg, genome)
	require.NoError(t, err)

	// A second agent without mutation permission is skipped
	_, err = rt.CreateAgent(ctx, testConfig(), &domain.Genome{
		ID: "g-readonly", Symbol: "SOL-USDC", StrategyType: "MOMENTUM",
		SchemaVersion: domain.GenomeSchemaVersion, BirthTime: time.Now(),
	})
	require.NoError(t, err)

	rt.SyncMemory(ctx)

	stored, err := genomes.GetByID(ctx, "g-mem")
	require.NoError(t, err)
	assert.Equal(t, "g-mem", stored.ID)

	_, err = genomes.GetByID(ctx, "g-readonly")
	assert.Error(t, err)

	rec, err := perf.GetLatest(ctx, "g-mem")
	require.NoError(t, err)
	assert.Equal(t, "SOL-USDC", rec.Symbol)
}

func TestRuntime_StartStopLoops(t *testing.T) {
	factory := &stubFactory{}
	coord := swarm.NewLoopbackCoordinator()
	rt := newTestRuntime(t, Options{
		Factory:      factory.build,
		Coordinator:  coord,
		TickInterval: 5 * time.Millisecond,
	})
	ctx := context.Background()

	id, err := rt.CreateAgent(ctx, testConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, rt.Start(ctx))
	assert.True(t, coord.Joined("node-test"))

	time.Sleep(40 * time.Millisecond)
	rt.Stop(ctx)

	assert.False(t, coord.Joined("node-test"))
	assert.GreaterOrEqual(t, rt.Metrics().TicksCompleted, uint64(1))

	a, _ := rt.Agent(id)
	assert.Equal(t, domain.AgentStopped, a.State())
}
