// Package main provides the swarm node that runs all components together:
// - Agent runtime (continuous): tick, coordination and memory-sync loops
// - Evolution (scheduled): one mutation cycle per symbol per interval
// - Genome propagation: best pool genome pushed to sync-enabled agents
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"strategy-swarm/internal/agent"
	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/evolution"
	"strategy-swarm/internal/idhash"
	"strategy-swarm/internal/market"
	"strategy-swarm/internal/observability"
	"strategy-swarm/internal/regime"
	"strategy-swarm/internal/runtime"
	"strategy-swarm/internal/storage"
	chstore "strategy-swarm/internal/storage/clickhouse"
	"strategy-swarm/internal/storage/memory"
	"strategy-swarm/internal/storage/migrations"
	pgstore "strategy-swarm/internal/storage/postgres"
	"strategy-swarm/internal/strategy"
	"strategy-swarm/internal/swarm"
	"strategy-swarm/internal/telemetry"
)

// Node holds all components of the swarm node service.
type Node struct {
	nodeID  string
	region  string
	symbols []string

	runtime *runtime.Runtime
	engines map[string]*evolution.Engine // keyed by symbol
	metrics *observability.Metrics
	logger  *log.Logger

	evolveInterval time.Duration
	started        time.Time

	mu            sync.Mutex
	evolveRuns    int
	lastEvolveRun time.Time
}

// nodeStores holds the storage implementations behind the node.
type nodeStores struct {
	genomes     storage.GenomeStore
	performance storage.PerformanceStore
	generations storage.GenerationStore
}

func main() {
	loadEnvFile()

	// Parse flags (env vars as defaults)
	nodeID := flag.String("node-id", os.Getenv("NODE_ID"), "Node identifier (default: random)")
	region := flag.String("region", envOr("NODE_REGION", "local"), "Node region label")
	symbols := flag.String("symbols", "SOL-USDC", "Comma-separated symbols to trade")
	strategies := flag.String("strategies", "MOMENTUM,MEAN_REVERSION,BREAKOUT", "Comma-separated strategy types to seed")
	maxAgents := flag.Int("max-agents", 32, "Maximum agents on this node")
	tickInterval := flag.Duration("tick-interval", 5*time.Second, "Agent cycle tick interval")
	coordInterval := flag.Duration("coord-interval", 30*time.Second, "Swarm coordination interval")
	memSyncInterval := flag.Duration("memsync-interval", time.Minute, "Genome/performance persistence interval")
	evolveInterval := flag.Duration("evolve-interval", time.Minute, "Evolution cycle interval")
	poolSize := flag.Int("pool-size", 50, "Genome pool bound per symbol")
	offspring := flag.Int("offspring-per-cycle", 5, "Breeding target per evolution cycle")
	minPerformance := flag.Float64("min-performance", 0.2, "Prune floor for the bottom fitness band")
	enableBias := flag.Bool("enable-biased-selection", true, "Regime-biased roulette parent selection")
	enableCrossChain := flag.Bool("enable-cross-chain", false, "Cross-chain variant promotion")
	autoRestart := flag.Bool("auto-restart", true, "Auto-restart failed agents after each tick")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	coordinatorURL := flag.String("coordinator-url", os.Getenv("COORDINATOR_URL"), "Swarm coordinator WebSocket endpoint (empty: loopback)")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	seed := flag.Int64("seed", 0, "Random seed for evolution and synthetic market (0: time-based)")

	flag.Parse()

	logger := log.New(os.Stdout, "[node] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	id := *nodeID
	if id == "" {
		id = "node-" + uuid.NewString()[:8]
	}

	symbolList := splitList(*symbols)
	if len(symbolList) == 0 {
		logger.Fatal("No symbols specified. Use --symbols")
	}
	strategyList := splitList(*strategies)
	if len(strategyList) == 0 {
		logger.Fatal("No strategy types specified. Use --strategies")
	}
	logger.Printf("Node %s (region %s) trading %v", id, *region, symbolList)

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Telemetry bus drained into the log
	bus := telemetry.NewBus(256)
	defer bus.Close()
	go drainTelemetry(bus, log.New(os.Stdout, "[telemetry] ", log.LstdFlags))

	// Market data and regime classification
	marketSource := market.NewSyntheticSource(market.SyntheticOptions{Seed: *seed})
	regimeSource := regime.NewRollingClassifier(marketSource, regime.ClassifierOptions{})

	metrics := observability.NewMetrics("")

	var coordinator swarm.CoordinatorService
	if *coordinatorURL != "" {
		coordinator = swarm.NewWSCoordinator(*coordinatorURL, nil)
		logger.Printf("Using swarm coordinator at %s", *coordinatorURL)
	} else {
		coordinator = swarm.NewLoopbackCoordinator()
		logger.Println("No coordinator URL, running single-node with loopback coordinator")
	}

	rt := runtime.New(runtime.Options{
		NodeID:             id,
		Region:             *region,
		MaxAgents:          *maxAgents,
		TickInterval:       *tickInterval,
		CoordInterval:      *coordInterval,
		MemorySyncInterval: *memSyncInterval,
		DisableAutoRestart: !*autoRestart,
		Coordinator:        coordinator,
		Performance:        stores.performance,
		Genomes:            stores.genomes,
		Regimes:            regimeSource,
		Market:             marketSource,
		Telemetry:          bus,
		Metrics:            metrics,
		Logger:             log.New(os.Stdout, "[runtime] ", log.LstdFlags|log.Lshortfile),
	})

	engines := make(map[string]*evolution.Engine, len(symbolList))
	for _, symbol := range symbolList {
		engines[symbol] = evolution.New(evolution.Options{
			Config: evolution.Config{
				Symbol:                  symbol,
				MaxStrategiesInPool:     *poolSize,
				MinPerformanceThreshold: *minPerformance,
				OffspringPerCycle:       *offspring,
				EnableBiasedSelection:   *enableBias,
				EnableCrossChain:        *enableCrossChain,
				Seed:                    *seed,
			},
			Performance: stores.performance,
			Genomes:     stores.genomes,
			Generations: stores.generations,
			Regimes:     regimeSource,
			Telemetry:   bus,
			Logger:      log.New(os.Stdout, "[evolution] ", log.LstdFlags|log.Lshortfile),
		})
	}

	node := &Node{
		nodeID:         id,
		region:         *region,
		symbols:        symbolList,
		runtime:        rt,
		engines:        engines,
		metrics:        metrics,
		logger:         logger,
		evolveInterval: *evolveInterval,
		started:        time.Now(),
	}

	if err := node.seedPools(ctx, stores.genomes, strategyList); err != nil {
		logger.Fatalf("Failed to seed genome pools: %v", err)
	}
	if err := node.spawnAgents(ctx, strategyList); err != nil {
		logger.Fatalf("Failed to spawn agents: %v", err)
	}

	done := make(chan error, 1)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	go node.startHTTPServer(*metricsAddr)

	err = node.Run(ctx)
	done <- err
	cancel()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatalf("Node error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates the genome, performance and generation stores.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*nodeStores, func(), error) {
	if useMemory {
		genomes := memory.NewGenomeStore()
		stores := &nodeStores{
			genomes:     genomes,
			performance: memory.NewPerformanceStore(genomes),
			generations: memory.NewGenerationStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL: genomes + performance records
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
	}

	// ClickHouse: generation history archive
	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply clickhouse migrations: %w", err)
	}

	stores := &nodeStores{
		genomes:     pgstore.NewGenomeStore(pool),
		performance: pgstore.NewPerformanceStore(pool),
		generations: chstore.NewGenerationStore(chConn),
	}

	cleanup := func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// seedPools loads stored genomes into each engine and creates defaults for
// symbols with an empty store.
func (n *Node) seedPools(ctx context.Context, genomes storage.GenomeStore, strategyTypes []string) error {
	for symbol, engine := range n.engines {
		loaded, err := engine.SeedFromStore(ctx)
		if err != nil {
			return fmt.Errorf("seed %s from store: %w", symbol, err)
		}
		if loaded > 0 {
			n.logger.Printf("Seeded %s pool with %d stored genomes", symbol, loaded)
			continue
		}

		for _, st := range strategyTypes {
			g := defaultGenome(symbol, st)
			if err := genomes.Insert(ctx, g); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("persist seed genome %s/%s: %w", symbol, st, err)
			}
			if err := engine.AddGenome(g); err != nil {
				return fmt.Errorf("add seed genome %s/%s: %w", symbol, st, err)
			}
		}
		n.logger.Printf("Seeded %s pool with %d default genomes", symbol, len(strategyTypes))
	}
	return nil
}

// spawnAgents creates one mutation-enabled agent per symbol and strategy type.
func (n *Node) spawnAgents(ctx context.Context, strategyTypes []string) error {
	for _, symbol := range n.symbols {
		top := n.engines[symbol].TopN(ctx, len(strategyTypes))

		for _, st := range strategyTypes {
			genome := genomeForType(top, st)
			cfg := domain.AgentConfig{
				Symbol:        symbol,
				StrategyType:  st,
				AllowMutation: true,
				AllowSync:     true,
			}
			id, err := n.runtime.CreateAgent(ctx, cfg, genome)
			if err != nil {
				return fmt.Errorf("create agent %s/%s: %w", symbol, st, err)
			}
			n.logger.Printf("Started agent %s (%s %s)", id, symbol, st)
		}
	}
	return nil
}

// genomeForType picks the best-scored genome of the given strategy type,
// or nil when the pool has none (the agent then runs factory defaults).
func genomeForType(scored []domain.ScoredGenome, strategyType string) *domain.Genome {
	for _, sg := range scored {
		if sg.Genome.StrategyType == strategyType {
			return sg.Genome
		}
	}
	return nil
}

// defaultGenome builds the generation-zero genome for one strategy type.
func defaultGenome(symbol, strategyType string) *domain.Genome {
	params := map[string]domain.ParamValue{
		"lookback": domain.IntParam(20),
		"size":     domain.FloatParam(0.1),
	}
	switch strategyType {
	case strategy.TypeMeanReversion:
		params["band"] = domain.FloatParam(0.02)
	case strategy.TypeBreakout:
		params["volume_ratio"] = domain.FloatParam(1.5)
	default:
		params["threshold"] = domain.FloatParam(0.01)
	}

	birth := time.Now().UTC()
	return &domain.Genome{
		ID:            idhash.ComputeGenomeID(symbol, strategyType, 0, params, birth.UnixNano()),
		Symbol:        symbol,
		StrategyType:  strategyType,
		SchemaVersion: domain.GenomeSchemaVersion,
		Parameters:    params,
		BirthTime:     birth,
	}
}

// Run starts the runtime loops and the evolution scheduler, then blocks
// until the context is cancelled.
func (n *Node) Run(ctx context.Context) error {
	n.logger.Println("Starting runtime...")
	if err := n.runtime.Start(ctx); err != nil {
		return fmt.Errorf("start runtime: %w", err)
	}

	go n.runEvolveScheduler(ctx)

	<-ctx.Done()

	n.logger.Println("Stopping runtime...")
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	n.runtime.Stop(stopCtx)

	return ctx.Err()
}

// runEvolveScheduler runs evolution cycles on schedule.
func (n *Node) runEvolveScheduler(ctx context.Context) {
	n.logger.Printf("Starting evolution scheduler (interval: %v)...", n.evolveInterval)

	ticker := time.NewTicker(n.evolveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.runEvolution(ctx)
		}
	}
}

// runEvolution executes one mutation cycle per symbol and propagates the
// best genome to sync-enabled agents.
func (n *Node) runEvolution(ctx context.Context) {
	start := time.Now()

	for symbol, engine := range n.engines {
		engine.ExecuteMutationCycle(ctx)

		n.metrics.GenerationNumber.Set(float64(engine.Generation()))
		n.metrics.PoolSize.Set(float64(engine.PoolSize()))
		n.metrics.BestFitness.Set(engine.BestFitness())

		n.propagateBest(ctx, symbol, engine)
	}
	n.metrics.LastCompletedEvolutionRun.SetToCurrentTime()

	n.mu.Lock()
	n.evolveRuns++
	n.lastEvolveRun = time.Now()
	runs := n.evolveRuns
	n.mu.Unlock()

	n.logger.Printf("Evolution run %d completed in %v", runs, time.Since(start))
}

// propagateBest pushes the best pool genome of each strategy type to the
// running agents trading the symbol. Agents with sync disabled reject the
// update; that is their call, not an error.
func (n *Node) propagateBest(ctx context.Context, symbol string, engine *evolution.Engine) {
	top := engine.TopN(ctx, engine.PoolSize())
	if len(top) == 0 {
		return
	}

	for _, status := range n.runtime.Statuses() {
		if status.Symbol != symbol || status.State != domain.AgentRunning {
			continue
		}
		a, err := n.runtime.Agent(status.AgentID)
		if err != nil {
			continue
		}
		best := genomeForType(top, a.Config().StrategyType)
		if best == nil || best.ID == status.GenomeID {
			continue
		}
		if err := n.runtime.SyncGenome(status.AgentID, best); err != nil {
			if !errors.Is(err, agent.ErrSyncDisabled) {
				n.logger.Printf("Sync genome to agent %s: %v", status.AgentID, err)
			}
			continue
		}
		n.logger.Printf("Agent %s picked up genome %s (gen %d)",
			status.AgentID, idhash.ShortID(best.ID), best.Generation)
	}
}

// startHTTPServer starts the HTTP server for health/metrics/status.
func (n *Node) startHTTPServer(addr string) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/status", n.handleStatus)

	n.logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		n.logger.Printf("HTTP server error: %v", err)
	}
}

// EngineStatus is the per-symbol evolution section of /status.
type EngineStatus struct {
	Symbol      string  `json:"symbol"`
	Generation  int     `json:"generation"`
	PoolSize    int     `json:"pool_size"`
	BestFitness float64 `json:"best_fitness"`
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	NodeID        string                `json:"node_id"`
	Region        string                `json:"region"`
	Status        string                `json:"status"`
	Uptime        string                `json:"uptime"`
	EvolveRuns    int                   `json:"evolve_runs"`
	LastEvolveRun time.Time             `json:"last_evolve_run,omitempty"`
	Runtime       domain.RuntimeMetrics `json:"runtime"`
	Agents        []domain.AgentStatus  `json:"agents"`
	Engines       []EngineStatus        `json:"engines"`
}

// handleStatus returns node status as JSON.
func (n *Node) handleStatus(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	evolveRuns := n.evolveRuns
	lastEvolveRun := n.lastEvolveRun
	n.mu.Unlock()

	engines := make([]EngineStatus, 0, len(n.engines))
	for _, symbol := range n.symbols {
		e := n.engines[symbol]
		engines = append(engines, EngineStatus{
			Symbol:      symbol,
			Generation:  e.Generation(),
			PoolSize:    e.PoolSize(),
			BestFitness: e.BestFitness(),
		})
	}

	resp := StatusResponse{
		NodeID:        n.nodeID,
		Region:        n.region,
		Status:        "running",
		Uptime:        time.Since(n.started).String(),
		EvolveRuns:    evolveRuns,
		LastEvolveRun: lastEvolveRun,
		Runtime:       n.runtime.Metrics(),
		Agents:        n.runtime.Statuses(),
		Engines:       engines,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// drainTelemetry logs every event emitted on the bus.
func drainTelemetry(bus *telemetry.Bus, logger *log.Logger) {
	for ev := range bus.Subscribe() {
		payload, _ := json.Marshal(ev.Payload)
		logger.Printf("%s %s", ev.Name, payload)
	}
}

// splitList splits a comma-separated flag value, trimming blanks.
func splitList(value string) []string {
	var result []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// envOr returns the env var value or a fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
