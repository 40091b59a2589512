// Package main provides an offline evolution driver: seed a pool, run a
// fixed number of mutation cycles and print the generation summary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"strategy-swarm/internal/domain"
	"strategy-swarm/internal/evolution"
	"strategy-swarm/internal/idhash"
	"strategy-swarm/internal/market"
	"strategy-swarm/internal/regime"
	"strategy-swarm/internal/storage"
	"strategy-swarm/internal/storage/memory"
	"strategy-swarm/internal/storage/migrations"
	pgstore "strategy-swarm/internal/storage/postgres"
	"strategy-swarm/internal/strategy"
	"strategy-swarm/internal/telemetry"
)

func main() {
	symbol := flag.String("symbol", "SOL-USDC", "Symbol to evolve")
	cycles := flag.Int("cycles", 10, "Number of mutation cycles to run")
	poolSize := flag.Int("pool-size", 20, "Genome pool bound")
	offspring := flag.Int("offspring-per-cycle", 5, "Breeding target per cycle")
	minPerformance := flag.Float64("min-performance", 0.2, "Prune floor for the bottom fitness band")
	enableBias := flag.Bool("enable-biased-selection", true, "Regime-biased roulette parent selection")
	enableCrossChain := flag.Bool("enable-cross-chain", false, "Cross-chain variant promotion")
	seed := flag.Int64("seed", 1, "Random seed (0: time-based)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string (empty: in-memory)")
	verbose := flag.Bool("verbose", false, "Per-cycle output")
	flag.Parse()

	logger := log.New(os.Stdout, "[evolve] ", log.LstdFlags)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived signal %v, cancelling run...\n", sig)
		cancel()
	}()

	genomes, performance, cleanup, err := createStores(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating stores: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	marketSource := market.NewSyntheticSource(market.SyntheticOptions{Seed: *seed})
	regimeSource := regime.NewRollingClassifier(marketSource, regime.ClassifierOptions{})

	engine := evolution.New(evolution.Options{
		Config: evolution.Config{
			Symbol:                  *symbol,
			MaxStrategiesInPool:     *poolSize,
			MinPerformanceThreshold: *minPerformance,
			OffspringPerCycle:       *offspring,
			EnableBiasedSelection:   *enableBias,
			EnableCrossChain:        *enableCrossChain,
			Seed:                    *seed,
		},
		Performance: performance,
		Genomes:     genomes,
		Regimes:     regimeSource,
		Telemetry:   telemetry.Nop{},
		Logger:      logger,
	})

	// Seed: stored genomes if any, defaults otherwise
	loaded, err := engine.SeedFromStore(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error seeding from store: %v\n", err)
		os.Exit(1)
	}
	if loaded == 0 {
		loaded, err = seedDefaults(ctx, engine, genomes, *symbol)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error seeding defaults: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Println("=== Offline Evolution ===")
	fmt.Printf("Symbol: %s | Pool: %d genomes | Cycles: %d\n", *symbol, loaded, *cycles)

	start := time.Now()
	completed := 0
	for i := 0; i < *cycles; i++ {
		if ctx.Err() != nil {
			break
		}
		engine.ExecuteMutationCycle(ctx)
		completed++

		if *verbose {
			fmt.Printf("  gen %d: pool=%d best=%.4f\n",
				engine.Generation(), engine.PoolSize(), engine.BestFitness())
		}
	}

	fmt.Printf("\nCompleted %d cycles in %v\n", completed, time.Since(start))
	fmt.Printf("  Generation: %d\n", engine.Generation())
	fmt.Printf("  Pool size:  %d\n", engine.PoolSize())
	fmt.Printf("  Best:       %.4f\n", engine.BestFitness())

	history := engine.GenerationHistory()
	if len(history) > 0 {
		last := history[len(history)-1]
		fmt.Printf("  Diversity:  param=%.4f fitness=%.4f ancestry=%.4f\n",
			last.ParameterDiversity, last.FitnessDiversity, last.AncestryDiversity)
	}

	fmt.Println("\nTop genomes:")
	for _, sg := range engine.TopN(ctx, 5) {
		fmt.Printf("  %s %s gen=%d score=%.4f\n",
			idhash.ShortID(sg.Genome.ID), sg.Genome.StrategyType, sg.Genome.Generation, sg.Score)
	}
}

// createStores returns postgres-backed stores when a DSN is given, memory
// stores otherwise.
func createStores(ctx context.Context, postgresDSN string) (storage.GenomeStore, storage.PerformanceStore, func(), error) {
	if postgresDSN == "" {
		genomes := memory.NewGenomeStore()
		return genomes, memory.NewPerformanceStore(genomes), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("apply postgres migrations: %w", err)
	}
	return pgstore.NewGenomeStore(pool), pgstore.NewPerformanceStore(pool), pool.Close, nil
}

// seedDefaults creates one generation-zero genome per strategy type.
func seedDefaults(ctx context.Context, engine *evolution.Engine, genomes storage.GenomeStore, symbol string) (int, error) {
	types := []string{strategy.TypeMomentum, strategy.TypeMeanReversion, strategy.TypeBreakout}
	seeded := 0

	for _, st := range types {
		params := map[string]domain.ParamValue{
			"lookback": domain.IntParam(20),
			"size":     domain.FloatParam(0.1),
		}
		switch st {
		case strategy.TypeMeanReversion:
			params["band"] = domain.FloatParam(0.02)
		case strategy.TypeBreakout:
			params["volume_ratio"] = domain.FloatParam(1.5)
		default:
			params["threshold"] = domain.FloatParam(0.01)
		}

		birth := time.Now().UTC()
		g := &domain.Genome{
			ID:            idhash.ComputeGenomeID(symbol, st, 0, params, birth.UnixNano()),
			Symbol:        symbol,
			StrategyType:  st,
			SchemaVersion: domain.GenomeSchemaVersion,
			Parameters:    params,
			BirthTime:     birth,
		}
		if err := genomes.Insert(ctx, g); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
			return 0, fmt.Errorf("persist seed genome %s/%s: %w", symbol, st, err)
		}
		if err := engine.AddGenome(g); err == nil {
			seeded++
		}
	}
	return seeded, nil
}
