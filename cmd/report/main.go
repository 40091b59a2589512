// Package main renders the evolution history of one symbol to Markdown and
// CSV files from the durable stores.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"strategy-swarm/internal/reporting"
	chstore "strategy-swarm/internal/storage/clickhouse"
	pgstore "strategy-swarm/internal/storage/postgres"
)

func main() {
	outputDir := flag.String("output-dir", "output", "Output directory for generated files")
	symbol := flag.String("symbol", "SOL-USDC", "Symbol to report on")
	fromGen := flag.Int("from-gen", 0, "First generation to include")
	toGen := flag.Int("to-gen", 1000000, "Last generation to include")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	flag.Parse()

	ctx := context.Background()

	if *postgresDSN == "" || *clickhouseDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn and --clickhouse-dsn are required")
		os.Exit(1)
	}

	// Postgres: performance records; ClickHouse: generation archive
	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	chConn, err := chstore.NewConn(ctx, *clickhouseDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer chConn.Close()

	generator := reporting.NewGenerator(
		chstore.NewGenerationStore(chConn),
		pgstore.NewPerformanceStore(pool),
	)

	report, err := generator.Generate(ctx, *symbol, *fromGen, *toGen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	mdPath := filepath.Join(*outputDir, "EVOLUTION_REPORT.md")
	if err := os.WriteFile(mdPath, []byte(reporting.RenderMarkdown(report)), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing markdown: %v\n", err)
		os.Exit(1)
	}

	csvPath := filepath.Join(*outputDir, "GENERATION_HISTORY.csv")
	if err := os.WriteFile(csvPath, []byte(reporting.RenderCSV(report.Generations)), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing csv: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Evolution report generated successfully:")
	fmt.Printf("  - %s\n", mdPath)
	fmt.Printf("  - %s\n", csvPath)
	fmt.Printf("Generations %d-%d, best fitness %.4f\n",
		report.Summary.FirstGeneration, report.Summary.LastGeneration, report.Summary.BestFitness)
}
