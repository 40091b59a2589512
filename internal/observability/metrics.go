// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Agent metrics
	AgentsCreated    prometheus.Counter
	AgentsRetired    prometheus.Counter
	AgentsFailed     prometheus.Counter
	AgentsRestarted  prometheus.Counter
	AgentsByState    *prometheus.GaugeVec
	AgentCycleErrors prometheus.Counter

	// Runtime metrics
	TicksCompleted   prometheus.Counter
	TickDuration     prometheus.Histogram
	CycleDuration    prometheus.Histogram
	CycleTimeouts    prometheus.Counter
	MemorySyncsTotal *prometheus.CounterVec

	// Evolution metrics
	GenerationNumber   prometheus.Gauge
	PoolSize           prometheus.Gauge
	BestFitness        prometheus.Gauge
	OffspringBred      prometheus.Counter
	GenomesPruned      prometheus.Counter
	CrossChainPromoted prometheus.Counter
	EvolutionCycles    *prometheus.CounterVec
	MutationRate       prometheus.Gauge

	// Swarm metrics
	CoordinationRounds *prometheus.CounterVec
	CommandsApplied    *prometheus.CounterVec
	PeersKnown         prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	DBConnections   *prometheus.GaugeVec

	// Health metrics
	LastSuccessfulTick        prometheus.Gauge
	LastSuccessfulCoordinate  prometheus.Gauge
	LastCompletedEvolutionRun prometheus.Gauge
	UptimeSeconds             prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "strategy_swarm"
	}

	return &Metrics{
		// Agent metrics
		AgentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "created_total",
			Help:      "Total number of agents created",
		}),
		AgentsRetired: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "retired_total",
			Help:      "Total number of agents retired",
		}),
		AgentsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "failed_total",
			Help:      "Total number of agent failures (structural and timeout)",
		}),
		AgentsRestarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "restarted_total",
			Help:      "Total number of agent auto-restarts",
		}),
		AgentsByState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "population",
			Help:      "Current number of agents by lifecycle state",
		}, []string{"state"}),
		AgentCycleErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "cycle_errors_total",
			Help:      "Total number of recoverable per-cycle errors",
		}),

		// Runtime metrics
		TicksCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "ticks_completed_total",
			Help:      "Total number of completed runtime ticks",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "tick_duration_seconds",
			Help:      "Runtime tick duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "cycle_duration_seconds",
			Help:      "Per-agent cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CycleTimeouts: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "cycle_timeouts_total",
			Help:      "Total number of agent cycles killed by timeout",
		}),
		MemorySyncsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "memory_syncs_total",
			Help:      "Total number of agent memory-sync persists by status",
		}, []string{"status"}),

		// Evolution metrics
		GenerationNumber: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "generation",
			Help:      "Current evolution generation counter",
		}),
		PoolSize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "pool_size",
			Help:      "Current number of genomes in the pool",
		}),
		BestFitness: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "best_fitness",
			Help:      "Best fitness observed across completed cycles",
		}),
		OffspringBred: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "offspring_bred_total",
			Help:      "Total number of offspring genomes bred",
		}),
		GenomesPruned: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "genomes_pruned_total",
			Help:      "Total number of genomes removed by pruning",
		}),
		CrossChainPromoted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "crosschain_promoted_total",
			Help:      "Total number of genomes promoted to cross-chain variants",
		}),
		EvolutionCycles: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "cycles_total",
			Help:      "Total number of evolution cycles by status",
		}, []string{"status"}),
		MutationRate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "evolution",
			Name:      "mutation_rate",
			Help:      "Current adaptive mutation rate",
		}),

		// Swarm metrics
		CoordinationRounds: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "coordination_rounds_total",
			Help:      "Total number of coordination rounds by status",
		}, []string{"status"}),
		CommandsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "commands_applied_total",
			Help:      "Total number of coordinator commands applied by type and status",
		}, []string{"type", "status"}),
		PeersKnown: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "swarm",
			Name:      "peers_known",
			Help:      "Number of peer nodes in the last coordination result",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		DBConnections: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "connections",
			Help:      "Number of database connections by state",
		}, []string{"database", "state"}),

		// Health metrics
		LastSuccessfulTick: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_tick_timestamp",
			Help:      "Unix timestamp of the last completed runtime tick",
		}),
		LastSuccessfulCoordinate: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_coordination_timestamp",
			Help:      "Unix timestamp of the last successful coordination round",
		}),
		LastCompletedEvolutionRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_evolution_cycle_timestamp",
			Help:      "Unix timestamp of the last completed evolution cycle",
		}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
