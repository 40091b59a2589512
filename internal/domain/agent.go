package domain

import "time"

// AgentState is the lifecycle state of an agent.
type AgentState string

// Agent lifecycle states. Valid transitions:
// CREATED → STARTING → RUNNING ⇄ SYNCING, RUNNING → STOPPING → STOPPED,
// {STARTING, STOPPING, SYNCING} → FAILED, {STOPPED, FAILED} → STARTING.
const (
	AgentCreated  AgentState = "CREATED"
	AgentStarting AgentState = "STARTING"
	AgentRunning  AgentState = "RUNNING"
	AgentSyncing  AgentState = "SYNCING"
	AgentStopping AgentState = "STOPPING"
	AgentStopped  AgentState = "STOPPED"
	AgentFailed   AgentState = "FAILED"
)

// AgentConfig configures one agent. Symbol binds the strategy instance at
// construction; changing it requires stop → reconfigure → restart.
type AgentConfig struct {
	Symbol       string `json:"symbol"`
	StrategyType string `json:"strategy_type"`

	// AllowMutation permits persisting genome + performance on stop and
	// during memory sync.
	AllowMutation bool `json:"allow_mutation"`

	// AllowSync permits external genome replacement via UpdateGenome.
	AllowSync bool `json:"allow_sync"`

	// CycleTimeout bounds one ExecuteCycle call. Zero means the runtime
	// default applies.
	CycleTimeout time.Duration `json:"cycle_timeout,omitempty"`

	// RegimeCheckInterval throttles regime-change checks inside the cycle.
	// Zero means the agent default applies.
	RegimeCheckInterval time.Duration `json:"regime_check_interval,omitempty"`
}

// Validate checks required config fields.
func (c AgentConfig) Validate() error {
	if c.Symbol == "" || c.StrategyType == "" {
		return ErrInvalidConfig
	}
	return nil
}

// AgentStatus is a point-in-time snapshot of one agent, reported to the
// swarm coordinator and exposed by the runtime.
type AgentStatus struct {
	AgentID       string        `json:"agent_id"`
	NodeID        string        `json:"node_id"`
	Region        string        `json:"region"`
	Symbol        string        `json:"symbol"`
	State         AgentState    `json:"state"`
	GenomeID      string        `json:"genome_id,omitempty"`
	Generation    int           `json:"generation"`
	CyclesRun     uint64        `json:"cycles_run"`
	CycleErrors   uint64        `json:"cycle_errors"`
	StateErrors   uint64        `json:"state_errors"`
	AvgCycleTime  time.Duration `json:"avg_cycle_time"`
	LastCycleTime time.Time     `json:"last_cycle_time,omitempty"`
	Retired       bool          `json:"retired"`
}

// RuntimeMetrics is the node-level counter snapshot reported alongside
// agent statuses.
type RuntimeMetrics struct {
	AgentsCreated   uint64 `json:"agents_created"`
	AgentsRetired   uint64 `json:"agents_retired"`
	AgentsFailed    uint64 `json:"agents_failed"`
	AgentsRestarted uint64 `json:"agents_restarted"`
	TicksCompleted  uint64 `json:"ticks_completed"`
	CycleErrors     uint64 `json:"cycle_errors"`

	// Per-state population counts at snapshot time.
	StateCounts map[AgentState]int `json:"state_counts"`
}
