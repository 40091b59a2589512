package domain

// CommandType tags a swarm coordination command.
type CommandType string

// Known command types. The union is closed on the node side; unrecognized
// types received from a coordinator are logged and skipped, never fatal.
const (
	CmdStartAgent        CommandType = "START_AGENT"
	CmdStopAgent         CommandType = "STOP_AGENT"
	CmdSyncGenome        CommandType = "SYNC_GENOME"
	CmdRetireAgent       CommandType = "RETIRE_AGENT"
	CmdUpdateAgentConfig CommandType = "UPDATE_AGENT_CONFIG"
)

// Command is one coordinator instruction. Type selects which optional
// fields are meaningful.
type Command struct {
	Type CommandType `json:"type"`

	// AgentID targets an existing agent (all types except START_AGENT).
	AgentID string `json:"agent_id,omitempty"`

	// Config is set for START_AGENT and UPDATE_AGENT_CONFIG.
	Config *AgentConfig `json:"config,omitempty"`

	// Genome is set for SYNC_GENOME.
	Genome *Genome `json:"genome,omitempty"`
}

// PeerInfo describes one peer node in the swarm.
type PeerInfo struct {
	NodeID  string `json:"node_id"`
	Region  string `json:"region"`
	Address string `json:"address,omitempty"`
	Agents  int    `json:"agents"`
}

// NodeStatus is the periodic report a node sends to the coordinator.
type NodeStatus struct {
	NodeID        string         `json:"node_id"`
	Region        string         `json:"region"`
	AgentStatuses []AgentStatus  `json:"agent_statuses"`
	Metrics       RuntimeMetrics `json:"runtime_metrics"`
}

// CoordinationResult is the coordinator's reply to one status report.
type CoordinationResult struct {
	Commands []Command  `json:"commands"`
	Peers    []PeerInfo `json:"peers"`
}
