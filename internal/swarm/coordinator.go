// Package swarm connects a node runtime to its swarm coordinator: the
// node reports status, the coordinator answers with commands and the
// current peer set.
package swarm

import (
	"context"
	"sync"

	"strategy-swarm/internal/domain"
)

// CoordinatorService is the node-side coordination contract.
type CoordinatorService interface {
	// JoinSwarm registers the node with the coordinator.
	JoinSwarm(ctx context.Context, nodeID, region string) error

	// LeaveSwarm deregisters the node.
	LeaveSwarm(ctx context.Context, nodeID string) error

	// Coordinate reports node status and returns commands to apply plus
	// the current peer set.
	Coordinate(ctx context.Context, status domain.NodeStatus) (domain.CoordinationResult, error)

	// UpdatePeers replaces the locally cached peer set.
	UpdatePeers(peers []domain.PeerInfo)
}

// LoopbackCoordinator is an in-process coordinator for single-node
// deployments and tests: commands queued via Enqueue are drained by the
// next Coordinate call.
type LoopbackCoordinator struct {
	mu      sync.Mutex
	joined  map[string]string // node id → region
	pending []domain.Command
	peers   []domain.PeerInfo

	// LastStatus is the most recent status report, for test inspection.
	LastStatus domain.NodeStatus
}

// NewLoopbackCoordinator creates an empty loopback coordinator.
func NewLoopbackCoordinator() *LoopbackCoordinator {
	return &LoopbackCoordinator{joined: make(map[string]string)}
}

// Compile-time interface check.
var _ CoordinatorService = (*LoopbackCoordinator)(nil)

// Enqueue queues commands for the next Coordinate call.
func (c *LoopbackCoordinator) Enqueue(cmds ...domain.Command) {
	c.mu.Lock()
	c.pending = append(c.pending, cmds...)
	c.mu.Unlock()
}

// JoinSwarm registers the node locally.
func (c *LoopbackCoordinator) JoinSwarm(_ context.Context, nodeID, region string) error {
	c.mu.Lock()
	c.joined[nodeID] = region
	c.mu.Unlock()
	return nil
}

// LeaveSwarm deregisters the node locally.
func (c *LoopbackCoordinator) LeaveSwarm(_ context.Context, nodeID string) error {
	c.mu.Lock()
	delete(c.joined, nodeID)
	c.mu.Unlock()
	return nil
}

// Coordinate records the status and drains the pending command queue.
func (c *LoopbackCoordinator) Coordinate(_ context.Context, status domain.NodeStatus) (domain.CoordinationResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.LastStatus = status
	result := domain.CoordinationResult{
		Commands: c.pending,
		Peers:    append([]domain.PeerInfo(nil), c.peers...),
	}
	c.pending = nil
	return result, nil
}

// UpdatePeers replaces the cached peer set.
func (c *LoopbackCoordinator) UpdatePeers(peers []domain.PeerInfo) {
	c.mu.Lock()
	c.peers = append([]domain.PeerInfo(nil), peers...)
	c.mu.Unlock()
}

// Joined reports whether a node id is currently registered.
func (c *LoopbackCoordinator) Joined(nodeID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.joined[nodeID]
	return ok
}
