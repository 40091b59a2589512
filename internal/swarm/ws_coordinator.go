package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"strategy-swarm/internal/domain"
)

// Envelope message types on the coordinator wire.
const (
	msgJoin        = "join"
	msgLeave       = "leave"
	msgNodeStatus  = "node_status"
	msgCoordResult = "coordination_result"
	msgAck         = "ack"
)

// envelope is the JSON frame exchanged with the coordinator.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	NodeID string `json:"node_id"`
	Region string `json:"region"`
}

// WSConfig configures the WebSocket coordinator client.
type WSConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the backoff between reconnect attempts.
	MaxReconnectDelay time.Duration
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
	// ReadTimeout bounds waiting for a coordinator reply.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing a frame.
	WriteTimeout time.Duration
}

// DefaultWSConfig returns the default client configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// WSCoordinator talks to a remote coordinator over a websocket. Exchanges
// are request/response: one status frame out, one result frame back. A
// connection error closes the socket; the next call redials with
// exponential backoff state carried across calls.
type WSCoordinator struct {
	endpoint string
	config   WSConfig

	connMu sync.Mutex
	conn   *websocket.Conn
	closed atomic.Bool

	// reconnectDelay is the current backoff, reset on successful exchange.
	reconnectDelay time.Duration
	lastAttempt    time.Time

	peersMu sync.RWMutex
	peers   []domain.PeerInfo
}

// NewWSCoordinator creates a client for the coordinator endpoint. No
// connection is made until the first call.
func NewWSCoordinator(endpoint string, config *WSConfig) *WSCoordinator {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	return &WSCoordinator{
		endpoint:       endpoint,
		config:         cfg,
		reconnectDelay: cfg.ReconnectDelay,
	}
}

// Compile-time interface check.
var _ CoordinatorService = (*WSCoordinator)(nil)

// JoinSwarm dials the coordinator and announces the node.
func (c *WSCoordinator) JoinSwarm(ctx context.Context, nodeID, region string) error {
	payload, err := json.Marshal(joinPayload{NodeID: nodeID, Region: region})
	if err != nil {
		return err
	}
	_, err = c.exchange(ctx, envelope{Type: msgJoin, Payload: payload}, msgAck)
	return err
}

// LeaveSwarm announces departure and closes the connection.
func (c *WSCoordinator) LeaveSwarm(ctx context.Context, nodeID string) error {
	payload, err := json.Marshal(joinPayload{NodeID: nodeID})
	if err != nil {
		return err
	}
	_, exchangeErr := c.exchange(ctx, envelope{Type: msgLeave, Payload: payload}, msgAck)
	c.Close()
	return exchangeErr
}

// Coordinate sends a status report and decodes the coordinator's reply.
func (c *WSCoordinator) Coordinate(ctx context.Context, status domain.NodeStatus) (domain.CoordinationResult, error) {
	payload, err := json.Marshal(status)
	if err != nil {
		return domain.CoordinationResult{}, err
	}

	reply, err := c.exchange(ctx, envelope{Type: msgNodeStatus, Payload: payload}, msgCoordResult)
	if err != nil {
		return domain.CoordinationResult{}, err
	}

	var result domain.CoordinationResult
	if err := json.Unmarshal(reply, &result); err != nil {
		return domain.CoordinationResult{}, fmt.Errorf("decode coordination result: %w", err)
	}
	if len(result.Peers) > 0 {
		c.UpdatePeers(result.Peers)
	}
	return result, nil
}

// UpdatePeers replaces the cached peer set.
func (c *WSCoordinator) UpdatePeers(peers []domain.PeerInfo) {
	c.peersMu.Lock()
	c.peers = append([]domain.PeerInfo(nil), peers...)
	c.peersMu.Unlock()
}

// Peers returns a copy of the cached peer set.
func (c *WSCoordinator) Peers() []domain.PeerInfo {
	c.peersMu.RLock()
	defer c.peersMu.RUnlock()
	return append([]domain.PeerInfo(nil), c.peers...)
}

// Close shuts the connection down. Subsequent calls fail.
func (c *WSCoordinator) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
	return nil
}

// exchange writes one frame and waits for a reply of the expected type.
// Any transport error drops the connection so the next call redials.
func (c *WSCoordinator) exchange(ctx context.Context, out envelope, wantType string) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("coordinator client closed")
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if err := c.ensureConnectedLocked(ctx); err != nil {
		return nil, err
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	if err := c.conn.WriteJSON(out); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("write %s: %w", out.Type, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
	var in envelope
	if err := c.conn.ReadJSON(&in); err != nil {
		c.dropLocked()
		return nil, fmt.Errorf("read reply to %s: %w", out.Type, err)
	}
	if in.Type != wantType {
		return nil, fmt.Errorf("unexpected reply type %q to %s", in.Type, out.Type)
	}

	c.reconnectDelay = c.config.ReconnectDelay
	return in.Payload, nil
}

// ensureConnectedLocked dials when disconnected, honoring the backoff
// window left by the previous failure. Caller holds connMu.
func (c *WSCoordinator) ensureConnectedLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	if wait := c.reconnectDelay - time.Since(c.lastAttempt); wait > 0 && !c.lastAttempt.IsZero() {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	c.lastAttempt = time.Now()

	dialer := websocket.Dialer{HandshakeTimeout: c.config.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		c.reconnectDelay *= 2
		if c.reconnectDelay > c.config.MaxReconnectDelay {
			c.reconnectDelay = c.config.MaxReconnectDelay
		}
		return fmt.Errorf("coordinator dial: %w", err)
	}

	c.conn = conn
	return nil
}

// dropLocked closes the broken connection. Caller holds connMu.
func (c *WSCoordinator) dropLocked() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}
