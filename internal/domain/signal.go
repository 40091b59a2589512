package domain

import "time"

// SignalAction is the trading action a strategy emits for one cycle.
type SignalAction string

// Signal actions.
const (
	ActionBuy  SignalAction = "BUY"
	ActionSell SignalAction = "SELL"
	ActionHold SignalAction = "HOLD"
)

// Signal is the output of one strategy cycle. Execution is out of scope;
// signals are observable through telemetry only.
type Signal struct {
	Symbol      string       `json:"symbol"`
	Action      SignalAction `json:"action"`
	Confidence  float64      `json:"confidence"` // [0,1]
	Size        float64      `json:"size"`       // fraction of allocatable capital
	GeneratedAt time.Time    `json:"generated_at"`
}

// MarketSnapshot is the market state handed to a strategy for one cycle.
type MarketSnapshot struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	BidVolume float64   `json:"bid_volume"`
	AskVolume float64   `json:"ask_volume"`
	// Recent closing prices, oldest first. Length is source-dependent.
	History   []float64 `json:"history,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
