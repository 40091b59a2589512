package domain

// Regime is a discrete market-condition label used to bias parent selection
// and genome retrieval.
type Regime string

// Market regimes.
const (
	RegimeBull     Regime = "BULL"
	RegimeBear     Regime = "BEAR"
	RegimeSideways Regime = "SIDEWAYS"
	RegimeVolatile Regime = "VOLATILE"
	RegimeUnknown  Regime = "UNKNOWN"
)

// Valid reports whether r is a known regime label.
func (r Regime) Valid() bool {
	switch r {
	case RegimeBull, RegimeBear, RegimeSideways, RegimeVolatile, RegimeUnknown:
		return true
	}
	return false
}

// RegimeReading is one classification result for a symbol.
type RegimeReading struct {
	Primary    Regime  `json:"primary"`
	Confidence float64 `json:"confidence"` // [0,1]
}
