package strategy

import (
	"errors"

	"strategy-swarm/internal/domain"
)

// Parameter application errors.
var (
	ErrReleased     = errors.New("strategy instance released")
	ErrInvalidParam = errors.New("invalid parameter value")
	ErrNilSnapshot  = errors.New("nil market snapshot")
)

// floatParam reads a FLOAT parameter, keeping the current value when the
// key is absent. Wrong-kind values error.
func floatParam(params map[string]domain.ParamValue, key string, current float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return current, nil
	}
	if v.Kind != domain.ParamFloat {
		return 0, ErrInvalidParam
	}
	return v.Float, nil
}

// intParam reads an INT parameter, keeping the current value when the key
// is absent. Wrong-kind or non-positive values error.
func intParam(params map[string]domain.ParamValue, key string, current int) (int, error) {
	v, ok := params[key]
	if !ok {
		return current, nil
	}
	if v.Kind != domain.ParamInt || v.Int <= 0 {
		return 0, ErrInvalidParam
	}
	return int(v.Int), nil
}

// sma computes the simple moving average of the last n values. Returns 0
// when fewer than n values exist.
func sma(values []float64, n int) float64 {
	if n <= 0 || len(values) < n {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-n:] {
		sum += v
	}
	return sum / float64(n)
}

// clamp01 bounds v to [0,1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
