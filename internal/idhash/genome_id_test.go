package idhash

import (
	"testing"

	"strategy-swarm/internal/domain"
)

func TestComputeGenomeID_Deterministic(t *testing.T) {
	params := map[string]domain.ParamValue{
		"lookback":  domain.IntParam(20),
		"threshold": domain.FloatParam(0.02),
		"invert":    domain.BoolParam(false),
	}

	id1 := ComputeGenomeID("SOL-USDC", "MOMENTUM", 3, params, 1700000000000000000)
	id2 := ComputeGenomeID("SOL-USDC", "MOMENTUM", 3, params, 1700000000000000000)

	if id1 != id2 {
		t.Errorf("Same inputs produced different IDs: %s vs %s", id1, id2)
	}
	if len(id1) != 64 {
		t.Errorf("Expected 64-char hex hash, got %d chars", len(id1))
	}
}

func TestComputeGenomeID_ParameterOrderIndependent(t *testing.T) {
	a := map[string]domain.ParamValue{
		"alpha": domain.FloatParam(0.1),
		"beta":  domain.FloatParam(0.2),
	}
	b := map[string]domain.ParamValue{
		"beta":  domain.FloatParam(0.2),
		"alpha": domain.FloatParam(0.1),
	}

	if ComputeGenomeID("X", "M", 0, a, 1) != ComputeGenomeID("X", "M", 0, b, 1) {
		t.Error("Map insertion order changed the genome ID")
	}
}

func TestComputeGenomeID_DifferentInputsDiffer(t *testing.T) {
	params := map[string]domain.ParamValue{"lookback": domain.IntParam(20)}

	base := ComputeGenomeID("SOL-USDC", "MOMENTUM", 0, params, 1)

	if ComputeGenomeID("SOL-USDC", "MOMENTUM", 1, params, 1) == base {
		t.Error("Generation change did not change the ID")
	}
	if ComputeGenomeID("BTC-USDC", "MOMENTUM", 0, params, 1) == base {
		t.Error("Symbol change did not change the ID")
	}
	if ComputeGenomeID("SOL-USDC", "MOMENTUM", 0, params, 2) == base {
		t.Error("Birth timestamp change did not change the ID")
	}
}

func TestShortID(t *testing.T) {
	id := ComputeGenomeID("SOL-USDC", "MOMENTUM", 0, nil, 1)

	short := ShortID(id)
	if short == id || short == "" {
		t.Errorf("Expected compact short ID, got %q", short)
	}

	// Non-hex input passes through unchanged
	if got := ShortID("not-hex"); got != "not-hex" {
		t.Errorf("Expected passthrough for non-hex input, got %q", got)
	}
}
