package strategy

import (
	"errors"
	"testing"

	"strategy-swarm/internal/domain"
)

func TestFromConfig_AllTypes(t *testing.T) {
	tests := []struct {
		strategyType string
		wantID       string
	}{
		{TypeMomentum, "MOMENTUM_SOL-USDC_20_0.01"},
		{TypeMeanReversion, "MEAN_REVERSION_SOL-USDC_20_0.02"},
		{TypeBreakout, "BREAKOUT_SOL-USDC_20_1.5"},
	}

	for _, tt := range tests {
		cfg := domain.AgentConfig{Symbol: "SOL-USDC", StrategyType: tt.strategyType}
		s, err := FromConfig(cfg, nil)
		if err != nil {
			t.Fatalf("FromConfig(%s) failed: %v", tt.strategyType, err)
		}
		if s.ID() != tt.wantID {
			t.Errorf("ID mismatch: got %s, want %s", s.ID(), tt.wantID)
		}
		if s.Symbol() != "SOL-USDC" {
			t.Errorf("Symbol mismatch: got %s", s.Symbol())
		}
	}
}

func TestFromConfig_UnknownType(t *testing.T) {
	cfg := domain.AgentConfig{Symbol: "SOL-USDC", StrategyType: "ARBITRAGE"}

	_, err := FromConfig(cfg, nil)
	if !errors.Is(err, ErrUnknownStrategyType) {
		t.Errorf("Expected ErrUnknownStrategyType, got %v", err)
	}
}

func TestFromConfig_InvalidConfig(t *testing.T) {
	_, err := FromConfig(domain.AgentConfig{StrategyType: TypeMomentum}, nil)
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for missing symbol, got %v", err)
	}
}

func TestFromConfig_AppliesGenome(t *testing.T) {
	cfg := domain.AgentConfig{Symbol: "SOL-USDC", StrategyType: TypeMomentum}
	genome := &domain.Genome{
		ID:            "g1",
		Symbol:        "SOL-USDC",
		StrategyType:  TypeMomentum,
		SchemaVersion: domain.GenomeSchemaVersion,
		Parameters: map[string]domain.ParamValue{
			"lookback":  domain.IntParam(8),
			"threshold": domain.FloatParam(0.03),
		},
	}

	s, err := FromConfig(cfg, genome)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if s.ID() != "MOMENTUM_SOL-USDC_8_0.03" {
		t.Errorf("Genome parameters not applied: %s", s.ID())
	}
}

func TestFromConfig_BadGenomeParameter(t *testing.T) {
	cfg := domain.AgentConfig{Symbol: "SOL-USDC", StrategyType: TypeMomentum}
	genome := &domain.Genome{
		ID:            "g1",
		Symbol:        "SOL-USDC",
		StrategyType:  TypeMomentum,
		SchemaVersion: domain.GenomeSchemaVersion,
		Parameters: map[string]domain.ParamValue{
			"lookback": domain.FloatParam(1.5), // wrong kind
		},
	}

	if _, err := FromConfig(cfg, genome); err == nil {
		t.Error("Expected error for wrong-kind genome parameter")
	}
}
