package reporting

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"strategy-swarm/internal/domain"
)

// RenderMarkdown renders a report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("# Evolution Report: %s\n\n", r.Symbol))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Generations | %d - %d |\n", r.Summary.FirstGeneration, r.Summary.LastGeneration))
	sb.WriteString(fmt.Sprintf("| Best Fitness | %.4f (generation %d) |\n", r.Summary.BestFitness, r.Summary.BestGeneration))
	sb.WriteString(fmt.Sprintf("| Total Offspring | %d |\n", r.Summary.TotalOffspring))
	sb.WriteString(fmt.Sprintf("| Final Population | %d |\n", r.Summary.FinalPopulation))
	sb.WriteString("\n")

	// Regime distribution, sorted for stable output
	if len(r.Summary.RegimeCounts) > 0 {
		regimes := make([]string, 0, len(r.Summary.RegimeCounts))
		for regime := range r.Summary.RegimeCounts {
			regimes = append(regimes, string(regime))
		}
		sort.Strings(regimes)

		sb.WriteString("## Regime Distribution\n\n")
		sb.WriteString("| Regime | Generations |\n")
		sb.WriteString("|--------|-------------|\n")
		for _, regime := range regimes {
			sb.WriteString(fmt.Sprintf("| %s | %d |\n", regime, r.Summary.RegimeCounts[domain.Regime(regime)]))
		}
		sb.WriteString("\n")
	}

	// Generation history
	sb.WriteString("## Generation History\n\n")
	if len(r.Generations) > 0 {
		sb.WriteString("| Gen | Regime | AvgFit | BestFit | Pop | Bred | ParamDiv | FitDiv | AncDiv |\n")
		sb.WriteString("|-----|--------|--------|---------|-----|------|----------|--------|--------|\n")
		for _, g := range r.Generations {
			sb.WriteString(fmt.Sprintf("| %d | %s | %.4f | %.4f | %d | %d | %.4f | %.4f | %.4f |\n",
				g.Generation, g.Regime, g.AvgFitness, g.BestFitness,
				g.PopulationSize, g.OffspringBred,
				g.ParameterDiversity, g.FitnessDiversity, g.AncestryDiversity))
		}
	} else {
		sb.WriteString("No generation history available.\n")
	}
	sb.WriteString("\n")

	// Top genomes
	sb.WriteString("## Top Genomes\n\n")
	if len(r.TopGenomes) > 0 {
		sb.WriteString("| Genome | Type | Gen | Score | CrossChain |\n")
		sb.WriteString("|--------|------|-----|-------|------------|\n")
		for _, g := range r.TopGenomes {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %.4f | %t |\n",
				g.ShortID, g.StrategyType, g.Generation, g.Score, g.CrossChain))
		}
	} else {
		sb.WriteString("No scored genomes available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
