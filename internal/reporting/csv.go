package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderCSV renders generation rows as CSV string.
func RenderCSV(rows []GenerationRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("generation,timestamp,regime,avg_fitness,best_fitness,population_size,offspring_bred,")
	sb.WriteString("parameter_diversity,fitness_diversity,ancestry_diversity\n")

	// Rows
	for _, g := range rows {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%.6f,%.6f,%d,%d,%.6f,%.6f,%.6f\n",
			g.Generation,
			g.Timestamp.UTC().Format(time.RFC3339),
			g.Regime,
			g.AvgFitness,
			g.BestFitness,
			g.PopulationSize,
			g.OffspringBred,
			g.ParameterDiversity,
			g.FitnessDiversity,
			g.AncestryDiversity,
		))
	}

	return sb.String()
}
