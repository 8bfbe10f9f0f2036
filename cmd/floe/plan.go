package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pcranston/floe/internal/analyze"
	"github.com/pcranston/floe/internal/graph"
	"github.com/pcranston/floe/internal/schedule"
	"github.com/pcranston/floe/pkg/models"
)

// plan exit codes.
const (
	exitPlanCycle      = 1
	exitPlanUnresolved = 4
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Validate the task graph and print execution waves",
	Long: `Build the dependency graph from the task store, check it for cycles,
dangling references, and conflicts, then print the computed execution waves.

Exit codes:
  0  graph is valid
  1  dependency cycle detected
  4  unresolved task references`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		db := openStore(cfg)
		defer db.Close()

		tasks, g := loadGraph(db)

		if cycles := graph.FindCycles(g, models.EdgeMandatory); len(cycles) > 0 {
			color.Red("Dependency cycle detected:")
			for _, c := range cycles {
				fmt.Printf("  %s\n", c)
			}
			os.Exit(exitPlanCycle)
		}

		if dangling := g.Dangling(); len(dangling) > 0 {
			color.Red("Unresolved task references:")
			for _, d := range dangling {
				fmt.Printf("  %s depends on unknown task %s\n", d.From, d.To)
			}
			os.Exit(exitPlanUnresolved)
		}

		res := schedule.Schedule(g, tasks)
		if len(res.Unresolved) > 0 {
			color.Red("Tasks with unresolvable dependencies:")
			fmt.Printf("  %s\n", strings.Join(res.Unresolved, ", "))
			os.Exit(exitPlanUnresolved)
		}

		printWaves(res.Waves)

		findings := analyze.Analyze(g, tasks, analyze.Options{
			OwnerOverloadThreshold: cfg.Analyze.OwnerOverloadThreshold,
		})
		printFindings(findings)
	},
}

func printWaves(waves []models.Wave) {
	if len(waves) == 0 {
		fmt.Println("No tasks to schedule.")
		return
	}
	color.Cyan("Execution waves:")
	for _, w := range waves {
		fmt.Printf("  wave %d: %s\n", w.Index, strings.Join(w.TaskIDs, ", "))
	}
}

func printFindings(findings []models.Finding) {
	if len(findings) == 0 {
		return
	}
	fmt.Println()
	color.Cyan("Findings:")
	for _, f := range findings {
		line := fmt.Sprintf("  [%s] %s: %s", f.Severity, f.Category, f.Message)
		switch f.Severity {
		case models.SeverityCritical:
			color.Red(line)
		case models.SeverityWarning:
			color.Yellow(line)
		default:
			fmt.Println(line)
		}
		if f.Remediation != "" {
			fmt.Printf("      remediation: %s\n", f.Remediation)
		}
	}
}
