package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pcranston/floe/internal/config"
	"github.com/pcranston/floe/internal/graph"
	"github.com/pcranston/floe/internal/logging"
	"github.com/pcranston/floe/internal/store"
	"github.com/pcranston/floe/pkg/models"
)

var rootCmd = &cobra.Command{
	Use:   "floe",
	Short: "Task-graph orchestration engine",
	Long: `Floe organizes interdependent tasks into a dependency graph, checks it
for cycles and conflicts, schedules parallel-safe execution waves, dispatches
them to a bounded worker pool, and keeps the task store, the plan document,
and the external tracker consistent with each other.

Core commands:
  plan  - build and validate the graph, print waves and findings
  sync  - three-way merge the task store, plan document, and tracker
  run   - dispatch the computed waves`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the effective configuration, or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openStore opens the sqlite task store at the configured path, or exits.
func openStore(cfg *config.Config) *store.DB {
	db, err := store.Open(cfg.Paths.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening task store: %v\n", err)
		os.Exit(1)
	}
	if err := db.Migrate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error migrating task store: %v\n", err)
		os.Exit(1)
	}
	return db
}

// loadGraph lists tasks and builds the dependency graph snapshot.
func loadGraph(db *store.DB) ([]*models.Task, *graph.Graph) {
	tasks, err := db.ListTasks()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing tasks: %v\n", err)
		os.Exit(1)
	}
	b := graph.NewBuilder()
	b.Build(tasks)
	return tasks, b.Snapshot()
}

// projectLogger opens the debug logger under .floe/logs and installs it
// as the package-level logger.
func projectLogger() *logging.DebugLogger {
	logger := logging.NewDebugLoggerForProject(".")
	logging.SetPackageLogger(logger)
	return logger
}
