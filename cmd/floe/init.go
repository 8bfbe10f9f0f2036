package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a floe project",
	Long: `Initialize a directory for use with floe.

Creates the .floe directory structure: an empty plan document, an empty
tracker issue file, and a logs directory. The task store database is
created on first use.

The directory argument is optional and defaults to the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving directory: %w", err)
	}

	floeDir := filepath.Join(absPath, ".floe")
	if _, err := os.Stat(floeDir); err == nil && !initForce {
		return fmt.Errorf("%s already initialized (use --force to reinitialize)", absPath)
	}

	if err := os.MkdirAll(filepath.Join(floeDir, "logs"), 0755); err != nil {
		return fmt.Errorf("creating .floe directory: %w", err)
	}

	seeds := map[string]string{
		"plan.yaml":   "tasks: []\n",
		"issues.json": "{\"issues\":[]}\n",
	}
	for name, content := range seeds {
		path := filepath.Join(floeDir, name)
		if _, err := os.Stat(path); err == nil && !initForce {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}

	color.Green("Initialized floe project in %s", absPath)
	fmt.Println("  .floe/plan.yaml    plan document")
	fmt.Println("  .floe/issues.json  tracker issue file")
	fmt.Println("  .floe/logs/        debug logs")
	return nil
}
