package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pcranston/floe/internal/coordinator"
	"github.com/pcranston/floe/internal/graph"
	"github.com/pcranston/floe/internal/schedule"
	"github.com/pcranston/floe/pkg/models"
)

// run exit codes.
const (
	exitRunCriticalFailure = 2
	exitRunCancelled       = 5
)

var (
	runMaxConcurrency int
	runDryRun         bool
	runFallbackMode   string
	runCommand        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Dispatch the computed waves to workers",
	Long: `Validate the task graph, schedule execution waves, and dispatch them
to a bounded worker pool. Waves run strictly in order; tasks within a
wave run concurrently.

Each worker runs the payload command (--command or paths in config) with
FLOE_TASK_ID and FLOE_TASK_TITLE set. Without a command, tasks complete
immediately, which drives the state machine and store updates only.

Exit codes:
  0  all waves completed
  2  critical task failure, partial completion
  5  run cancelled`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := projectLogger()
		defer logger.Close()

		cfg := loadConfig()
		db := openStore(cfg)
		defer db.Close()

		tasks, g := loadGraph(db)

		// Validation precedes any dispatch.
		if cycles := graph.FindCycles(g, models.EdgeMandatory); len(cycles) > 0 {
			color.Red("Refusing to run: dependency cycle %s", cycles[0])
			os.Exit(1)
		}
		res := schedule.Schedule(g, tasks)
		if len(res.Unresolved) > 0 {
			color.Red("Refusing to run: unresolvable dependencies for %s",
				strings.Join(res.Unresolved, ", "))
			os.Exit(1)
		}
		if len(res.Waves) == 0 {
			fmt.Println("Nothing to run.")
			return
		}

		maxConcurrency := cfg.Execution.MaxConcurrency
		if runMaxConcurrency > 0 {
			maxConcurrency = runMaxConcurrency
		}
		fallbackMode := models.FallbackMode(cfg.Execution.FallbackMode)
		if runFallbackMode != "" {
			fallbackMode = models.FallbackMode(runFallbackMode)
		}
		if !fallbackMode.Valid() {
			fmt.Fprintf(os.Stderr, "Error: invalid fallback mode %q\n", fallbackMode)
			os.Exit(1)
		}

		if runDryRun {
			color.Cyan("Dry run: %d waves, concurrency %d, fallback %s", len(res.Waves), maxConcurrency, fallbackMode)
			printWaves(res.Waves)
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		payload := payloadWorker(runCommand)
		pool := coordinator.NewPool(maxConcurrency, func() (coordinator.Worker, error) {
			return payload, nil
		})
		coord := coordinator.New(db, pool, payload,
			coordinator.WithRetryLimit(cfg.Execution.RetryLimit),
			coordinator.WithApprovalTimeout(cfg.Execution.ApprovalTimeout),
			coordinator.WithLogger(logger),
		)

		go printEvents(coord.Events())
		go promptApprovals(ctx, coord.Approvals())

		sess := coordinator.NewSession(maxConcurrency, fallbackMode, false)
		led, err := coord.Run(ctx, sess, g, res.Waves, tasks)

		printLedger(led)

		var critical *coordinator.CriticalTaskFailedError
		switch {
		case errors.As(err, &critical):
			color.Red("Critical task %s failed; run aborted with partial completion.", critical.TaskID)
			os.Exit(exitRunCriticalFailure)
		case errors.Is(err, context.Canceled):
			color.Yellow("Run cancelled.")
			os.Exit(exitRunCancelled)
		case err != nil:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	runCmd.Flags().IntVar(&runMaxConcurrency, "max-concurrency", 0, "Worker pool size (overrides config)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Print the dispatch plan without executing")
	runCmd.Flags().StringVar(&runFallbackMode, "fallback-mode", "", "auto or forced (overrides config)")
	runCmd.Flags().StringVar(&runCommand, "command", "", "Shell command run as each task's payload")
}

// payloadWorker executes the configured shell command for a task. An
// empty command completes immediately.
func payloadWorker(command string) coordinator.Worker {
	return coordinator.WorkerFunc(func(ctx context.Context, t *models.Task) error {
		if command == "" {
			return nil
		}
		c := exec.CommandContext(ctx, "sh", "-c", command)
		c.Env = append(os.Environ(),
			"FLOE_TASK_ID="+t.ID,
			"FLOE_TASK_TITLE="+t.Title,
		)
		out, err := c.CombinedOutput()
		if err != nil {
			return fmt.Errorf("payload: %w: %s", err, strings.TrimSpace(string(out)))
		}
		return nil
	})
}

func printEvents(events <-chan coordinator.Event) {
	for ev := range events {
		switch ev.Type {
		case coordinator.EventWaveStarted:
			color.Cyan("wave %d started", ev.Wave)
		case coordinator.EventTaskSucceeded:
			color.Green("  %s succeeded", ev.TaskID)
		case coordinator.EventTaskFailed:
			color.Red("  %s failed: %s", ev.TaskID, ev.Reason)
		case coordinator.EventTaskCancelled:
			color.Yellow("  %s cancelled: %s", ev.TaskID, ev.Reason)
		case coordinator.EventTaskRetried:
			fmt.Printf("  %s retrying (attempt %d)\n", ev.TaskID, ev.Attempt)
		case coordinator.EventFallbackEngaged:
			fmt.Printf("  %s running via direct execution: %s\n", ev.TaskID, ev.Reason)
		}
	}
}

// promptApprovals answers approval requests from the terminal.
func promptApprovals(ctx context.Context, approvals *coordinator.ApprovalManager) {
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-approvals.RequestCh():
			fmt.Printf("Task %s (%q) requires approval. Proceed? [y/N] ", req.TaskID, req.Title)
			line, err := reader.ReadString('\n')
			approved := err == nil && strings.HasPrefix(strings.TrimSpace(strings.ToLower(line)), "y")
			resp := coordinator.ApprovalResponse{TaskID: req.TaskID, Approved: approved}
			if !approved {
				resp.Reason = "declined at terminal"
			}
			approvals.SubmitResponse(resp)
		}
	}
}

func printLedger(led *coordinator.Ledger) {
	fmt.Println()
	color.Cyan("Run ledger (verdict: %s):", led.Verdict())
	for _, e := range led.Entries() {
		line := fmt.Sprintf("  wave %d  %-20s %-10s attempts=%d", e.Wave, e.TaskID, e.State, e.Attempts)
		if e.Mode == coordinator.ModeFallback {
			line += "  mode=fallback"
		}
		if e.Reason != "" {
			line += "  (" + e.Reason + ")"
		}
		fmt.Println(line)
	}
}
