package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pcranston/floe/internal/config"
	"github.com/pcranston/floe/internal/plandoc"
	"github.com/pcranston/floe/internal/reconcile"
	"github.com/pcranston/floe/internal/similarity"
	"github.com/pcranston/floe/internal/store"
	"github.com/pcranston/floe/internal/tracker"
	"github.com/pcranston/floe/pkg/models"
)

const exitSyncConflict = 3

var (
	syncWatch  bool
	syncReopen []string
	syncLink   []string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile the task store, plan document, and tracker",
	Long: `Three-way merge the task store, the plan document, and the external
tracker, then apply the resulting patch to all three.

A task reported done by any store stays done unless explicitly reopened
with --reopen. Contested edits with no timestamp order to break the tie
are reported as conflicts and nothing is applied.

Exit codes:
  0  stores reconciled
  3  merge conflict requiring manual resolution`,
	Run: func(cmd *cobra.Command, args []string) {
		logger := projectLogger()
		defer logger.Close()

		cfg := loadConfig()
		db := openStore(cfg)
		defer db.Close()

		tr := tracker.NewJSONFile(cfg.Paths.TrackerFile)
		reopens := parseReopens(syncReopen)

		if err := applyLinks(tr, syncLink); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := syncOnce(cfg, db, tr, reopens); err != nil {
			var conflict *reconcile.SyncConflictError
			if errors.As(err, &conflict) {
				printConflicts(conflict)
				os.Exit(exitSyncConflict)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if !syncWatch {
			return
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		color.Cyan("Watching %s for changes...", cfg.Paths.PlanDocument)
		err := reconcile.Watch(ctx, cfg.Paths.PlanDocument, 500*time.Millisecond, func() error {
			// Reopen instructions apply to the first pass only.
			return syncOnce(cfg, db, tr, nil)
		}, func(err error) {
			var conflict *reconcile.SyncConflictError
			if errors.As(err, &conflict) {
				printConflicts(conflict)
				return
			}
			fmt.Fprintf(os.Stderr, "Sync error: %v\n", err)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	syncCmd.Flags().BoolVar(&syncWatch, "watch", false, "Re-sync whenever the plan document changes")
	syncCmd.Flags().StringArrayVar(&syncReopen, "reopen", nil,
		"Reopen a done task, as id or id:reason (repeatable)")
	syncCmd.Flags().StringArrayVar(&syncLink, "link", nil,
		"Link a tracker issue to a task, as ref=task-id (repeatable)")
}

// applyLinks records explicit issue-to-task links on the tracker before
// the merge runs, so the linked pair reconciles as one task.
func applyLinks(tr tracker.Tracker, specs []string) error {
	for _, s := range specs {
		ref, taskID, ok := strings.Cut(s, "=")
		if !ok || ref == "" || taskID == "" {
			return fmt.Errorf("invalid --link %q, want ref=task-id", s)
		}
		if err := tr.Edit(ref, tracker.Fields{TaskID: &taskID}); err != nil {
			return err
		}
	}
	return nil
}

// syncOnce runs one reconcile pass and applies the patch.
func syncOnce(cfg *config.Config, db *store.DB, tr tracker.Tracker, reopens []reconcile.Reopen) error {
	tasks, err := db.ListTasks()
	if err != nil {
		return err
	}
	doc, err := plandoc.Load(cfg.Paths.PlanDocument)
	if err != nil {
		return err
	}
	issues, err := tr.List()
	if err != nil {
		return err
	}
	issues, err = matchUnlinked(tr, issues, tasks)
	if err != nil {
		return err
	}
	records, err := db.ListSyncRecords()
	if err != nil {
		return err
	}

	patch, err := reconcile.Reconcile(reconcile.Inputs{
		TaskStore: reconcile.FromTasks(tasks),
		PlanDoc:   reconcile.FromPlan(doc),
		Tracker:   reconcile.FromIssues(issues),
		Records:   records,
		Reopen:    reopens,
	})
	if err != nil {
		return err
	}

	if patch.Empty() {
		fmt.Println("Stores are already consistent.")
		return nil
	}

	applier := &reconcile.Applier{
		Store:    db,
		PlanPath: cfg.Paths.PlanDocument,
		Tracker:  tr,
		Reopens:  reopens,
	}
	if err := applier.Apply(patch); err != nil {
		return err
	}

	printPatchSummary(patch)
	return nil
}

// matchUnlinked pairs tracker issues that carry no task link with
// existing tasks by title similarity. Near-certain duplicates are
// linked on the spot; borderline matches are printed for a human to
// confirm with --link.
func matchUnlinked(tr tracker.Tracker, issues []tracker.Issue, tasks []*models.Task) ([]tracker.Issue, error) {
	res := reconcile.MatchIssues(issues, tasks, similarity.TokenOverlap{}, similarity.DefaultBands)

	byRef := make(map[string]int, len(issues))
	for i := range issues {
		byRef[issues[i].Ref] = i
	}
	for _, link := range res.Links {
		if err := tr.Edit(link.Ref, tracker.Fields{TaskID: &link.TaskID}); err != nil {
			return nil, err
		}
		issues[byRef[link.Ref]].TaskID = link.TaskID
		fmt.Printf("Linked issue %s to task %s (similarity %.2f).\n", link.Ref, link.TaskID, link.Score)
	}
	for _, s := range res.Suggestions {
		color.Yellow("Issue %s (%q) may duplicate task %s (similarity %.2f); link with --link %s=%s",
			s.Ref, s.Title, s.TaskID, s.Score, s.Ref, s.TaskID)
	}
	return issues, nil
}

func parseReopens(specs []string) []reconcile.Reopen {
	var out []reconcile.Reopen
	for _, s := range specs {
		id, reason, _ := strings.Cut(s, ":")
		if id == "" {
			continue
		}
		if reason == "" {
			reason = "reopened via sync"
		}
		out = append(out, reconcile.Reopen{TaskID: id, Reason: reason})
	}
	return out
}

func printConflicts(err *reconcile.SyncConflictError) {
	color.Red("Merge conflicts, nothing applied:")
	for _, c := range err.Conflicts {
		fmt.Printf("  %s.%s:\n", c.TaskID, c.Field)
		for storeName, value := range c.Values {
			fmt.Printf("    %-10s %q\n", storeName, value)
		}
	}
	fmt.Println("Resolve by editing one store, or rerun after the next edit.")
}

func printPatchSummary(patch *models.Patch) {
	counts := make(map[models.StoreName]int)
	for _, op := range patch.Ops {
		counts[op.Store]++
	}
	parts := make([]string, 0, len(counts))
	for _, storeName := range []models.StoreName{models.StoreTask, models.StorePlan, models.StoreTracker} {
		if n := counts[storeName]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %d", storeName, n))
		}
	}
	color.Green("Applied %d changes (%s).", len(patch.Ops), strings.Join(parts, ", "))
}
