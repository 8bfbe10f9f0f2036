package reconcile

import (
	"sort"

	"github.com/pcranston/floe/internal/similarity"
	"github.com/pcranston/floe/internal/tracker"
	"github.com/pcranston/floe/pkg/models"
)

// MatchLink pairs an unlinked tracker issue with the existing task it
// duplicates.
type MatchLink struct {
	Ref    string
	TaskID string
	Score  float64
}

// MatchSuggestion is a possible duplicate the scorer is not confident
// enough to link on its own.
type MatchSuggestion struct {
	Ref    string
	Title  string
	TaskID string
	Score  float64
}

// MatchResult is the outcome of a matching pass over unlinked issues.
type MatchResult struct {
	// Links are near-certain duplicates, safe to link without asking.
	Links []MatchLink
	// Suggestions need human confirmation before linking.
	Suggestions []MatchSuggestion
}

// MatchIssues pairs tracker issues that carry no task link with existing
// tasks by title similarity, so a hand-filed or retitled issue does not
// spawn a duplicate task during the merge. Only tasks that have never
// been linked to an issue are candidates, and each task is claimed at
// most once. Issues are processed in ref order and ties between equal
// scores break on ascending task id, keeping the outcome deterministic.
func MatchIssues(issues []tracker.Issue, tasks []*models.Task, scorer similarity.Scorer, bands similarity.Bands) MatchResult {
	var candidates []*models.Task
	for _, t := range tasks {
		if !t.Archived && t.ExternalRef == "" {
			candidates = append(candidates, t)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })

	unlinked := make([]tracker.Issue, 0, len(issues))
	for _, issue := range issues {
		if issue.TaskID == "" {
			unlinked = append(unlinked, issue)
		}
	}
	sort.Slice(unlinked, func(i, j int) bool { return unlinked[i].Ref < unlinked[j].Ref })

	var res MatchResult
	claimed := make(map[string]bool)
	for _, issue := range unlinked {
		var best *models.Task
		bestScore := 0.0
		for _, t := range candidates {
			if claimed[t.ID] {
				continue
			}
			if score := scorer.Score(issue.Title, t.Title); score > bestScore {
				best = t
				bestScore = score
			}
		}
		if best == nil {
			continue
		}

		switch bands.Classify(bestScore) {
		case similarity.DecisionAutoMerge:
			claimed[best.ID] = true
			res.Links = append(res.Links, MatchLink{Ref: issue.Ref, TaskID: best.ID, Score: bestScore})
		case similarity.DecisionConfirm:
			res.Suggestions = append(res.Suggestions, MatchSuggestion{
				Ref:    issue.Ref,
				Title:  issue.Title,
				TaskID: best.ID,
				Score:  bestScore,
			})
		}
	}
	return res
}
