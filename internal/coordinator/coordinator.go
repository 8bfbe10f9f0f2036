// Package coordinator dispatches scheduled waves of tasks to a bounded
// worker pool, with direct execution as the fallback when no worker can
// be started. Waves run strictly sequentially; tasks within a wave run
// concurrently and may complete in any order.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pcranston/floe/internal/graph"
	"github.com/pcranston/floe/internal/logging"
	"github.com/pcranston/floe/internal/store"
	"github.com/pcranston/floe/pkg/models"
)

// DefaultRetryLimit is the number of additional worker attempts after a
// failed first attempt. Direct-execution failures are never retried.
const DefaultRetryLimit = 2

// storeWriteAttempts bounds the re-fetch-and-retry loop on version
// mismatch when the coordinator writes task status.
const storeWriteAttempts = 5

// CriticalTaskFailedError reports that a critical task reached terminal
// failure, aborting its dependents and every later wave.
type CriticalTaskFailedError struct {
	TaskID string
}

func (e *CriticalTaskFailedError) Error() string {
	return fmt.Sprintf("critical task %s failed", e.TaskID)
}

// Coordinator runs one scheduled session to completion.
type Coordinator struct {
	store           store.TaskStore
	pool            *Pool
	direct          Worker
	approvals       *ApprovalManager
	emitter         *EventEmitter
	logger          *logging.DebugLogger
	retryLimit      int
	approvalTimeout time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRetryLimit overrides the worker retry bound.
func WithRetryLimit(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.retryLimit = n
		}
	}
}

// WithApprovalTimeout bounds how long a task may wait in
// AwaitingApproval. Zero means wait until the run is cancelled.
func WithApprovalTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.approvalTimeout = d
		}
	}
}

// WithApprovals installs the approval manager for tasks that require a
// human checkpoint before dispatch.
func WithApprovals(m *ApprovalManager) Option {
	return func(c *Coordinator) { c.approvals = m }
}

// WithLogger installs a debug logger.
func WithLogger(l *logging.DebugLogger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithEventBuffer sets the event channel buffer size.
func WithEventBuffer(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.emitter = NewEventEmitter(n)
		}
	}
}

// New creates a Coordinator. The direct worker is the coordinator's own
// execution path and must be set; the pool supplies real workers.
func New(st store.TaskStore, pool *Pool, direct Worker, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:      st,
		pool:       pool,
		direct:     direct,
		approvals:  NewApprovalManager(),
		emitter:    NewEventEmitter(100),
		logger:     logging.NopLogger(),
		retryLimit: DefaultRetryLimit,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Events returns the run's event stream. Closed when Run returns.
func (c *Coordinator) Events() <-chan Event {
	return c.emitter.Events()
}

// Approvals returns the manager a reviewer uses to answer approval
// requests.
func (c *Coordinator) Approvals() *ApprovalManager {
	return c.approvals
}

// NewSession creates a session for one run.
func NewSession(maxConcurrency int, mode models.FallbackMode, dryRun bool) *models.Session {
	return &models.Session{
		ID:             uuid.New().String()[:8],
		MaxConcurrency: maxConcurrency,
		FallbackMode:   mode,
		DryRun:         dryRun,
		StartedAt:      time.Now(),
		Status:         models.SessionActive,
	}
}

// runState is the shared failure bookkeeping for one run.
type runState struct {
	mu sync.Mutex
	// unmet maps a terminally failed or dependency-blocked task to the
	// task id that caused it.
	unmet map[string]string
	// critical is the first critical task to fail, if any.
	critical string
}

func (s *runState) markUnmet(taskID, cause string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unmet[taskID] = cause
}

func (s *runState) markCritical(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.critical == "" {
		s.critical = taskID
	}
}

func (s *runState) criticalTask() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.critical
}

// unmetMandatoryDep returns the failed task gating t, if any.
func (s *runState) unmetMandatoryDep(g *graph.Graph, t *models.Task) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range g.Edges(t.ID, models.EdgeMandatory) {
		if _, failed := s.unmet[e.To]; failed {
			return e.To
		}
	}
	return ""
}

// Run dispatches the waves in order and returns the run ledger. The
// error is non-nil only for run-ending conditions: a critical task
// failure or cancellation.
func (c *Coordinator) Run(ctx context.Context, sess *models.Session, g *graph.Graph, waves []models.Wave, tasks []*models.Task) (*Ledger, error) {
	defer c.emitter.Close()

	byID := make(map[string]*models.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}

	led := NewLedger()
	for _, w := range waves {
		for _, id := range w.TaskIDs {
			led.Track(id, w.Index)
		}
	}

	state := &runState{unmet: make(map[string]string)}
	c.logger.Log("[run %s] starting: %d waves, concurrency %d, fallback %s",
		sess.ID, len(waves), c.pool.Size(), sess.FallbackMode)

	for wi, wave := range waves {
		c.emitter.Emit(Event{Type: EventWaveStarted, Wave: wave.Index})

		var wg sync.WaitGroup
		for _, id := range wave.TaskIDs {
			t := byID[id]
			if t == nil {
				led.SetState(id, StateCancelled, "task not found")
				continue
			}
			wg.Add(1)
			go func(t *models.Task) {
				defer wg.Done()
				c.runTask(ctx, sess, g, t, wave.Index, led, state)
			}(t)
		}
		wg.Wait()

		c.emitter.Emit(Event{Type: EventWaveCompleted, Wave: wave.Index})

		if err := ctx.Err(); err != nil {
			c.cancelRemaining(waves[wi+1:], led, "run cancelled")
			return c.finishRun(sess, led, VerdictCancelled, err)
		}
		if failed := state.criticalTask(); failed != "" {
			reason := fmt.Sprintf("critical task %s failed", failed)
			c.cancelRemaining(waves[wi+1:], led, reason)
			return c.finishRun(sess, led, VerdictCriticalFailure, &CriticalTaskFailedError{TaskID: failed})
		}
	}

	return c.finishRun(sess, led, VerdictSuccess, nil)
}

func (c *Coordinator) finishRun(sess *models.Session, led *Ledger, v Verdict, err error) (*Ledger, error) {
	led.SetVerdict(v)
	switch v {
	case VerdictSuccess:
		sess.Status = models.SessionCompleted
	case VerdictCancelled:
		sess.Status = models.SessionCancelled
	default:
		sess.Status = models.SessionFailed
	}
	c.emitter.Emit(Event{Type: EventRunCompleted, Reason: string(v)})
	c.logger.Log("[run %s] finished: verdict %s", sess.ID, v)
	return led, err
}

// cancelRemaining marks every task in the given waves cancelled.
func (c *Coordinator) cancelRemaining(waves []models.Wave, led *Ledger, reason string) {
	for _, w := range waves {
		for _, id := range w.TaskIDs {
			led.SetState(id, StateCancelled, reason)
			c.emitter.Emit(Event{Type: EventTaskCancelled, TaskID: id, Wave: w.Index, Reason: reason})
		}
	}
}

// runTask walks one task through the state machine.
func (c *Coordinator) runTask(ctx context.Context, sess *models.Session, g *graph.Graph, t *models.Task, wave int, led *Ledger, state *runState) {
	// Mandatory dependencies settled in earlier waves gate dispatch
	// regardless of the failing task's criticality.
	if dep := state.unmetMandatoryDep(g, t); dep != "" {
		reason := fmt.Sprintf("mandatory dependency %s failed", dep)
		state.markUnmet(t.ID, dep)
		c.cancelTask(t, wave, led, reason, false)
		c.writeStatus(t.ID, models.TaskStatusBlocked)
		return
	}

	if t.NeedsApproval {
		led.SetState(t.ID, StateAwaitingApproval, "")
		c.emitter.Emit(Event{Type: EventTaskAwaitingApproval, TaskID: t.ID, Wave: wave})
		waitCtx := ctx
		if c.approvalTimeout > 0 {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(ctx, c.approvalTimeout)
			defer cancel()
		}
		resp, err := c.approvals.WaitForDecision(waitCtx, ApprovalRequest{TaskID: t.ID, Title: t.Title, Wave: wave})
		if err != nil {
			// Distinguish a lapsed approval window from run cancellation.
			if ctx.Err() == nil {
				c.cancelTask(t, wave, led, "approval timed out", false)
			} else {
				c.cancelTask(t, wave, led, "run cancelled", false)
			}
			return
		}
		if !resp.Approved {
			reason := "approval rejected"
			if resp.Reason != "" {
				reason = "approval rejected: " + resp.Reason
			}
			c.cancelTask(t, wave, led, reason, false)
			return
		}
	}

	if err := c.pool.AcquireSlot(ctx); err != nil {
		c.cancelTask(t, wave, led, "run cancelled", false)
		return
	}
	defer c.pool.ReleaseSlot()

	// A critical failure earlier in this wave aborts dependents that
	// have not dispatched yet, soft edges included.
	if failed := state.criticalTask(); failed != "" && dependsOn(g, t.ID, failed) {
		c.cancelTask(t, wave, led, fmt.Sprintf("critical task %s failed", failed), false)
		return
	}
	if ctx.Err() != nil {
		c.cancelTask(t, wave, led, "run cancelled", false)
		return
	}

	c.execute(ctx, sess, t, wave, led, state)
}

// execute runs the payload, on a worker when possible, directly
// otherwise. Only worker failures are retried.
func (c *Coordinator) execute(ctx context.Context, sess *models.Session, t *models.Task, wave int, led *Ledger, state *runState) {
	led.SetState(t.ID, StateDispatched, "")
	led.SetMode(t.ID, ModeWorker)
	c.emitter.Emit(Event{Type: EventTaskDispatched, TaskID: t.ID, Wave: wave})
	c.writeStatus(t.ID, models.TaskStatusInProgress)

	var err error
	if sess.FallbackMode == models.FallbackForced {
		err = c.runDirect(ctx, t, wave, led, "fallback mode forced")
	} else {
		err = c.runOnWorker(ctx, t, wave, led)
	}

	if ctx.Err() != nil && err != nil {
		c.cancelTask(t, wave, led, "run cancelled", true)
		return
	}
	if err == nil {
		led.SetState(t.ID, StateSucceeded, "")
		c.emitter.Emit(Event{Type: EventTaskSucceeded, TaskID: t.ID, Wave: wave})
		c.writeStatus(t.ID, models.TaskStatusDone)
		return
	}

	led.SetState(t.ID, StateFailed, err.Error())
	c.emitter.Emit(Event{Type: EventTaskFailed, TaskID: t.ID, Wave: wave, Reason: err.Error()})
	c.writeStatus(t.ID, models.TaskStatusBlocked)
	state.markUnmet(t.ID, t.ID)

	if t.Criticality == models.CriticalityCritical {
		state.markCritical(t.ID)
		c.logger.Log("[task %s] critical task failed: %v", t.ID, err)
	} else {
		c.logger.Log("[task %s] WARNING: optional task failed: %v", t.ID, err)
	}
}

// runOnWorker attempts the payload on pool workers, retrying failures
// up to the retry limit. If no worker can be started the attempt moves
// to direct execution, which is not retried.
func (c *Coordinator) runOnWorker(ctx context.Context, t *models.Task, wave int, led *Ledger) error {
	for attempt := 0; ; attempt++ {
		w, err := c.pool.Lease()
		if err != nil {
			return c.runDirect(ctx, t, wave, led, err.Error())
		}

		led.AddAttempt(t.ID)
		runErr := w.Run(ctx, t)
		if runErr == nil || ctx.Err() != nil || attempt >= c.retryLimit {
			return runErr
		}
		c.emitter.Emit(Event{Type: EventTaskRetried, TaskID: t.ID, Wave: wave, Attempt: attempt + 2, Reason: runErr.Error()})
		c.logger.Log("[task %s] worker attempt %d failed, retrying: %v", t.ID, attempt+1, runErr)
	}
}

// runDirect executes the payload in the coordinator's own goroutine.
// State transitions and result recording match a worker dispatch; only
// the recorded mode and the substitution log differ.
func (c *Coordinator) runDirect(ctx context.Context, t *models.Task, wave int, led *Ledger, reason string) error {
	led.SetMode(t.ID, ModeFallback)
	c.emitter.Emit(Event{Type: EventFallbackEngaged, TaskID: t.ID, Wave: wave, Mode: ModeFallback, Reason: reason})
	c.logger.Log("[task %s] direct execution substituted for worker dispatch: %s", t.ID, reason)

	led.AddAttempt(t.ID)
	return c.direct.Run(ctx, t)
}

// cancelTask records a cancellation. Tasks that had already dispatched
// get their stored status reset out of in_progress.
func (c *Coordinator) cancelTask(t *models.Task, wave int, led *Ledger, reason string, dispatched bool) {
	led.SetState(t.ID, StateCancelled, reason)
	c.emitter.Emit(Event{Type: EventTaskCancelled, TaskID: t.ID, Wave: wave, Reason: reason})
	if dispatched {
		c.writeStatus(t.ID, models.TaskStatusTodo)
	}
}

// writeStatus updates a task's stored status under optimistic
// concurrency. Store failures are logged, not fatal: the ledger is the
// run's record of truth.
func (c *Coordinator) writeStatus(taskID string, status models.TaskStatus) {
	_, err := c.store.MutateTask(taskID, storeWriteAttempts, func(t *models.Task) error {
		t.Status = status
		return nil
	})
	if err != nil {
		c.logger.Log("[task %s] status write failed: %v", taskID, err)
	}
}

// dependsOn reports whether from transitively depends on target over
// any edge kind.
func dependsOn(g *graph.Graph, from, target string) bool {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.Edges(id, "") {
			if e.To == target {
				return true
			}
			if !seen[e.To] {
				seen[e.To] = true
				queue = append(queue, e.To)
			}
		}
	}
	return false
}
