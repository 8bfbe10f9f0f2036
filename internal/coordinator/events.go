package coordinator

import (
	"sync/atomic"
	"time"

	"github.com/pcranston/floe/internal/logging"
)

// EventType identifies a coordinator event.
type EventType string

const (
	EventWaveStarted          EventType = "wave_started"
	EventWaveCompleted        EventType = "wave_completed"
	EventTaskAwaitingApproval EventType = "task_awaiting_approval"
	EventTaskDispatched       EventType = "task_dispatched"
	EventTaskRetried          EventType = "task_retried"
	EventTaskSucceeded        EventType = "task_succeeded"
	EventTaskFailed           EventType = "task_failed"
	EventTaskCancelled        EventType = "task_cancelled"
	EventFallbackEngaged      EventType = "fallback_engaged"
	EventRunCompleted         EventType = "run_completed"
)

// Event is one observable step of a run.
type Event struct {
	Type    EventType
	TaskID  string
	Wave    int
	Attempt int
	Mode    ExecutionMode
	Reason  string
	Time    time.Time
}

// EventEmitter provides a thread-safe event stream for run observers.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEventEmitter creates an emitter with the given buffer size.
func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event. If the channel is full it retries briefly, then
// drops the event rather than stall the run.
func (e *EventEmitter) Emit(event Event) {
	event.Time = time.Now()

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
		return
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			logging.Debugf("event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of dropped events.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns the read-only event stream.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the event stream. Called once when the run ends.
func (e *EventEmitter) Close() {
	close(e.events)
}
