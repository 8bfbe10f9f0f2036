package coordinator

import (
	"context"
	"sync"
)

// ApprovalRequest asks a human to confirm a task before dispatch. It is
// sent to whoever listens on the manager's request channel.
type ApprovalRequest struct {
	// TaskID is the task parked in AwaitingApproval.
	TaskID string
	// Title describes the task to the reviewer.
	Title string
	// Wave is the wave the task would dispatch in.
	Wave int
}

// ApprovalResponse is the reviewer's decision.
type ApprovalResponse struct {
	TaskID string
	// Approved resumes the task toward dispatch; false cancels it.
	Approved bool
	// Reason provides context for rejections.
	Reason string
}

// ApprovalManager routes approval requests from the coordinator to a
// reviewer and responses back. Each parked task waits on its own
// response channel.
type ApprovalManager struct {
	pending   map[string]chan ApprovalResponse
	requestCh chan ApprovalRequest
	mu        sync.RWMutex
}

// NewApprovalManager creates a new ApprovalManager.
func NewApprovalManager() *ApprovalManager {
	return &ApprovalManager{
		pending:   make(map[string]chan ApprovalResponse),
		requestCh: make(chan ApprovalRequest, 10),
	}
}

// RequestCh returns the read-only channel of approval requests. The
// reviewer side listens here.
func (m *ApprovalManager) RequestCh() <-chan ApprovalRequest {
	return m.requestCh
}

// WaitForDecision sends the request and blocks until the reviewer
// responds or the context is cancelled.
func (m *ApprovalManager) WaitForDecision(ctx context.Context, req ApprovalRequest) (ApprovalResponse, error) {
	responseCh := make(chan ApprovalResponse, 1)

	m.mu.Lock()
	m.pending[req.TaskID] = responseCh
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.pending, req.TaskID)
		m.mu.Unlock()
	}()

	select {
	case m.requestCh <- req:
	case <-ctx.Done():
		return ApprovalResponse{}, ctx.Err()
	}

	select {
	case resp := <-responseCh:
		return resp, nil
	case <-ctx.Done():
		return ApprovalResponse{}, ctx.Err()
	}
}

// SubmitResponse delivers the reviewer's decision for a pending request.
func (m *ApprovalManager) SubmitResponse(resp ApprovalResponse) {
	m.mu.RLock()
	ch, exists := m.pending[resp.TaskID]
	m.mu.RUnlock()

	if exists {
		select {
		case ch <- resp:
		default:
			// Response already submitted.
		}
	}
}

// HasPendingRequest reports whether a task is waiting on a decision.
func (m *ApprovalManager) HasPendingRequest(taskID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.pending[taskID]
	return exists
}
