package model

// TaskStatus is the processing task lifecycle. Transitions only move
// forward: PENDING -> PROCESSING -> {COMPLETED, FAILED}. COMPLETED and
// FAILED are absorbing; a terminal task never changes again.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusProcessing, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransitionTo reports whether moving from s to next is a legal forward
// step in the state machine.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		// A pending task may be claimed, or force-failed by the stuck sweep.
		return next == TaskStatusProcessing || next == TaskStatusFailed
	case TaskStatusProcessing:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}
