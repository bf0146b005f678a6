package models

import "time"

// StudentState is the per-student grading state.
type StudentState string

const (
	StudentNotStarted StudentState = "not_started"
	StudentInProgress StudentState = "in_progress"
	StudentRetrying   StudentState = "retrying"
	StudentCompleted  StudentState = "completed"
	StudentFailed     StudentState = "failed"
)

// BatchState is the batch-level state.
type BatchState string

const (
	BatchNotStarted BatchState = "not_started"
	BatchRunning    BatchState = "running"
	BatchPaused     BatchState = "paused"
	BatchCompleted  BatchState = "completed"
	BatchCancelled  BatchState = "cancelled"
)

// StudentSnapshot is an immutable view of one student's grading status,
// safe to hand across goroutines.
type StudentSnapshot struct {
	Index        int            `json:"index"`
	StudentName  string         `json:"student_name"`
	ClassNumber  string         `json:"class_number"`
	State        StudentState   `json:"state"`
	AttemptCount int            `json:"attempt_count"`
	StartedAt    time.Time      `json:"started_at,omitempty"`
	FinishedAt   time.Time      `json:"finished_at,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Result       *GradingResult `json:"result,omitempty"`
}

// ProcessingTime reports how long the student's grading took.
func (s StudentSnapshot) ProcessingTime() time.Duration {
	if s.StartedAt.IsZero() || s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// BatchProgress is an aggregate progress snapshot. A fresh value is built for
// every publication; instances are never mutated after being handed out.
type BatchProgress struct {
	TotalStudents       int           `json:"total_students"`
	CompletedStudents   int           `json:"completed_students"`
	FailedStudents      int           `json:"failed_students"`
	CurrentStudentIndex int           `json:"current_student_index"`
	CurrentStudentName  string        `json:"current_student_name,omitempty"`
	State               BatchState    `json:"state"`
	StartedAt           time.Time     `json:"started_at,omitempty"`
	AverageDuration     time.Duration `json:"average_duration"`
	EstimatedRemaining  time.Duration `json:"estimated_remaining"`
}

// ProgressPercentage of students that reached a terminal state.
func (p BatchProgress) ProgressPercentage() float64 {
	if p.TotalStudents == 0 {
		return 0
	}
	return float64(p.CompletedStudents+p.FailedStudents) / float64(p.TotalStudents) * 100
}

// RemainingStudents that have not reached a terminal state yet.
func (p BatchProgress) RemainingStudents() int {
	return p.TotalStudents - p.CompletedStudents - p.FailedStudents
}

// EventKind identifies the payload carried by an Event.
type EventKind string

const (
	EventProgress         EventKind = "progress"
	EventStudentCompleted EventKind = "student_completed"
	EventBatchCompleted   EventKind = "batch_completed"
	EventBatchError       EventKind = "batch_error"
)

// Event is one message on the engine-to-consumer channel. Unknown kinds must
// be ignored by consumers for forward compatibility.
type Event struct {
	Kind      EventKind        `json:"kind"`
	Timestamp time.Time        `json:"timestamp"`
	Progress  *BatchProgress   `json:"progress,omitempty"`
	Student   *StudentSnapshot `json:"student,omitempty"`
	Error     string           `json:"error,omitempty"`
}
