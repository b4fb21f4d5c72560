package models

import "time"

// RunRecord is one non-interactive agent run.
type RunRecord struct {
	ID         string    `json:"id"`
	ThreadID   string    `json:"thread_id"`
	Task       string    `json:"task"`
	Status     string    `json:"status"`
	Rounds     int       `json:"rounds"`
	Transcript string    `json:"transcript,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ApprovalRow is one resolved action of a run.
type ApprovalRow struct {
	RunID       string    `json:"run_id"`
	Round       int       `json:"round"`
	InterruptID string    `json:"interrupt_id"`
	Action      string    `json:"action"`
	Decision    string    `json:"decision"`
	Message     string    `json:"message,omitempty"`
	Mode        string    `json:"mode"`
	CreatedAt   time.Time `json:"created_at"`
}
