package domain

import (
	"time"

	"github.com/google/uuid"
)

// Outcome is the result of processing one receipt.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeStalled   Outcome = "stalled"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnmapped  Outcome = "unmapped"
	OutcomeInvalid   Outcome = "invalid"
)

// RunSummary counts what happened during one batch run.
type RunSummary struct {
	RunID      string        `json:"run_id"`
	Window     string        `json:"window"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Fetched    int           `json:"fetched"`
	InWindow   int           `json:"in_window"`
	Completed  int           `json:"completed"`
	Stalled    int           `json:"stalled"`
	Failed     int           `json:"failed"`
	Duplicates int           `json:"duplicates"`
	Unmapped   int           `json:"unmapped"`
	Invalid    int           `json:"invalid"`
	Rejected   int           `json:"rejected"`
	Duration   time.Duration `json:"duration"`
}

// NewRunSummary starts a summary with a fresh run id.
func NewRunSummary(now time.Time) *RunSummary {
	return &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: now.UTC(),
	}
}

// Record counts one receipt outcome.
func (s *RunSummary) Record(o Outcome) {
	switch o {
	case OutcomeCompleted:
		s.Completed++
	case OutcomeStalled:
		s.Stalled++
	case OutcomeFailed:
		s.Failed++
	case OutcomeDuplicate:
		s.Duplicates++
	case OutcomeUnmapped:
		s.Unmapped++
	case OutcomeInvalid:
		s.Invalid++
	}
}

// Reject counts a fetched receipt that could not be read far enough to
// place it in the window. Rejected receipts are not part of InWindow.
func (s *RunSummary) Reject() {
	s.Rejected++
}

// Finish stamps the end time.
func (s *RunSummary) Finish(now time.Time) {
	s.FinishedAt = now.UTC()
	s.Duration = s.FinishedAt.Sub(s.StartedAt)
}

// Processed is the number of in-window receipts that reached an outcome.
// It never exceeds InWindow.
func (s *RunSummary) Processed() int {
	return s.Completed + s.Stalled + s.Failed + s.Duplicates + s.Unmapped + s.Invalid
}

// HasFailures reports whether any receipt failed or stalled.
func (s *RunSummary) HasFailures() bool {
	return s.Failed > 0 || s.Stalled > 0
}
