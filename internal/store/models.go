package store

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type Document struct {
	ID            string
	Title         string
	Content       json.RawMessage
	CanonicalText string
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type DocumentSummary struct {
	ID        string
	Title     string
	Version   int64
	UpdatedAt time.Time
}

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	// RunDiscarded marks a run whose results arrived after the store was
	// cleared by a newer run.
	RunDiscarded = "discarded"
)

type AnalysisRun struct {
	ID         string
	DocumentID string
	Status     string
	ItemCount  int
	Error      string
	StartedAt  time.Time
	FinishedAt *time.Time
}

const (
	OutcomeAccepted = "accepted"
	OutcomeIgnored  = "ignored"
	OutcomeReverted = "reverted"
	OutcomeRemoved  = "removed"
)

// Decision is one append-only entry of the correction decision log.
type Decision struct {
	ID           int64
	DocumentID   string
	CorrectionID string
	RunID        string
	Outcome      string
	OriginalText string
	NewText      string
	Class        string
	DecidedAt    time.Time
}
