package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionState describes an existing submission as reported by the
// backend on exam load. A nil FinishedAt means the attempt is still open and
// the client should resume it; Answers holds whatever autosave persisted.
type SubmissionState struct {
	SubmissionID uuid.UUID            `json:"submission_id"`
	StartedAt    time.Time            `json:"started_at"`
	FinishedAt   *time.Time           `json:"finished_at,omitempty"`
	Answers      map[uuid.UUID]string `json:"answers,omitempty"`
	Score        *float64             `json:"score,omitempty"`
}

// Finished reports whether the submission has been finalized server-side.
func (s *SubmissionState) Finished() bool {
	return s.FinishedAt != nil
}

// StartResponse is returned by StartExam. StartedAt is the server-reported
// instant the timed window opened and is the only authoritative source for
// remaining-time computation.
type StartResponse struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	StartedAt    time.Time `json:"started_at"`
}

// SubmissionResult is the finalized submission record returned by SubmitExam.
type SubmissionResult struct {
	SubmissionID uuid.UUID `json:"submission_id"`
	FinishedAt   time.Time `json:"finished_at"`
	Score        *float64  `json:"score,omitempty"`
}

// ─── Request payloads ───────────────────────────────────────────────

// ValidateTokenRequest checks an entry token without opening the timed
// window.
type ValidateTokenRequest struct {
	EntryToken string `json:"entry_token" binding:"required,min=4,max=20"`
}

// StartExamRequest opens the timed window for a student.
type StartExamRequest struct {
	EntryToken string `json:"entry_token" binding:"required,min=4,max=20"`
}

// SaveProgressRequest carries a best-effort snapshot of current answers.
type SaveProgressRequest struct {
	Answers map[uuid.UUID]string `json:"answers" binding:"required"`
}

// SubmitExamRequest finalizes a submission. SubmittedAt is the client-side
// timestamp of the submit action, recorded for auditing; the server deadline
// check uses its own clock.
type SubmitExamRequest struct {
	Answers     map[uuid.UUID]string `json:"answers"`
	SubmittedAt time.Time            `json:"submitted_at" binding:"required"`
}
