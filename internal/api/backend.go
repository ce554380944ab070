package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-client/internal/model"
)

// Backend is the set of backend operations the session core consumes. The
// production implementation is Client; tests substitute in-memory fakes.
type Backend interface {
	// GetExamDetail fetches exam metadata, questions, any existing
	// submission and a pre-provisioned entry token if one exists.
	GetExamDetail(ctx context.Context, examID uuid.UUID) (*model.ExamDetail, error)

	// ValidateToken checks an entry token without opening the timed window.
	ValidateToken(ctx context.Context, examID uuid.UUID, entryToken string) error

	// StartExam opens the timed window and returns the submission ID plus
	// the server-reported start instant.
	StartExam(ctx context.Context, examID uuid.UUID, entryToken string) (*model.StartResponse, error)

	// SaveProgress persists a partial answer snapshot. Best-effort: callers
	// are expected to log and swallow failures.
	SaveProgress(ctx context.Context, submissionID uuid.UUID, answers map[uuid.UUID]string) error

	// SubmitExam finalizes the submission. Past the server-side deadline
	// (including its grace period) it fails with apierr.CodeTimeExpired.
	SubmitExam(ctx context.Context, submissionID uuid.UUID, answers map[uuid.UUID]string, submittedAt time.Time) (*model.SubmissionResult, error)
}
