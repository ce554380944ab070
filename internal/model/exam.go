package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType enumerates the supported question kinds.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	QuestionTypeEssay          QuestionType = "ESSAY"
)

// AnswerOption is a single selectable option of a multiple-choice question.
type AnswerOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Question is an exam question as delivered to a student. Correct answers
// never travel on this type.
type Question struct {
	ID           uuid.UUID      `json:"id"`
	QuestionText string         `json:"question_text"`
	QuestionType QuestionType   `json:"question_type"`
	Options      []AnswerOption `json:"options,omitempty"`
	OrderNum     int            `json:"order_num"`
}

// ExamDetail is the full exam payload returned by GetExamDetail. For a
// student who already has a submission, Submission carries its state so the
// client can resume or show the finished result. EntryToken is set only when
// the token was pre-provisioned for this student.
type ExamDetail struct {
	ExamID          uuid.UUID        `json:"exam_id"`
	Title           string           `json:"title"`
	Instructions    string           `json:"instructions,omitempty"`
	DurationMinutes int              `json:"duration_minutes"`
	Questions       []Question       `json:"questions"`
	EntryToken      string           `json:"entry_token,omitempty"`
	Submission      *SubmissionState `json:"submission,omitempty"`
}

// Duration returns the allotted exam time.
func (d *ExamDetail) Duration() time.Duration {
	return time.Duration(d.DurationMinutes) * time.Minute
}
