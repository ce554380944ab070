package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-client/internal/model"
)

// fakeBackend is an in-memory api.Backend recording every call.
type fakeBackend struct {
	mu sync.Mutex

	detail      *model.ExamDetail
	detailErr   error
	validateErr error
	startResp   *model.StartResponse
	startErr    error

	saveErr   error
	saveCalls int
	saved     []map[uuid.UUID]string

	// submitErrs is consumed one per attempt; nil entries (or running out)
	// mean success.
	submitErrs   []error
	submitResult *model.SubmissionResult
	submitCalls  int
	submitDelay  time.Duration
	submitted    map[uuid.UUID]string
}

func (f *fakeBackend) GetExamDetail(ctx context.Context, examID uuid.UUID) (*model.ExamDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.detailErr != nil {
		return nil, f.detailErr
	}
	return f.detail, nil
}

func (f *fakeBackend) ValidateToken(ctx context.Context, examID uuid.UUID, entryToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateErr
}

func (f *fakeBackend) StartExam(ctx context.Context, examID uuid.UUID, entryToken string) (*model.StartResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.startResp, nil
}

func (f *fakeBackend) SaveProgress(ctx context.Context, submissionID uuid.UUID, answers map[uuid.UUID]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	f.saved = append(f.saved, answers)
	return f.saveErr
}

func (f *fakeBackend) SubmitExam(ctx context.Context, submissionID uuid.UUID, answers map[uuid.UUID]string, submittedAt time.Time) (*model.SubmissionResult, error) {
	f.mu.Lock()
	attempt := f.submitCalls
	f.submitCalls++
	delay := f.submitDelay
	var err error
	if attempt < len(f.submitErrs) {
		err = f.submitErrs[attempt]
	}
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = answers
	if f.submitResult != nil {
		return f.submitResult, nil
	}
	now := submittedAt
	return &model.SubmissionResult{SubmissionID: submissionID, FinishedAt: now}, nil
}

func (f *fakeBackend) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitCalls
}

func (f *fakeBackend) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saveCalls
}

// fixedClock always reports the same instant.
type fixedClock struct{ at time.Time }

func (c fixedClock) Now() time.Time { return c.at }

// twoQuestionDetail builds a small exam detail for tests.
func twoQuestionDetail(examID uuid.UUID, entryToken string) *model.ExamDetail {
	return &model.ExamDetail{
		ExamID:          examID,
		Title:           "Unit Test Exam",
		DurationMinutes: 30,
		EntryToken:      entryToken,
		Questions: []model.Question{
			{ID: uuid.New(), QuestionText: "Q1", QuestionType: model.QuestionTypeMultipleChoice, OrderNum: 1},
			{ID: uuid.New(), QuestionText: "Q2", QuestionType: model.QuestionTypeEssay, OrderNum: 2},
		},
	}
}
