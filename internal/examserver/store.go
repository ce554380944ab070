package examserver

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-client/internal/model"
)

// errSubmissionFinished is returned by mutating store methods once the
// submission has been finalized. Handlers map it to ALREADY_SUBMITTED.
var errSubmissionFinished = errors.New("submission already finalized")

// exam is the server-side exam record. EntryTokenHash is a bcrypt hash;
// the plaintext token never rests in memory past seeding. Exams are
// immutable after seeding, so sharing the pointer across requests is safe.
type exam struct {
	ID              uuid.UUID
	Title           string
	Instructions    string
	DurationMinutes int
	EntryTokenHash  []byte
	Questions       []model.Question
	// correct maps question ID to the correct option ID (multiple choice
	// only; essays are not auto-scored).
	correct map[uuid.UUID]string
}

func (e *exam) duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

// submission is one student's attempt. Live records never leave the store:
// handlers see submissionInfo copies and SubmissionState snapshots, so
// every read and write of mutable fields happens under memStore.mu.
type submission struct {
	ID         uuid.UUID
	ExamID     uuid.UUID
	StudentID  string
	StartedAt  time.Time
	FinishedAt *time.Time
	Answers    map[uuid.UUID]string
	Score      *float64
}

// submissionInfo is a point-in-time copy of a submission's identity and
// status, safe to read outside the lock. StartedAt never changes after
// creation; Finished reflects the instant the copy was taken and mutating
// methods re-check it under the lock.
type submissionInfo struct {
	ID        uuid.UUID
	ExamID    uuid.UUID
	StudentID string
	StartedAt time.Time
	Finished  bool
}

func (s *submission) info() submissionInfo {
	return submissionInfo{
		ID:        s.ID,
		ExamID:    s.ExamID,
		StudentID: s.StudentID,
		StartedAt: s.StartedAt,
		Finished:  s.FinishedAt != nil,
	}
}

// state builds an API-payload snapshot with its own answers map.
func (s *submission) state() *model.SubmissionState {
	answers := make(map[uuid.UUID]string, len(s.Answers))
	for qid, val := range s.Answers {
		answers[qid] = val
	}
	st := &model.SubmissionState{
		SubmissionID: s.ID,
		StartedAt:    s.StartedAt,
		Answers:      answers,
	}
	if s.FinishedAt != nil {
		finished := *s.FinishedAt
		st.FinishedAt = &finished
	}
	if s.Score != nil {
		score := *s.Score
		st.Score = &score
	}
	return st
}

// memStore holds all server state in memory so tests run hermetically.
type memStore struct {
	mu          sync.Mutex
	exams       map[uuid.UUID]*exam
	submissions map[uuid.UUID]*submission
	// byAttempt indexes submissions by exam+student for idempotent starts.
	byAttempt map[attemptKey]*submission
}

type attemptKey struct {
	examID    uuid.UUID
	studentID string
}

func newMemStore() *memStore {
	return &memStore{
		exams:       make(map[uuid.UUID]*exam),
		submissions: make(map[uuid.UUID]*submission),
		byAttempt:   make(map[attemptKey]*submission),
	}
}

func (m *memStore) addExam(e *exam) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exams[e.ID] = e
}

func (m *memStore) getExam(id uuid.UUID) (*exam, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	return e, ok
}

func (m *memStore) getSubmission(id uuid.UUID) (submissionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.submissions[id]
	if !ok {
		return submissionInfo{}, false
	}
	return sub.info(), true
}

// attemptState returns a snapshot of the student's attempt for API
// payloads, or nil if none exists.
func (m *memStore) attemptState(examID uuid.UUID, studentID string) *model.SubmissionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.byAttempt[attemptKey{examID, studentID}]
	if !ok {
		return nil
	}
	return sub.state()
}

// createAttempt registers a new submission unless one already exists for
// the exam+student pair, in which case the existing one is returned with
// created=false (idempotent start).
func (m *memStore) createAttempt(examID uuid.UUID, studentID string, now time.Time) (submissionInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := attemptKey{examID, studentID}
	if existing, ok := m.byAttempt[key]; ok {
		return existing.info(), false
	}

	sub := &submission{
		ID:        uuid.New(),
		ExamID:    examID,
		StudentID: studentID,
		StartedAt: now,
		Answers:   make(map[uuid.UUID]string),
	}
	m.submissions[sub.ID] = sub
	m.byAttempt[key] = sub
	return sub.info(), true
}

// upsertAnswers merges an answer snapshot into an open submission. Fails
// with errSubmissionFinished if it was finalized since the caller's check.
func (m *memStore) upsertAnswers(id uuid.UUID, answers map[uuid.UUID]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.submissions[id]
	if !ok {
		return errSubmissionFinished
	}
	if sub.FinishedAt != nil {
		return errSubmissionFinished
	}
	for qid, val := range answers {
		sub.Answers[qid] = val
	}
	return nil
}

// finalize closes a submission with the given answers and score. Exactly
// one finalize per submission succeeds; concurrent callers lose with
// errSubmissionFinished.
func (m *memStore) finalize(id uuid.UUID, answers map[uuid.UUID]string, score float64, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.submissions[id]
	if !ok {
		return errSubmissionFinished
	}
	if sub.FinishedAt != nil {
		return errSubmissionFinished
	}
	sub.Answers = answers
	sub.FinishedAt = &now
	sub.Score = &score
	return nil
}
