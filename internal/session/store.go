package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-client/internal/model"
)

// Store is the in-memory exam session aggregate: single source of truth for
// phase, loaded exam content and the answer set. The source system ran this
// on one event loop; here the autosave pump, countdown and caller goroutines
// all touch it, so a mutex serializes every access.
//
// Remaining time is always re-derived from the server start timestamp and
// the duration; it is never stored.
type Store struct {
	mu    sync.Mutex
	clock Clock

	phase        Phase
	examID       uuid.UUID
	title        string
	instructions string
	token        string
	submissionID uuid.UUID
	duration     time.Duration
	serverStart  time.Time
	questions    []model.Question
	answers      map[uuid.UUID]string
	result       *model.SubmissionResult
	errReason    string
}

// NewStore creates a Store in PhaseLoading.
func NewStore(clock Clock) *Store {
	if clock == nil {
		clock = SystemClock
	}
	return &Store{
		clock:   clock,
		phase:   PhaseLoading,
		answers: make(map[uuid.UUID]string),
	}
}

// Load applies a fetched exam detail and resolves the post-load phase:
//   - finished submission exists  -> PhaseSubmitted
//   - unfinished submission exists -> PhaseInProgress (resume; original
//     start timestamp kept, autosaved answers restored)
//   - token pre-provisioned        -> PhaseInstructions
//   - otherwise                    -> PhaseAwaitingToken
//
// Returns the phase entered.
func (s *Store) Load(detail *model.ExamDetail) (Phase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var next Phase
	switch {
	case detail.Submission != nil && detail.Submission.Finished():
		next = PhaseSubmitted
	case detail.Submission != nil:
		next = PhaseInProgress
	case detail.EntryToken != "":
		next = PhaseInstructions
	default:
		next = PhaseAwaitingToken
	}

	if err := transition(s.phase, next); err != nil {
		return s.phase, err
	}

	s.examID = detail.ExamID
	s.title = detail.Title
	s.instructions = detail.Instructions
	s.duration = detail.Duration()
	s.questions = detail.Questions
	s.token = detail.EntryToken

	if sub := detail.Submission; sub != nil {
		s.submissionID = sub.SubmissionID
		s.serverStart = sub.StartedAt
		for qid, val := range sub.Answers {
			s.answers[qid] = val
		}
		if sub.Finished() {
			s.result = &model.SubmissionResult{
				SubmissionID: sub.SubmissionID,
				FinishedAt:   *sub.FinishedAt,
				Score:        sub.Score,
			}
		}
	}

	s.phase = next
	return next, nil
}

// SetToken records a backend-validated entry token and moves the session to
// PhaseInstructions. The caller is responsible for having validated the
// token; a rejected token must leave the store untouched.
func (s *Store) SetToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := transition(s.phase, PhaseInstructions); err != nil {
		return err
	}
	s.token = token
	s.phase = PhaseInstructions
	return nil
}

// Start applies a successful StartExam response: fixes the submission ID and
// the server start timestamp, and enters PhaseInProgress. A second Start is
// rejected once a submission ID is assigned.
func (s *Store) Start(resp *model.StartResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.submissionID != uuid.Nil {
		return &InvalidPhaseError{Op: "start", Phase: s.phase}
	}
	if err := transition(s.phase, PhaseInProgress); err != nil {
		return err
	}
	s.submissionID = resp.SubmissionID
	s.serverStart = resp.StartedAt
	s.phase = PhaseInProgress
	return nil
}

// SetAnswer records an answer value for a question. Allowed only while the
// session is in progress.
func (s *Store) SetAnswer(questionID uuid.UUID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseInProgress {
		return &InvalidPhaseError{Op: "set answer", Phase: s.phase}
	}
	s.answers[questionID] = value
	return nil
}

// Snapshot returns a copy of the current answers, safe to hand to an
// in-flight network call while edits continue.
func (s *Store) Snapshot() map[uuid.UUID]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := make(map[uuid.UUID]string, len(s.answers))
	for qid, val := range s.answers {
		snap[qid] = val
	}
	return snap
}

// BeginSubmit moves the session from PhaseInProgress to PhaseSubmitting.
// Manual and expiry submission share this single edge.
func (s *Store) BeginSubmit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := transition(s.phase, PhaseSubmitting); err != nil {
		return err
	}
	s.phase = PhaseSubmitting
	return nil
}

// MarkSubmitted records the finalized submission and enters the terminal
// PhaseSubmitted. This is the single point at which the session becomes
// immutable.
func (s *Store) MarkSubmitted(result *model.SubmissionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := transition(s.phase, PhaseSubmitted); err != nil {
		return err
	}
	s.result = result
	s.phase = PhaseSubmitted
	return nil
}

// MarkErrored enters the terminal PhaseErrored with a user-facing reason.
func (s *Store) MarkErrored(reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := transition(s.phase, PhaseErrored); err != nil {
		return err
	}
	s.errReason = reason
	s.phase = PhaseErrored
	return nil
}

// Phase returns the current phase.
func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ExamID returns the exam identifier.
func (s *Store) ExamID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.examID
}

// Title returns the exam title.
func (s *Store) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// Instructions returns the exam instructions text.
func (s *Store) Instructions() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instructions
}

// Token returns the entry token.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SubmissionID returns the assigned submission ID, or uuid.Nil before start.
func (s *Store) SubmissionID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submissionID
}

// Questions returns a copy of the loaded questions. Callers may reorder it
// freely; Unanswered keeps reporting in the loaded order.
func (s *Store) Questions() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	questions := make([]model.Question, len(s.questions))
	copy(questions, s.questions)
	return questions
}

// Remaining derives the time left from the server start timestamp; zero
// before the window opens or after it closes.
func (s *Store) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.serverStart.IsZero() {
		return 0
	}
	return Remaining(s.serverStart, s.duration, s.clock.Now())
}

// Unanswered returns the IDs of questions without a recorded answer, in
// question order.
func (s *Store) Unanswered() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []uuid.UUID
	for _, q := range s.questions {
		if _, ok := s.answers[q.ID]; !ok {
			missing = append(missing, q.ID)
		}
	}
	return missing
}

// Result returns the finalized submission record, nil before PhaseSubmitted.
func (s *Store) Result() *model.SubmissionResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// ErrReason returns the user-facing failure reason, "" unless PhaseErrored.
func (s *Store) ErrReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errReason
}
