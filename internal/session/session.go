package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/model"
)

// Options tunes a Session. Zero values fall back to the defaults the source
// system shipped with (60s autosave, 2s grace, 3 attempts, 1s backoff base).
type Options struct {
	AutosaveInterval  time.Duration
	GraceWindow       time.Duration
	SubmitMaxAttempts int
	SubmitBackoffBase time.Duration
	// TickInterval is the countdown period. Leave zero for one second;
	// tests shrink it.
	TickInterval time.Duration
	Clock        Clock

	// ConfirmSubmit is asked before a manual submit with unanswered
	// questions. Nil proceeds without asking.
	ConfirmSubmit func(unanswered int) bool
	// OnTick receives the countdown value once per tick (UI display).
	OnTick func(secondsLeft int)
	// OnSubmitted receives the finalized record once, on success.
	OnSubmitted func(*model.SubmissionResult)
}

// OptionsFromConfig derives session options from application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		AutosaveInterval:  cfg.AutosaveInterval,
		GraceWindow:       cfg.GraceWindow,
		SubmitMaxAttempts: cfg.SubmitMaxAttempts,
		SubmitBackoffBase: cfg.SubmitBackoffBase,
	}
}

func (o *Options) applyDefaults() {
	if o.AutosaveInterval <= 0 {
		o.AutosaveInterval = 60 * time.Second
	}
	if o.GraceWindow <= 0 {
		o.GraceWindow = 2 * time.Second
	}
	if o.SubmitMaxAttempts <= 0 {
		o.SubmitMaxAttempts = 3
	}
	if o.SubmitBackoffBase <= 0 {
		o.SubmitBackoffBase = time.Second
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
}

// Session drives one student's attempt at one exam from load through the
// terminal phase. It owns the store, the autosave pump, the countdown and
// the submission coordinator; the pump and countdown exist only while the
// session is in PhaseInProgress.
type Session struct {
	backend api.Backend
	store   *Store
	coord   *Coordinator
	opts    Options
	log     zerolog.Logger

	examID uuid.UUID

	timersMu  sync.Mutex
	pump      *AutosavePump
	countdown *Countdown
}

// New creates a Session against the given backend.
func New(backend api.Backend, opts Options, log zerolog.Logger) *Session {
	opts.applyDefaults()

	s := &Session{
		backend: backend,
		store:   NewStore(opts.Clock),
		opts:    opts,
		log:     log.With().Str("component", "exam_session").Logger(),
	}

	s.coord = NewCoordinator(s.store, backend, opts.Clock, opts.SubmitMaxAttempts, opts.SubmitBackoffBase, log)
	s.coord.SetConfirm(opts.ConfirmSubmit)
	s.coord.SetLeaveInProgress(s.stopTimers)
	s.coord.SetOnSubmitted(opts.OnSubmitted)

	return s
}

// Store exposes the session aggregate for reads (phase, questions,
// remaining time, result).
func (s *Session) Store() *Store { return s.store }

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.store.Phase() }

// Load fetches the exam detail and resolves the initial phase. On a resume
// (an unfinished submission exists) the timers start immediately with the
// remaining time recomputed from the original server start timestamp. A
// fetch failure ends the session in PhaseErrored.
func (s *Session) Load(ctx context.Context, examID uuid.UUID) (Phase, error) {
	s.examID = examID

	detail, err := s.backend.GetExamDetail(ctx, examID)
	if err != nil {
		_ = s.store.MarkErrored("Loading the exam failed. Please retry.")
		return PhaseErrored, fmt.Errorf("get exam detail: %w", err)
	}

	phase, err := s.store.Load(detail)
	if err != nil {
		return phase, err
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Str("phase", string(phase)).
		Msg("Exam loaded")

	if phase == PhaseInProgress {
		s.startTimers()
	}
	return phase, nil
}

// EnterToken validates an entry token against the backend. Rejection is
// surfaced to the caller and leaves the session in PhaseAwaitingToken so
// the user can try again.
func (s *Session) EnterToken(ctx context.Context, token string) error {
	if phase := s.store.Phase(); phase != PhaseAwaitingToken {
		return &InvalidPhaseError{Op: "enter token", Phase: phase}
	}

	if err := s.backend.ValidateToken(ctx, s.examID, token); err != nil {
		return fmt.Errorf("validate token: %w", err)
	}
	return s.store.SetToken(token)
}

// Begin starts the timed window: the backend assigns the submission ID and
// fixes the server start timestamp, then the autosave pump and countdown
// start. A second Begin after a submission ID was assigned is rejected.
func (s *Session) Begin(ctx context.Context) error {
	if phase := s.store.Phase(); phase != PhaseInstructions {
		return &InvalidPhaseError{Op: "begin", Phase: phase}
	}

	resp, err := s.backend.StartExam(ctx, s.examID, s.store.Token())
	if err != nil {
		_ = s.store.MarkErrored("Starting the exam failed. Please retry.")
		return fmt.Errorf("start exam: %w", err)
	}

	if err := s.store.Start(resp); err != nil {
		return err
	}

	s.log.Info().
		Str("submission_id", resp.SubmissionID.String()).
		Time("server_start", resp.StartedAt).
		Msg("Exam started")

	s.startTimers()
	return nil
}

// SetAnswer records an answer. Rejected outside PhaseInProgress.
func (s *Session) SetAnswer(questionID uuid.UUID, value string) error {
	return s.store.SetAnswer(questionID, value)
}

// Submit runs the manual submission path through the coordinator.
func (s *Session) Submit(ctx context.Context) error {
	return s.coord.Submit(ctx, TriggerManual)
}

// Close tears the session down: timers are stopped synchronously. The
// aggregate itself is discarded with the Session value.
func (s *Session) Close() {
	s.stopTimers()
}

func (s *Session) startTimers() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	s.pump = NewAutosavePump(
		s.opts.AutosaveInterval,
		s.store.Snapshot,
		func(ctx context.Context, answers map[uuid.UUID]string) error {
			return s.backend.SaveProgress(ctx, s.store.SubmissionID(), answers)
		},
		s.log,
	)
	s.pump.Start()

	s.countdown = NewCountdown(s.opts.GraceWindow, s.opts.OnTick, s.autoSubmit, s.log)
	s.countdown.SetInterval(s.opts.TickInterval)
	s.countdown.Start(s.store.Remaining())
}

// stopTimers cancels the pump and countdown and waits for both to exit.
// Runs before any transition out of PhaseInProgress completes.
func (s *Session) stopTimers() {
	s.timersMu.Lock()
	pump, countdown := s.pump, s.countdown
	s.pump, s.countdown = nil, nil
	s.timersMu.Unlock()

	if pump != nil {
		pump.Stop()
	}
	if countdown != nil {
		countdown.Stop()
	}
}

// autoSubmit is the countdown expiry handler. It runs the coordinator on a
// fresh goroutine: the submission path stops the countdown, which must not
// be awaited from inside the countdown's own tick.
func (s *Session) autoSubmit() {
	go func() {
		if err := s.coord.Submit(context.Background(), TriggerAuto); err != nil {
			s.log.Warn().Err(err).Msg("Automatic submission failed")
		}
	}()
}
