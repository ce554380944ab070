package session

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/apierr"
	"github.com/stemsi/exstem-client/internal/model"
)

// Trigger identifies what initiated a submission attempt.
type Trigger string

const (
	// TriggerManual is an explicit user submit action.
	TriggerManual Trigger = "manual"
	// TriggerAuto is the countdown expiry signal.
	TriggerAuto Trigger = "auto"
)

// ErrSubmitDeclined is returned when the user declines the
// unanswered-question confirmation. The session stays in progress and the
// in-flight guard is released.
var ErrSubmitDeclined = errors.New("submission declined by user")

// Coordinator produces exactly one terminal submission per session. Two
// independent triggers — the user's submit action and the countdown expiry
// — funnel through Submit, whose atomic in-flight guard makes the loser a
// no-op. Transient failures are retried with exponential backoff up to a
// fixed attempt ceiling; a structured time-expired error stops retrying
// immediately.
type Coordinator struct {
	store   *Store
	backend api.Backend
	clock   Clock
	log     zerolog.Logger

	maxAttempts int
	backoffBase time.Duration

	// confirm is consulted on a manual submit with unanswered questions.
	// Nil means proceed without asking. The automatic path never prompts.
	confirm func(unanswered int) bool
	// leaveInProgress runs after the InProgress -> Submitting edge, before
	// the first network attempt. The session controller hooks timer
	// teardown here so no autosave or countdown tick outlives the phase.
	leaveInProgress func()
	// onSubmitted runs once on success with the finalized record (results
	// navigation in the source system).
	onSubmitted func(*model.SubmissionResult)

	inFlight atomic.Bool
}

// NewCoordinator creates a submission coordinator. maxAttempts counts all
// attempts including the first; backoffBase is the delay before the second
// attempt, doubling for each retry after that.
func NewCoordinator(store *Store, backend api.Backend, clock Clock, maxAttempts int, backoffBase time.Duration, log zerolog.Logger) *Coordinator {
	if clock == nil {
		clock = SystemClock
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Coordinator{
		store:       store,
		backend:     backend,
		clock:       clock,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
		log:         log.With().Str("component", "submission_coordinator").Logger(),
	}
}

// SetConfirm installs the unanswered-question confirmation hook.
func (co *Coordinator) SetConfirm(fn func(unanswered int) bool) { co.confirm = fn }

// SetLeaveInProgress installs the phase-exit hook.
func (co *Coordinator) SetLeaveInProgress(fn func()) { co.leaveInProgress = fn }

// SetOnSubmitted installs the success hook.
func (co *Coordinator) SetOnSubmitted(fn func(*model.SubmissionResult)) { co.onSubmitted = fn }

// Submit runs one submission attempt sequence. A call that loses the race
// against an attempt already in flight, or that arrives after the session
// left PhaseInProgress, returns nil without side effects. On terminal
// failure the session is marked errored and the final attempt's error is
// returned.
func (co *Coordinator) Submit(ctx context.Context, trigger Trigger) error {
	if !co.inFlight.CompareAndSwap(false, true) {
		co.log.Debug().Str("trigger", string(trigger)).Msg("Submission already in flight, ignoring trigger")
		return nil
	}
	defer co.inFlight.Store(false)

	if phase := co.store.Phase(); phase != PhaseInProgress {
		// The other trigger already won, or the session never reached
		// InProgress. Either way there is nothing to submit.
		co.log.Debug().Str("trigger", string(trigger)).Str("phase", string(phase)).Msg("Submit trigger outside InProgress, ignoring")
		return nil
	}

	if trigger == TriggerManual && co.confirm != nil {
		if unanswered := co.store.Unanswered(); len(unanswered) > 0 {
			if !co.confirm(len(unanswered)) {
				return ErrSubmitDeclined
			}
		}
	}

	if err := co.store.BeginSubmit(); err != nil {
		return nil
	}
	if co.leaveInProgress != nil {
		co.leaveInProgress()
	}

	answers := co.store.Snapshot()
	submissionID := co.store.SubmissionID()

	var lastErr error
	for attempt := 1; attempt <= co.maxAttempts; attempt++ {
		result, err := co.backend.SubmitExam(ctx, submissionID, answers, co.clock.Now())
		if err == nil {
			if markErr := co.store.MarkSubmitted(result); markErr != nil {
				return markErr
			}
			co.log.Info().
				Str("trigger", string(trigger)).
				Int("attempt", attempt).
				Str("submission_id", submissionID.String()).
				Msg("Submission accepted")
			if co.onSubmitted != nil {
				co.onSubmitted(result)
			}
			return nil
		}
		lastErr = err

		if apierr.IsTimeExpired(err) {
			co.log.Warn().Err(err).Int("attempt", attempt).Msg("Submission rejected: time window closed")
			_ = co.store.MarkErrored(apierr.Message(apierr.CodeTimeExpired))
			return err
		}

		if attempt == co.maxAttempts {
			break
		}

		delay := co.backoffBase << (attempt - 1)
		co.log.Warn().Err(err).
			Int("attempt", attempt).
			Dur("retry_in", delay).
			Msg("Submission attempt failed, retrying")
		if err := sleep(ctx, delay); err != nil {
			_ = co.store.MarkErrored("Submission was interrupted. Please retry.")
			return err
		}
	}

	co.log.Error().Err(lastErr).Int("attempts", co.maxAttempts).Msg("Submission failed after all attempts")
	_ = co.store.MarkErrored("Submitting your exam failed. Please check your connection and retry.")
	return lastErr
}

// sleep waits for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
