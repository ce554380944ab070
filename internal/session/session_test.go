package session

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/apierr"
	"github.com/stemsi/exstem-client/internal/model"
)

func waitForPhase(t *testing.T, sess *Session, want Phase, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		if got := sess.Phase(); got == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("phase never reached %s, stuck at %s", want, sess.Phase())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestFullManualFlow(t *testing.T) {
	examID := uuid.New()
	detail := twoQuestionDetail(examID, "")
	backend := &fakeBackend{
		detail:    detail,
		startResp: &model.StartResponse{SubmissionID: uuid.New(), StartedAt: time.Now()},
	}

	var submitted *model.SubmissionResult
	sess := New(backend, Options{
		TickInterval: 10 * time.Millisecond,
		OnSubmitted:  func(res *model.SubmissionResult) { submitted = res },
	}, zerolog.Nop())
	defer sess.Close()

	ctx := context.Background()

	phase, err := sess.Load(ctx, examID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if phase != PhaseAwaitingToken {
		t.Fatalf("expected AwaitingToken, got %s", phase)
	}

	// A rejected token surfaces inline and keeps the phase.
	backend.validateErr = apierr.New(apierr.CodeInvalidEntryToken, http.StatusBadRequest)
	if err := sess.EnterToken(ctx, "WRONG-TOKEN"); err == nil {
		t.Fatal("expected rejected token to error")
	}
	if got := sess.Phase(); got != PhaseAwaitingToken {
		t.Fatalf("rejected token moved phase to %s", got)
	}

	backend.validateErr = nil
	if err := sess.EnterToken(ctx, "RIGHT-TOKEN"); err != nil {
		t.Fatalf("enter token: %v", err)
	}
	if got := sess.Phase(); got != PhaseInstructions {
		t.Fatalf("expected Instructions, got %s", got)
	}

	if err := sess.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if got := sess.Phase(); got != PhaseInProgress {
		t.Fatalf("expected InProgress, got %s", got)
	}
	if sess.Store().SubmissionID() != backend.startResp.SubmissionID {
		t.Fatal("submission ID not recorded from start response")
	}

	// Begin twice is rejected.
	if err := sess.Begin(ctx); err == nil {
		t.Fatal("expected second Begin to be rejected")
	}

	for _, q := range detail.Questions {
		if err := sess.SetAnswer(q.ID, "answer"); err != nil {
			t.Fatalf("set answer: %v", err)
		}
	}

	if err := sess.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := sess.Phase(); got != PhaseSubmitted {
		t.Fatalf("expected Submitted, got %s", got)
	}
	if submitted == nil {
		t.Fatal("submitted hook never ran")
	}
	if backend.submitCount() != 1 {
		t.Fatalf("expected 1 submit call, got %d", backend.submitCount())
	}
}

func TestLoadFailureEndsErrored(t *testing.T) {
	backend := &fakeBackend{detailErr: errors.New("boom")}
	sess := New(backend, Options{}, zerolog.Nop())
	defer sess.Close()

	phase, err := sess.Load(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected load error")
	}
	if phase != PhaseErrored || sess.Phase() != PhaseErrored {
		t.Fatalf("expected Errored, got %s", phase)
	}
	if sess.Store().ErrReason() == "" {
		t.Fatal("expected a user-facing reason")
	}
}

func TestStartFailureEndsErrored(t *testing.T) {
	examID := uuid.New()
	backend := &fakeBackend{
		detail:   twoQuestionDetail(examID, "TOKEN-1234"),
		startErr: errors.New("window closed"),
	}
	sess := New(backend, Options{}, zerolog.Nop())
	defer sess.Close()

	if _, err := sess.Load(context.Background(), examID); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := sess.Begin(context.Background()); err == nil {
		t.Fatal("expected Begin to fail")
	}
	if got := sess.Phase(); got != PhaseErrored {
		t.Fatalf("expected Errored, got %s", got)
	}
}

func TestResumeStartsTimersAndAutosaves(t *testing.T) {
	examID := uuid.New()
	detail := twoQuestionDetail(examID, "")
	qid := detail.Questions[0].ID
	detail.Submission = &model.SubmissionState{
		SubmissionID: uuid.New(),
		StartedAt:    time.Now().Add(-5 * time.Minute),
		Answers:      map[uuid.UUID]string{qid: "restored"},
	}
	backend := &fakeBackend{detail: detail}

	sess := New(backend, Options{
		AutosaveInterval: 5 * time.Millisecond,
		TickInterval:     10 * time.Millisecond,
	}, zerolog.Nop())
	defer sess.Close()

	phase, err := sess.Load(context.Background(), examID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if phase != PhaseInProgress {
		t.Fatalf("expected resume into InProgress, got %s", phase)
	}
	if got := sess.Store().Snapshot()[qid]; got != "restored" {
		t.Fatalf("expected restored answer, got %q", got)
	}

	// The pump runs without any user action.
	deadline := time.After(500 * time.Millisecond)
	for backend.saveCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("autosave never ran on resume, %d saves", backend.saveCount())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestExpiryAutoSubmits(t *testing.T) {
	examID := uuid.New()
	detail := twoQuestionDetail(examID, "")
	// Started almost the full duration ago: remaining is already inside
	// the grace window, so expiry fires immediately on resume.
	detail.Submission = &model.SubmissionState{
		SubmissionID: uuid.New(),
		StartedAt:    time.Now().Add(-(30*time.Minute - time.Second)),
		Answers:      map[uuid.UUID]string{},
	}
	backend := &fakeBackend{detail: detail}

	sess := New(backend, Options{
		GraceWindow:  2 * time.Second,
		TickInterval: 5 * time.Millisecond,
		ConfirmSubmit: func(int) bool {
			t.Error("auto submit consulted the confirmation hook")
			return false
		},
	}, zerolog.Nop())
	defer sess.Close()

	if _, err := sess.Load(context.Background(), examID); err != nil {
		t.Fatalf("load: %v", err)
	}

	waitForPhase(t, sess, PhaseSubmitted, time.Second)
	if backend.submitCount() != 1 {
		t.Fatalf("expected exactly 1 auto submit, got %d", backend.submitCount())
	}

	// Ticks continued below the grace threshold before teardown; the
	// armed guard must have kept the attempt count at one.
	time.Sleep(50 * time.Millisecond)
	if backend.submitCount() != 1 {
		t.Fatalf("auto submit re-fired: %d calls", backend.submitCount())
	}
}

func TestManualWinsOverLateExpiry(t *testing.T) {
	examID := uuid.New()
	detail := twoQuestionDetail(examID, "TOKEN-1234")
	backend := &fakeBackend{
		detail:    detail,
		startResp: &model.StartResponse{SubmissionID: uuid.New(), StartedAt: time.Now()},
	}

	sess := New(backend, Options{TickInterval: 10 * time.Millisecond}, zerolog.Nop())
	defer sess.Close()

	ctx := context.Background()
	if _, err := sess.Load(ctx, examID); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := sess.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, q := range detail.Questions {
		if err := sess.SetAnswer(q.ID, "a"); err != nil {
			t.Fatalf("set answer: %v", err)
		}
	}
	if err := sess.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// SetAnswer after submission is rejected.
	if err := sess.SetAnswer(detail.Questions[0].ID, "late"); err == nil {
		t.Fatal("expected SetAnswer after submit to be rejected")
	}
	// A second manual submit is a no-op, not an error.
	if err := sess.Submit(ctx); err != nil {
		t.Fatalf("second submit should be a no-op: %v", err)
	}
	if backend.submitCount() != 1 {
		t.Fatalf("expected 1 submit call, got %d", backend.submitCount())
	}
}

func TestSubmitRetryExhaustionSurfacesGenericError(t *testing.T) {
	examID := uuid.New()
	detail := twoQuestionDetail(examID, "TOKEN-1234")
	transient := errors.New("gateway timeout")
	backend := &fakeBackend{
		detail:     detail,
		startResp:  &model.StartResponse{SubmissionID: uuid.New(), StartedAt: time.Now()},
		submitErrs: []error{transient, transient, transient},
	}

	sess := New(backend, Options{
		SubmitMaxAttempts: 3,
		SubmitBackoffBase: time.Millisecond,
		TickInterval:      10 * time.Millisecond,
	}, zerolog.Nop())
	defer sess.Close()

	ctx := context.Background()
	if _, err := sess.Load(ctx, examID); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := sess.Begin(ctx); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, q := range detail.Questions {
		_ = sess.SetAnswer(q.ID, "a")
	}

	if err := sess.Submit(ctx); !errors.Is(err, transient) {
		t.Fatalf("expected the final transient error, got %v", err)
	}
	if got := sess.Phase(); got != PhaseErrored {
		t.Fatalf("expected Errored, got %s", got)
	}
	if backend.submitCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", backend.submitCount())
	}
}
