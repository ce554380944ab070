package examserver

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-client/internal/apierr"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/response"
	"github.com/stemsi/exstem-client/internal/validator"
	"golang.org/x/crypto/bcrypt"
)

// handleGetExamDetail
// GET /api/v1/student/exams/:exam_id
// Returns exam metadata, questions and — if the student already has an
// attempt — its submission state so the client can resume or show results.
func (s *Server) handleGetExamDetail(c *gin.Context) {
	claims := getClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, apierr.CodeTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, apierr.CodeInvalidID)
		return
	}

	e, ok := s.store.getExam(examID)
	if !ok {
		response.Fail(c, http.StatusNotFound, apierr.CodeNotFound)
		return
	}

	detail := model.ExamDetail{
		ExamID:          e.ID,
		Title:           e.Title,
		Instructions:    e.Instructions,
		DurationMinutes: e.DurationMinutes,
		Questions:       e.Questions,
	}

	detail.Submission = s.store.attemptState(examID, claims.StudentID)

	response.Success(c, http.StatusOK, detail)
}

// handleValidateToken
// POST /api/v1/student/exams/:exam_id/validate-token
// Checks the entry token without opening the timed window.
func (s *Server) handleValidateToken(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, apierr.CodeInvalidID)
		return
	}

	var req model.ValidateTokenRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, apierr.CodeValidation, fields)
		return
	}

	e, ok := s.store.getExam(examID)
	if !ok {
		response.Fail(c, http.StatusNotFound, apierr.CodeNotFound)
		return
	}

	if bcrypt.CompareHashAndPassword(e.EntryTokenHash, []byte(req.EntryToken)) != nil {
		response.Fail(c, http.StatusBadRequest, apierr.CodeInvalidEntryToken)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"valid": true})
}

// handleStartExam
// POST /api/v1/student/exams/:exam_id/start
// Validates the entry token and opens the timed window. Idempotent: a
// student who already started gets the original submission back, with the
// original server start timestamp.
func (s *Server) handleStartExam(c *gin.Context) {
	claims := getClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, apierr.CodeTokenRequired)
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, apierr.CodeInvalidID)
		return
	}

	var req model.StartExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, apierr.CodeValidation, fields)
		return
	}

	e, ok := s.store.getExam(examID)
	if !ok {
		response.Fail(c, http.StatusNotFound, apierr.CodeNotFound)
		return
	}

	if bcrypt.CompareHashAndPassword(e.EntryTokenHash, []byte(req.EntryToken)) != nil {
		response.Fail(c, http.StatusBadRequest, apierr.CodeInvalidEntryToken)
		return
	}

	sub, created := s.store.createAttempt(examID, claims.StudentID, s.now())
	if sub.Finished {
		response.Fail(c, http.StatusConflict, apierr.CodeAlreadySubmitted)
		return
	}

	if created {
		s.hub.broadcast(monitorEvent{
			Type:         eventSessionStarted,
			ExamID:       examID,
			SubmissionID: sub.ID,
			StudentID:    claims.StudentID,
			At:           sub.StartedAt,
		})
	}

	response.Success(c, http.StatusOK, model.StartResponse{
		SubmissionID: sub.ID,
		StartedAt:    sub.StartedAt,
	})
}

// handleSaveProgress
// PUT /api/v1/student/submissions/:submission_id/answers
// Upserts a partial answer snapshot. Rejected once the submission is
// finalized or the window (plus grace) has closed, but clients treat any
// failure here as non-fatal.
func (s *Server) handleSaveProgress(c *gin.Context) {
	claims := getClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, apierr.CodeTokenRequired)
		return
	}

	sub, e, ok := s.ownedSubmission(c, claims)
	if !ok {
		return
	}

	var req model.SaveProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, apierr.CodeValidation, fields)
		return
	}

	if sub.Finished {
		response.Fail(c, http.StatusConflict, apierr.CodeAlreadySubmitted)
		return
	}
	if s.pastDeadline(sub, e) {
		response.Fail(c, http.StatusGone, apierr.CodeTimeExpired)
		return
	}
	if err := s.store.upsertAnswers(sub.ID, req.Answers); err != nil {
		response.Fail(c, http.StatusConflict, apierr.CodeAlreadySubmitted)
		return
	}

	s.hub.broadcast(monitorEvent{
		Type:         eventProgressSaved,
		ExamID:       sub.ExamID,
		SubmissionID: sub.ID,
		StudentID:    claims.StudentID,
		At:           s.now(),
	})

	response.Success(c, http.StatusOK, gin.H{"saved": len(req.Answers)})
}

// handleSubmitExam
// POST /api/v1/student/submissions/:submission_id/submit
// Finalizes the submission. Past the deadline plus the server grace period
// it fails with the structured TIME_EXPIRED code; a second submit fails
// with ALREADY_SUBMITTED.
func (s *Server) handleSubmitExam(c *gin.Context) {
	claims := getClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, apierr.CodeTokenRequired)
		return
	}

	sub, e, ok := s.ownedSubmission(c, claims)
	if !ok {
		return
	}

	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, apierr.CodeValidation, fields)
		return
	}

	if sub.Finished {
		response.Fail(c, http.StatusConflict, apierr.CodeAlreadySubmitted)
		return
	}
	if s.pastDeadline(sub, e) {
		response.Fail(c, http.StatusGone, apierr.CodeTimeExpired)
		return
	}

	answers := req.Answers
	if answers == nil {
		answers = make(map[uuid.UUID]string)
	}

	finishedAt := s.now()
	score := scoreAnswers(e, answers)
	// finalize re-checks under the store lock: of two racing submits,
	// exactly one passes and the other conflicts here.
	if err := s.store.finalize(sub.ID, answers, score, finishedAt); err != nil {
		response.Fail(c, http.StatusConflict, apierr.CodeAlreadySubmitted)
		return
	}

	s.hub.broadcast(monitorEvent{
		Type:         eventSessionSubmitted,
		ExamID:       sub.ExamID,
		SubmissionID: sub.ID,
		StudentID:    claims.StudentID,
		At:           finishedAt,
	})

	response.Success(c, http.StatusOK, model.SubmissionResult{
		SubmissionID: sub.ID,
		FinishedAt:   finishedAt,
		Score:        &score,
	})
}

// ownedSubmission resolves the :submission_id param and checks the caller
// owns it. On failure it writes the error response and returns ok=false.
// The returned info is a snapshot; mutating store methods re-check status
// under the lock.
func (s *Server) ownedSubmission(c *gin.Context, claims *Claims) (submissionInfo, *exam, bool) {
	subID, err := uuid.Parse(c.Param("submission_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, apierr.CodeInvalidID)
		return submissionInfo{}, nil, false
	}

	sub, ok := s.store.getSubmission(subID)
	if !ok {
		response.Fail(c, http.StatusNotFound, apierr.CodeNotFound)
		return submissionInfo{}, nil, false
	}
	if sub.StudentID != claims.StudentID {
		response.Fail(c, http.StatusForbidden, apierr.CodeForbidden)
		return submissionInfo{}, nil, false
	}

	e, ok := s.store.getExam(sub.ExamID)
	if !ok {
		response.Fail(c, http.StatusNotFound, apierr.CodeNotFound)
		return submissionInfo{}, nil, false
	}
	return sub, e, true
}

// pastDeadline reports whether the submission window, including the server
// grace period, has closed.
func (s *Server) pastDeadline(sub submissionInfo, e *exam) bool {
	deadline := sub.StartedAt.Add(e.duration()).Add(s.grace)
	return s.now().After(deadline)
}

// scoreAnswers grades multiple-choice answers as a 0-100 percentage of the
// auto-scorable questions. Essays are left for manual grading and do not
// count toward the denominator.
func scoreAnswers(e *exam, answers map[uuid.UUID]string) float64 {
	total := 0
	correct := 0
	for qid, want := range e.correct {
		total++
		if answers[qid] == want {
			correct++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total) * 100
}
