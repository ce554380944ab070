package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/examserver"
	"github.com/stemsi/exstem-client/internal/logger"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/validator"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Msg("Starting exam demo server")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()
	gin.SetMode(cfg.GinMode)

	// ─── Build Server and Seed a Sample Exam ───────────────────────────
	srv := examserver.NewServer(cfg, log)

	examID, entryToken, err := seedSampleExam(srv)
	if err != nil {
		log.Fatal().Err(err).Msg("Seeding sample exam failed")
	}

	bearer, err := srv.IssueStudentToken("demo-student")
	if err != nil {
		log.Fatal().Err(err).Msg("Issuing student token failed")
	}

	fmt.Println("Demo exam ready:")
	fmt.Printf("  exam ID:      %s\n", examID)
	fmt.Printf("  entry token:  %s\n", entryToken)
	fmt.Printf("  bearer token: %s\n", bearer)
	fmt.Printf("\nTake it with:\n  examcli take %s --base-url http://localhost:%s --bearer %s\n", examID, cfg.ServerPort, bearer)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: srv.Router(),
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("Server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

// seedSampleExam loads a small mixed-type exam so the CLI has something to
// take out of the box.
func seedSampleExam(srv *examserver.Server) (uuid.UUID, string, error) {
	const entryToken = "OPEN-SESAME"

	q1 := model.Question{
		ID:           uuid.New(),
		QuestionText: "Which planet is closest to the sun?",
		QuestionType: model.QuestionTypeMultipleChoice,
		Options: []model.AnswerOption{
			{ID: "a", Text: "Venus"},
			{ID: "b", Text: "Mercury"},
			{ID: "c", Text: "Mars"},
			{ID: "d", Text: "Earth"},
		},
		OrderNum: 1,
	}
	q2 := model.Question{
		ID:           uuid.New(),
		QuestionText: "2 + 2 × 2 = ?",
		QuestionType: model.QuestionTypeMultipleChoice,
		Options: []model.AnswerOption{
			{ID: "a", Text: "6"},
			{ID: "b", Text: "8"},
			{ID: "c", Text: "4"},
		},
		OrderNum: 2,
	}
	q3 := model.Question{
		ID:           uuid.New(),
		QuestionText: "Briefly explain why the sky is blue.",
		QuestionType: model.QuestionTypeEssay,
		OrderNum:     3,
	}

	examID, err := srv.SeedExam(examserver.SeedExamInput{
		Title:           "General Knowledge Demo",
		Instructions:    "Answer every question. The exam submits itself when time runs out.",
		DurationMinutes: 10,
		EntryToken:      entryToken,
		Questions:       []model.Question{q1, q2, q3},
		Correct: map[uuid.UUID]string{
			q1.ID: "b",
			q2.ID: "a",
		},
	})
	if err != nil {
		return uuid.Nil, "", err
	}
	return examID, entryToken, nil
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
