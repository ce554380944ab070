// Package examserver is an in-memory reference implementation of the exam
// backend the session core talks to. It exists so integration tests, the
// demo server and local CLI runs work without any external service, while
// behaving like the production backend: same routes, same response
// envelope, same error codes, same deadline-plus-grace submission rule.
package examserver

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/response"
	"golang.org/x/crypto/bcrypt"
)

// Server bundles the in-memory store with auth and routing.
type Server struct {
	store      *memStore
	hub        *monitorHub
	log        zerolog.Logger
	jwtSecret  string
	jwtExpiry  time.Duration
	bcryptCost int
	// grace is how far past the literal deadline submissions are still
	// accepted, absorbing client-side auto-submit latency.
	grace          time.Duration
	allowedOrigins []string
	now            func() time.Time
}

// NewServer creates a Server from application config.
func NewServer(cfg *config.Config, log zerolog.Logger) *Server {
	return &Server{
		store:          newMemStore(),
		hub:            newMonitorHub(log),
		log:            log.With().Str("component", "examserver").Logger(),
		jwtSecret:      cfg.JWTSecret,
		jwtExpiry:      cfg.JWTExpiry,
		bcryptCost:     cfg.BcryptCost,
		grace:          cfg.ServerGrace,
		allowedOrigins: cfg.AllowedOrigins,
		now:            time.Now,
	}
}

// SetNow overrides the server clock. Tests use it to step past deadlines.
func (s *Server) SetNow(now func() time.Time) { s.now = now }

// SeedExamInput describes an exam to preload.
type SeedExamInput struct {
	Title           string
	Instructions    string
	DurationMinutes int
	EntryToken      string
	Questions       []model.Question
	// Correct maps multiple-choice question IDs to the correct option ID.
	Correct map[uuid.UUID]string
}

// SeedExam registers an exam and returns its ID. The entry token is stored
// as a bcrypt hash.
func (s *Server) SeedExam(in SeedExamInput) (uuid.UUID, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.EntryToken), s.bcryptCost)
	if err != nil {
		return uuid.Nil, err
	}

	e := &exam{
		ID:              uuid.New(),
		Title:           in.Title,
		Instructions:    in.Instructions,
		DurationMinutes: in.DurationMinutes,
		EntryTokenHash:  hash,
		Questions:       in.Questions,
		correct:         in.Correct,
	}
	s.store.addExam(e)

	s.log.Info().
		Str("exam_id", e.ID.String()).
		Str("title", e.Title).
		Int("questions", len(e.Questions)).
		Msg("Exam seeded")
	return e.ID, nil
}

// Router builds the Gin engine with all routes and middleware.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(s.allowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.allowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())

	student := router.Group("/api/v1/student", s.requireStudentJWT())
	{
		student.GET("/exams/:exam_id", s.handleGetExamDetail)
		student.POST("/exams/:exam_id/validate-token", s.handleValidateToken)
		student.POST("/exams/:exam_id/start", s.handleStartExam)
		student.PUT("/submissions/:submission_id/answers", s.handleSaveProgress)
		student.POST("/submissions/:submission_id/submit", s.handleSubmitExam)
	}

	ws := router.Group("/ws/v1", s.requireStudentJWT())
	{
		ws.GET("/exams/:exam_id/monitor", s.handleMonitor)
	}

	return router
}
