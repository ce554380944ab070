package examserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// eventType identifies a session lifecycle event on the monitor feed.
type eventType string

const (
	eventSessionStarted   eventType = "session_started"
	eventProgressSaved    eventType = "progress_saved"
	eventSessionSubmitted eventType = "session_submitted"
)

// monitorEvent is broadcast to every monitor connection watching an exam.
type monitorEvent struct {
	Type         eventType `json:"type"`
	ExamID       uuid.UUID `json:"exam_id"`
	SubmissionID uuid.UUID `json:"submission_id"`
	StudentID    string    `json:"student_id"`
	At           time.Time `json:"at"`
}

// monitorHub fans session lifecycle events out to WebSocket subscribers.
type monitorHub struct {
	mu    sync.Mutex
	conns map[*websocket.Conn]uuid.UUID // conn -> watched exam
	log   zerolog.Logger
}

func newMonitorHub(log zerolog.Logger) *monitorHub {
	return &monitorHub{
		conns: make(map[*websocket.Conn]uuid.UUID),
		log:   log.With().Str("component", "monitor_hub").Logger(),
	}
}

func (h *monitorHub) add(conn *websocket.Conn, examID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = examID
}

func (h *monitorHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, conn)
}

// broadcast writes the event to every connection watching its exam. Dead
// connections are dropped.
func (h *monitorHub) broadcast(ev monitorEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, examID := range h.conns {
		if examID != ev.ExamID {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(ev); err != nil {
			h.log.Warn().Err(err).Msg("Monitor write failed, dropping connection")
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// handleMonitor
// WS /ws/v1/exams/:exam_id/monitor?token=...
// Upgrades to WebSocket and streams session lifecycle events for the exam.
func (s *Server) handleMonitor(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}
	if _, ok := s.store.getExam(examID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "exam not found"})
		return
	}

	upgrader := buildUpgrader(s.allowedOrigins)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	s.hub.add(conn, examID)
	defer func() {
		s.hub.remove(conn)
		conn.Close()
	}()

	// Reads only keep the connection alive; the feed is one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
