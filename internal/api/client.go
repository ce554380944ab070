package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-client/internal/apierr"
	"github.com/stemsi/exstem-client/internal/model"
)

// DefaultTimeout bounds every request so a hung attempt counts against the
// submission retry ceiling in finite time.
const DefaultTimeout = 15 * time.Second

// Client talks HTTP+JSON to an exstem backend. The bearer credential is
// injected explicitly; the client never reads auth state from a global.
type Client struct {
	baseURL string
	bearer  string
	http    *http.Client
}

// NewClient creates a Client for the given base URL and bearer token.
// A non-positive timeout falls back to DefaultTimeout.
func NewClient(baseURL, bearerToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		bearer:  bearerToken,
		http:    &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP creates a Client on a caller-supplied http.Client.
// Used by tests to install a fake transport.
func NewClientWithHTTP(baseURL, bearerToken string, hc *http.Client) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		bearer:  bearerToken,
		http:    hc,
	}
}

// envelope mirrors the backend response wrapper. Data stays raw until the
// caller-provided destination type is known.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *errorBody      `json:"error,omitempty"`
}

type errorBody struct {
	Code    apierr.Code       `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// GetExamDetail implements Backend.
func (c *Client) GetExamDetail(ctx context.Context, examID uuid.UUID) (*model.ExamDetail, error) {
	var detail model.ExamDetail
	path := fmt.Sprintf("/api/v1/student/exams/%s", examID)
	if err := c.do(ctx, http.MethodGet, path, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ValidateToken implements Backend.
func (c *Client) ValidateToken(ctx context.Context, examID uuid.UUID, entryToken string) error {
	path := fmt.Sprintf("/api/v1/student/exams/%s/validate-token", examID)
	req := model.ValidateTokenRequest{EntryToken: entryToken}
	return c.do(ctx, http.MethodPost, path, req, nil)
}

// StartExam implements Backend.
func (c *Client) StartExam(ctx context.Context, examID uuid.UUID, entryToken string) (*model.StartResponse, error) {
	var started model.StartResponse
	path := fmt.Sprintf("/api/v1/student/exams/%s/start", examID)
	req := model.StartExamRequest{EntryToken: entryToken}
	if err := c.do(ctx, http.MethodPost, path, req, &started); err != nil {
		return nil, err
	}
	return &started, nil
}

// SaveProgress implements Backend.
func (c *Client) SaveProgress(ctx context.Context, submissionID uuid.UUID, answers map[uuid.UUID]string) error {
	path := fmt.Sprintf("/api/v1/student/submissions/%s/answers", submissionID)
	req := model.SaveProgressRequest{Answers: answers}
	return c.do(ctx, http.MethodPut, path, req, nil)
}

// SubmitExam implements Backend.
func (c *Client) SubmitExam(ctx context.Context, submissionID uuid.UUID, answers map[uuid.UUID]string, submittedAt time.Time) (*model.SubmissionResult, error) {
	var result model.SubmissionResult
	path := fmt.Sprintf("/api/v1/student/submissions/%s/submit", submissionID)
	req := model.SubmitExamRequest{Answers: answers, SubmittedAt: submittedAt}
	if err := c.do(ctx, http.MethodPost, path, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// do performs one request/response round trip: marshal body, set auth and
// tracing headers, decode the envelope and map error bodies to *apierr.Error.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	if env.Error != nil {
		return &apierr.Error{
			Code:    env.Error.Code,
			Message: env.Error.Message,
			Status:  resp.StatusCode,
			Fields:  env.Error.Fields,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Non-2xx without a decodable error body (proxy page, empty reply).
		return apierr.New(apierr.CodeInternal, resp.StatusCode)
	}

	if decodeErr != nil {
		// An empty 2xx body is fine for ack-only calls.
		if out == nil && errors.Is(decodeErr, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode response: %w", decodeErr)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
