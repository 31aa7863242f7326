package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
	"github.com/tbourn/recipe-extraction-backend/internal/observability"
)

// maxResultBytes caps how much of an engine response is read.
const maxResultBytes = 4 << 20

// Client calls the extraction engine's HTTP API.
type Client struct {
	// BaseURL is the engine root, e.g. http://engine:9000.
	BaseURL string
	// Token, when set, is sent as a bearer token.
	Token  string
	HTTP   *http.Client
	Logger zerolog.Logger
}

// NewClient returns a Client with a transport-level timeout as a backstop
// to the per-call context deadline.
func NewClient(baseURL, token string, logger zerolog.Logger) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: 10 * time.Minute},
		Logger:  logger.With().Str("component", "engine").Logger(),
	}
}

// StatusError is a non-2xx engine response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine returned %d: %s", e.Status, e.Body)
}

// Extract sends req to the engine and waits for its result. The call runs in
// a client span whose context travels in the request headers.
func (c *Client) Extract(ctx context.Context, req domain.ExtractionRequest) (out domain.Outcome, err error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	_, span := observability.StartClientSpan(ctx, "engine/Client", "Extract", hreq.Header,
		attribute.String("job.id", req.JobID),
		attribute.String("job.source_kind", string(req.SourceKind)),
	)
	defer func() { observability.EndSpan(span, err) }()

	reqID := uuid.NewString()
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("X-Request-ID", reqID)
	if c.Token != "" {
		hreq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	lg := c.Logger.With().Str("req_id", reqID).Str("job_id", req.JobID).Logger()
	start := time.Now()
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(hreq)
	if err != nil {
		lg.Warn().Err(err).Dur("elapsed", time.Since(start)).Msg("engine call failed")
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResultBytes))
	if err != nil {
		return nil, fmt.Errorf("read engine response: %w", err)
	}
	lg.Info().Int("status", resp.StatusCode).Int("bytes", len(raw)).Dur("elapsed", time.Since(start)).Msg("engine response")

	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{Status: resp.StatusCode, Body: snippet(raw)}
	}
	return Decode(raw)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
