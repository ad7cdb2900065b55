// Package backend is the REST client for the external support
// backend: conversation history, operator replies, the escalated
// ticket list, and knowledge-base ingestion.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
	"github.com/gamedesk/helpdesk-console/internal/metrics"
)

const defaultTimeout = 15 * time.Second

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithAgentName sets the sender tag stamped on operator replies.
func WithAgentName(name string) ClientOption {
	return func(c *Client) {
		c.agentName = name
	}
}

// WithLogger sets the logger used for degraded-read diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client talks to the support backend over HTTP. All calls are bounded
// by the HTTP client's timeout.
type Client struct {
	baseURL    string
	agentName  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		agentName:  "system",
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type historyResponse struct {
	Messages []domain.Message `json:"messages"`
}

// History fetches the durable message log for a conversation, oldest
// first. Transport and parse failures degrade to an empty history: a
// blank timeline is preferable to blocking the operator's view. The
// failure is still logged, and missing input is reported as a
// validation error so callers can distinguish "asked for nothing"
// from "backend gave nothing".
func (c *Client) History(ctx context.Context, conversationID string) ([]domain.Message, error) {
	if conversationID == "" {
		return nil, domain.NewValidationError("backend.history", "conversation id required")
	}

	start := time.Now()
	defer func() {
		metrics.HistoryFetchDuration.Observe(time.Since(start).Seconds())
	}()

	var parsed historyResponse
	err := c.getJSON(ctx, "/chat/history/"+conversationID, &parsed)
	if err != nil {
		c.logger.Warn("history fetch degraded to empty",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		return []domain.Message{}, nil
	}

	now := time.Now()
	messages := make([]domain.Message, 0, len(parsed.Messages))
	for _, msg := range parsed.Messages {
		messages = append(messages, msg.WithDefaultTimestamp(now))
	}
	return messages, nil
}

type replyRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	AgentName string `json:"agent_name"`
}

type statusResponse struct {
	Status string `json:"status"`
	URL    string `json:"url,omitempty"`
}

// Reply posts an operator-authored message for the conversation. A
// well-formed response whose status is not "success" is a backend
// rejection; the caller keeps the draft for retry either way.
func (c *Client) Reply(ctx context.Context, conversationID, text string) error {
	if conversationID == "" {
		return domain.NewValidationError("backend.reply", "conversation id required")
	}
	if strings.TrimSpace(text) == "" {
		return domain.NewValidationError("backend.reply", "message text required")
	}

	body := replyRequest{
		SessionID: conversationID,
		Message:   text,
		AgentName: c.agentName,
	}
	var parsed statusResponse
	if err := c.postJSON(ctx, "/tickets/reply", body, &parsed); err != nil {
		return err
	}
	if parsed.Status != "success" {
		return domain.NewBackendRejection("backend.reply", parsed.Status)
	}
	return nil
}

// EscalatedTickets fetches the backend's current escalated ticket
// records. The caller filters out untracked entries.
func (c *Client) EscalatedTickets(ctx context.Context) ([]domain.TicketRecord, error) {
	var records []domain.TicketRecord
	if err := c.getJSON(ctx, "/tickets/escalated", &records); err != nil {
		return nil, err
	}
	return records, nil
}

// IndexFile uploads a document for ingestion into the named
// collection and returns the stored URL the backend reports.
func (c *Client) IndexFile(ctx context.Context, collection, agentID, filename string, contents io.Reader) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := io.Copy(part, contents); err != nil {
		return "", fmt.Errorf("copy upload contents: %w", err)
	}
	form.WriteField("collection_name", collection)
	form.WriteField("agent_id", agentID)
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("finish upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/index/pdf", &buf)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var parsed statusResponse
	if err := c.do(req, &parsed); err != nil {
		return "", err
	}
	if parsed.Status != "success" {
		return "", domain.NewBackendRejection("backend.index_file", parsed.Status)
	}
	return parsed.URL, nil
}

// IndexURL submits a link for ingestion into the named collection.
func (c *Client) IndexURL(ctx context.Context, collection, agentID, link string) error {
	if strings.TrimSpace(link) == "" {
		return domain.NewValidationError("backend.index_url", "link required")
	}

	body := map[string]string{
		"url":             link,
		"collection_name": collection,
		"agent_id":        agentID,
	}
	var parsed statusResponse
	if err := c.postJSON(ctx, "/index/url", body, &parsed); err != nil {
		return err
	}
	if parsed.Status != "success" {
		return domain.NewBackendRejection("backend.index_url", parsed.Status)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	op := "backend." + strings.TrimPrefix(req.URL.Path, "/")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewTransportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.NewTransportError(op, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewProtocolError(op, err)
	}
	return nil
}
