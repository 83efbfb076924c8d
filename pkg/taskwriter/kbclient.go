package taskwriter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/pipelineerr"
)

const defaultKBAPIBase = "https://api.kb.example.com/v1"

// kbClientTimeout matches §5's 15s task-write timeout.
const kbClientTimeout = 15 * time.Second

// kbPageRequest is the wire shape the knowledge-base API expects for a new
// page: a title, the rendered body blocks, and typed property values.
type kbPageRequest struct {
	DatabaseID string         `json:"databaseId"`
	Title      string         `json:"title"`
	Blocks     []kbBlock      `json:"blocks"`
	Properties map[string]any `json:"properties"`
}

type kbBlock struct {
	Type    string   `json:"type"`
	Text    string   `json:"text,omitempty"`
	Items   []string `json:"items,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

type kbPageResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// KBHTTPClient implements KBClient over the knowledge-base REST API.
type KBHTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewKBHTTPClient builds a client against the production API base.
func NewKBHTTPClient() *KBHTTPClient {
	return &KBHTTPClient{baseURL: defaultKBAPIBase, http: &http.Client{Timeout: kbClientTimeout}}
}

// NewKBHTTPClientWithBaseURL builds a client against a custom base URL, for tests.
func NewKBHTTPClientWithBaseURL(baseURL string) *KBHTTPClient {
	return &KBHTTPClient{baseURL: baseURL, http: &http.Client{Timeout: kbClientTimeout}}
}

var _ KBClient = (*KBHTTPClient)(nil)

// CreatePage renders payload into the knowledge base's page shape (§4.3:
// summary callout, checklist, collapsible context, participants paragraph,
// divider, collapsible transcript, metadata list, deep-link) and posts it.
func (c *KBHTTPClient) CreatePage(ctx context.Context, cfg domain.KBOutputConfig, payload Payload) (domain.TaskRef, error) {
	req := kbPageRequest{
		DatabaseID: cfg.DatabaseID,
		Title:      payload.Title,
		Properties: make(map[string]any, len(payload.Properties)),
	}

	req.Blocks = append(req.Blocks, kbBlock{Type: "callout", Text: payload.SummaryText})
	if len(payload.ActionItems) > 0 {
		req.Blocks = append(req.Blocks, kbBlock{Type: "checklist", Items: payload.ActionItems})
	}
	if len(payload.KeyPoints) > 0 {
		req.Blocks = append(req.Blocks, kbBlock{Type: "collapsible", Summary: "Discussion context", Items: payload.KeyPoints})
	}
	if payload.ParticipantsText != "" {
		req.Blocks = append(req.Blocks, kbBlock{Type: "paragraph", Text: payload.ParticipantsText})
	}
	req.Blocks = append(req.Blocks, kbBlock{Type: "divider"})
	if len(payload.Transcript) > 0 {
		req.Blocks = append(req.Blocks, kbBlock{Type: "collapsible", Summary: "Full transcript", Items: payload.Transcript})
	}
	if len(payload.Metadata) > 0 {
		req.Blocks = append(req.Blocks, kbBlock{Type: "list", Items: payload.Metadata})
	}
	if payload.SourceURL != "" {
		req.Blocks = append(req.Blocks, kbBlock{Type: "link", Text: payload.SourceURL})
	}

	for _, p := range payload.Properties {
		req.Properties[p.DestProperty] = p.Value
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.TaskRef{}, fmt.Errorf("marshal page request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pages", bytes.NewReader(body))
	if err != nil {
		return domain.TaskRef{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+cfg.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.TaskRef{}, pipelineerr.NewTransientError("kb.createPage", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.TaskRef{}, pipelineerr.NewRateLimitError("kb.createPage", resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.TaskRef{}, fmt.Errorf("kb.createPage: %w", pipelineerr.ErrAuth)
	case resp.StatusCode >= 500:
		return domain.TaskRef{}, pipelineerr.NewTransientError("kb.createPage", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return domain.TaskRef{}, fmt.Errorf("kb.createPage: unexpected status %d", resp.StatusCode)
	}

	var out kbPageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.TaskRef{}, fmt.Errorf("decode page response: %w", err)
	}

	return domain.TaskRef{ID: out.ID, URL: out.URL, CreatedAt: time.Now().UTC()}, nil
}
