package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/codeready-toolchain/discubot/pkg/pipelineerr"
)

const defaultAPIBase = "https://api.design.example.com/v1"

// Comment is one entry in a design file's comment stream.
type Comment struct {
	ID           string    `json:"id"`
	AuthorID     string    `json:"authorId"`
	AuthorHandle string    `json:"authorHandle"`
	Message      string    `json:"message"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Client is a minimal REST client over the design tool's comment API,
// mirroring pkg/slack/client.go's shape for an upstream with no Go SDK in
// the retrieved pack.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a Client against the production API base.
func NewClient() *Client {
	return &Client{baseURL: defaultAPIBase, http: &http.Client{}}
}

// NewClientWithBaseURL builds a Client against a custom base URL, for tests.
func NewClientWithBaseURL(baseURL string) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{}}
}

// ListComments returns every comment on a design file.
func (c *Client) ListComments(ctx context.Context, fileKey, token string) ([]Comment, error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("/files/%s/comments", url.PathEscape(fileKey)), token, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Comments []Comment `json:"comments"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out.Comments, nil
}

// PostComment posts a threaded reply under parentCommentID.
func (c *Client) PostComment(ctx context.Context, fileKey, parentCommentID, message, token string) error {
	body := map[string]any{"message": message, "commentId": parentCommentID}
	req, err := c.newJSONRequest(ctx, http.MethodPost, fmt.Sprintf("/files/%s/comments", url.PathEscape(fileKey)), token, body)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// ReactToComment adds an emoji reaction to a comment.
func (c *Client) ReactToComment(ctx context.Context, fileKey, commentID, emoji, token string) error {
	path := fmt.Sprintf("/files/%s/comments/%s/reactions", url.PathEscape(fileKey), url.PathEscape(commentID))
	req, err := c.newJSONRequest(ctx, http.MethodPost, path, token, map[string]any{"emoji": emoji})
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// RemoveCommentReaction removes a previously set emoji reaction.
func (c *Client) RemoveCommentReaction(ctx context.Context, fileKey, commentID, emoji, token string) error {
	path := fmt.Sprintf("/files/%s/comments/%s/reactions/%s", url.PathEscape(fileKey), url.PathEscape(commentID), url.PathEscape(emoji))
	req, err := c.newRequest(ctx, http.MethodDelete, path, token, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (c *Client) newJSONRequest(ctx context.Context, method, path, token string, body any) (*http.Request, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(string(buf)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return pipelineerr.NewTransientError(req.URL.Path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return pipelineerr.NewRateLimitError(req.URL.Path, resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", req.URL.Path, pipelineerr.ErrAuth)
	case resp.StatusCode >= 500:
		return pipelineerr.NewTransientError(req.URL.Path, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s: unexpected status %d", req.URL.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
