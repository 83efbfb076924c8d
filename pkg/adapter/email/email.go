// Package email implements the design-tool source adapter (§4.2). Comments
// on design files arrive as webhook events carrying an embedded RFC 5322
// message; replies and status markers go back through the design tool's
// REST comment API. No repo in the retrieved pack parses MIME email, so the
// embedded-message decode is the one boundary built on the standard
// library's net/mail and mime/quotedprintable — see DESIGN.md.
package email

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/codeready-toolchain/discubot/pkg/adapter"
	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/pipelineerr"
)

// threadCacheTTL bounds how long a parsed-but-not-yet-fetched thread stays
// available to FetchThread. Process calls FetchThread immediately after
// ParseIncoming within the same request, so this only needs to outlive one
// request's processing time, not survive a process restart.
const threadCacheTTL = 10 * time.Minute

const threadCacheSize = 1024

// webhookPayload is the design tool's comment-created event: a routing slug
// plus a raw RFC 5322 message carrying the comment body.
type webhookPayload struct {
	EmailSlug  string `json:"emailSlug"`
	FileKey    string `json:"fileKey"`
	CommentID  string `json:"commentId"`
	RawMessage string `json:"rawMessage"`
}

// Adapter implements adapter.Adapter for the design-tool/email source.
type Adapter struct {
	client *Client
	cache  *lru.LRU[string, domain.Thread]
}

// New constructs an email Adapter over a design-tool REST client.
func New(client *Client) *Adapter {
	return &Adapter{
		client: client,
		cache:  lru.NewLRU[string, domain.Thread](threadCacheSize, nil, threadCacheTTL),
	}
}

var _ adapter.Adapter = (*Adapter)(nil)

// ParseIncoming decodes the webhook envelope and the embedded email message
// it carries, producing a ParsedDiscussion keyed by the email slug (§4.1
// routing key for email sources).
func (a *Adapter) ParseIncoming(payload []byte) (domain.ParsedDiscussion, error) {
	var wh webhookPayload
	if err := json.Unmarshal(payload, &wh); err != nil {
		return domain.ParsedDiscussion{}, pipelineerr.NewParseError("email", "invalid JSON: "+err.Error())
	}
	if wh.EmailSlug == "" || wh.RawMessage == "" {
		return domain.ParsedDiscussion{}, pipelineerr.NewParseError("email", "missing emailSlug or rawMessage")
	}

	msg, err := mail.ReadMessage(strings.NewReader(wh.RawMessage))
	if err != nil {
		return domain.ParsedDiscussion{}, pipelineerr.NewParseError("email", "malformed RFC 5322 message: "+err.Error())
	}

	from, _ := mail.ParseAddress(msg.Header.Get("From"))
	authorHandle := ""
	if from != nil {
		authorHandle = from.Address
	}

	body, err := decodeBody(msg)
	if err != nil {
		return domain.ParsedDiscussion{}, pipelineerr.NewParseError("email", "failed to decode body: "+err.Error())
	}

	threadID := wh.EmailSlug
	if wh.FileKey != "" && wh.CommentID != "" {
		threadID = fmt.Sprintf("%s:%s", wh.FileKey, wh.CommentID)
	}

	postedAt := time.Now().UTC()
	if date, dateErr := msg.Header.Date(); dateErr == nil {
		postedAt = date
	}
	a.cache.Add(threadID, domain.Thread{
		Root:         domain.Message{AuthorHandle: authorHandle, Content: body, PostedAt: postedAt},
		Participants: []string{authorHandle},
	})

	return domain.ParsedDiscussion{
		SourceThreadID: threadID,
		SourceURL:      fmt.Sprintf("https://design.example.com/file/%s#comment-%s", wh.FileKey, wh.CommentID),
		RoutingKey:     wh.EmailSlug,
		AuthorHandle:   authorHandle,
		Title:          decodeSubject(msg.Header.Get("Subject")),
		Content:        body,
		Participants:   []string{authorHandle},
		Metadata: map[string]any{
			"fileKey":   wh.FileKey,
			"commentId": wh.CommentID,
		},
		RawPayload: map[string]any{"emailSlug": wh.EmailSlug},
	}, nil
}

// FetchThread is a no-op for email sources (§4.2): ParseIncoming already
// decoded the full root comment for this thread id and cached it, so this
// never calls out to the design tool's comment API. A cache miss means the
// thread was never parsed in this process — e.g. a retry long after the
// original run — and is reported as an error rather than falling back to a
// live fetch.
func (a *Adapter) FetchThread(ctx context.Context, threadID string, auth adapter.Auth) (domain.Thread, error) {
	thread, ok := a.cache.Get(threadID)
	if !ok {
		return domain.Thread{}, fmt.Errorf("email adapter: no parsed thread cached for %q", threadID)
	}
	return thread, nil
}

// PostReply posts a reply comment on the same design file, threaded under
// the parent comment.
func (a *Adapter) PostReply(ctx context.Context, threadID, text string, auth adapter.Auth) error {
	fileKey, commentID, err := splitThreadID(threadID)
	if err != nil {
		return err
	}
	return a.client.PostComment(ctx, fileKey, commentID, text, auth.APIToken)
}

// UpdateStatus sets an emoji-comment status marker (§4.2).
func (a *Adapter) UpdateStatus(ctx context.Context, threadID string, status domain.ThreadStatus, auth adapter.Auth) error {
	fileKey, commentID, err := splitThreadID(threadID)
	if err != nil {
		return err
	}
	marker := statusMarker[status]
	if marker == "" {
		return fmt.Errorf("unknown status %q", status)
	}
	return a.client.ReactToComment(ctx, fileKey, commentID, marker, auth.APIToken)
}

// RemoveReaction removes a previously set emoji-comment marker.
func (a *Adapter) RemoveReaction(ctx context.Context, threadID, marker string, auth adapter.Auth) error {
	fileKey, commentID, err := splitThreadID(threadID)
	if err != nil {
		return err
	}
	return a.client.RemoveCommentReaction(ctx, fileKey, commentID, marker, auth.APIToken)
}

var statusMarker = map[domain.ThreadStatus]string{
	domain.StatusPending:   "eyes",
	domain.StatusCompleted: "white_check_mark",
	domain.StatusFailed:    "x",
}

func splitThreadID(threadID string) (fileKey, commentID string, err error) {
	parts := strings.SplitN(threadID, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed email thread id %q, expected fileKey:commentId", threadID)
	}
	return parts[0], parts[1], nil
}

// decodeBody returns the plaintext part of a possibly multipart,
// possibly quoted-printable message body.
func decodeBody(msg *mail.Message) (string, error) {
	contentType := msg.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		// No parseable Content-Type: treat the body as plain text.
		raw, readErr := io.ReadAll(msg.Body)
		if readErr != nil {
			return "", readErr
		}
		return string(raw), nil
	}

	encoding := strings.ToLower(msg.Header.Get("Content-Transfer-Encoding"))

	if strings.HasPrefix(mediaType, "multipart/") {
		return decodeMultipart(msg.Body, params["boundary"])
	}

	return decodePart(msg.Body, encoding)
}

func decodePart(r io.Reader, encoding string) (string, error) {
	switch encoding {
	case "quoted-printable":
		raw, err := io.ReadAll(quotedprintable.NewReader(r))
		return string(raw), err
	default:
		raw, err := io.ReadAll(r)
		return string(raw), err
	}
}

// decodeMultipart walks a multipart body and returns the first
// text/plain part it finds, falling back to the first text/html part if no
// plain part exists.
func decodeMultipart(r io.Reader, boundary string) (string, error) {
	if boundary == "" {
		raw, err := io.ReadAll(r)
		return string(raw), err
	}

	mr := multipart.NewReader(r, boundary)
	var htmlFallback string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		mediaType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
		encoding := strings.ToLower(part.Header.Get("Content-Transfer-Encoding"))
		text, err := decodePart(part, encoding)
		if err != nil {
			return "", err
		}

		switch {
		case strings.HasPrefix(mediaType, "text/plain"):
			return text, nil
		case strings.HasPrefix(mediaType, "text/html") && htmlFallback == "":
			htmlFallback = text
		}
	}
	return htmlFallback, nil
}

func decodeSubject(raw string) string {
	dec := new(mime.WordDecoder)
	decoded, err := dec.DecodeHeader(raw)
	if err != nil {
		return raw
	}
	return decoded
}
