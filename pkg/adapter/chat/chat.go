// Package chat implements the chat-platform source adapter (§4.2), backed
// by pkg/slack.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/codeready-toolchain/discubot/pkg/adapter"
	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/pipelineerr"
	"github.com/codeready-toolchain/discubot/pkg/slack"
)

const (
	postTimeout   = 5 * time.Second
	fetchTimeout  = 15 * time.Second
	statusTimeout = 5 * time.Second
)

var statusEmoji = map[domain.ThreadStatus]string{
	domain.StatusPending:   "eyes",
	domain.StatusCompleted: "white_check_mark",
	domain.StatusFailed:    "x",
}

// eventPayload is the subset of the Slack Events API callback this adapter
// understands: a message event wrapped with the originating team id.
type eventPayload struct {
	TeamID string `json:"team_id"`
	Event  struct {
		Type     string `json:"type"`
		Channel  string `json:"channel"`
		User     string `json:"user"`
		Text     string `json:"text"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
	} `json:"event"`
}

// clientFactory builds a bot-token-scoped slack.Client. Production code
// uses slack.NewClient; tests substitute one that targets a mock server.
type clientFactory func(token string) *slack.Client

// Adapter implements adapter.Adapter for chat sources. Each FlowInput
// carries its own bot token (§6 configuration), so the Adapter holds a
// factory rather than a single bound client and builds a fresh client per
// call from the Auth the orchestrator resolved for that input.
type Adapter struct {
	newClient clientFactory
}

// New constructs a chat Adapter that builds a slack.Client from each
// call's Auth.APIToken.
func New() *Adapter {
	return &Adapter{newClient: slack.NewClient}
}

// NewWithClientFactory constructs a chat Adapter over a custom client
// factory, for tests that need every call routed to a mock server.
func NewWithClientFactory(factory clientFactory) *Adapter {
	return &Adapter{newClient: factory}
}

var _ adapter.Adapter = (*Adapter)(nil)

// ParseIncoming extracts a ParsedDiscussion from a Slack Events API message
// callback (§4.2).
func (a *Adapter) ParseIncoming(payload []byte) (domain.ParsedDiscussion, error) {
	var ev eventPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		return domain.ParsedDiscussion{}, pipelineerr.NewParseError("chat", "invalid JSON: "+err.Error())
	}

	if ev.TeamID == "" || ev.Event.Channel == "" || ev.Event.TS == "" {
		return domain.ParsedDiscussion{}, pipelineerr.NewParseError("chat", "missing team_id, channel, or ts")
	}

	threadTS := ev.Event.ThreadTS
	if threadTS == "" {
		threadTS = ev.Event.TS
	}

	return domain.ParsedDiscussion{
		SourceThreadID: fmt.Sprintf("%s:%s", ev.Event.Channel, threadTS),
		SourceURL:      fmt.Sprintf("https://slack.com/archives/%s/p%s", ev.Event.Channel, strings.ReplaceAll(threadTS, ".", "")),
		RoutingKey:     ev.TeamID,
		AuthorHandle:   ev.Event.User,
		Title:          firstLine(ev.Event.Text),
		Content:        ev.Event.Text,
		Participants:   []string{ev.Event.User},
		Metadata: map[string]any{
			"channel":  ev.Event.Channel,
			"threadTs": threadTS,
		},
		RawPayload: map[string]any{"team_id": ev.TeamID},
	}, nil
}

// FetchThread calls conversations.replies and returns the root plus replies
// in upstream chronological order, with a deduped first-seen participant list.
func (a *Adapter) FetchThread(ctx context.Context, threadID string, auth adapter.Auth) (domain.Thread, error) {
	channel, ts, err := splitThreadID(threadID)
	if err != nil {
		return domain.Thread{}, err
	}

	client := a.newClient(auth.APIToken)
	msgs, err := client.GetThreadReplies(ctx, channel, ts, fetchTimeout)
	if err != nil {
		return domain.Thread{}, classifyError("conversations.replies", err)
	}
	if len(msgs) == 0 {
		return domain.Thread{}, pipelineerr.NewParseError("chat", "thread has no messages")
	}

	root := toMessage(msgs[0])
	replies := make([]domain.Message, 0, len(msgs)-1)
	for _, m := range msgs[1:] {
		replies = append(replies, toMessage(m))
	}

	seen := map[string]bool{}
	var participants []string
	for _, m := range msgs {
		if m.User == "" || seen[m.User] {
			continue
		}
		seen[m.User] = true
		participants = append(participants, m.User)
	}

	return domain.Thread{Root: root, Replies: replies, Participants: participants}, nil
}

// PostReply posts a best-effort threaded reply.
func (a *Adapter) PostReply(ctx context.Context, threadID, text string, auth adapter.Auth) error {
	channel, ts, err := splitThreadID(threadID)
	if err != nil {
		return err
	}
	client := a.newClient(auth.APIToken)
	if err := client.PostMessage(ctx, channel, ts, text, postTimeout); err != nil {
		return classifyError("chat.postMessage", err)
	}
	return nil
}

// UpdateStatus sets a reaction-emoji marker on the thread root message.
func (a *Adapter) UpdateStatus(ctx context.Context, threadID string, status domain.ThreadStatus, auth adapter.Auth) error {
	channel, ts, err := splitThreadID(threadID)
	if err != nil {
		return err
	}
	emoji, ok := statusEmoji[status]
	if !ok {
		return fmt.Errorf("unknown status %q", status)
	}
	callCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	client := a.newClient(auth.APIToken)
	if err := client.AddReaction(callCtx, channel, ts, emoji); err != nil {
		return classifyError("reactions.add", err)
	}
	return nil
}

// RemoveReaction removes a previously set marker. Best-effort.
func (a *Adapter) RemoveReaction(ctx context.Context, threadID, marker string, auth adapter.Auth) error {
	channel, ts, err := splitThreadID(threadID)
	if err != nil {
		return err
	}
	callCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	client := a.newClient(auth.APIToken)
	if err := client.RemoveReaction(callCtx, channel, ts, marker); err != nil {
		return classifyError("reactions.remove", err)
	}
	return nil
}

func splitThreadID(threadID string) (channel, ts string, err error) {
	parts := strings.SplitN(threadID, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed chat thread id %q, expected channelId:threadTs", threadID)
	}
	return parts[0], parts[1], nil
}

func toMessage(m goslack.Message) domain.Message {
	return domain.Message{
		AuthorID:     m.User,
		AuthorHandle: m.Username,
		Content:      m.Text,
		PostedAt:     parseSlackTS(m.Timestamp),
	}
}

func parseSlackTS(ts string) time.Time {
	var sec, nsec int64
	if _, err := fmt.Sscanf(ts, "%d.%d", &sec, &nsec); err != nil {
		return time.Time{}
	}
	return time.Unix(sec, nsec*1000)
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return text[:i]
	}
	if len(text) > 120 {
		return text[:120]
	}
	return text
}

// classifyError maps a slack-go error string into the pipeline's error
// taxonomy (§4.2 failure semantics: 5xx/timeout retryable, 4xx except 429
// non-retryable, 429 retryable).
func classifyError(endpoint string, err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "rate_limited") || strings.Contains(msg, "ratelimited"):
		return pipelineerr.NewRateLimitError(endpoint, "")
	case strings.Contains(msg, "invalid_auth") || strings.Contains(msg, "not_authed") || strings.Contains(msg, "token_revoked"):
		return fmt.Errorf("%s: %w", endpoint, pipelineerr.ErrAuth)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "context deadline exceeded"):
		return pipelineerr.NewTransientError(endpoint, err)
	default:
		return fmt.Errorf("%s: %w", endpoint, err)
	}
}
