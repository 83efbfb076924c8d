// Package slack is a thin wrapper around the slack-go SDK used by
// pkg/adapter/chat to implement the chat source adapter.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goslack "github.com/slack-go/slack"
)

// Client wraps *goslack.Client behind the narrow surface the chat adapter
// needs: posting, fetching replies, reactions, and bot identity lookup.
type Client struct {
	api    *goslack.Client
	logger *slog.Logger
}

// NewClient creates a new Slack API client bound to a bot token.
func NewClient(token string) *Client {
	return &Client{
		api:    goslack.New(token),
		logger: slog.Default().With("component", "slack-client"),
	}
}

// NewClientWithAPIURL creates a Slack API client that targets a custom API
// URL. Useful for testing with a mock server.
func NewClientWithAPIURL(token, apiURL string) *Client {
	return &Client{
		api:    goslack.New(token, goslack.OptionAPIURL(apiURL)),
		logger: slog.Default().With("component", "slack-client"),
	}
}

// PostMessage sends a threaded reply. timeout bounds the call.
func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := []goslack.MsgOption{goslack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, goslack.MsgOptionTS(threadTS))
	}

	_, _, err := c.api.PostMessageContext(ctx, channelID, opts...)
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}

// GetThreadReplies returns every message in a thread (root included), in
// upstream chronological order.
func (c *Client) GetThreadReplies(ctx context.Context, channelID, threadTS string, timeout time.Duration) ([]goslack.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var all []goslack.Message
	cursor := ""
	for {
		params := &goslack.GetConversationRepliesParameters{
			ChannelID: channelID,
			Timestamp: threadTS,
			Cursor:    cursor,
			Limit:     200,
		}
		msgs, hasMore, nextCursor, err := c.api.GetConversationRepliesContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("conversations.replies failed: %w", err)
		}
		all = append(all, msgs...)
		if !hasMore || nextCursor == "" {
			break
		}
		cursor = nextCursor
	}
	return all, nil
}

// AddReaction adds an emoji reaction to the root message of a thread.
func (c *Client) AddReaction(ctx context.Context, channelID, ts, emoji string) error {
	ref := goslack.NewRefToMessage(channelID, ts)
	if err := c.api.AddReactionContext(ctx, emoji, ref); err != nil {
		if isAlreadyReacted(err) {
			return nil
		}
		return fmt.Errorf("reactions.add failed: %w", err)
	}
	return nil
}

// RemoveReaction removes an emoji reaction from the root message of a thread.
func (c *Client) RemoveReaction(ctx context.Context, channelID, ts, emoji string) error {
	ref := goslack.NewRefToMessage(channelID, ts)
	if err := c.api.RemoveReactionContext(ctx, emoji, ref); err != nil {
		if isNoReaction(err) {
			return nil
		}
		return fmt.Errorf("reactions.remove failed: %w", err)
	}
	return nil
}

// AuthTest returns the bot's own user id via auth.test. The chat adapter
// does not call it: self-mention stripping uses sourceMetadata.botUserId
// only and is skipped when that is absent.
func (c *Client) AuthTest(ctx context.Context) (string, error) {
	resp, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("auth.test failed: %w", err)
	}
	return resp.UserID, nil
}

func isAlreadyReacted(err error) bool {
	return err != nil && err.Error() == "already_reacted"
}

func isNoReaction(err error) bool {
	return err != nil && err.Error() == "no_reaction"
}
