package usermap

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

func snapWith(userID, handle string, entry Entry) *Snapshot {
	snap := NewEmptySnapshot()
	if userID != "" {
		snap.byUserID[userID] = entry
	}
	if handle != "" {
		snap.byHandle[handle] = entry
	}
	return snap
}

func TestRewrite_ChatMentionIsSubstitutedWithDisplayNameAndDestID(t *testing.T) {
	snap := snapWith("U123", "", Entry{DestUserID: "dest-1", DisplayName: "Ada"})

	got := Rewrite("hey <@U123> can you look at this", domain.SourceChat, "U_BOT", "", snap)

	assert.Equal(t, "hey @Ada (dest-1) can you look at this", got)
}

func TestRewrite_UnresolvedChatMentionFallsBackToBareID(t *testing.T) {
	snap := NewEmptySnapshot()

	got := Rewrite("hey <@U999>", domain.SourceChat, "U_BOT", "", snap)

	assert.Equal(t, "hey @U999", got)
}

func TestRewrite_StripsSelfMentionInChat(t *testing.T) {
	snap := NewEmptySnapshot()

	got := Rewrite("<@U_BOT> hello there", domain.SourceChat, "U_BOT", "", snap)

	assert.Equal(t, "hello there", got)
}

func TestRewrite_SelfMentionStrippingSkippedWhenBotIdentityMissing(t *testing.T) {
	snap := NewEmptySnapshot()

	got := Rewrite("<@U_BOT> hello", domain.SourceChat, "", "", snap)

	assert.Equal(t, "@U_BOT hello", got)
}

func TestRewrite_EmailHandleMentionIsSubstituted(t *testing.T) {
	snap := snapWith("", "Jane Doe", Entry{DestUserID: "dest-2", DisplayName: "Jane"})

	got := Rewrite("@Jane Doe please take a look", domain.SourceDesignEmail, "", "bot-handle", snap)

	assert.Equal(t, "@Jane (dest-2) please take a look", got)
}

func TestRewrite_StripsSelfMentionInEmail(t *testing.T) {
	snap := NewEmptySnapshot()

	got := Rewrite("@discubot thanks for the update", domain.SourceDesignEmail, "", "discubot", snap)

	assert.Equal(t, "thanks for the update", got)
}

func TestRewrite_IsIdempotentOnAlreadyRewrittenContent(t *testing.T) {
	snap := snapWith("", "Jane Doe", Entry{DestUserID: "dest-2", DisplayName: "Jane"})

	once := Rewrite("@Jane Doe please take a look", domain.SourceDesignEmail, "", "bot-handle", snap)
	twice := Rewrite(once, domain.SourceDesignEmail, "", "bot-handle", snap)

	assert.Equal(t, once, twice)
}

func TestRewrite_CollapsesRepeatedWhitespaceAndTrimsLines(t *testing.T) {
	snap := NewEmptySnapshot()

	got := Rewrite("hello   there  \nsecond   line  ", domain.SourceChat, "", "", snap)

	assert.Equal(t, "hello there\nsecond line", got)
}
