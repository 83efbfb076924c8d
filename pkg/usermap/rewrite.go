package usermap

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

// chatMentionRe matches the chat platform's native id-mention syntax.
var chatMentionRe = regexp.MustCompile(`<@([A-Za-z0-9_]+)>`)

// handleMentionRe matches the design-tool's literal "@Name" / "@Full Name"
// mention style.
var handleMentionRe = regexp.MustCompile(`@([A-Za-z][A-Za-z0-9_'.-]*(?: [A-Za-z][A-Za-z0-9_'.-]*)?)`)

// alreadyRewrittenRe matches the " (destUserId)" suffix Rewrite appends
// after a resolved display name — used to recognize output from a prior
// rewrite pass so a second pass is a no-op (idempotence, §8).
var alreadyRewrittenRe = regexp.MustCompile(`^ \([A-Za-z0-9_-]+\)`)

var whitespaceRe = regexp.MustCompile(`[ \t]+`)

// Rewrite applies the mention-rewrite pass (§4.4) to one message's content:
// strip self-mentions, substitute resolved mentions with
// "@{displayName} ({destUserId})", collapse whitespace. Safe to call
// repeatedly on its own output.
func Rewrite(content string, sourceType domain.SourceType, botUserID, botHandle string, snap *Snapshot) string {
	content = stripSelfMentions(content, sourceType, botUserID, botHandle)

	switch sourceType {
	case domain.SourceChat:
		content = rewriteChatMentions(content, snap)
	case domain.SourceDesignEmail:
		content = rewriteHandleMentions(content, snap)
	}

	return collapseWhitespace(content)
}

func stripSelfMentions(content string, sourceType domain.SourceType, botUserID, botHandle string) string {
	switch sourceType {
	case domain.SourceChat:
		if botUserID == "" {
			slog.Warn("self-mention stripping skipped: sourceMetadata.botUserId absent")
			return content
		}
		return strings.ReplaceAll(content, fmt.Sprintf("<@%s>", botUserID), "")
	case domain.SourceDesignEmail:
		if botHandle == "" {
			slog.Warn("self-mention stripping skipped: sourceMetadata.botHandle absent")
			return content
		}
		return strings.ReplaceAll(content, "@"+botHandle, "")
	default:
		return content
	}
}

func rewriteChatMentions(content string, snap *Snapshot) string {
	return chatMentionRe.ReplaceAllStringFunc(content, func(m string) string {
		userID := chatMentionRe.FindStringSubmatch(m)[1]
		if entry, ok := snap.ByUserID(userID); ok {
			return fmt.Sprintf("@%s (%s)", entry.DisplayName, entry.DestUserID)
		}
		return "@" + userID
	})
}

func rewriteHandleMentions(content string, snap *Snapshot) string {
	matches := handleMentionRe.FindAllStringSubmatchIndex(content, -1)
	if matches == nil {
		return content
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		handle := content[m[2]:m[3]]

		// Already in "@Name (destId)" form from a prior pass — leave as-is.
		if alreadyRewrittenRe.MatchString(content[end:]) {
			continue
		}

		b.WriteString(content[last:start])
		if entry, ok := snap.ByHandle(handle); ok {
			b.WriteString(fmt.Sprintf("@%s (%s)", entry.DisplayName, entry.DestUserID))
		} else {
			b.WriteString(content[start:end])
		}
		last = end
	}
	b.WriteString(content[last:])
	return b.String()
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
	}
	return strings.Join(lines, "\n")
}
