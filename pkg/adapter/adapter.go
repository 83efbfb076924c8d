// Package adapter defines the source-adapter capability set (C5): the
// common interface every upstream protocol (chat, design-email) implements
// so the orchestrator never switches on sourceType.
package adapter

import (
	"context"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

// Auth carries the per-input credential the adapter needs to call its
// upstream API.
type Auth struct {
	APIToken string
}

// Adapter is the capability set every source implements (§4.2).
type Adapter interface {
	// ParseIncoming extracts a ParsedDiscussion from a raw webhook payload.
	// Pure — no network. Fails with *pipelineerr.ParseError when the
	// payload lacks mandatory fields.
	ParseIncoming(payload []byte) (domain.ParsedDiscussion, error)

	// FetchThread returns the root message, ordered replies, and deduped
	// participants for a thread. For email sources this may be a no-op
	// returning data the parser already supplied.
	FetchThread(ctx context.Context, threadID string, auth Auth) (domain.Thread, error)

	// PostReply posts a best-effort reply to the thread. Idempotency is the
	// caller's concern.
	PostReply(ctx context.Context, threadID, text string, auth Auth) error

	// UpdateStatus sets a visible marker on the thread. AlreadyApplied is
	// not an error.
	UpdateStatus(ctx context.Context, threadID string, status domain.ThreadStatus, auth Auth) error

	// RemoveReaction removes a previously set marker. Optional, best-effort.
	RemoveReaction(ctx context.Context, threadID, marker string, auth Auth) error
}

// Registry resolves an Adapter by source type (§9: "adapter registry by
// string discriminator" replaced with a capability-set abstraction — no
// runtime type switches in the orchestrator beyond this single lookup).
type Registry struct {
	adapters map[domain.SourceType]Adapter
}

// NewRegistry builds a Registry from a fixed set of adapters.
func NewRegistry(adapters map[domain.SourceType]Adapter) *Registry {
	return &Registry{adapters: adapters}
}

// Get returns the Adapter bound to a source type, or false if none is
// registered.
func (r *Registry) Get(sourceType domain.SourceType) (Adapter, bool) {
	a, ok := r.adapters[sourceType]
	return a, ok
}
