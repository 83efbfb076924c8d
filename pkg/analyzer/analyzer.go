// Package analyzer implements the LLM analyzer (C2): it turns a built
// Thread into a structured summary and task-detection result, backed by
// github.com/anthropics/anthropic-sdk-go, grounded in
// goadesign-goa-ai's features/model/anthropic client.
package analyzer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/pipelineerr"
	"github.com/codeready-toolchain/discubot/pkg/retry"
)

const (
	defaultModel   = "claude-sonnet-4-5-20250929"
	cacheTTL       = time.Hour
	callTimeout    = 30 * time.Second
	maxTokens      = 4096
	jsonOpenBrace  = '{'
	jsonCloseBrace = '}'
)

// MessagesClient captures the subset of the Anthropic SDK the analyzer
// needs, so tests can substitute a fake.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options overrides prompt templates and the model's domain vocabulary for
// one flow.
type Options struct {
	AvailableDomains      []string
	SummaryPromptTemplate string
	TaskPromptTemplate    string
}

// Analyzer runs the two-prompt (summary, tasks) analysis with a
// content-hash cache and retry-wrapped calls.
type Analyzer struct {
	messages MessagesClient
	model    string
	cache    *lru.LRU[string, domain.AnalysisResult]
	policy   retry.Policy
}

// New builds an Analyzer from a live Anthropic API key.
func New(apiKey string) *Analyzer {
	client := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewWithClient(&client.Messages)
}

// NewWithClient builds an Analyzer over an arbitrary MessagesClient, for
// tests or alternate transport configuration.
func NewWithClient(messages MessagesClient) *Analyzer {
	return &Analyzer{
		messages: messages,
		model:    defaultModel,
		cache:    lru.NewLRU[string, domain.AnalysisResult](1024, nil, cacheTTL),
		policy:   retry.Policy{MaxAttempts: 3, InitialInterval: time.Second, MaxInterval: 10 * time.Second, Multiplier: 2, Timeout: callTimeout},
	}
}

// Analyze produces a summary and task-detection result for a thread (§4.5).
// A cache hit short-circuits both prompts entirely.
func (a *Analyzer) Analyze(ctx context.Context, thread domain.Thread, opts Options) (domain.AnalysisResult, error) {
	start := time.Now()
	key := contentHash(thread)

	if cached, ok := a.cache.Get(key); ok {
		cached.Cached = true
		return cached, nil
	}

	transcript := serializeThread(thread)

	var summary domain.Summary
	var detection domain.TaskDetection

	// A malformed model response (*AnalysisError) gets one more try before the
	// analysis fails; retry.Do itself retries only rate-limit and transient errors.
	var ae *pipelineerr.AnalysisError
	var err error
	for try := 0; try < 2; try++ {
		err = retry.Do(ctx, a.policy, "analyzer.summary", func(callCtx context.Context) error {
			s, callErr := a.runSummaryPrompt(callCtx, transcript, opts)
			if callErr != nil {
				return callErr
			}
			summary = s
			return nil
		})
		if !errors.As(err, &ae) {
			break
		}
	}
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	for try := 0; try < 2; try++ {
		err = retry.Do(ctx, a.policy, "analyzer.tasks", func(callCtx context.Context) error {
			d, callErr := a.runTaskPrompt(callCtx, transcript, opts)
			if callErr != nil {
				return callErr
			}
			detection = d
			return nil
		})
		if !errors.As(err, &ae) {
			break
		}
	}
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	result := domain.AnalysisResult{
		Summary:          summary,
		TaskDetection:    detection,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		Cached:           false,
	}
	a.cache.Add(key, result)
	return result, nil
}

func (a *Analyzer) runSummaryPrompt(ctx context.Context, transcript string, opts Options) (domain.Summary, error) {
	prompt := opts.SummaryPromptTemplate
	if prompt == "" {
		prompt = defaultSummaryPrompt
	}
	prompt = fmt.Sprintf("%s\n\nAvailable domains: %s\n\nThread:\n%s", prompt, strings.Join(opts.AvailableDomains, ", "), transcript)

	raw, err := a.call(ctx, prompt)
	if err != nil {
		return domain.Summary{}, err
	}

	var summary domain.Summary
	if err := extractJSON(raw, &summary); err != nil {
		return domain.Summary{}, pipelineerr.NewAnalysisError("summary: " + err.Error())
	}
	return summary, nil
}

func (a *Analyzer) runTaskPrompt(ctx context.Context, transcript string, opts Options) (domain.TaskDetection, error) {
	prompt := opts.TaskPromptTemplate
	if prompt == "" {
		prompt = defaultTaskPrompt
	}
	prompt = fmt.Sprintf("%s\n\nAvailable domains: %s\n\nThread:\n%s", prompt, strings.Join(opts.AvailableDomains, ", "), transcript)

	raw, err := a.call(ctx, prompt)
	if err != nil {
		return domain.TaskDetection{}, err
	}

	var detection domain.TaskDetection
	if err := extractJSON(raw, &detection); err != nil {
		return domain.TaskDetection{}, pipelineerr.NewAnalysisError("tasks: " + err.Error())
	}
	return detection, nil
}

func (a *Analyzer) call(ctx context.Context, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     sdk.Model(a.model),
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(prompt))},
	}

	msg, err := a.messages.New(ctx, params)
	if err != nil {
		return "", classifyAnthropicError(err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String(), nil
}

// extractJSON finds the first balanced {...} span in raw and unmarshals it.
// Required because the model sometimes wraps the object in prose despite
// instructions to emit JSON only.
func extractJSON(raw string, out any) error {
	start := strings.IndexByte(raw, jsonOpenBrace)
	if start < 0 {
		return errors.New("no JSON object found in model output")
	}

	depth := 0
	end := -1
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case jsonOpenBrace:
			depth++
		case jsonCloseBrace:
			depth--
			if depth == 0 {
				end = i + 1
			}
		}
		if end != -1 {
			break
		}
	}
	if end == -1 {
		return errors.New("unbalanced JSON object in model output")
	}

	return json.Unmarshal([]byte(raw[start:end]), out)
}

func serializeThread(thread domain.Thread) string {
	var b strings.Builder
	for _, m := range thread.AllMessages() {
		fmt.Fprintf(&b, "%s: %s\n", m.AuthorHandle, m.Content)
	}
	return b.String()
}

func contentHash(thread domain.Thread) string {
	var b strings.Builder
	for _, m := range thread.AllMessages() {
		b.WriteString(m.Content)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// classifyAnthropicError maps SDK errors onto the pipeline's retryable
// taxonomy: 429 is rate-limited, 5xx and network errors are transient,
// everything else is permanent.
func classifyAnthropicError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return pipelineerr.NewRateLimitError("anthropic.messages", "")
		case apiErr.StatusCode >= 500:
			return pipelineerr.NewTransientError("anthropic.messages", err)
		default:
			return fmt.Errorf("anthropic.messages: %w", err)
		}
	}
	return pipelineerr.NewTransientError("anthropic.messages", err)
}

const defaultSummaryPrompt = `Summarize this discussion thread. Return a single JSON object with keys:
text (string), keyPoints (array of string), sentiment (string or null),
confidence (number 0-1 or null), domain (string or null, one of the
available domains below, or null if uncertain or the discussion spans
multiple domains). Return null for any field you are not confident about
rather than guessing.`

const defaultTaskPrompt = `Identify actionable tasks in this discussion thread. Return a single JSON
object with keys: isMultiTask (bool), confidence (number 0-1 or null), and
tasks (array of objects each with title, description, priority
(one of low/medium/high/urgent or null), type (one of
bug/feature/question/improvement or null), assignee (a destination user id
already present in the thread text as "(destUserId)", or null), dueDate
(ISO date or null), tags (array of string or null), domain (string or null,
one of the available domains below, or null if uncertain), actionItems
(array of string, optional)). Return null for any field you are not
confident about rather than guessing.`
