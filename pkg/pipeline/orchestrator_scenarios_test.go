package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/discubot/pkg/adapter"
	"github.com/codeready-toolchain/discubot/pkg/analyzer"
	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/pipelineerr"
	"github.com/codeready-toolchain/discubot/pkg/store"
	"github.com/codeready-toolchain/discubot/pkg/taskwriter"
	"github.com/codeready-toolchain/discubot/pkg/usermap"
)

// This file seeds the §8 "concrete scenarios" as end-to-end tests against
// Orchestrator, the way the teacher's pkg/services tests drive its session
// lifecycle against a fake session store instead of a live database. Every
// collaborator here is an in-memory fake behind the interfaces declared in
// collaborators.go.

func strp(s string) *string { return &s }

// fakeAdapter is a single-source-type adapter.Adapter double that always
// returns preset parse/thread results and records every outbound call.
type fakeAdapter struct {
	parsed    domain.ParsedDiscussion
	parseErr  error
	thread    domain.Thread
	threadErr error

	mu         sync.Mutex
	replies    []string
	statuses   []domain.ThreadStatus
	removed    []string
	fetchCalls int
}

var _ adapter.Adapter = (*fakeAdapter)(nil)

func (a *fakeAdapter) ParseIncoming(payload []byte) (domain.ParsedDiscussion, error) {
	return a.parsed, a.parseErr
}

func (a *fakeAdapter) FetchThread(ctx context.Context, threadID string, auth adapter.Auth) (domain.Thread, error) {
	a.mu.Lock()
	a.fetchCalls++
	a.mu.Unlock()
	return a.thread, a.threadErr
}

func (a *fakeAdapter) PostReply(ctx context.Context, threadID, text string, auth adapter.Auth) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replies = append(a.replies, text)
	return nil
}

func (a *fakeAdapter) UpdateStatus(ctx context.Context, threadID string, status domain.ThreadStatus, auth adapter.Auth) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.statuses = append(a.statuses, status)
	return nil
}

func (a *fakeAdapter) RemoveReaction(ctx context.Context, threadID, marker string, auth adapter.Auth) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removed = append(a.removed, marker)
	return nil
}

// fakeResolver always answers with a fixed ResolvedRoute, for both the
// webhook-routing-key path and the retry-by-stored-id path.
type fakeResolver struct {
	route store.ResolvedRoute
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, sourceType domain.SourceType, routingKey string) (store.ResolvedRoute, error) {
	return f.route, f.err
}

func (f *fakeResolver) ResolveForRetry(ctx context.Context, flowID, inputID string) (store.ResolvedRoute, error) {
	return f.route, f.err
}

type fakeMentions struct{}

func (fakeMentions) Resolve(ctx context.Context, tenantID string, sourceType domain.SourceType, workspaceID string) (*usermap.Snapshot, error) {
	return usermap.NewEmptySnapshot(), nil
}

// fakeAnalyzer returns a queue of canned results, one per call, optionally
// sleeping before returning to simulate an uncached call's latency.
type fakeAnalyzer struct {
	mu      sync.Mutex
	results []domain.AnalysisResult
	delays  []time.Duration
	calls   int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, thread domain.Thread, opts analyzer.Options) (domain.AnalysisResult, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	f.mu.Unlock()

	if i < len(f.delays) && f.delays[i] > 0 {
		time.Sleep(f.delays[i])
	}
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i], nil
}

// fakeKBClient is a taskwriter.KBClient double. For each call index set in
// failOnce, that call fails once with a RateLimitError before succeeding on retry.
type fakeKBClient struct {
	mu        sync.Mutex
	calls     int
	failOnce  map[int]bool
	createdAt func() time.Time
}

func (c *fakeKBClient) CreatePage(ctx context.Context, cfg domain.KBOutputConfig, payload taskwriter.Payload) (domain.TaskRef, error) {
	c.mu.Lock()
	n := c.calls
	c.calls++
	shouldFail := c.failOnce[n]
	if shouldFail {
		c.failOnce[n] = false
	}
	c.mu.Unlock()

	if shouldFail {
		return domain.TaskRef{}, pipelineerr.NewRateLimitError("kb.createPage", "0")
	}
	return domain.TaskRef{ID: fmt.Sprintf("page-%d", n), URL: fmt.Sprintf("https://kb.example.com/p/%d", n)}, nil
}

// errKBClient always fails with the given error.
type errKBClient struct{ err error }

func (c errKBClient) CreatePage(ctx context.Context, cfg domain.KBOutputConfig, payload taskwriter.Payload) (domain.TaskRef, error) {
	return domain.TaskRef{}, c.err
}

func legacyRoute(cfg domain.KBOutputConfig) store.ResolvedRoute {
	return store.ResolvedRoute{Legacy: &domain.LegacyConfig{
		ID:           "cfg-1",
		TenantID:     "tenant-1",
		SourceType:   domain.SourceDesignEmail,
		WorkspaceID:  "team-slug",
		APIToken:     "token-a",
		OutputConfig: cfg,
	}}
}

func flowRoute(f domain.Flow, outputs []domain.FlowOutput, input domain.FlowInput) store.ResolvedRoute {
	return store.ResolvedRoute{Flow: &store.FlowWithRelations{
		Flow:         f,
		Inputs:       []domain.FlowInput{input},
		Outputs:      outputs,
		MatchedInput: input,
	}}
}

func testOrchestrator(t *testing.T, a adapter.Adapter, resolver RouteResolver, an AnalyzerClient, writer TaskWriter) (*Orchestrator, *fakeStores) {
	t.Helper()
	fs := newFakeStores()
	reg := adapter.NewRegistry(map[domain.SourceType]adapter.Adapter{
		domain.SourceChat:        a,
		domain.SourceDesignEmail: a,
	})
	orch := New(reg, resolver, fakeMentions{}, an, writer, fs.discussions, fs.jobs, fs.tasks, 0)
	return orch, fs
}

// Scenario 1: chat thread whose detected tasks span a design output, a dev
// output, and one task with no domain that falls back to the dev default.
func TestScenario1_ChatRoutesAcrossDesignAndDevOutputs(t *testing.T) {
	flow := domain.Flow{ID: "flow-1", TenantID: "tenant-1", AvailableDomains: []string{"design", "dev"}}
	designOut := domain.FlowOutput{ID: "out-design", FlowID: "flow-1", Name: "design", DomainFilter: []string{"design"}, Active: true}
	devOut := domain.FlowOutput{ID: "out-dev", FlowID: "flow-1", Name: "dev", DomainFilter: []string{"dev"}, IsDefault: true, Active: true}
	input := domain.FlowInput{ID: "input-1", FlowID: "flow-1", SourceType: domain.SourceChat, SourceMetadata: map[string]any{"workspaceId": "T1"}}

	a := &fakeAdapter{
		parsed: domain.ParsedDiscussion{SourceThreadID: "C1:1700000000.000100", RoutingKey: "T1", Content: "design and dev work"},
		thread: domain.Thread{Root: domain.Message{Content: "design and dev work"}},
	}
	an := &fakeAnalyzer{results: []domain.AnalysisResult{{
		TaskDetection: domain.TaskDetection{Tasks: []domain.Task{
			{Title: "T1", Domain: strp("design")},
			{Title: "T2", Domain: strp("dev")},
			{Title: "T3"},
		}},
	}}}
	kb := &fakeKBClient{failOnce: map[int]bool{}}
	writer := taskwriter.New(kb)

	orch, fs := testOrchestrator(t, a, &fakeResolver{route: flowRoute(flow, []domain.FlowOutput{designOut, devOut}, input)}, an, writer)

	err := orch.Process(t.Context(), domain.SourceChat, nil)
	require.NoError(t, err)

	job := fs.jobs.rows[0]
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Len(t, job.TaskIDs, 3)
	assert.Len(t, fs.tasks.rows, 3)
	assert.Len(t, a.replies, 1, "exactly one completion reply should be posted")
	assert.Contains(t, a.replies[0], "p/0")
	assert.Contains(t, a.replies[0], "p/1")
	assert.Contains(t, a.replies[0], "p/2")
}

// Scenario 2: a single default output, an email discussion, sourceThreadId
// rewritten to fileKey:commentId form, and status flips pending -> completed.
func TestScenario2_EmailSingleDefaultOutputRewritesThreadIDAndCompletes(t *testing.T) {
	flow := domain.Flow{ID: "flow-2", TenantID: "tenant-1"}
	out := domain.FlowOutput{ID: "out-1", FlowID: "flow-2", IsDefault: true, Active: true}
	input := domain.FlowInput{ID: "input-2", FlowID: "flow-2", SourceType: domain.SourceDesignEmail, EmailSlug: "team-slug"}

	a := &fakeAdapter{
		parsed: domain.ParsedDiscussion{SourceThreadID: "file-1:comment-1", RoutingKey: "team-slug", Content: "please fix"},
		thread: domain.Thread{Root: domain.Message{Content: "please fix"}},
	}
	an := &fakeAnalyzer{results: []domain.AnalysisResult{{TaskDetection: domain.TaskDetection{Tasks: []domain.Task{{Title: "T1"}}}}}}
	kb := &fakeKBClient{failOnce: map[int]bool{}}
	writer := taskwriter.New(kb)

	orch, fs := testOrchestrator(t, a, &fakeResolver{route: flowRoute(flow, []domain.FlowOutput{out}, input)}, an, writer)

	err := orch.Process(t.Context(), domain.SourceDesignEmail, nil)
	require.NoError(t, err)

	discussion := fs.discussions.rows[0]
	assert.Equal(t, "file-1:comment-1", discussion.SourceThreadID)
	assert.Len(t, fs.tasks.rows, 1)
	require.NotEmpty(t, a.statuses)
	assert.Equal(t, domain.StatusPending, a.statuses[0])
	assert.Equal(t, domain.StatusCompleted, a.statuses[len(a.statuses)-1])
}

// Scenario 3: the third of four task writes hits a rate limit once before
// succeeding on retry; the batch still finishes with all four tasks created.
func TestScenario3_RateLimitedWriteRetriesThenCompletesFullBatch(t *testing.T) {
	cfg := domain.KBOutputConfig{DatabaseID: "db-1"}
	a := &fakeAdapter{
		parsed: domain.ParsedDiscussion{SourceThreadID: "file-1:comment-1", RoutingKey: "team-slug", Content: "batch"},
		thread: domain.Thread{Root: domain.Message{Content: "batch"}},
	}
	an := &fakeAnalyzer{results: []domain.AnalysisResult{{TaskDetection: domain.TaskDetection{Tasks: []domain.Task{
		{Title: "T1"}, {Title: "T2"}, {Title: "T3"}, {Title: "T4"},
	}}}}}
	kb := &fakeKBClient{failOnce: map[int]bool{2: true}}
	writer := taskwriter.New(kb)

	orch, fs := testOrchestrator(t, a, &fakeResolver{route: legacyRoute(cfg)}, an, writer)

	started := time.Now()
	err := orch.Process(t.Context(), domain.SourceDesignEmail, nil)
	elapsed := time.Since(started)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	job := fs.jobs.rows[0]
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Len(t, fs.tasks.rows, 4)
}

// Scenario 4: the knowledge-base output token is invalid; the first write
// fails with auth and the whole run is finalized as failed with no tasks.
func TestScenario4_AuthFailureOnKnowledgeBaseFailsTheJob(t *testing.T) {
	cfg := domain.KBOutputConfig{DatabaseID: "db-1"}
	a := &fakeAdapter{
		parsed: domain.ParsedDiscussion{SourceThreadID: "file-1:comment-1", RoutingKey: "team-slug", Content: "x"},
		thread: domain.Thread{Root: domain.Message{Content: "x"}},
	}
	an := &fakeAnalyzer{results: []domain.AnalysisResult{{TaskDetection: domain.TaskDetection{Tasks: []domain.Task{{Title: "T1"}}}}}}
	writer := taskwriter.New(errKBClient{err: pipelineerr.ErrAuth})

	orch, fs := testOrchestrator(t, a, &fakeResolver{route: legacyRoute(cfg)}, an, writer)

	err := orch.Process(t.Context(), domain.SourceDesignEmail, nil)
	require.Error(t, err)

	job := fs.jobs.rows[0]
	discussion := fs.discussions.rows[0]
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.NotEmpty(t, job.Error)
	assert.Equal(t, domain.DiscussionFailed, discussion.Status)
	assert.Empty(t, fs.tasks.rows)
}

// Scenario 5: retrying a Discussion that already has stored thread data
// creates a fresh Job with attempts=0 and metadata.isRetry=true, and never
// calls FetchThread again.
func TestScenario5_RetrySkipsFetchThreadWhenThreadDataIsStored(t *testing.T) {
	cfg := domain.KBOutputConfig{DatabaseID: "db-1"}
	a := &fakeAdapter{
		thread: domain.Thread{Root: domain.Message{Content: "should not be fetched again"}},
	}
	an := &fakeAnalyzer{results: []domain.AnalysisResult{{TaskDetection: domain.TaskDetection{Tasks: []domain.Task{{Title: "T1"}}}}}}
	kb := &fakeKBClient{failOnce: map[int]bool{}}
	writer := taskwriter.New(kb)

	orch, fs := testOrchestrator(t, a, &fakeResolver{route: legacyRoute(cfg)}, an, writer)

	storedThread := domain.Thread{Root: domain.Message{Content: "original content"}}
	discussion := domain.Discussion{
		ID:             "disc-1",
		SourceType:     domain.SourceDesignEmail,
		SourceThreadID: "file-1:comment-1",
		ThreadData:     &storedThread,
		InputID:        "cfg-1",
	}
	require.NoError(t, fs.discussions.Create(t.Context(), discussion))
	require.NoError(t, fs.jobs.Create(t.Context(), domain.Job{ID: "job-0", DiscussionID: "disc-1", Status: domain.JobFailed, MaxAttempts: 3}))

	err := orch.Retry(t.Context(), "disc-1")
	require.NoError(t, err)

	require.Len(t, fs.jobs.rows, 2, "retry must insert a new Job row, not mutate the original")
	retryJob := fs.jobs.rows[1]
	assert.Equal(t, 0, retryJob.Attempts, "a retry Job row starts its own attempts counter at 0 (J-1)")
	assert.Equal(t, true, retryJob.Metadata["isRetry"])
	assert.Equal(t, domain.JobCompleted, retryJob.Status)
	assert.Equal(t, domain.JobFailed, fs.jobs.rows[0].Status, "the original failed Job row is left untouched")
	assert.Equal(t, 0, a.fetchCalls, "FetchThread must be skipped when the Discussion already has stored thread data")
}

// Scenario 6: two runs analyzing identical thread content; the fake
// analyzer simulates the TTL cache by returning instantly the second time,
// so the second run's processingTimeMs is measurably lower.
func TestScenario6_CacheHitOnSecondRunIsMeasurablyFaster(t *testing.T) {
	cfg := domain.KBOutputConfig{DatabaseID: "db-1"}
	result := domain.AnalysisResult{TaskDetection: domain.TaskDetection{Tasks: []domain.Task{{Title: "T1"}}}}
	an := &fakeAnalyzer{
		results: []domain.AnalysisResult{result, {Summary: result.Summary, TaskDetection: result.TaskDetection, Cached: true}},
		delays:  []time.Duration{30 * time.Millisecond, 0},
	}

	run := func(threadID string) int64 {
		a := &fakeAdapter{
			parsed: domain.ParsedDiscussion{SourceThreadID: threadID, RoutingKey: "team-slug", Content: "same content"},
			thread: domain.Thread{Root: domain.Message{Content: "same content"}},
		}
		writer := taskwriter.New(&fakeKBClient{failOnce: map[int]bool{}})
		orch, fs := testOrchestrator(t, a, &fakeResolver{route: legacyRoute(cfg)}, an, writer)
		require.NoError(t, orch.Process(t.Context(), domain.SourceDesignEmail, nil))
		return fs.jobs.rows[0].ProcessingTimeMs
	}

	first := run("file-1:comment-1")
	second := run("file-1:comment-2")

	assert.Less(t, second, first, "a cache hit should process measurably faster than the first, uncached run")
}
