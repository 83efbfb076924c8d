// Package pipeline implements the processor orchestrator (C8): the
// six-stage state machine that turns a ParsedDiscussion into persisted
// tasks, grounded in the teacher's pkg/services session lifecycle pattern
// (validate input, create a ledger row, mutate it at each transition, catch
// every error at the service boundary).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/discubot/pkg/adapter"
	"github.com/codeready-toolchain/discubot/pkg/analyzer"
	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/pipelineerr"
	"github.com/codeready-toolchain/discubot/pkg/router"
	"github.com/codeready-toolchain/discubot/pkg/store"
	"github.com/codeready-toolchain/discubot/pkg/taskwriter"
	"github.com/codeready-toolchain/discubot/pkg/usermap"
)

const defaultMaxAttempts = 3

// Orchestrator executes the six-stage pipeline for every inbound discussion.
// Its collaborators are declared as interfaces (collaborators.go) rather
// than the concrete pgx-backed structs, so scenario tests can drive Process
// and Retry end to end against in-memory fakes. It owns no mutable state
// beyond the analyzer cache (inside Analyzer), the retry helper, and an
// in-flight semaphore; every webhook gets a fresh run of Process.
type Orchestrator struct {
	adapters   *adapter.Registry
	resolver   RouteResolver
	usermap    MentionResolver
	analyzer   AnalyzerClient
	writer     TaskWriter
	discussion DiscussionStore
	jobs       JobStore
	tasks      TaskStore
	sem        chan struct{}
}

// New constructs an Orchestrator from its collaborators. maxConcurrency
// bounds the number of discussions processed at once (§5 expansion): a
// buffered channel sized the way the teacher's QueueConfig.MaxConcurrentSessions
// bounds pollAndProcess, except here the bound is enforced by blocking
// acquire/release around Process rather than a DB capacity query, since
// there is no polling loop in front of this orchestrator. A non-positive
// value disables the bound.
func New(
	adapters *adapter.Registry,
	resolver RouteResolver,
	userMapResolver MentionResolver,
	an AnalyzerClient,
	writer TaskWriter,
	discussion DiscussionStore,
	jobs JobStore,
	tasks TaskStore,
	maxConcurrency int,
) *Orchestrator {
	var sem chan struct{}
	if maxConcurrency > 0 {
		sem = make(chan struct{}, maxConcurrency)
	}
	return &Orchestrator{
		adapters:   adapters,
		resolver:   resolver,
		usermap:    userMapResolver,
		analyzer:   an,
		writer:     writer,
		discussion: discussion,
		jobs:       jobs,
		tasks:      tasks,
		sem:        sem,
	}
}

// Process runs the six-stage pipeline for one webhook-sourced discussion
// (§4.7). Errors from stage 2.5 onward have already been persisted onto the
// Job/Discussion rows before being handed back to the caller; errors from
// stages 1 and 2 (parse, validation, route resolution, row creation) are
// returned before a Job row exists and are not persisted.
func (o *Orchestrator) Process(ctx context.Context, sourceType domain.SourceType, payload []byte) error {
	if o.sem != nil {
		select {
		case o.sem <- struct{}{}:
			defer func() { <-o.sem }()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	started := time.Now()

	// Stage 1 — ingestion / validation.
	a, ok := o.adapters.Get(sourceType)
	if !ok {
		return fmt.Errorf("no adapter registered for source type %q", sourceType)
	}

	parsed, err := a.ParseIncoming(payload)
	if err != nil {
		return err
	}
	if err := validateParsedDiscussion(parsed); err != nil {
		return err
	}

	auth := adapter.Auth{} // filled in once the matched input's token is known, below

	// Stage 2 — flow/config loading + job creation.
	route, err := o.resolver.Resolve(ctx, sourceType, parsed.RoutingKey)
	if err != nil {
		return err
	}

	tenantID, inputID, flowID, apiToken, botUserID, botHandle := routeIdentity(route)
	auth.APIToken = apiToken

	// Best-effort "seen" marker, now that we have credentials.
	if err := a.UpdateStatus(ctx, parsed.SourceThreadID, domain.StatusPending, auth); err != nil {
		slog.Warn("failed to set pending status marker", "sourceThreadId", parsed.SourceThreadID, "error", err)
	}

	job := domain.Job{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		InputID:     inputID,
		FlowID:      flowID,
		Status:      domain.JobProcessing,
		Stage:       domain.StageIngestion,
		Attempts:    0,
		MaxAttempts: defaultMaxAttempts,
		StartedAt:   started,
		Audit:       domain.Audit{CreatedBy: domain.SystemIdentity, UpdatedBy: domain.SystemIdentity},
	}

	discussion := domain.Discussion{
		ID:             uuid.New().String(),
		TenantID:       tenantID,
		SourceType:     sourceType,
		SourceThreadID: parsed.SourceThreadID,
		SourceURL:      parsed.SourceURL,
		FlowID:         flowID,
		InputID:        inputID,
		Title:          parsed.Title,
		Content:        parsed.Content,
		AuthorHandle:   parsed.AuthorHandle,
		Participants:   parsed.Participants,
		Status:         domain.DiscussionPending,
		RawPayload:     parsed.RawPayload,
		Metadata:       parsed.Metadata,
		Audit:          domain.Audit{CreatedBy: domain.SystemIdentity, UpdatedBy: domain.SystemIdentity},
	}

	if err := o.discussion.Create(ctx, discussion); err != nil {
		return fmt.Errorf("create discussion: %w", err)
	}
	job.DiscussionID = discussion.ID
	if err := o.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	// Stage 2.5 — user-mapping prefetch.
	workspaceID := parsed.RoutingKey
	mentions, err := o.usermap.Resolve(ctx, tenantID, sourceType, workspaceID)
	if err != nil {
		return o.fail(ctx, job, discussion, domain.StageIngestion, err)
	}

	// Stage 3 — thread building.
	thread, err := a.FetchThread(ctx, parsed.SourceThreadID, auth)
	if err != nil {
		return o.fail(ctx, job, discussion, domain.StageThreadBuilding, err)
	}
	thread = rewriteThread(thread, sourceType, botUserID, botHandle, mentions)

	// ParseIncoming already produces the canonical "{fileKey}:{commentId}"
	// form for email sources, so no further rewrite is needed here (§4.7).
	threadID := parsed.SourceThreadID
	discussion.AuthorHandle = thread.Root.AuthorHandle
	discussion.Participants = thread.Participants
	discussion.SourceThreadID = threadID
	discussion.SourceURL = parsed.SourceURL
	discussion.ThreadData = &thread
	if err := o.discussion.UpdateThread(ctx, discussion); err != nil {
		return o.fail(ctx, job, discussion, domain.StageThreadBuilding, err)
	}
	if err := a.UpdateStatus(ctx, threadID, domain.StatusPending, auth); err != nil {
		slog.Warn("failed to re-emit pending status marker", "sourceThreadId", threadID, "error", err)
	}

	return o.runFromAnalysis(ctx, a, route, job, discussion, thread, mentions, auth, threadID, tenantID, started)
}

// Retry reloads a previously failed Discussion and drives a fresh Job
// through it (§4.7, §8 scenario 5): a new Job row starting at attempts=0,
// with maxAttempts taken from the Discussion's job history and
// metadata.isRetry=true,
// skipping Stage 3's FetchThread entirely when the Discussion already
// carries a stored thread snapshot from a prior attempt.
func (o *Orchestrator) Retry(ctx context.Context, discussionID string) error {
	if o.sem != nil {
		select {
		case o.sem <- struct{}{}:
			defer func() { <-o.sem }()
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	started := time.Now()

	discussion, err := o.discussion.Get(ctx, discussionID)
	if err != nil {
		return fmt.Errorf("load discussion: %w", err)
	}

	a, ok := o.adapters.Get(discussion.SourceType)
	if !ok {
		return fmt.Errorf("no adapter registered for source type %q", discussion.SourceType)
	}

	priorJobs, err := o.jobs.ListByDiscussion(ctx, discussionID)
	if err != nil {
		return fmt.Errorf("load job history: %w", err)
	}
	_, maxAttempts := RetryChain(priorJobs)

	route, err := o.resolver.ResolveForRetry(ctx, discussion.FlowID, discussion.InputID)
	if err != nil {
		return fmt.Errorf("resolve route: %w", err)
	}
	tenantID, inputID, flowID, apiToken, botUserID, botHandle := routeIdentity(route)
	auth := adapter.Auth{APIToken: apiToken}

	job := domain.Job{
		ID:           uuid.New().String(),
		TenantID:     tenantID,
		DiscussionID: discussion.ID,
		InputID:      inputID,
		FlowID:       flowID,
		Status:       domain.JobProcessing,
		Stage:        domain.StageIngestion,
		Attempts:     0,
		MaxAttempts:  maxAttempts,
		StartedAt:    started,
		Metadata:     map[string]any{"isRetry": true},
		Audit:        domain.Audit{CreatedBy: domain.SystemIdentity, UpdatedBy: domain.SystemIdentity},
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("create retry job: %w", err)
	}

	mentions, err := o.usermap.Resolve(ctx, tenantID, discussion.SourceType, routingKeyFor(route, discussion.SourceType))
	if err != nil {
		return o.fail(ctx, job, discussion, domain.StageIngestion, err)
	}

	threadID := discussion.SourceThreadID

	var thread domain.Thread
	if discussion.ThreadData != nil {
		// Scenario 5: thread data already stored, Stage 3 is skipped.
		thread = *discussion.ThreadData
	} else {
		fetched, err := a.FetchThread(ctx, threadID, auth)
		if err != nil {
			return o.fail(ctx, job, discussion, domain.StageThreadBuilding, err)
		}
		thread = rewriteThread(fetched, discussion.SourceType, botUserID, botHandle, mentions)
		discussion.AuthorHandle = thread.Root.AuthorHandle
		discussion.Participants = thread.Participants
		discussion.ThreadData = &thread
		if err := o.discussion.UpdateThread(ctx, discussion); err != nil {
			return o.fail(ctx, job, discussion, domain.StageThreadBuilding, err)
		}
	}
	if err := a.UpdateStatus(ctx, threadID, domain.StatusPending, auth); err != nil {
		slog.Warn("failed to re-emit pending status marker", "sourceThreadId", threadID, "error", err)
	}

	return o.runFromAnalysis(ctx, a, route, job, discussion, thread, mentions, auth, threadID, tenantID, started)
}

// runFromAnalysis executes stages 4 through 6 plus finalization, shared by
// Process (after a fresh Stage 3 fetch) and Retry (after reusing or
// re-fetching the stored thread).
func (o *Orchestrator) runFromAnalysis(
	ctx context.Context,
	a adapter.Adapter,
	route store.ResolvedRoute,
	job domain.Job,
	discussion domain.Discussion,
	thread domain.Thread,
	mentions *usermap.Snapshot,
	auth adapter.Auth,
	threadID, tenantID string,
	started time.Time,
) error {
	job.Stage = domain.StageAIAnalysis
	if err := o.jobs.AdvanceStage(ctx, job.ID, job.Stage); err != nil {
		slog.Warn("failed to advance job stage", "jobId", job.ID, "error", err)
	}

	// Stage 4 — AI analysis.
	opts := analyzerOptionsFor(route)
	result, err := o.analyzer.Analyze(ctx, thread, opts)
	if err != nil {
		return o.fail(ctx, job, discussion, domain.StageAIAnalysis, err)
	}
	discussion.Status = domain.DiscussionAnalyzed
	discussion.AISummary = &result.Summary
	discussion.AIKeyPoints = result.Summary.KeyPoints
	discussion.AITasks = result.TaskDetection.Tasks
	if err := o.discussion.UpdateAnalysis(ctx, discussion.ID, result.Summary, result.Summary.KeyPoints, result.TaskDetection.Tasks); err != nil {
		return o.fail(ctx, job, discussion, domain.StageAIAnalysis, err)
	}

	job.Stage = domain.StageTaskCreation
	if err := o.jobs.AdvanceStage(ctx, job.ID, job.Stage); err != nil {
		slog.Warn("failed to advance job stage", "jobId", job.ID, "error", err)
	}

	// Stage 5 — task creation fan-out.
	writerThread := taskwriter.Thread{
		Root:         thread.Root,
		AllMessages:  thread.AllMessages(),
		SourceURL:    discussion.SourceURL,
		SourceType:   discussion.SourceType,
		Participants: discussion.Participants,
	}

	refs, taskErrs := o.createTasks(ctx, route, result, writerThread, mentions)
	records := make([]domain.TaskRecord, 0, len(refs))
	for _, ref := range refs {
		records = append(records, domain.TaskRecord{
			ID:           uuid.New().String(),
			TenantID:     tenantID,
			DiscussionID: discussion.ID,
			JobID:        job.ID,
			DestPageID:   ref.ID,
			DestPageURL:  ref.URL,
			SourceURL:    discussion.SourceURL,
			Audit:        domain.Audit{CreatedBy: domain.SystemIdentity, UpdatedBy: domain.SystemIdentity},
		})
	}
	if len(records) > 0 {
		if err := o.tasks.CreateBatch(ctx, records); err != nil {
			return o.fail(ctx, job, discussion, domain.StageTaskCreation, err)
		}
	}

	taskIDs := make([]string, 0, len(records))
	for _, r := range records {
		taskIDs = append(taskIDs, r.ID)
	}
	discussion.NotionTaskIDs = taskIDs
	if err := o.discussion.UpdateTaskIDs(ctx, discussion.ID, taskIDs); err != nil {
		slog.Warn("failed to persist task ids on discussion", "discussionId", discussion.ID, "error", err)
	}

	if len(taskErrs) > 0 && len(records) == 0 {
		return o.fail(ctx, job, discussion, domain.StageTaskCreation, errors.Join(taskErrs...))
	}

	// Stage 6 — notification (best-effort).
	o.notify(ctx, a, threadID, auth, refs)

	// Finalization.
	now := time.Now()
	job.Status = domain.JobCompleted
	job.CompletedAt = &now
	job.ProcessingTimeMs = now.Sub(started).Milliseconds()
	job.TaskIDs = taskIDs
	if err := o.jobs.Complete(ctx, job.ID, job.TaskIDs, job.ProcessingTimeMs); err != nil {
		slog.Warn("failed to finalize job", "jobId", job.ID, "error", err)
	}
	discussion.Status = domain.DiscussionCompleted
	if err := o.discussion.Finalize(ctx, discussion.ID, domain.DiscussionCompleted, ""); err != nil {
		slog.Warn("failed to finalize discussion", "discussionId", discussion.ID, "error", err)
	}

	return nil
}

// fail persists the terminal failure state on the Job and Discussion and
// returns the original error (§4.7 finalization: failures up to and
// including Stage 5 are caught here).
func (o *Orchestrator) fail(ctx context.Context, job domain.Job, discussion domain.Discussion, stage domain.Stage, cause error) error {
	errMsg := fmt.Sprintf("stage %s: %s", stage, cause.Error())
	if err := o.jobs.Fail(ctx, job.ID, errMsg, ""); err != nil {
		slog.Warn("failed to persist job failure", "jobId", job.ID, "error", err)
	}
	if err := o.discussion.Finalize(ctx, discussion.ID, domain.DiscussionFailed, cause.Error()); err != nil {
		slog.Warn("failed to persist discussion failure", "discussionId", discussion.ID, "error", err)
	}
	return cause
}

// notify executes stage 6: remove the pending marker, post the task-urls
// reply, set completed status. Every call is best-effort (§4.7).
func (o *Orchestrator) notify(ctx context.Context, a adapter.Adapter, threadID string, auth adapter.Auth, refs []domain.TaskRef) {
	if err := a.RemoveReaction(ctx, threadID, "eyes", auth); err != nil {
		slog.Warn("failed to remove pending marker", "sourceThreadId", threadID, "error", err)
	}

	reply := renderTaskLinksReply(refs)
	if err := a.PostReply(ctx, threadID, reply, auth); err != nil {
		slog.Warn("failed to post completion reply", "sourceThreadId", threadID, "error", err)
	}

	if err := a.UpdateStatus(ctx, threadID, domain.StatusCompleted, auth); err != nil {
		slog.Warn("failed to set completed status marker", "sourceThreadId", threadID, "error", err)
	}
}

// noTasksCreatedReply is posted when a run completes with zero detected or
// successfully written tasks (§8 boundary case), so the reporter always
// knows the pipeline actually finished rather than silently hanging.
const noTasksCreatedReply = "(no tasks created)"

func renderTaskLinksReply(refs []domain.TaskRef) string {
	if len(refs) == 0 {
		return noTasksCreatedReply
	}
	out := "Created tasks:\n"
	for _, r := range refs {
		out += fmt.Sprintf("- %s\n", r.URL)
	}
	return out
}

// RetryChain reconstructs the attempt history for a Discussion by walking
// its Jobs in creation order (J-1: each retry is a new row, never a mutated
// attempts counter).
func RetryChain(jobs []domain.Job) (attempt, max int) {
	if len(jobs) == 0 {
		return 0, defaultMaxAttempts
	}
	latest := jobs[len(jobs)-1]
	return len(jobs), latest.MaxAttempts
}

func validateParsedDiscussion(p domain.ParsedDiscussion) error {
	if p.SourceThreadID == "" {
		return pipelineerr.NewValidationError("sourceThreadId", "required")
	}
	if p.RoutingKey == "" {
		return pipelineerr.NewValidationError("routingKey", "required")
	}
	if p.Content == "" {
		return pipelineerr.NewValidationError("content", "required")
	}
	return nil
}

func routeIdentity(route store.ResolvedRoute) (tenantID, inputID, flowID, apiToken, botUserID, botHandle string) {
	if route.IsLegacy() {
		cfg := route.Legacy
		return cfg.TenantID, cfg.ID, "", cfg.APIToken, botField(cfg.SourceMetadata, "botUserId"), botField(cfg.SourceMetadata, "botHandle")
	}
	f := route.Flow
	return f.Flow.TenantID, f.MatchedInput.ID, f.Flow.ID, f.MatchedInput.APIToken, f.MatchedInput.BotUserID(), f.MatchedInput.BotHandle()
}

// routingKeyFor recovers the routing key a resolved route was originally
// matched on, so a retry can re-run usermap.Resolve without a Discussion
// needing to persist the raw webhook routing key itself.
func routingKeyFor(route store.ResolvedRoute, sourceType domain.SourceType) string {
	if route.IsLegacy() {
		return route.Legacy.WorkspaceID
	}
	if sourceType == domain.SourceDesignEmail {
		return route.Flow.MatchedInput.EmailSlug
	}
	return route.Flow.MatchedInput.WorkspaceID()
}

func botField(meta map[string]any, key string) string {
	v, _ := meta[key].(string)
	return v
}

func analyzerOptionsFor(route store.ResolvedRoute) analyzer.Options {
	if route.IsLegacy() {
		return analyzer.Options{}
	}
	return analyzer.Options{
		AvailableDomains:      route.Flow.Flow.AvailableDomains,
		SummaryPromptTemplate: route.Flow.Flow.SummaryPromptTemplate,
		TaskPromptTemplate:    route.Flow.Flow.TaskPromptTemplate,
	}
}

func rewriteThread(thread domain.Thread, sourceType domain.SourceType, botUserID, botHandle string, mentions *usermap.Snapshot) domain.Thread {
	thread.Root.Content = usermap.Rewrite(thread.Root.Content, sourceType, botUserID, botHandle, mentions)
	for i := range thread.Replies {
		thread.Replies[i].Content = usermap.Rewrite(thread.Replies[i].Content, sourceType, botUserID, botHandle, mentions)
	}
	return thread
}

// createTasks fans detected tasks out to their matched outputs (Flow mode)
// or the single legacy output, collecting every successful ref and every
// per-output failure without aborting siblings (§4.7 stage 5).
func (o *Orchestrator) createTasks(ctx context.Context, route store.ResolvedRoute, result domain.AnalysisResult, thread taskwriter.Thread, mentions *usermap.Snapshot) ([]domain.TaskRef, []error) {
	var refs []domain.TaskRef
	var errs []error

	if route.IsLegacy() {
		cfg := route.Legacy.OutputConfig
		batch, err := o.writer.CreateBatch(ctx, result.TaskDetection.Tasks, thread, result.Summary, cfg, mentions)
		refs = append(refs, batch...)
		if err != nil {
			errs = append(errs, err)
		}
		return refs, errs
	}

	for _, task := range result.TaskDetection.Tasks {
		matched, err := router.Route(task, route.Flow.Outputs)
		if err != nil {
			errs = append(errs, fmt.Errorf("route task %q: %w", task.Title, err))
			continue
		}
		for _, out := range matched {
			batch, err := o.writer.CreateBatch(ctx, []domain.Task{task}, thread, result.Summary, out.OutputConfig, mentions)
			refs = append(refs, batch...)
			if err != nil {
				errs = append(errs, fmt.Errorf("output %q: %w", out.Name, err))
			}
		}
	}

	return refs, errs
}
