package pipeline

import (
	"context"

	"github.com/codeready-toolchain/discubot/pkg/analyzer"
	"github.com/codeready-toolchain/discubot/pkg/domain"
	"github.com/codeready-toolchain/discubot/pkg/flow"
	"github.com/codeready-toolchain/discubot/pkg/store"
	"github.com/codeready-toolchain/discubot/pkg/taskwriter"
	"github.com/codeready-toolchain/discubot/pkg/usermap"
)

// The interfaces below are the subset of pkg/flow, pkg/usermap, pkg/analyzer,
// pkg/taskwriter and pkg/store's repository structs the orchestrator actually
// calls. Declaring them here — rather than depending on the concrete structs
// directly — lets the scenario tests in orchestrator_scenarios_test.go drive
// Process and Retry end to end against in-memory fakes instead of a live
// Postgres, the way the teacher's pkg/services tests substitute a fake
// session store ahead of its repository interfaces.

// RouteResolver resolves a webhook's routing key (or a retried Discussion's
// stored flowId/inputId) to a ResolvedRoute.
type RouteResolver interface {
	Resolve(ctx context.Context, sourceType domain.SourceType, routingKey string) (store.ResolvedRoute, error)
	ResolveForRetry(ctx context.Context, flowID, inputID string) (store.ResolvedRoute, error)
}

// MentionResolver prefetches a tenant/workspace's user-mapping snapshot.
type MentionResolver interface {
	Resolve(ctx context.Context, tenantID string, sourceType domain.SourceType, workspaceID string) (*usermap.Snapshot, error)
}

// AnalyzerClient runs the LLM analysis stage.
type AnalyzerClient interface {
	Analyze(ctx context.Context, thread domain.Thread, opts analyzer.Options) (domain.AnalysisResult, error)
}

// TaskWriter creates task records against a single knowledge-base output.
type TaskWriter interface {
	CreateBatch(ctx context.Context, tasks []domain.Task, thread taskwriter.Thread, summary domain.Summary, cfg domain.KBOutputConfig, mentions *usermap.Snapshot) ([]domain.TaskRef, error)
}

// DiscussionStore persists the Discussion ledger row.
type DiscussionStore interface {
	Create(ctx context.Context, d domain.Discussion) error
	UpdateThread(ctx context.Context, d domain.Discussion) error
	UpdateAnalysis(ctx context.Context, id string, summary domain.Summary, keyPoints []string, tasks []domain.Task) error
	UpdateTaskIDs(ctx context.Context, id string, taskRecordIDs []string) error
	Finalize(ctx context.Context, id string, status domain.DiscussionStatus, errMsg string) error
	Get(ctx context.Context, id string) (domain.Discussion, error)
}

// JobStore persists the Job ledger row (J-1/J-2).
type JobStore interface {
	Create(ctx context.Context, j domain.Job) error
	AdvanceStage(ctx context.Context, id string, stage domain.Stage) error
	Complete(ctx context.Context, id string, taskIDs []string, processingTimeMs int64) error
	Fail(ctx context.Context, id, errMsg, errStack string) error
	ListByDiscussion(ctx context.Context, discussionID string) ([]domain.Job, error)
}

// TaskStore persists written TaskRecord rows.
type TaskStore interface {
	CreateBatch(ctx context.Context, records []domain.TaskRecord) error
}

var (
	_ RouteResolver   = (*flow.Resolver)(nil)
	_ MentionResolver = (*usermap.Resolver)(nil)
	_ AnalyzerClient  = (*analyzer.Analyzer)(nil)
	_ TaskWriter      = (*taskwriter.Writer)(nil)
	_ DiscussionStore = (*store.DiscussionRepository)(nil)
	_ JobStore        = (*store.JobRepository)(nil)
	_ TaskStore       = (*store.TaskRepository)(nil)
)
