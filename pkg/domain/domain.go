// Package domain contains the entity and value types shared across the
// ingestion-to-task pipeline: flows and their inputs/outputs, user mappings,
// discussions, jobs, and task records.
package domain

import "time"

// SystemIdentity is stamped into CreatedBy/UpdatedBy for pipeline-originated
// writes.
const SystemIdentity = "system"

// SourceType identifies an upstream collaboration platform.
type SourceType string

const (
	SourceChat        SourceType = "chat"
	SourceDesignEmail SourceType = "design-email"
)

// Audit holds the columns every persisted row carries.
type Audit struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	CreatedBy string
	UpdatedBy string
}

// Flow is a tenant-owned named pipeline with N inputs and M outputs.
type Flow struct {
	ID                    string
	TenantID              string
	Name                  string
	Description           string
	AvailableDomains      []string
	AIEnabled             bool
	SummaryPromptTemplate string
	TaskPromptTemplate    string
	Active                bool
	Audit
}

// FlowInput is one upstream endpoint bound to a flow.
type FlowInput struct {
	ID             string
	FlowID         string
	SourceType     SourceType
	APIToken       string
	SourceMetadata map[string]any
	EmailSlug      string
	Active         bool
	Audit
}

// WorkspaceID extracts the chat workspace identifier used as the routing key
// for chat-sourced inputs.
func (fi FlowInput) WorkspaceID() string {
	v, _ := fi.SourceMetadata["workspaceId"].(string)
	return v
}

// BotUserID returns the bot's own upstream identity, used for self-mention
// stripping. Empty if the input never recorded one.
func (fi FlowInput) BotUserID() string {
	v, _ := fi.SourceMetadata["botUserId"].(string)
	return v
}

// BotHandle returns the bot's own display handle, used for self-mention
// stripping on sources that mention by name rather than id.
func (fi FlowInput) BotHandle() string {
	v, _ := fi.SourceMetadata["botHandle"].(string)
	return v
}

// OutputType enumerates supported downstream destinations. Only the
// knowledge-base type is implemented; the enum leaves room for others the
// way the spec's typed-config boundary anticipates.
type OutputType string

const OutputKB OutputType = "kb"

// FlowOutput is one downstream task destination.
type FlowOutput struct {
	ID           string
	FlowID       string
	OutputType   OutputType
	Name         string
	DomainFilter []string
	IsDefault    bool
	OutputConfig KBOutputConfig
	Active       bool
	Audit
}

// KBOutputConfig is the typed boundary for FlowOutput.outputConfig — the
// knowledge-base database id, access token, and AI-field-to-property mapping.
type KBOutputConfig struct {
	DatabaseID   string                  `json:"databaseId"`
	AccessToken  string                  `json:"accessToken"`
	FieldMapping map[string]FieldMapping `json:"fieldMapping"`
}

// FieldMapping maps one canonical AI field (priority, type, assignee,
// dueDate, tags) onto a destination property.
type FieldMapping struct {
	DestProperty string            `json:"destProperty"`
	PropertyType string            `json:"propertyType"`
	ValueMap     map[string]string `json:"valueMap,omitempty"`
}

// UserMapping resolves one upstream user identity to a downstream one.
type UserMapping struct {
	ID                string
	TenantID          string
	SourceType        SourceType
	SourceWorkspaceID string
	SourceUserID      string
	SourceUserName    string
	DestUserID        string
	DestUserName      string
	Active            bool
	Audit
}

// DiscussionStatus is the lifecycle status of a Discussion.
type DiscussionStatus string

const (
	DiscussionPending    DiscussionStatus = "pending"
	DiscussionProcessing DiscussionStatus = "processing"
	DiscussionAnalyzed   DiscussionStatus = "analyzed"
	DiscussionCompleted  DiscussionStatus = "completed"
	DiscussionFailed     DiscussionStatus = "failed"
)

// Discussion is the snapshot of a thread under processing.
type Discussion struct {
	ID             string
	TenantID       string
	SourceType     SourceType
	SourceThreadID string
	SourceURL      string
	FlowID         string // empty for legacy mode
	InputID        string
	Title          string
	Content        string
	AuthorHandle   string
	Participants   []string
	Status         DiscussionStatus
	ThreadData     *Thread
	AISummary      *Summary
	AIKeyPoints    []string
	AITasks        []Task
	NotionTaskIDs  []string
	RawPayload     map[string]any
	Metadata       map[string]any
	Audit
}

// JobStatus is the lifecycle status of a Job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobRetrying   JobStatus = "retrying"
)

// Stage names the six-stage pipeline's current position for a Job.
type Stage string

const (
	StageIngestion      Stage = "ingestion"
	StageThreadBuilding Stage = "thread_building"
	StageAIAnalysis     Stage = "ai_analysis"
	StageTaskCreation   Stage = "task_creation"
	StageNotification   Stage = "notification"
)

// Job is the ledger row for one processing attempt on a Discussion.
// Invariant J-1: a retry creates a new Job row; Attempts is never mutated in
// place. Invariant J-2: once CompletedAt is set, Status is terminal.
type Job struct {
	ID                string
	TenantID          string
	DiscussionID      string
	InputID           string
	FlowID            string // empty under legacy routing
	Status            JobStatus
	Stage             Stage
	Attempts          int
	MaxAttempts       int
	Error             string
	ErrorStack        string
	StartedAt         time.Time
	CompletedAt       *time.Time
	ProcessingTimeMs  int64
	TaskIDs           []string
	Metadata          map[string]any
	Audit
}

// TaskRecord indexes one externally created task.
// Invariant T-1: DestPageID uniquely identifies this record's external artifact.
type TaskRecord struct {
	ID               string
	TenantID         string
	DiscussionID     string
	JobID            string
	DestPageID       string
	DestPageURL      string
	Title            string
	Description      string
	Priority         string
	Assignee         string
	SourceURL        string
	IsMultiTaskChild bool
	TaskIndex        int
	Metadata         map[string]any
	Audit
}

// LegacyConfig is the pre-Flow single-input/single-output configuration the
// resolver falls through to when no Flow matches a routing key (§9).
type LegacyConfig struct {
	ID             string
	TenantID       string
	SourceType     SourceType
	WorkspaceID    string
	APIToken       string
	SourceMetadata map[string]any
	OutputConfig   KBOutputConfig
	Active         bool
	Audit
}
