package domain

import "time"

// ParsedDiscussion is the source-independent result of adapter.parseIncoming.
type ParsedDiscussion struct {
	SourceThreadID string
	SourceURL      string
	RoutingKey     string // teamId/workspaceId for chat, emailSlug for email
	AuthorHandle   string
	Title          string
	Content        string
	Participants   []string
	Metadata       map[string]any
	RawPayload     map[string]any
}

// Message is one entry (root or reply) in a Thread.
type Message struct {
	AuthorHandle string
	AuthorID     string
	Content      string
	PostedAt     time.Time
}

// Thread is the ordered root message plus replies plus deduped participants,
// returned by adapter.fetchThread.
type Thread struct {
	Root         Message
	Replies      []Message
	Participants []string // deduped, first-seen order
}

// AllMessages returns root followed by replies, the order the analyzer
// serializes a thread in.
func (t Thread) AllMessages() []Message {
	out := make([]Message, 0, len(t.Replies)+1)
	out = append(out, t.Root)
	out = append(out, t.Replies...)
	return out
}

// ThreadStatus is a visible marker an adapter sets on the source thread.
type ThreadStatus string

const (
	StatusPending   ThreadStatus = "pending"
	StatusCompleted ThreadStatus = "completed"
	StatusFailed    ThreadStatus = "failed"
)

// Priority enumerates the closed set of task priorities the analyzer may emit.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// TaskType enumerates the closed set of task types the analyzer may emit.
type TaskType string

const (
	TaskBug         TaskType = "bug"
	TaskFeature     TaskType = "feature"
	TaskQuestion    TaskType = "question"
	TaskImprovement TaskType = "improvement"
)

// Task is one AI-detected action item.
type Task struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Priority    *Priority `json:"priority"`
	Type        *TaskType `json:"type"`
	Assignee    *string   `json:"assignee"` // destUserId, resolved at analysis time
	DueDate     *string   `json:"dueDate"`  // ISO date
	Tags        []string  `json:"tags"`
	Domain      *string   `json:"domain"`
	ActionItems []string  `json:"actionItems,omitempty"`
}

// Summary is the analyzer's narrative output for a thread.
type Summary struct {
	Text       string   `json:"text"`
	KeyPoints  []string `json:"keyPoints"`
	Sentiment  *string  `json:"sentiment"`
	Confidence *float64 `json:"confidence"`
	Domain     *string  `json:"domain"`
}

// TaskDetection is the analyzer's structured-task output for a thread.
type TaskDetection struct {
	IsMultiTask bool     `json:"isMultiTask"`
	Tasks       []Task   `json:"tasks"`
	Confidence  *float64 `json:"confidence"`
}

// AnalysisResult is the full output of analyzer.Analyze.
type AnalysisResult struct {
	Summary          Summary
	TaskDetection    TaskDetection
	ProcessingTimeMs int64
	Cached           bool
}

// TaskRef is returned by the task writer after a successful create.
type TaskRef struct {
	ID        string
	URL       string
	CreatedAt time.Time
}
