package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codeready-toolchain/discubot/pkg/domain"
)

// fakeDiscussionStore, fakeJobStore and fakeTaskStore are minimal in-memory
// DiscussionStore/JobStore/TaskStore implementations for
// orchestrator_scenarios_test.go — append-only ledgers mirroring what
// pkg/store's pgx-backed repositories do against real tables.

type fakeDiscussionStore struct {
	mu   sync.Mutex
	rows []domain.Discussion
}

func (s *fakeDiscussionStore) indexOf(id string) int {
	for i, d := range s.rows {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (s *fakeDiscussionStore) Create(ctx context.Context, d domain.Discussion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, d)
	return nil
}

func (s *fakeDiscussionStore) UpdateThread(ctx context.Context, d domain.Discussion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(d.ID)
	if i < 0 {
		return fmt.Errorf("discussion %s not found", d.ID)
	}
	s.rows[i] = d
	return nil
}

func (s *fakeDiscussionStore) UpdateAnalysis(ctx context.Context, id string, summary domain.Summary, keyPoints []string, tasks []domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("discussion %s not found", id)
	}
	s.rows[i].Status = domain.DiscussionAnalyzed
	s.rows[i].AISummary = &summary
	s.rows[i].AIKeyPoints = keyPoints
	s.rows[i].AITasks = tasks
	return nil
}

func (s *fakeDiscussionStore) UpdateTaskIDs(ctx context.Context, id string, taskRecordIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("discussion %s not found", id)
	}
	s.rows[i].NotionTaskIDs = taskRecordIDs
	return nil
}

func (s *fakeDiscussionStore) Finalize(ctx context.Context, id string, status domain.DiscussionStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("discussion %s not found", id)
	}
	s.rows[i].Status = status
	return nil
}

func (s *fakeDiscussionStore) Get(ctx context.Context, id string) (domain.Discussion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return domain.Discussion{}, fmt.Errorf("discussion %s not found", id)
	}
	return s.rows[i], nil
}

type fakeJobStore struct {
	mu   sync.Mutex
	rows []domain.Job
}

func (s *fakeJobStore) indexOf(id string) int {
	for i, j := range s.rows {
		if j.ID == id {
			return i
		}
	}
	return -1
}

func (s *fakeJobStore) Create(ctx context.Context, j domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, j)
	return nil
}

func (s *fakeJobStore) AdvanceStage(ctx context.Context, id string, stage domain.Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("job %s not found", id)
	}
	s.rows[i].Stage = stage
	return nil
}

func (s *fakeJobStore) Complete(ctx context.Context, id string, taskIDs []string, processingTimeMs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("job %s not found", id)
	}
	now := time.Now()
	s.rows[i].Status = domain.JobCompleted
	s.rows[i].CompletedAt = &now
	s.rows[i].TaskIDs = taskIDs
	s.rows[i].ProcessingTimeMs = processingTimeMs
	return nil
}

func (s *fakeJobStore) Fail(ctx context.Context, id, errMsg, errStack string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("job %s not found", id)
	}
	now := time.Now()
	s.rows[i].Status = domain.JobFailed
	s.rows[i].CompletedAt = &now
	s.rows[i].Error = errMsg
	s.rows[i].ErrorStack = errStack
	return nil
}

func (s *fakeJobStore) ListByDiscussion(ctx context.Context, discussionID string) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, j := range s.rows {
		if j.DiscussionID == discussionID {
			out = append(out, j)
		}
	}
	return out, nil
}

type fakeTaskStore struct {
	mu   sync.Mutex
	rows []domain.TaskRecord
}

func (s *fakeTaskStore) CreateBatch(ctx context.Context, records []domain.TaskRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, records...)
	return nil
}

type fakeStores struct {
	discussions *fakeDiscussionStore
	jobs        *fakeJobStore
	tasks       *fakeTaskStore
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		discussions: &fakeDiscussionStore{},
		jobs:        &fakeJobStore{},
		tasks:       &fakeTaskStore{},
	}
}
