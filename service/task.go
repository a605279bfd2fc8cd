package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clearmesh/agentgate/core"
	"github.com/clearmesh/agentgate/ports"
)

const (
	// Retention classes. Anonymous callers must not be able to flood the
	// store; registered agents keep their task history for days.
	anonymousTaskRetention = 15 * time.Minute
	sessionTaskRetention   = 7 * 24 * time.Hour

	taskKeyPrefix   = "task:"
	taskIndexPrefix = "task-session:"
)

// ListOptions narrows and pages a session's task listing. Callers clamp
// Limit/Offset at the protocol boundary; the store assumes sane inputs.
type ListOptions struct {
	Limit  int
	Offset int
	Status core.TaskStatus
}

// TaskService is the taskId-keyed store of asynchronous task records, each
// indexed under its owning session for listing and cancellation.
type TaskService struct {
	store  ports.Store
	events ports.EventPublisher
	logger *slog.Logger

	now func() time.Time
}

// NewTaskService creates a task service. events may be nil.
func NewTaskService(store ports.Store, events ports.EventPublisher, logger *slog.Logger) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{store: store, events: events, logger: logger, now: time.Now}
}

// SetClock overrides the time source. Test hook.
func (s *TaskService) SetClock(now func() time.Time) { s.now = now }

func retentionForSession(sessionID string) time.Duration {
	if strings.HasPrefix(sessionID, core.AnonymousSessionPrefix) {
		return anonymousTaskRetention
	}
	return sessionTaskRetention
}

// Create writes a new pending task. The record and its session index entry
// land in one atomic batch so neither can exist without the other.
func (s *TaskService) Create(ctx context.Context, skillID string, input json.RawMessage, sessionID string) (*core.Task, error) {
	now := s.now()
	task := &core.Task{
		ID:        uuid.NewString(),
		Status:    core.TaskPending,
		SkillID:   skillID,
		Input:     input,
		SessionID: sessionID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	ttl := retentionForSession(sessionID)

	err := s.store.Batch(ctx, []ports.WriteOp{
		{
			Kind:  ports.WriteSet,
			Key:   taskKeyPrefix + task.ID,
			Value: mustJSON(task),
			TTL:   ttl,
		},
		{
			Kind:   ports.WriteIndexAdd,
			Index:  taskIndexPrefix + sessionID,
			Member: task.ID,
			Score:  float64(now.UnixNano()),
			TTL:    ttl,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.publish(ctx, task)
	return task, nil
}

// Get returns the task or nil when unknown or past its retention window.
func (s *TaskService) Get(ctx context.Context, taskID string) *core.Task {
	if taskID == "" {
		return nil
	}
	raw, ok, err := s.store.Get(ctx, taskKeyPrefix+taskID)
	if err != nil {
		s.logger.Warn("task read failed", "task_id", taskID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	var task core.Task
	if err := unmarshalJSON(raw, &task); err != nil {
		s.logger.Warn("task record corrupt", "task_id", taskID, "error", err)
		return nil
	}
	// Backends without native TTL keep records past their class age; the
	// retention policy is re-derived here so a stale record reads as absent.
	if s.now().Sub(task.CreatedAt) > retentionForSession(task.SessionID) {
		return nil
	}
	return &task
}

// UpdateStatus merges status/output/error into the task and refreshes
// UpdatedAt. The remaining TTL is recomputed from the original creation time
// so repeated updates cannot keep a task alive past its retention class.
// Terminal tasks are left untouched: a completion racing a cancellation
// cannot resurrect the record.
func (s *TaskService) UpdateStatus(ctx context.Context, taskID string, status core.TaskStatus, output json.RawMessage, taskErr *core.TaskError) *core.Task {
	task := s.Get(ctx, taskID)
	if task == nil {
		return nil
	}
	if task.Status.Terminal() {
		return task
	}

	task.Status = status
	task.UpdatedAt = s.now()
	if output != nil {
		task.Output = output
	}
	if taskErr != nil {
		task.Error = taskErr
	}

	remaining := retentionForSession(task.SessionID) - s.now().Sub(task.CreatedAt)
	if remaining <= 0 {
		return nil
	}
	if err := s.store.Set(ctx, taskKeyPrefix+taskID, mustJSON(task), remaining); err != nil {
		s.logger.Warn("task update failed", "task_id", taskID, "error", err)
		return nil
	}
	s.publish(ctx, task)
	return task
}

// ListBySession returns the session's tasks newest first, optionally
// filtered by status, with total computed over the filtered set before
// pagination.
func (s *TaskService) ListBySession(ctx context.Context, sessionID string, opts ListOptions) ([]*core.Task, int) {
	ids, err := s.store.IndexRange(ctx, taskIndexPrefix+sessionID)
	if err != nil {
		s.logger.Warn("task index read failed", "session_id", sessionID, "error", err)
		return nil, 0
	}

	filtered := make([]*core.Task, 0, len(ids))
	for _, id := range ids {
		task := s.Get(ctx, id)
		if task == nil {
			continue
		}
		if opts.Status != "" && task.Status != opts.Status {
			continue
		}
		filtered = append(filtered, task)
	}
	total := len(filtered)

	if opts.Offset >= total {
		return []*core.Task{}, total
	}
	end := opts.Offset + opts.Limit
	if end > total {
		end = total
	}
	return filtered[opts.Offset:end], total
}

// Cancel transitions an owned pending or working task to cancelled. It
// returns a typed error for every refusal so the protocol layer can map the
// exact conflict code.
func (s *TaskService) Cancel(ctx context.Context, taskID, sessionID string) (*core.Task, error) {
	task := s.Get(ctx, taskID)
	if task == nil {
		return nil, core.ErrTaskNotFound
	}
	if task.SessionID != sessionID {
		return nil, core.ErrAccessDenied
	}
	switch task.Status {
	case core.TaskCancelled:
		return nil, core.ErrTaskCancelled
	case core.TaskCompleted, core.TaskFailed:
		return nil, core.ErrTaskCompleted
	}
	cancelled := s.UpdateStatus(ctx, taskID, core.TaskCancelled, nil, nil)
	if cancelled == nil {
		return nil, core.ErrTaskNotFound
	}
	return cancelled, nil
}

// CleanupExpired sweeps records past their retention on backends without
// native TTL. Scheduled periodically by the composition root.
func (s *TaskService) CleanupExpired(ctx context.Context) int {
	removed, err := s.store.Sweep(ctx)
	if err != nil {
		s.logger.Warn("task sweep failed", "error", err)
		return 0
	}
	if removed > 0 {
		s.logger.Debug("swept expired records", "count", removed)
	}
	return removed
}

func (s *TaskService) publish(ctx context.Context, task *core.Task) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishTaskStatus(ctx, task); err != nil {
		s.logger.Warn("task event publish failed", "task_id", task.ID, "error", err)
	}
}
