package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearmesh/agentgate/adapters/store"
	"github.com/clearmesh/agentgate/core"
)

func newTaskFixture(t *testing.T) (*TaskService, *clock) {
	t.Helper()
	st := store.NewMemoryStore()
	ck := newClock()
	st.SetClock(ck.now)
	svc := NewTaskService(st, nil, nil)
	svc.SetClock(ck.now)
	return svc, ck
}

func TestTaskCreateAndGet(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskFixture(t)

	task, err := svc.Create(ctx, "ping", json.RawMessage(`{"n":1}`), "s1")
	require.NoError(t, err)
	require.Equal(t, core.TaskPending, task.Status)
	require.Equal(t, "s1", task.SessionID)
	require.False(t, task.AnonymousOwner())

	got := svc.Get(ctx, task.ID)
	require.NotNil(t, got)
	require.Equal(t, task.ID, got.ID)

	require.Nil(t, svc.Get(ctx, "missing"))
	require.Nil(t, svc.Get(ctx, ""))
}

func TestTaskStatusTransitions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskFixture(t)

	task, err := svc.Create(ctx, "ping", nil, "s1")
	require.NoError(t, err)

	working := svc.UpdateStatus(ctx, task.ID, core.TaskWorking, nil, nil)
	require.NotNil(t, working)
	require.Equal(t, core.TaskWorking, working.Status)

	done := svc.UpdateStatus(ctx, task.ID, core.TaskCompleted, json.RawMessage(`{"ok":true}`), nil)
	require.NotNil(t, done)
	require.Equal(t, core.TaskCompleted, done.Status)
	require.JSONEq(t, `{"ok":true}`, string(done.Output))
}

func TestTaskTerminalStatesAreImmutable(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskFixture(t)

	task, err := svc.Create(ctx, "ping", nil, "s1")
	require.NoError(t, err)
	svc.UpdateStatus(ctx, task.ID, core.TaskWorking, nil, nil)

	cancelled, err := svc.Cancel(ctx, task.ID, "s1")
	require.NoError(t, err)
	require.Equal(t, core.TaskCancelled, cancelled.Status)

	// A completion landing after cancellation must not resurrect the task.
	after := svc.UpdateStatus(ctx, task.ID, core.TaskCompleted, json.RawMessage(`{}`), nil)
	require.NotNil(t, after)
	require.Equal(t, core.TaskCancelled, after.Status)
}

func TestTaskCancelRules(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTaskFixture(t)

	t.Run("unknown task", func(t *testing.T) {
		_, err := svc.Cancel(ctx, "missing", "s1")
		require.ErrorIs(t, err, core.ErrTaskNotFound)
	})

	t.Run("not the owner", func(t *testing.T) {
		task, err := svc.Create(ctx, "ping", nil, "s1")
		require.NoError(t, err)
		_, err = svc.Cancel(ctx, task.ID, "s2")
		require.ErrorIs(t, err, core.ErrAccessDenied)
	})

	t.Run("already completed", func(t *testing.T) {
		task, err := svc.Create(ctx, "ping", nil, "s1")
		require.NoError(t, err)
		svc.UpdateStatus(ctx, task.ID, core.TaskCompleted, nil, nil)
		_, err = svc.Cancel(ctx, task.ID, "s1")
		require.ErrorIs(t, err, core.ErrTaskCompleted)
	})

	t.Run("already failed", func(t *testing.T) {
		task, err := svc.Create(ctx, "ping", nil, "s1")
		require.NoError(t, err)
		svc.UpdateStatus(ctx, task.ID, core.TaskFailed, nil, &core.TaskError{Code: -32603, Message: "boom"})
		_, err = svc.Cancel(ctx, task.ID, "s1")
		require.ErrorIs(t, err, core.ErrTaskCompleted)
	})

	t.Run("already cancelled", func(t *testing.T) {
		task, err := svc.Create(ctx, "ping", nil, "s1")
		require.NoError(t, err)
		_, err = svc.Cancel(ctx, task.ID, "s1")
		require.NoError(t, err)
		_, err = svc.Cancel(ctx, task.ID, "s1")
		require.ErrorIs(t, err, core.ErrTaskCancelled)
	})
}

func TestTaskRetentionAsymmetry(t *testing.T) {
	ctx := context.Background()
	svc, ck := newTaskFixture(t)

	anon, err := svc.Create(ctx, "ping", nil, core.AnonymousSessionPrefix+"x")
	require.NoError(t, err)
	require.True(t, anon.AnonymousOwner())
	owned, err := svc.Create(ctx, "ping", nil, "s1")
	require.NoError(t, err)

	ck.advance(16 * time.Minute)
	require.Nil(t, svc.Get(ctx, anon.ID), "anonymous tasks expire after 15 minutes")
	require.NotNil(t, svc.Get(ctx, owned.ID))

	ck.advance(7 * 24 * time.Hour)
	require.Nil(t, svc.Get(ctx, owned.ID), "session tasks expire after 7 days")
}

func TestTaskUpdatePreservesRetentionWindow(t *testing.T) {
	ctx := context.Background()
	svc, ck := newTaskFixture(t)

	task, err := svc.Create(ctx, "ping", nil, core.AnonymousSessionPrefix+"x")
	require.NoError(t, err)

	// Repeated updates must not push the expiry past the original window.
	for i := 0; i < 10; i++ {
		ck.advance(time.Minute)
		svc.UpdateStatus(ctx, task.ID, core.TaskWorking, nil, nil)
	}
	ck.advance(6 * time.Minute)
	require.Nil(t, svc.Get(ctx, task.ID), "updates cannot extend the retention window")
}

func TestTaskListBySession(t *testing.T) {
	ctx := context.Background()
	svc, ck := newTaskFixture(t)

	var ids []string
	for i := 0; i < 5; i++ {
		task, err := svc.Create(ctx, "ping", nil, "s1")
		require.NoError(t, err)
		ids = append(ids, task.ID)
		ck.advance(time.Second)
	}
	svc.UpdateStatus(ctx, ids[0], core.TaskCompleted, nil, nil)
	_, err := svc.Create(ctx, "ping", nil, "s2")
	require.NoError(t, err)

	tasks, total := svc.ListBySession(ctx, "s1", ListOptions{Limit: 10})
	require.Equal(t, 5, total)
	require.Len(t, tasks, 5)
	// Newest first.
	require.Equal(t, ids[4], tasks[0].ID)
	require.Equal(t, ids[0], tasks[4].ID)

	t.Run("pagination", func(t *testing.T) {
		page, total := svc.ListBySession(ctx, "s1", ListOptions{Limit: 2, Offset: 2})
		require.Equal(t, 5, total)
		require.Len(t, page, 2)
		require.Equal(t, ids[2], page[0].ID)

		empty, total := svc.ListBySession(ctx, "s1", ListOptions{Limit: 2, Offset: 10})
		require.Equal(t, 5, total)
		require.Empty(t, empty)
	})

	t.Run("status filter", func(t *testing.T) {
		completed, total := svc.ListBySession(ctx, "s1", ListOptions{Limit: 10, Status: core.TaskCompleted})
		require.Equal(t, 1, total)
		require.Len(t, completed, 1)
		require.Equal(t, ids[0], completed[0].ID)
	})

	t.Run("unknown session", func(t *testing.T) {
		tasks, total := svc.ListBySession(ctx, "nope", ListOptions{Limit: 10})
		require.Zero(t, total)
		require.Empty(t, tasks)
	})
}

func TestTaskCleanupExpired(t *testing.T) {
	ctx := context.Background()
	svc, ck := newTaskFixture(t)

	_, err := svc.Create(ctx, "ping", nil, core.AnonymousSessionPrefix+"x")
	require.NoError(t, err)
	ck.advance(time.Hour)

	removed := svc.CleanupExpired(ctx)
	require.Equal(t, 2, removed, "record and its session index are both swept")
}
