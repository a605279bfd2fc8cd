package core

import (
	"encoding/json"
	"strings"
	"time"
)

// AnonymousSessionPrefix marks session ids synthesized for unauthenticated
// callers. Tasks owned by such sessions fall into the short retention class.
const AnonymousSessionPrefix = "anon:"

// Challenge represents an outstanding authentication challenge. It is keyed
// by nonce so that concurrent challenges for the same wallet never collide.
type Challenge struct {
	Nonce     string    `json:"nonce"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session represents an authenticated identity with a fixed absolute expiry.
type Session struct {
	ID           string    `json:"id"`
	Address      string    `json:"address"`
	Tier         string    `json:"tier"`
	IsPrivileged bool      `json:"is_privileged"`
	IsRegistered bool      `json:"is_registered"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskWorking   TaskStatus = "working"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether no further status transitions are valid.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Valid reports whether s is a known status value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskPending, TaskWorking, TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}

// TaskError is the coded error recorded on a failed task.
type TaskError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Task represents one asynchronous unit of skill work, owned by a session.
type Task struct {
	ID        string          `json:"id"`
	Status    TaskStatus      `json:"status"`
	SkillID   string          `json:"skill_id"`
	Input     json.RawMessage `json:"input,omitempty"`
	SessionID string          `json:"session_id"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     *TaskError      `json:"error,omitempty"`
}

// AnonymousOwner reports whether the owning session is a synthesized
// anonymous one, which places the task in the short retention class.
func (t *Task) AnonymousOwner() bool {
	return strings.HasPrefix(t.SessionID, AnonymousSessionPrefix)
}

// AccessLevel is the access tier a skill demands from its caller.
type AccessLevel string

const (
	AccessPublic        AccessLevel = "public"
	AccessAuthenticated AccessLevel = "authenticated"
	AccessRegistered    AccessLevel = "registered"
)

// Skill describes one invokable business operation.
type Skill struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Access      AccessLevel `json:"access"`
}

// AccessContext is the resolved caller identity for a single request.
// It is derived fresh per request and never persisted.
type AccessContext struct {
	Address       string
	Authenticated bool
	Registered    bool
	SessionID     string
}

// Anonymous returns the zero identity used when no valid credential is
// presented.
func Anonymous() AccessContext {
	return AccessContext{}
}
