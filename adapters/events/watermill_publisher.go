package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/clearmesh/agentgate/core"
	"github.com/clearmesh/agentgate/ports"
)

const (
	// TaskStatusTopic carries one message per task status transition.
	TaskStatusTopic = "task.status"

	// SessionInvalidatedTopic notifies other instances that a session was
	// revoked and must no longer resolve.
	SessionInvalidatedTopic = "auth.session.invalidated"
)

// TaskStatusEvent is the payload published on TaskStatusTopic.
type TaskStatusEvent struct {
	TaskID    string          `json:"task_id"`
	SessionID string          `json:"session_id"`
	SkillID   string          `json:"skill_id"`
	Status    core.TaskStatus `json:"status"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// SessionInvalidatedEvent is the payload published on SessionInvalidatedTopic.
type SessionInvalidatedEvent struct {
	Address   string `json:"address"`
	SessionID string `json:"session_id"`
}

// WatermillPublisher implements the EventPublisher port over any watermill
// message.Publisher (Redis streams in production, gochannel when degraded).
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher wraps a watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) publish(topic, key string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.publisher.Publish(topic, message.NewMessage(key, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *WatermillPublisher) PublishTaskStatus(ctx context.Context, task *core.Task) error {
	return p.publish(TaskStatusTopic, task.ID, TaskStatusEvent{
		TaskID:    task.ID,
		SessionID: task.SessionID,
		SkillID:   task.SkillID,
		Status:    task.Status,
		UpdatedAt: task.UpdatedAt,
	})
}

func (p *WatermillPublisher) PublishSessionInvalidated(ctx context.Context, address, sessionID string) error {
	return p.publish(SessionInvalidatedTopic, sessionID, SessionInvalidatedEvent{
		Address:   address,
		SessionID: sessionID,
	})
}
