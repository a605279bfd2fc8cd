package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clearmesh/agentgate/core"
)

// RegisterBuiltin installs the skills served by this process itself. The
// marketplace skills proper live with external collaborators; these cover
// discovery and the operations the gateway can answer locally.
func RegisterBuiltin(r *Registry) {
	r.Register(core.Skill{
		ID:          "ping",
		Name:        "Ping",
		Description: "Liveness probe, echoes its input.",
		Access:      core.AccessPublic,
	}, func(ctx context.Context, input json.RawMessage, actx core.AccessContext) (json.RawMessage, error) {
		out := map[string]any{"pong": true}
		if len(input) > 0 {
			out["echo"] = input
		}
		return json.Marshal(out)
	})

	r.Register(core.Skill{
		ID:          "list_skills",
		Name:        "List skills",
		Description: "Lists every invokable skill with its access level.",
		Access:      core.AccessPublic,
	}, func(ctx context.Context, input json.RawMessage, actx core.AccessContext) (json.RawMessage, error) {
		return json.Marshal(map[string]any{"skills": r.Skills()})
	})

	r.Register(core.Skill{
		ID:          "list_tasks",
		Name:        "List marketplace tasks",
		Description: "Lists open marketplace tasks.",
		Access:      core.AccessPublic,
	}, func(ctx context.Context, input json.RawMessage, actx core.AccessContext) (json.RawMessage, error) {
		// Marketplace reads are an external collaborator; until one is
		// attached the listing is empty rather than an error.
		return json.Marshal(map[string]any{"tasks": []any{}, "total": 0})
	})

	r.Register(core.Skill{
		ID:          "update_profile",
		Name:        "Update profile",
		Description: "Updates the calling agent's profile.",
		Access:      core.AccessAuthenticated,
	}, func(ctx context.Context, input json.RawMessage, actx core.AccessContext) (json.RawMessage, error) {
		var req struct {
			Name string `json:"name"`
			Bio  string `json:"bio"`
		}
		if err := json.Unmarshal(input, &req); err != nil {
			return nil, fmt.Errorf("invalid profile payload: %w", err)
		}
		if strings.TrimSpace(req.Name) == "" {
			return nil, fmt.Errorf("profile name is required")
		}
		return json.Marshal(map[string]any{"address": actx.Address, "name": req.Name})
	})

	r.Register(core.Skill{
		ID:          "create_task",
		Name:        "Create marketplace task",
		Description: "Posts a new task with an escrowed reward.",
		Access:      core.AccessRegistered,
	}, func(ctx context.Context, input json.RawMessage, actx core.AccessContext) (json.RawMessage, error) {
		var req struct {
			Title  string `json:"title"`
			Reward string `json:"reward"`
		}
		if err := json.Unmarshal(input, &req); err != nil {
			return nil, fmt.Errorf("invalid task payload: %w", err)
		}
		if strings.TrimSpace(req.Title) == "" {
			return nil, fmt.Errorf("task title is required")
		}
		reward, err := decimal.NewFromString(req.Reward)
		if err != nil {
			return nil, fmt.Errorf("invalid reward amount %q: %w", req.Reward, err)
		}
		if reward.IsNegative() || reward.IsZero() {
			return nil, fmt.Errorf("reward must be positive")
		}
		return json.Marshal(map[string]any{
			"title":   req.Title,
			"reward":  reward.String(),
			"creator": actx.Address,
		})
	})
}
