// Package skills provides the in-process skill registry implementing the
// SkillExecutor port. Skill handlers are owned by external collaborators and
// registered at startup.
package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/clearmesh/agentgate/core"
	"github.com/clearmesh/agentgate/ports"
)

// HandlerFunc executes one skill invocation.
type HandlerFunc func(ctx context.Context, input json.RawMessage, actx core.AccessContext) (json.RawMessage, error)

type registration struct {
	skill   core.Skill
	handler HandlerFunc
}

// Registry maps skill ids to handlers and descriptors.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]registration)}
}

// Register adds or replaces a skill.
func (r *Registry) Register(skill core.Skill, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[skill.ID] = registration{skill: skill, handler: handler}
}

func (r *Registry) Lookup(id string) (core.Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.skills[id]
	return reg.skill, ok
}

func (r *Registry) Skills() []core.Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Skill, 0, len(r.skills))
	for _, reg := range r.skills {
		out = append(out, reg.skill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Execute runs the skill handler. A panicking handler is converted into an
// error so a misbehaving skill can never take down the caller.
func (r *Registry) Execute(ctx context.Context, id string, input json.RawMessage, actx core.AccessContext) (out json.RawMessage, err error) {
	r.mu.RLock()
	reg, ok := r.skills[id]
	r.mu.RUnlock()
	if !ok {
		return nil, core.ErrSkillNotFound
	}

	defer func() {
		if rec := recover(); rec != nil {
			out, err = nil, fmt.Errorf("skill %s panicked: %v", id, rec)
		}
	}()
	return reg.handler(ctx, input, actx)
}

var _ ports.SkillExecutor = (*Registry)(nil)
