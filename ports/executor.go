package ports

import (
	"context"
	"encoding/json"

	"github.com/clearmesh/agentgate/core"
)

// SkillExecutor is the opaque interface to the skill implementations owned
// by external collaborators.
type SkillExecutor interface {
	// Lookup returns the skill descriptor for id.
	Lookup(id string) (core.Skill, bool)

	// Skills lists every invokable skill for the discovery surface.
	Skills() []core.Skill

	// Execute runs the skill and returns its output, or a coded error.
	Execute(ctx context.Context, id string, input json.RawMessage, actx core.AccessContext) (json.RawMessage, error)
}
