package tools

import (
	"github.com/cloudwego/eino/components/tool"

	"github.com/dyike/CortexDesk/internal/profile"
)

// Deps are the backends of the local tools. Nil backends leave their tools out.
type Deps struct {
	Profile  profile.Provider
	Memories MemoryStore
	Skills   SkillLister
}

// Build returns the local tool set in a stable order.
func Build(d Deps) []tool.BaseTool {
	var out []tool.BaseTool
	if d.Profile != nil {
		out = append(out, NewPositionSizeTool(d.Profile))
	}
	if d.Memories != nil {
		out = append(out,
			NewListMemoriesTool(d.Memories),
			NewSaveMemoryTool(d.Memories),
			NewDeleteMemoryTool(d.Memories),
		)
	}
	if d.Skills != nil {
		out = append(out, NewListSkillsTool(d.Skills))
	}
	return out
}
