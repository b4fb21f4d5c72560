package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/internal/skills"
)

type SkillLister interface {
	List() []skills.Skill
}

type ListSkillsInput struct{}

type ListSkillsOutput struct {
	Skills []skills.Skill `json:"skills"`
}

func NewListSkillsTool(lister SkillLister) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name:        consts.ToolListSkills,
			Desc:        "List the skills available to you with their description, source and SKILL.md path.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(_ context.Context, _ ListSkillsInput) (*ListSkillsOutput, error) {
			return &ListSkillsOutput{Skills: lister.List()}, nil
		},
	)
}

// FormatSkills renders skills as a bullet list for the system prompt.
func FormatSkills(list []skills.Skill) string {
	if len(list) == 0 {
		return ""
	}
	var b strings.Builder
	for _, s := range list {
		fmt.Fprintf(&b, "- %s: %s (%s, %s)\n", s.Name, s.Description, s.Source, s.Path)
	}
	return strings.TrimRight(b.String(), "\n")
}
