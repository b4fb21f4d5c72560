package agent

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/CortexDesk/internal/skills"
	"github.com/dyike/CortexDesk/internal/tools"
	"github.com/dyike/CortexDesk/models"
)

//go:embed prompts
var promptFiles embed.FS

func loadPrompt(name string) (string, error) {
	content, err := promptFiles.ReadFile(fmt.Sprintf("prompts/%s.md", name))
	if err != nil {
		return "", fmt.Errorf("load prompt %s: %w", name, err)
	}
	return string(content), nil
}

type MemorySource interface {
	ActiveMemories(ctx context.Context) ([]models.Memory, error)
}

type SkillSource interface {
	List() []skills.Skill
}

// PromptBuilder renders the system prompt with the current memories and
// skills. It is rebuilt for every task so edits made by the agent show up
// in the next run.
type PromptBuilder struct {
	memories MemorySource
	skills   SkillSource
	tpl      prompt.ChatTemplate
	now      func() time.Time
}

func NewPromptBuilder(memories MemorySource, skillSrc SkillSource) (*PromptBuilder, error) {
	base, err := loadPrompt("system")
	if err != nil {
		return nil, err
	}
	return &PromptBuilder{
		memories: memories,
		skills:   skillSrc,
		tpl:      prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(base)),
		now:      time.Now,
	}, nil
}

func (b *PromptBuilder) Build(ctx context.Context) (string, error) {
	vars := map[string]any{
		"date":     b.now().Format("2006-01-02"),
		"memories": "",
		"skills":   "",
	}
	if b.memories != nil {
		mems, err := b.memories.ActiveMemories(ctx)
		if err != nil {
			return "", fmt.Errorf("load memories: %w", err)
		}
		vars["memories"] = formatMemoryBlock(mems)
	}
	if b.skills != nil {
		vars["skills"] = tools.FormatSkills(b.skills.List())
	}

	msgs, err := b.tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("format system prompt: %w", err)
	}
	if len(msgs) == 0 {
		return "", fmt.Errorf("format system prompt: no message")
	}
	return strings.TrimSpace(msgs[0].Content), nil
}

func formatMemoryBlock(mems []models.Memory) string {
	var b strings.Builder
	for _, m := range mems {
		fmt.Fprintf(&b, "### %s\n%s\n\n", m.Name, strings.TrimSpace(m.Content))
	}
	return strings.TrimSpace(b.String())
}
