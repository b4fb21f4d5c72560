package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/models"
)

const memoryPreviewLen = 200

// MemoryStore is the persistence the memory tools need.
type MemoryStore interface {
	ListMemories(ctx context.Context) ([]models.Memory, error)
	SaveMemory(ctx context.Context, mem models.Memory) (bool, error)
	DeleteMemory(ctx context.Context, name string) error
}

type ListMemoriesInput struct{}

type SaveMemoryInput struct {
	Name        string `json:"name"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
}

type DeleteMemoryInput struct {
	Name string `json:"name"`
}

type MemoryOutput struct {
	Message string `json:"message"`
}

func NewListMemoriesTool(store MemoryStore) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: consts.ToolListMemories,
			Desc: "List saved memories (trading preferences, risk rules, strategies) with a content preview. " +
				"Call before save_memory to avoid duplicates and before delete_memory to find the name.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		func(ctx context.Context, _ ListMemoriesInput) (*MemoryOutput, error) {
			mems, err := store.ListMemories(ctx)
			if err != nil {
				return nil, fmt.Errorf("list memories: %w", err)
			}
			return &MemoryOutput{Message: FormatMemories(mems)}, nil
		},
	)
}

func NewSaveMemoryTool(store MemoryStore) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: consts.ToolSaveMemory,
			Desc: "Save a memory, replacing any memory with the same name. Write concise rules in the user's own words. " +
				"Max 20 memories, name up to 100 characters, content up to 50KB.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"name": {
					Type:     schema.String,
					Desc:     "Short unique name, e.g. 'Risk Management' or 'BTC Strategy'",
					Required: true,
				},
				"content": {
					Type:     schema.String,
					Desc:     "The memory content",
					Required: true,
				},
				"description": {
					Type: schema.String,
					Desc: "Optional brief description of what the memory covers",
				},
			}),
		},
		func(ctx context.Context, input SaveMemoryInput) (*MemoryOutput, error) {
			created, err := store.SaveMemory(ctx, models.Memory{
				Name:        input.Name,
				Description: input.Description,
				Content:     input.Content,
			})
			if err != nil {
				return nil, fmt.Errorf("save memory: %w", err)
			}
			verb := "updated"
			if created {
				verb = "created"
			}
			return &MemoryOutput{Message: fmt.Sprintf("Memory %q %s.", strings.TrimSpace(input.Name), verb)}, nil
		},
	)
}

func NewDeleteMemoryTool(store MemoryStore) tool.InvokableTool {
	return t_utils.NewTool(
		&schema.ToolInfo{
			Name: consts.ToolDeleteMemory,
			Desc: "Delete a memory permanently by name. Only when the user explicitly asks for it.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"name": {
					Type:     schema.String,
					Desc:     "Name of the memory, as shown by list_memories",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, input DeleteMemoryInput) (*MemoryOutput, error) {
			if strings.TrimSpace(input.Name) == "" {
				return nil, fmt.Errorf("name parameter is required")
			}
			if err := store.DeleteMemory(ctx, input.Name); err != nil {
				return nil, fmt.Errorf("delete memory: %w", err)
			}
			return &MemoryOutput{Message: fmt.Sprintf("Memory %q deleted.", input.Name)}, nil
		},
	)
}

// FormatMemories lists memories with their content cut to a short preview.
func FormatMemories(mems []models.Memory) string {
	if len(mems) == 0 {
		return "No memories found. You can save trading preferences, risk rules and strategies."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d memories:\n", len(mems))
	for _, m := range mems {
		status := "active"
		if !m.Active {
			status = "inactive"
		}
		fmt.Fprintf(&b, "\n- %s (%s)\n", m.Name, status)
		if m.Description != "" {
			fmt.Fprintf(&b, "  Description: %s\n", m.Description)
		}
		fmt.Fprintf(&b, "  Content: %s\n", preview(m.Content, memoryPreviewLen))
	}
	return strings.TrimRight(b.String(), "\n")
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
