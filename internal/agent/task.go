package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/internal/hitl"
)

// Subagent is a specialist the main agent can delegate a task to. It runs
// in a fresh conversation and only its final answer is returned.
type Subagent struct {
	Name        string
	Description string
	Prompt      string
	Tools       []tool.BaseTool
}

type TaskInput struct {
	SubagentType string `json:"subagent_type"`
	Description  string `json:"description"`
}

type taskTool struct {
	model     model.ToolCallingChatModel
	subagents map[string]Subagent
	opts      Options
	info      *schema.ToolInfo
}

// NewTaskTool builds the delegation tool. Subagent events are forwarded to
// the calling executor under the "task:<name>" namespace.
func NewTaskTool(cm model.ToolCallingChatModel, subagents []Subagent, opts Options) (tool.InvokableTool, error) {
	if len(subagents) == 0 {
		return nil, errors.New("at least one subagent is required")
	}
	byName := make(map[string]Subagent, len(subagents))
	names := make([]string, 0, len(subagents))
	var desc strings.Builder
	desc.WriteString("Delegate a self-contained task to a specialist subagent and get its final answer. Available subagents:")
	for _, sa := range subagents {
		if _, dup := byName[sa.Name]; dup {
			return nil, fmt.Errorf("duplicate subagent %s", sa.Name)
		}
		byName[sa.Name] = sa
		names = append(names, sa.Name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&desc, "\n- %s: %s", name, byName[name].Description)
	}

	// subagents never pause for approval
	opts.InterruptOn = nil
	opts.ThreadID = ""

	return &taskTool{
		model:     cm,
		subagents: byName,
		opts:      opts,
		info: &schema.ToolInfo{
			Name: consts.ToolTask,
			Desc: desc.String(),
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"subagent_type": {
					Type:     schema.String,
					Desc:     "Which subagent to use",
					Enum:     names,
					Required: true,
				},
				"description": {
					Type:     schema.String,
					Desc:     "Everything the subagent needs to know: symbol, timeframe, levels, the question to answer",
					Required: true,
				},
			}),
		},
	}, nil
}

func (t *taskTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return t.info, nil
}

func (t *taskTool) InvokableRun(ctx context.Context, args string, _ ...tool.Option) (string, error) {
	var input TaskInput
	if err := json.Unmarshal([]byte(args), &input); err != nil {
		return "", fmt.Errorf("decode task arguments: %w", err)
	}
	sa, ok := t.subagents[input.SubagentType]
	if !ok {
		return "", fmt.Errorf("unknown subagent %q", input.SubagentType)
	}
	if strings.TrimSpace(input.Description) == "" {
		return "", errors.New("description is required")
	}

	opts := t.opts
	opts.SystemPrompt = func(context.Context) (string, error) { return sa.Prompt, nil }
	sub, err := New(ctx, t.model, sa.Tools, opts)
	if err != nil {
		return "", fmt.Errorf("start subagent %s: %w", sa.Name, err)
	}

	events, err := sub.Stream(ctx, hitl.TaskInput(input.Description))
	if err != nil {
		return "", fmt.Errorf("run subagent %s: %w", sa.Name, err)
	}
	defer events.Close()

	parent := emitterFrom(ctx)
	namespace := "task:" + sa.Name
	for {
		ev, err := events.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("subagent %s: %w", sa.Name, err)
		}
		if ev.Kind == hitl.EventInterrupt {
			return "", fmt.Errorf("subagent %s requested approval", sa.Name)
		}
		if parent != nil {
			ev.Namespace = append([]string{namespace}, ev.Namespace...)
			if err := parent.emit(ev); err != nil {
				return "", err
			}
		}
	}
	return sub.FinalText(), nil
}

// DefaultSubagents returns the technical and risk analysts. riskTools are
// the read-only tools the risk analyst may call.
func DefaultSubagents(riskTools []tool.BaseTool) ([]Subagent, error) {
	technical, err := loadPrompt(consts.SubagentTechnicalAnalyst)
	if err != nil {
		return nil, err
	}
	risk, err := loadPrompt(consts.SubagentRiskAnalyst)
	if err != nil {
		return nil, err
	}
	return []Subagent{
		{
			Name:        consts.SubagentTechnicalAnalyst,
			Description: "Reads price structure: trend, support and resistance, entry and invalidation levels.",
			Prompt:      technical,
		},
		{
			Name:        consts.SubagentRiskAnalyst,
			Description: "Checks a proposed trade against the account profile and saved risk rules, with exact sizing.",
			Prompt:      risk,
			Tools:       riskTools,
		},
	}, nil
}
