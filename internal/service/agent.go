package service

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/internal/agent"
	"github.com/dyike/CortexDesk/internal/profile"
	"github.com/dyike/CortexDesk/internal/skills"
	"github.com/dyike/CortexDesk/internal/storage/sqlite"
	"github.com/dyike/CortexDesk/internal/tools"
)

// Components are the long-lived backends an agent run is assembled from.
type Components struct {
	Store   *sqlite.Store
	Skills  *skills.Loader
	Profile profile.Provider
	Model   model.ToolCallingChatModel
	Logger  zerolog.Logger
}

// NewComponents opens the store, the skills loader and the cached profile
// for cfg. The chat model is left to the caller.
func NewComponents(cfg *config.Config, log zerolog.Logger) (*Components, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init sqlite: %w", err)
	}
	return &Components{
		Store:   store,
		Skills:  skills.NewLoader(cfg.UserSkillsDir(), cfg.ProjectSkillsDir, skills.WithLogger(log)),
		Profile: profile.NewLive(cfg),
		Logger:  log,
	}, nil
}

// ApplyConfig is the config watch hook of a long-running command. Account
// changes reach the sizing tool on its next call.
func (c *Components) ApplyConfig(ch config.Change) {
	live, ok := c.Profile.(*profile.Live)
	if !ok || !live.Apply(ch) {
		return
	}
	c.Logger.Info().Strs("keys", ch.Keys).Msg("account profile refreshed")
}

func (c *Components) Close() error {
	if c == nil {
		return nil
	}
	return c.Store.Close()
}

// NewExecutor assembles the main agent: local tools, the task tool with the
// analyst subagents, and the memory aware system prompt.
func NewExecutor(ctx context.Context, cfg *config.Config, c *Components) (*agent.Executor, error) {
	if c.Model == nil {
		return nil, fmt.Errorf("chat model is not initialized")
	}
	deps := tools.Deps{Profile: c.Profile}
	if c.Store != nil {
		deps.Memories = c.Store
	}
	if c.Skills != nil {
		deps.Skills = c.Skills
	}
	local := tools.Build(deps)

	var riskTools []tool.BaseTool
	if c.Profile != nil {
		riskTools = append(riskTools, tools.NewPositionSizeTool(c.Profile))
	}
	if c.Store != nil {
		riskTools = append(riskTools, tools.NewListMemoriesTool(c.Store))
	}
	subagents, err := agent.DefaultSubagents(riskTools)
	if err != nil {
		return nil, err
	}

	log := c.Logger.With().Str("component", "agent").Logger()
	retry := agent.RetryConfig{MaxAttempts: cfg.ModelRetries + 1}
	task, err := agent.NewTaskTool(c.Model, subagents, agent.Options{
		MaxSteps: cfg.MaxSteps,
		Retry:    retry,
		Logger:   &log,
	})
	if err != nil {
		return nil, fmt.Errorf("create task tool: %w", err)
	}

	var memories agent.MemorySource
	if c.Store != nil {
		memories = c.Store
	}
	var skillSrc agent.SkillSource
	if c.Skills != nil {
		skillSrc = c.Skills
	}
	prompts, err := agent.NewPromptBuilder(memories, skillSrc)
	if err != nil {
		return nil, err
	}

	return agent.New(ctx, c.Model, append(local, task), agent.Options{
		SystemPrompt: prompts.Build,
		InterruptOn:  cfg.InterruptOn,
		MaxSteps:     cfg.MaxSteps,
		Retry:        retry,
		Logger:       &log,
	})
}
