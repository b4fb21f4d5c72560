// Package cli provides the command-line interface for CortexDesk
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cloudwego/eino/components/model"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/internal/agent"
	"github.com/dyike/CortexDesk/pkg/logger"
)

// Version is set at build time with -ldflags.
var Version = "dev"

const exitInterrupted = 130

// ModelFactory builds the chat model for a run.
type ModelFactory func(ctx context.Context, cfg *config.Config) (model.ToolCallingChatModel, error)

// App holds what every command shares.
type App struct {
	cfg      *config.Config
	cfgPath  string
	mgr      *config.Manager
	debug    bool
	logLevel string

	log      zerolog.Logger
	stdout   io.Writer
	stderr   io.Writer
	newModel ModelFactory
	approver approverFactory
}

type AppOption func(*App)

// WithConfig skips loading configuration from the environment.
func WithConfig(cfg *config.Config) AppOption {
	return func(a *App) { a.cfg = cfg }
}

func WithOutput(stdout, stderr io.Writer) AppOption {
	return func(a *App) {
		a.stdout = stdout
		a.stderr = stderr
	}
}

func WithModelFactory(f ModelFactory) AppOption {
	return func(a *App) { a.newModel = f }
}

func NewApp(opts ...AppOption) *App {
	a := &App{
		log:      zerolog.Nop(),
		stdout:   os.Stdout,
		stderr:   os.Stderr,
		newModel: agent.NewChatModel,
		approver: newSurveyApprover,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Execute runs the command line and prints the error, if any.
func Execute(ctx context.Context) error {
	app := NewApp()
	err := NewRootCmd(app).ExecuteContext(ctx)
	if err != nil && ExitCode(ctx, err) != exitInterrupted {
		fmt.Fprintf(app.stderr, "Error: %v\n", err)
	}
	return err
}

// ExitCode maps a command error to the process exit status.
func ExitCode(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled), ctx != nil && ctx.Err() != nil:
		return exitInterrupted
	default:
		return 1
	}
}

// NewRootCmd creates the root command
func NewRootCmd(a *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cortexdesk",
		Short: "CortexDesk - trading assistant agent",
		Long: `CortexDesk runs a tool-using trading assistant from the command line.
Mutating actions pause for approval; unattended runs approve them automatically.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	rootCmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&a.cfgPath, "config", "", "Configuration file path (JSON, created when missing)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newRunCmd(a),
		newSizeCmd(a),
		newSkillsCmd(a),
		newMemoryCmd(a),
		newRunsCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return rootCmd
}

func (a *App) setup() error {
	if a.cfg == nil {
		a.cfg = config.DefaultConfig()
	}
	if a.logLevel != "" {
		a.cfg.LogLevel = a.logLevel
	}
	if a.debug {
		a.cfg.Debug = true
		a.cfg.LogLevel = "debug"
	}
	a.log = logger.New(logger.Config{Level: a.cfg.LogLevel, Pretty: true, Out: a.stderr})

	if a.cfgPath != "" {
		mgr, err := config.NewManager(a.cfgPath, config.WithBase(a.cfg), config.WithLogger(a.log))
		if err != nil {
			return err
		}
		a.mgr = mgr
		cfg := mgr.Get()
		a.cfg = &cfg
	}
	a.log.Debug().Str("provider", a.cfg.LLMProvider).Str("model", a.cfg.Model).Msg("configuration loaded")
	return nil
}
