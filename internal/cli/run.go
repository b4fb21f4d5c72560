package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyike/CortexDesk/internal/agent"
	"github.com/dyike/CortexDesk/internal/display"
	"github.com/dyike/CortexDesk/internal/hitl"
	"github.com/dyike/CortexDesk/internal/metrics"
	"github.com/dyike/CortexDesk/internal/service"
)

type runFlags struct {
	quiet       bool
	maxRounds   int
	model       string
	interactive bool
	metricsFile string
}

func newRunCmd(a *App) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run TASK",
		Short: "Run a task to completion",
		Long: `Run a task non-interactively. Actions that need approval are approved
automatically unless --interactive-approval is set.
Example: cortexdesk run "size a BTC/USDT long at 60000 with stop 58500"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTask(cmd, strings.Join(args, " "), flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Only print the answer on stdout; notices go to stderr")
	cmd.Flags().IntVar(&flags.maxRounds, "max-rounds", 0, "Approval round ceiling (default from config)")
	cmd.Flags().StringVar(&flags.model, "model", "", "Override the configured model")
	cmd.Flags().BoolVar(&flags.interactive, "interactive-approval", false, "Ask before each gated action instead of auto-approving")
	cmd.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus textfile metrics here after the run")
	return cmd
}

func (a *App) runTask(cmd *cobra.Command, task string, flags runFlags) error {
	ctx := cmd.Context()
	cfg := *a.cfg
	if flags.model != "" {
		cfg.Model = flags.model
	}
	if flags.maxRounds > 0 {
		cfg.MaxHITLRounds = flags.maxRounds
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	comps, err := service.NewComponents(&cfg, a.log)
	if err != nil {
		return err
	}
	defer comps.Close()

	if a.mgr != nil {
		watchCtx, stop := context.WithCancel(ctx)
		defer stop()
		if err := a.mgr.Watch(watchCtx, comps.ApplyConfig); err != nil {
			a.log.Warn().Err(err).Msg("config changes will not be followed")
		}
	}

	if comps.Model, err = a.newModel(ctx, &cfg); err != nil {
		return fmt.Errorf("init chat model: %w", err)
	}
	if err := agent.InitDebug(ctx, &cfg, a.log); err != nil {
		a.log.Warn().Err(err).Msg("eino debug server not started")
	}

	exec, err := service.NewExecutor(ctx, &cfg, comps)
	if err != nil {
		return err
	}

	console := display.NewConsole(a.stdout, a.stderr, flags.quiet)
	var approver hitl.Approver = hitl.AutoApprover{}
	if flags.interactive {
		approver = a.approver(a.stderr)
	}

	m := metrics.New()
	outcome, runErr := service.NewRuns(comps.Store, m, a.log).Run(ctx, service.RunRequest{
		Task:      task,
		Executor:  exec,
		Approver:  approver,
		Notifier:  console,
		Sink:      console.Out(),
		MaxRounds: cfg.MaxHITLRounds,
		Quiet:     flags.quiet,
	})

	if flags.metricsFile != "" {
		if err := m.WriteTextfile(flags.metricsFile); err != nil {
			a.log.Warn().Err(err).Msg("metrics not written")
		}
	}
	if outcome != nil {
		console.Summary(outcome.RunID, outcome.Result)
	}
	return runErr
}
