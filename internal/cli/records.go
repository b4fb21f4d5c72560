package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dyike/CortexDesk/internal/display"
	"github.com/dyike/CortexDesk/internal/report"
	"github.com/dyike/CortexDesk/internal/skills"
	"github.com/dyike/CortexDesk/internal/storage/sqlite"
)

func (a *App) openStore() (*sqlite.Store, error) {
	if err := a.cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	return sqlite.Open(a.cfg.DBPath)
}

func (a *App) skillsLoader() *skills.Loader {
	return skills.NewLoader(a.cfg.UserSkillsDir(), a.cfg.ProjectSkillsDir, skills.WithLogger(a.log))
}

func newSkillsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect available skills",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List built-in, user and project skills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			display.SkillsTable(a.stdout, a.skillsLoader().List())
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show NAME",
		Short: "Print a skill's instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := a.skillsLoader().Read(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, body)
			return nil
		},
	})
	return cmd
}

func newMemoryCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Manage memories injected into the agent prompt",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List saved memories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			mems, err := store.ListMemories(cmd.Context())
			if err != nil {
				return err
			}
			display.MemoriesTable(a.stdout, mems)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.DeleteMemory(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted memory %q\n", args[0])
			return nil
		},
	})
	cmd.AddCommand(
		newMemoryToggleCmd(a, "enable", "Inject a memory into the agent prompt again", true),
		newMemoryToggleCmd(a, "disable", "Keep a memory but leave it out of the agent prompt", false),
	)
	return cmd
}

func newMemoryToggleCmd(a *App, use, short string, active bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SetMemoryActive(cmd.Context(), args[0], active); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Memory %q %sd\n", args[0], use)
			return nil
		},
	}
}

func newRunsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			display.RunsTable(a.stdout, runs)
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Show a run with its approvals and transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, approvals, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			display.RunDetail(a.stdout, run, approvals)
			return nil
		},
	})

	var dir string
	export := &cobra.Command{
		Use:   "export ID",
		Short: "Write a run as a markdown report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, approvals, err := store.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if dir == "" {
				dir = filepath.Join(a.cfg.DataDir, "reports")
			}
			path, err := report.Write(dir, run, approvals)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Report written to %s\n", path)
			return nil
		},
	}
	export.Flags().StringVar(&dir, "dir", "", "Output directory (default <data>/reports)")
	cmd.AddCommand(export)
	return cmd
}
