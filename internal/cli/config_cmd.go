package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dyike/CortexDesk/config"
	"github.com/dyike/CortexDesk/internal/display"
	"github.com/dyike/CortexDesk/internal/profile"
	"github.com/dyike/CortexDesk/models"
)

func newVersionCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.stdout, "CortexDesk %s\n", Version)
		},
	}
}

func newConfigCmd(a *App) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			display.KeyValueTable(a.stdout, "CortexDesk Configuration", configRows(a.cfg, a.cfgPath))
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration values and credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			if a.cfg.APIKey() == "" {
				return fmt.Errorf("no api key for provider %s", a.cfg.LLMProvider)
			}
			if err := a.cfg.EnsureDirectories(); err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, "Configuration is valid.")
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "watch",
		Short: "Follow changes to the configuration file",
		Long: `Watch the --config file and print every change that is picked up.
Changes to the account fields also print the refreshed sizing profile.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.mgr == nil {
				return errors.New("watch needs --config")
			}
			ctx := cmd.Context()
			cfg := a.mgr.Get()
			live := profile.NewLive(&cfg)
			err := a.mgr.Watch(ctx, func(ch config.Change) {
				fmt.Fprintf(a.stdout, "Changed: %s\n", strings.Join(ch.Keys, ", "))
				if !live.Apply(ch) {
					return
				}
				p, err := live.Profile(ctx)
				if err != nil {
					a.log.Warn().Err(err).Msg("profile unavailable")
					return
				}
				display.KeyValueTable(a.stdout, "Sizing Profile", profileRows(p))
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Watching %s\n", a.mgr.Path())
			<-ctx.Done()
			return ctx.Err()
		},
	})

	return configCmd
}

func configRows(cfg *config.Config, path string) [][2]string {
	rows := [][2]string{
		{"Config File", valueOr(path, "(environment)")},
		{"Project Directory", cfg.ProjectDir},
		{"Data Directory", cfg.DataDir},
		{"Database", cfg.DBPath},
		{"Agent", cfg.AgentName},
		{"User Skills", cfg.UserSkillsDir()},
		{"Project Skills", cfg.ProjectSkillsDir},
		{"LLM Provider", cfg.LLMProvider},
		{"Model", cfg.Model},
		{"Base URL", valueOr(cfg.BaseURL, "(provider default)")},
		{"API Key", maskKey(cfg.APIKey())},
		{"Default Symbol", cfg.DefaultSymbol},
		{"Default Risk", strconv.FormatFloat(cfg.DefaultPositionSize, 'f', -1, 64) + "%"},
		{"Max Leverage", strconv.FormatFloat(cfg.MaxLeverage, 'f', -1, 64) + "x"},
		{"Available Balance", strconv.FormatFloat(cfg.AvailableBalance, 'f', 2, 64)},
		{"Max Approval Rounds", strconv.Itoa(cfg.MaxHITLRounds)},
		{"Max Steps", strconv.Itoa(cfg.MaxSteps)},
		{"Gated Tools", strings.Join(cfg.InterruptOn, ", ")},
		{"Log Level", cfg.LogLevel},
		{"Eino Debug", strconv.FormatBool(cfg.EinoDebugEnabled)},
	}
	if cfg.EinoDebugEnabled {
		rows = append(rows, [2]string{"Debug URL", fmt.Sprintf("http://localhost:%d", cfg.EinoDebugPort)})
	}
	return rows
}

func profileRows(p models.UserProfile) [][2]string {
	return [][2]string{
		{"Available Balance", strconv.FormatFloat(p.AvailableBalance, 'f', 2, 64)},
		{"Max Leverage", strconv.FormatFloat(p.MaxLeverage, 'f', -1, 64) + "x"},
		{"Default Risk", strconv.FormatFloat(p.DefaultPositionSize, 'f', -1, 64) + "%"},
		{"Default Symbol", p.DefaultSymbol},
	}
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func maskKey(key string) string {
	switch {
	case key == "":
		return "not configured"
	case len(key) <= 8:
		return "********"
	default:
		return key[:4] + "..." + key[len(key)-4:]
	}
}
