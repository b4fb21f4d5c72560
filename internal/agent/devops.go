package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/devops"
	"github.com/rs/zerolog"

	"github.com/dyike/CortexDesk/config"
)

// InitDebug starts the eino visual debug server when enabled in config.
func InitDebug(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if !cfg.EinoDebugEnabled {
		return nil
	}
	if err := devops.Init(ctx); err != nil {
		return fmt.Errorf("init eino debug plugin: %w", err)
	}
	log.Info().Str("url", fmt.Sprintf("http://localhost:%d", cfg.EinoDebugPort)).Msg("eino debug server started")
	return nil
}
