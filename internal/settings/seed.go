package settings

import (
	"context"
	"fmt"
	"log/slog"
)

// Seed creates the settings row from initial on first boot. An existing row
// is never overwritten, so values saved through the API survive restarts.
// It reports whether the row was created.
func Seed(ctx context.Context, repo *SQLiteRepository, initial Settings, logger *slog.Logger) (bool, error) {
	if initial.GatewayPort == 0 {
		initial.GatewayPort = DefaultGatewayPort
	}
	if initial.DisplayName == "" {
		initial.DisplayName = DefaultDisplayName
	}
	if err := initial.Validate(); err != nil {
		return false, fmt.Errorf("seed settings: %w", err)
	}

	created, err := repo.insertDefaults(ctx, initial)
	if err != nil {
		return false, err
	}

	if created {
		logger.Info("settings seeded from configuration",
			"gateway_host", initial.GatewayHost,
			"gateway_port", initial.GatewayPort,
			"display_name", initial.DisplayName,
		)
	} else {
		logger.Debug("settings exist, skipping seed")
	}
	return created, nil
}
