//go:build integration
// +build integration

package services

import (
	"database/sql"
	"os"
	"testing"
	"time"

	"questly/internal/config"
	"questly/internal/database"
	"questly/internal/observability"

	"github.com/stretchr/testify/require"
)

// sharedTestDBSetup connects to TEST_DATABASE_URL and applies migrations.
// Tests are skipped when no test database is configured.
func sharedTestDBSetup(t *testing.T) *sql.DB {
	t.Helper()

	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	logger := observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
	manager := database.NewManager(logger)

	db, err := manager.InitDBWithConfig(config.DatabaseConfig{
		URL:             url,
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
		MigrationsPath:  "../../migrations",
	})
	require.NoError(t, err)
	return db
}

// createIntegrationUser inserts a user and removes it (and, via cascade, its
// progress, points, leaderboard, and chat rows) when the test finishes.
func createIntegrationUser(t *testing.T, db *sql.DB, username string) int {
	t.Helper()

	var id int
	err := db.QueryRow(`
		INSERT INTO users (username) VALUES ($1)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING id
	`, username).Scan(&id)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = db.Exec(`DELETE FROM users WHERE id = $1`, id)
	})
	return id
}

func integrationTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Quest.Timezone = "America/New_York"
	return cfg
}

func integrationLogger() *observability.Logger {
	return observability.NewLogger(&config.OpenTelemetryConfig{EnableLogging: false})
}
