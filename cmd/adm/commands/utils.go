package commands

import (
	"database/sql"
	"fmt"
	"strings"
)

// maskDatabaseURL masks sensitive parts of the database URL for display
func maskDatabaseURL(url string) string {
	// Simple masking for display purposes
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) == 2 {
			return "postgres://***:***@" + parts[1]
		}
	}
	return url
}

// getDatabaseInfo returns database connection information
func getDatabaseInfo(db *sql.DB) string {
	if db == nil {
		return "Not connected"
	}

	var dbName string
	if err := db.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		return "Connected (unknown database)"
	}

	return fmt.Sprintf("Connected to %s", dbName)
}
