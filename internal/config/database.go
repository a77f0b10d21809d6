package config

import "strings"

type DatabaseConfig struct {
	// URL is a SQLite file path, or a postgres:// URL.
	URL string
}

func (d DatabaseConfig) IsPostgres() bool {
	u := strings.ToLower(d.URL)
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}

func loadDatabase() DatabaseConfig {
	return DatabaseConfig{
		URL: getenv("DATABASE_URL", "./data/aletta.db"),
	}
}
