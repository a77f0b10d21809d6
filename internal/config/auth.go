package config

import "time"

type AuthConfig struct {
	// JWTSecret enables the bearer guard on POST /api/analyze when set.
	JWTSecret string
	JWTTTL    time.Duration
}

func (a AuthConfig) Enabled() bool { return a.JWTSecret != "" }

func loadAuth() AuthConfig {
	return AuthConfig{
		JWTSecret: getenv("JWT_SECRET", ""),
		JWTTTL:    durationEnvHours("JWT_TTL", 24*time.Hour),
	}
}
