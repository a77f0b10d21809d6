package config

import "time"

type ServerConfig struct {
	HTTPAddr          string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	// WriteTimeout bounds a whole response, so it must outlast ANALYZE_TIMEOUT.
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func loadServer() ServerConfig {
	return ServerConfig{
		HTTPAddr:          getenv("HTTP_ADDR", ":"+getenv("PORT", "3001")),
		ReadHeaderTimeout: durationEnvSeconds("HTTP_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       durationEnvSeconds("HTTP_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:      durationEnvSeconds("HTTP_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       durationEnvSeconds("HTTP_IDLE_TIMEOUT", 120*time.Second),
	}
}
