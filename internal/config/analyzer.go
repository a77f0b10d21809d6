package config

import "time"

type AnalyzerConfig struct {
	Timeout          time.Duration
	ReportTTL        time.Duration
	PurgeInterval    time.Duration
	TraceCacheSize   int
	CodeFetchWorkers int
	InkPerGas        uint64
	ABIDir           string
	SymbolsDir       string
}

func loadAnalyzer() AnalyzerConfig {
	return AnalyzerConfig{
		Timeout:          durationEnvSeconds("ANALYZE_TIMEOUT", 30*time.Second),
		ReportTTL:        durationEnvHours("REPORT_TTL_HOURS", 720*time.Hour),
		PurgeInterval:    durationEnvSeconds("PURGE_INTERVAL", time.Hour),
		TraceCacheSize:   intEnv("TRACE_CACHE_SIZE", 256),
		CodeFetchWorkers: intEnv("CODE_FETCH_WORKERS", 8),
		InkPerGas:        u64env("INK_PER_GAS", 10_000),
		ABIDir:           getenv("ABI_DIR", ""),
		SymbolsDir:       getenv("SYMBOLS_DIR", ""),
	}
}
