package config

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Chain    ChainConfig
	Analyzer AnalyzerConfig
	Auth     AuthConfig
	Log      LogConfig
}

func Load() Config {
	ensureEnvLoaded()
	return Config{
		Server:   loadServer(),
		Database: loadDatabase(),
		Chain:    loadChain(),
		Analyzer: loadAnalyzer(),
		Auth:     loadAuth(),
		Log:      loadLog(),
	}
}
