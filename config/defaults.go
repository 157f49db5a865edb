package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:        "~/.config/omnidex",
			SQLiteFile:  "omnidex.db",
			JournalMode: "wal",
		},
		Retention: RetentionConfig{
			Days:                 90,
			SweepIntervalMinutes: 3,
		},
		Ranking: RankingConfig{
			VisitWorthSeconds: 86400,
		},
		Icons: IconsConfig{
			MemoryCacheEntries: 256,
		},
	}
}
