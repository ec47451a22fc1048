package config

import (
	"os"
	"time"
)

type Config struct {
	ListenAddr    string
	CacheDBPath   string
	RemoteDBURL   string
	AdminKey      string
	ProbeInterval time.Duration
	LogLevel      string
	LogFile       string
}

func Load() *Config {
	return &Config{
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		CacheDBPath:   getEnv("CACHE_DB_PATH", "/data/prodtrack-cache.db"),
		RemoteDBURL:   getEnv("REMOTE_DATABASE_URL", ""),
		AdminKey:      getEnv("ADMIN_MASTER_KEY", "producao2026"),
		ProbeInterval: getDuration("PROBE_INTERVAL", 15*time.Second),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFile:       getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, defaultVal string) string {
	if val, exists := os.LookupEnv(key); exists {
		return val
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
