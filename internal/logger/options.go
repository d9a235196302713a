package logger

import (
	"io"
	"os"
	"strconv"
)

// Options configures a Logger.
type Options struct {
	Level   string    // debug, info, warn, error
	Format  string    // json, text
	Output  io.Writer // nil means stdout
	Service string

	// File, when set, receives every entry through a rotating writer.
	File     string
	FileOnly bool

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// OptionsFromEnv reads LOG_* variables. service tags every entry.
func OptionsFromEnv(service string) Options {
	return Options{
		Level:      envString("LOG_LEVEL", "info"),
		Format:     envString("LOG_FORMAT", "json"),
		Service:    envString("SERVICE_NAME", service),
		File:       os.Getenv("LOG_FILE"),
		FileOnly:   envBool("LOG_FILE_ONLY", false),
		MaxSizeMB:  envInt("LOG_MAX_SIZE", 100),
		MaxBackups: envInt("LOG_MAX_BACKUPS", 7),
		MaxAgeDays: envInt("LOG_MAX_AGE", 30),
		Compress:   envBool("LOG_COMPRESS", true),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return i
}
