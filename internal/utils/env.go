package utils

import (
	"os"
	"strconv"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
)

// GetEnv returns the value of key, falling back to def when unset.
func GetEnv(key, def string, log *logger.Logger) string {
	v := os.Getenv(key)
	if v == "" {
		if log != nil {
			log.Debug("env var unset, using default", "key", key, "default", def)
		}
		return def
	}
	return v
}

// GetEnvAsInt returns the integer value of key, falling back to def when
// unset or unparsable.
func GetEnvAsInt(key string, def int, log *logger.Logger) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if log != nil {
			log.Warn("env var is not an int, using default", "key", key, "value", v, "default", def)
		}
		return def
	}
	return n
}
