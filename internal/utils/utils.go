package utils

import (
	"os"
	"path/filepath"
	"strings"
)

// CacheDir is the root directory for on-disk caches.
var CacheDir = defaultCacheDir()

func defaultCacheDir() string {
	if dir := os.Getenv("SENTIMENT_CACHE_DIR"); dir != "" {
		return dir
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "sentiment")
	}

	return filepath.Join(home, ".sentiment", "cache")
}

// GetEnvironmentVars returns the process environment as a map.
func GetEnvironmentVars() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if ok {
			env[key] = value
		}
	}
	return env
}

// FirstEnv returns the first non-empty value among the given variables.
func FirstEnv(keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
