package cfg

import (
	"os"
	"strings"
)

func String(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// IsDev reports whether APP_ENV selects the dev environment.
func IsDev() bool {
	return strings.EqualFold(String("APP_ENV", "dev"), "dev")
}
