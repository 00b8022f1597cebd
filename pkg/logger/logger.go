package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"

	"datacache/pkg/cfg"
)

// Setup installs the global apex/log handler and level. Outside prod it
// writes text to stdout; in prod it appends JSON to LOG_DIR/datacache.log,
// falling back to stdout. The returned func closes the log file.
func Setup(env, level string) func() {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)

	if env != "prod" {
		log.SetHandler(handlerFor(os.Stdout, cfg.String("LOG_FORMAT", "text")))
		return func() {}
	}

	logDir := cfg.String("LOG_DIR", "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.SetHandler(handlerFor(os.Stdout, "json"))
		log.WithError(err).Warn("failed to create log dir, fallback to stdout")
		return func() {}
	}

	logPath := filepath.Join(logDir, "datacache.log")
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.SetHandler(handlerFor(os.Stdout, "json"))
		log.WithError(err).Warn("failed to open log file, fallback to stdout")
		return func() {}
	}

	log.SetHandler(handlerFor(f, cfg.String("LOG_FORMAT", "json")))
	return func() {
		_ = f.Close()
	}
}

func handlerFor(w io.Writer, format string) log.Handler {
	if strings.EqualFold(format, "json") {
		return json.New(w)
	}
	return text.New(w)
}
