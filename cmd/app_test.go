package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datacache/internal/config"
	"datacache/internal/fetcher"
)

func TestLoadConfig_MissingDefaultFallsBackToEnv(t *testing.T) {
	t.Setenv("SOURCE_URL", "http://example.test/data.json")
	t.Setenv("CACHE_TTL", "2h")

	conf, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"), false)
	require.NoError(t, err)
	assert.Equal(t, "http://example.test/data.json", conf.Source.URL)
	assert.Equal(t, "2h0m0s", conf.TTL().String())
}

func TestLoadConfig_MissingExplicitFails(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), true)
	require.Error(t, err)
}

func TestFetchCommand_PrintsIndentedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a":1}`))
	}))
	t.Cleanup(srv.Close)

	t.Setenv("SOURCE_URL", srv.URL)
	t.Setenv("SOURCE_DISABLE_DNS_CACHE", "true")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("APP_ENV", "test")

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run(context.Background(), []string{"datacache", "--env", "test", "fetch"}))
	assert.Equal(t, "{\n  \"a\": 1\n}\n", out.String())
}

func TestFetchCommand_NoData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("SOURCE_URL", srv.URL)
	t.Setenv("SOURCE_DISABLE_DNS_CACHE", "true")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("APP_ENV", "test")

	app := newApp()
	app.Writer = &bytes.Buffer{}
	err := app.Run(context.Background(), []string{"datacache", "--env", "test", "fetch"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, fetcher.ErrNoDataAvailable))
}

func TestLogStartup_DumpsConfigAtDebug(t *testing.T) {
	raw, err := config.Load("source:\n  url: http://example.test/data.json\n")
	require.NoError(t, err)
	conf, err := config.Finalize(raw)
	require.NoError(t, err)

	h := memory.New()
	logStartup(&log.Logger{Handler: h, Level: log.DebugLevel}, &runtime{conf: conf})

	require.Len(t, h.Entries, 2)
	assert.Equal(t, "starting datacache", h.Entries[0].Message)
	assert.Equal(t, false, h.Entries[0].Fields["dns_cache"])
	assert.Equal(t, log.DebugLevel, h.Entries[1].Level)
	assert.Contains(t, h.Entries[1].Message, "url: http://example.test/data.json")
	assert.Contains(t, h.Entries[1].Message, "ttl: 24h")
}
