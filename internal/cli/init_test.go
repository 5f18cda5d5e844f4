package cli

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackitall/internal/config"
	applog "trackitall/internal/log"
	"trackitall/internal/metrics"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SQLITE_DB_PATH", filepath.Join(t.TempDir(), "data", "app.db"))
	t.Setenv("PORT", "9000")
	t.Setenv("AUTH_MODE", "dev")

	cfg, err := LoadConfig((*config.Config).Validate)
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.Port)

	t.Setenv("PORT", "not-a-port")
	_, err = LoadConfig((*config.Config).Validate)
	assert.ErrorContains(t, err, "invalid port")
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(&config.Config{LogLevel: "debug", LogFormat: "json"})
	assert.Equal(t, applog.ComponentApp, logger.Component())
	assert.True(t, logger.Enabled(context.Background(), -4))
}

func TestNewRegistry(t *testing.T) {
	reg, err := NewRegistry(metrics.NewCollector())
	require.NoError(t, err)
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestServeUntilDone(t *testing.T) {
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- ServeUntilDone(ctx, srv, nil, time.Second) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeUntilDoneReportsListenError(t *testing.T) {
	srv := &http.Server{Addr: "no-port", Handler: http.NotFoundHandler()}
	err := ServeUntilDone(context.Background(), srv, nil, time.Second)
	assert.Error(t, err)
}
