package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackitall/internal/auth"
	"trackitall/internal/config"
	applog "trackitall/internal/log"
)

func TestNewResolverDevModeIsExplicit(t *testing.T) {
	cfg := &config.Config{AuthMode: config.AuthModeDev, AdminRole: "Admin"}
	r, err := newResolver(context.Background(), cfg, nil, applog.Discard())
	require.NoError(t, err)
	assert.Equal(t, auth.HeaderResolver{AdminRole: "Admin"}, r)
}
