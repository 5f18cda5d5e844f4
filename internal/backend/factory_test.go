package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trackitall/internal/config"
	applog "trackitall/internal/log"
	"trackitall/internal/storage"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil, nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{CategorySource: "table"}, nil)
	assert.Error(t, err)

	cfg, err := FromAppConfig(&config.Config{CategorySource: "memory", CategorySeedDir: "seed"}, nil)
	require.NoError(t, err)
	assert.Equal(t, MemorySource, cfg.Type)
	assert.Equal(t, "seed", cfg.SeedDirectory)
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{Type: SQLiteSource}.Validate(), "sqlite needs a database")
	assert.Error(t, Config{Type: SheetsSource}.Validate(), "sheets needs a spreadsheet")
	assert.Error(t, Config{Type: SheetsSource, GoogleSpreadsheetID: "x"}.Validate(), "sheets needs credentials")
	assert.NoError(t, Config{Type: MemorySource}.Validate())
	assert.Error(t, Config{Type: "bogus"}.Validate())
}

func TestCreateCategorySource(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(applog.Discard())

	t.Run("memory", func(t *testing.T) {
		res, err := f.CreateCategorySource(ctx, Config{Type: MemorySource, SeedDirectory: t.TempDir()})
		require.NoError(t, err)
		cats, err := res.Source.ListCategories(ctx)
		require.NoError(t, err)
		assert.Len(t, cats, 6)
	})

	t.Run("sqlite", func(t *testing.T) {
		db, err := storage.Open(ctx, filepath.Join(t.TempDir(), "c.db"))
		require.NoError(t, err)
		defer db.Close()

		res, err := f.CreateCategorySource(ctx, Config{Type: SQLiteSource, DB: db})
		require.NoError(t, err)
		assert.Nil(t, res.Cleanup)
		cats, err := res.Source.ListCategories(ctx)
		require.NoError(t, err)
		assert.Len(t, cats, 6)
	})

	t.Run("sheets without credentials", func(t *testing.T) {
		_, err := f.CreateCategorySource(ctx, Config{Type: SheetsSource, GoogleSpreadsheetID: "x"})
		assert.Error(t, err)
	})
}
