package backend

import (
	"context"
	"fmt"

	applog "trackitall/internal/log"
	"trackitall/internal/storage"
	gsheet "trackitall/internal/taxonomy/google"
	"trackitall/internal/taxonomy/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new category source factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateCategorySource implements Factory.CreateCategorySource
func (f *DefaultFactory) CreateCategorySource(ctx context.Context, config Config) (*CategorySourceResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteSource:
		return f.createSQLiteSource(config)
	case SheetsSource:
		return f.createSheetsSource(ctx, config)
	case MemorySource:
		return f.createMemorySource(config)
	default:
		return nil, fmt.Errorf("unsupported category source: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteSource(config Config) (*CategorySourceResult, error) {
	f.logger.Info("Initialized SQLite category source")
	return &CategorySourceResult{
		Source: storage.NewCategoryRepository(config.DB),
		// The database is owned by the caller.
		Cleanup: nil,
	}, nil
}

func (f *DefaultFactory) createSheetsSource(ctx context.Context, config Config) (*CategorySourceResult, error) {
	credsFile := config.GoogleServiceAccountFile
	if credsFile == "" {
		credsFile = config.GoogleApplicationCredsFile
	}
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		CategoriesSheet: config.GoogleCategoriesSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: credsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets category source", "sheet", config.GoogleCategoriesSheetName)

	return &CategorySourceResult{Source: cli}, nil
}

func (f *DefaultFactory) createMemorySource(config Config) (*CategorySourceResult, error) {
	dir := config.SeedDirectory
	if dir == "" {
		dir = "."
	}

	store := memory.NewFromFiles(dir)

	f.logger.Info("Initialized memory category source", "seed_directory", dir)

	return &CategorySourceResult{Source: store}, nil
}
