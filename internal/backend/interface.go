package backend

import (
	"context"

	"trackitall/internal/storage"
	"trackitall/internal/taxonomy"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// CategorySourceResult contains the category source and optional cleanup function
type CategorySourceResult struct {
	Source  taxonomy.CategoryReader
	Cleanup CleanupFunc
}

// Factory creates category sources based on configuration
type Factory interface {
	CreateCategorySource(ctx context.Context, config Config) (*CategorySourceResult, error)
}

// Config holds configuration for category source creation
type Config struct {
	Type SourceType

	// SQLite specific: the already opened application database
	DB *storage.DB

	// Google Sheets specific
	GoogleSpreadsheetID        string
	GoogleCategoriesSheetName  string
	GoogleServiceAccountJSON   string
	GoogleServiceAccountFile   string
	GoogleApplicationCredsFile string

	// Memory specific
	SeedDirectory string
}

// SourceType represents the type of category source
type SourceType string

const (
	SQLiteSource SourceType = "sqlite"
	SheetsSource SourceType = "sheets"
	MemorySource SourceType = "memory"
)

// String implements fmt.Stringer
func (st SourceType) String() string {
	return string(st)
}

// IsValid returns true if the source type is valid
func (st SourceType) IsValid() bool {
	switch st {
	case SQLiteSource, SheetsSource, MemorySource:
		return true
	default:
		return false
	}
}
