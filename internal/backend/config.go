package backend

import (
	"fmt"

	"trackitall/internal/config"
	"trackitall/internal/storage"
)

// FromAppConfig converts the application config to a category source config
func FromAppConfig(appConfig *config.Config, db *storage.DB) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	sourceType := SourceType(appConfig.CategorySource)
	if !sourceType.IsValid() {
		return Config{}, fmt.Errorf("invalid category source in config: %s", appConfig.CategorySource)
	}

	return Config{
		Type: sourceType,
		DB:   db,

		GoogleSpreadsheetID:        appConfig.GoogleSpreadsheetID,
		GoogleCategoriesSheetName:  appConfig.GoogleCategoriesSheetName,
		GoogleServiceAccountJSON:   appConfig.GoogleServiceAccountJSON,
		GoogleServiceAccountFile:   appConfig.GoogleServiceAccountFile,
		GoogleApplicationCredsFile: appConfig.GoogleApplicationCredsFile,

		SeedDirectory: appConfig.CategorySeedDir,
	}, nil
}

// Validate validates the category source configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid category source: %s", c.Type)
	}

	switch c.Type {
	case SQLiteSource:
		if c.DB == nil {
			return fmt.Errorf("database handle is required for sqlite category source")
		}
	case SheetsSource:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets category source")
		}
		if c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" && c.GoogleApplicationCredsFile == "" {
			return fmt.Errorf("service account credentials are required for sheets category source")
		}
	case MemorySource:
		// SeedDirectory falls back to the working directory
	}

	return nil
}

// GetSourceTypes returns all valid source types
func GetSourceTypes() []SourceType {
	return []SourceType{SQLiteSource, SheetsSource, MemorySource}
}
