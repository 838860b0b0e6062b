package di

import (
	"fmt"

	"github.com/degiro-portfolio/degiro-portfolio/internal/config"
	"github.com/degiro-portfolio/degiro-portfolio/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens portfolio.db and applies the embedded migrations.
// Imported transactions are the only data that cannot be refetched, so the
// ledger profile is used.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath(),
		Profile: database.ProfileLedger,
		Name:    "portfolio",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize portfolio database: %w", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
	}

	log.Info().Str("path", db.Path()).Msg("Database initialized and schema applied")
	return &Container{DB: db}, nil
}
