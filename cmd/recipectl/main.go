// Command recipectl runs maintenance passes against the extraction database
// on demand, for deployments that schedule them externally instead of
// relying on the server's sweeper.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-extraction-backend/internal/config"
	"github.com/tbourn/recipe-extraction-backend/internal/repo"
	"github.com/tbourn/recipe-extraction-backend/internal/sysutil"
)

func main() {
	_ = godotenv.Load()

	root := newRootCmd(openFromEnv)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openFromEnv loads the same configuration as the server and opens its
// database with the schema migrated.
func openFromEnv() (*gorm.DB, config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, cfg, err
	}
	sysutil.SetupLogger(os.Stderr, cfg.LogLevel, true, "recipectl")

	db, err := repo.Open(cfg.DBDriver, cfg.DBPath, cfg.DatabaseURL)
	if err != nil {
		return nil, cfg, err
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, cfg, err
	}
	return db, cfg, nil
}
