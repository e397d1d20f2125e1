package handlers

import (
	"context"
	"fmt"
	"io"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/imamik/metal/internal/store/rdb"
)

// Migrate creates or updates the database schema.
func Migrate(ctx context.Context, configPath string, out io.Writer) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeQuietly(db)

	log.FromContext(ctx).V(1).Info("migrating schema")
	if err := rdb.AutoMigrate(db); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	fmt.Fprintln(out, "Schema is up to date")
	return nil
}
