package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/soaringjerry/truthpref/internal/api"
	dbstore "github.com/soaringjerry/truthpref/internal/db"
	"github.com/soaringjerry/truthpref/internal/logger"
)

// MigrateIfNeeded imports a JSON snapshot written by the memory driver into a
// fresh SQLite database. It does nothing once the database file exists.
func MigrateIfNeeded(ctx context.Context, log *logger.Logger, snapshotPath, sqlitePath, migrationsDir string) error {
	if sqlitePath == "" {
		return errors.New("sqlite path is required")
	}
	if snapshotPath == "" {
		return nil
	}
	if _, err := os.Stat(sqlitePath); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check sqlite file: %w", err)
	}

	snap, err := api.ReadSnapshot(snapshotPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load snapshot: %w", err)
	}

	log.Info("importing memory snapshot into sqlite", "snapshot", snapshotPath, "sqlite", sqlitePath)

	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0o755); err != nil {
		return fmt.Errorf("create sqlite dir: %w", err)
	}
	dst, err := dbstore.NewStore(sqlitePath, migrationsDir)
	if err != nil {
		return fmt.Errorf("init sqlite store: %w", err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil {
			log.Warn("close sqlite after import", "error", cerr)
		}
	}()

	n, err := dst.ImportSnapshot(ctx, snap)
	if err != nil {
		return fmt.Errorf("copy data: %w", err)
	}
	log.Info("snapshot import completed", "submissions", n, "audit", len(snap.Audit))
	return nil
}
