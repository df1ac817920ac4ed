package migrations

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-dali/internal/infrastructure/database"
)

func TestEmbeddedMigrationsApply(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "dali.db"), BusyTimeout: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(ctx, FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO dali_frames (direction, timestamp, length, data, status, message, recorded_at)
		 VALUES ('in', 1.5, 16, 261, 'FRAME', 'NORMAL FRAME', '2026-01-01T00:00:00Z')`); err != nil {
		t.Fatalf("insert into dali_frames: %v", err)
	}
	if err := db.MigrateDown(ctx, FS); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
}
