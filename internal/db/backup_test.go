package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackup(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	saveRecord(t, db, "doc-1")

	dir := filepath.Join(t.TempDir(), "backups")
	path, err := db.Backup(ctx, dir)
	require.NoError(t, err)
	assert.FileExists(t, path)

	logger := zerolog.Nop()
	restored, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer restored.Close()

	r, err := restored.GetAvailability(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "09:00", r.StartTime)
}

func TestCleanupBackups(t *testing.T) {
	db := setupTestDB(t)
	dir := t.TempDir()

	old := filepath.Join(dir, "scheduler_20260101_000000.000.db")
	fresh := filepath.Join(dir, "scheduler_20261015_000000.000.db")
	other := filepath.Join(dir, "notes.txt")
	for _, p := range []string{old, fresh, other} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	past := time.Now().Add(-30 * 24 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(other, past, past))

	deleted, err := db.CleanupBackups(dir, 14*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
	assert.FileExists(t, other)
}
