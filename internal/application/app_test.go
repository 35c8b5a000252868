package application

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/equipment-analytics/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver:         DriverSQLite,
			URL:            filepath.Join(dir, "app.db"),
			MigrateOnStart: true,
		},
		Upload:    config.UploadConfig{MaxConcurrent: 2, MaxWaitTime: time.Second},
		Retention: config.RetentionConfig{Keep: 2},
		Storage:   config.StorageConfig{Backend: "local", LocalDir: filepath.Join(dir, "media")},
		Report:    config.ReportConfig{ChartWidth: 400, ChartHeight: 240},
	}
}

func TestOpen_SQLite(t *testing.T) {
	cfg := sqliteConfig(t)
	ctx := context.Background()

	app, err := Open(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })

	assert.Equal(t, 2, app.Service.Keep())
	assert.Equal(t, 2, app.Service.Limiter().MaxConcurrent())

	csv := "Equipment Name,Type,Flowrate,Pressure,Temperature\nP-1,Pump,10,2,80\n"
	for i := 0; i < 3; i++ {
		_, err := app.Service.Ingest(ctx, 1, "plant.csv", strings.NewReader(csv))
		require.NoError(t, err)
	}

	history, err := app.Service.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 2)

	// The pruned dataset's raw copy is gone with it.
	var files int
	err = filepath.WalkDir(cfg.Storage.LocalDir, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			files++
		}
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 2, files)

	rf, err := app.Service.GetOrCreateReport(ctx, 1, history[0].ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(rf.PDF), "%PDF"))
	assert.Equal(t, "Report 1.pdf", rf.Filename)

	require.NoError(t, app.Close())
}

func TestMigrate_SQLiteUpDown(t *testing.T) {
	cfg := sqliteConfig(t)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, cfg.Database, false))
	require.NoError(t, Migrate(ctx, cfg.Database, false))
	require.NoError(t, Migrate(ctx, cfg.Database, true))
	require.NoError(t, Migrate(ctx, cfg.Database, false))
}

func TestOpen_UnknownDriver(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Database.Driver = "mysql"

	_, err := Open(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown database driver")

	assert.Error(t, Migrate(context.Background(), cfg.Database, false))
}

func TestOpen_BadStorageBackend(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Storage.Backend = "ftp"

	_, err := Open(context.Background(), cfg)
	assert.ErrorContains(t, err, "raw storage")
}
