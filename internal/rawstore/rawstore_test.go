package rawstore

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/equipment-analytics/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var refPattern = regexp.MustCompile(`^uploads/user_7/[0-9a-f]{32}_plant\.csv$`)

func TestLocal_SaveAndDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	require.NoError(t, err)
	ctx := context.Background()

	data := []byte("Equipment Name,Type,Flowrate,Pressure,Temperature\nP1,Pump,1,2,3\n")
	ref, err := store.Save(ctx, "uploads/user_7/plant.csv", data)
	require.NoError(t, err)
	assert.Regexp(t, refPattern, ref)

	got, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(ref)))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	other, err := store.Save(ctx, "uploads/user_7/plant.csv", data)
	require.NoError(t, err)
	assert.NotEqual(t, ref, other, "same hint must not collide")

	require.NoError(t, store.Delete(ctx, ref))
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(ref)))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, store.Delete(ctx, ref), "deleting a missing file is not an error")

	entries, err := os.ReadDir(filepath.Join(root, "uploads", "user_7"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".upload-"), "temp file left behind: %s", e.Name())
	}
}

func TestLocal_RejectsEscapingPaths(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, hint := range []string{"", "../plant.csv", "/etc/passwd", "uploads/../../x.csv", `uploads\x.csv`} {
		_, err := store.Save(ctx, hint, []byte("x"))
		assert.ErrorIs(t, err, ErrInvalidPath, "Save(%q)", hint)
	}
	assert.ErrorIs(t, store.Delete(ctx, "../outside.csv"), ErrInvalidPath)
}

func TestLocal_CanceledContext(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Save(ctx, "uploads/user_1/a.csv", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Backends(t *testing.T) {
	ctx := context.Background()

	local, err := New(ctx, config.StorageConfig{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, local)
	assert.NoError(t, local.Close())

	none, err := New(ctx, config.StorageConfig{Backend: "none"})
	require.NoError(t, err)
	ref, err := none.Save(ctx, "uploads/user_1/a.csv", []byte("x"))
	require.NoError(t, err)
	assert.Empty(t, ref)

	_, err = New(ctx, config.StorageConfig{Backend: "ftp"})
	assert.Error(t, err)

	_, err = New(ctx, config.StorageConfig{Backend: "gcs"})
	assert.Error(t, err, "gcs without a bucket")
}

func TestUniqueName(t *testing.T) {
	name, err := uniqueName("uploads/user_7/plant.csv")
	require.NoError(t, err)
	assert.Regexp(t, refPattern, name)

	name, err = uniqueName("plant.csv")
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-f]{32}_plant\.csv$`, name)
}

func TestGCS_Emulator(t *testing.T) {
	host := strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST"))
	bucket := strings.TrimSpace(os.Getenv("RAW_STORAGE_GCS_BUCKET"))
	if host == "" || bucket == "" {
		t.Skip("set STORAGE_EMULATOR_HOST and RAW_STORAGE_GCS_BUCKET to run against a storage emulator")
	}

	ctx := context.Background()
	store, err := NewGCS(ctx, config.StorageConfig{
		GCSBucket:    bucket,
		GCSPrefix:    "it",
		EmulatorHost: host,
		Timeout:      10 * time.Second,
	})
	require.NoError(t, err)
	defer store.Close()

	ref, err := store.Save(ctx, "uploads/user_7/plant.csv", []byte("a,b\n"))
	require.NoError(t, err)
	assert.Regexp(t, refPattern, ref)

	require.NoError(t, store.Delete(ctx, ref))
	assert.NoError(t, store.Delete(ctx, ref))
}
