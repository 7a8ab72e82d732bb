package catalog

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCatalog_Usage(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	require.NoError(t, c.Record(ctx, &models.FileInfo{ID: "1", Name: "a.csv", Size: 100, Org: "acme", UploadedAt: time.Now()}))
	require.NoError(t, c.Record(ctx, &models.FileInfo{ID: "2", Name: "b.csv", Size: 250, Org: "acme"}))
	require.NoError(t, c.Record(ctx, &models.FileInfo{ID: "3", Name: "c.csv", Size: 999, Org: "other"}))

	usage, err := c.Usage(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(350), usage.Used)
	assert.Equal(t, []string{"a.csv", "b.csv"}, usage.Names)

	empty, err := c.Usage(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, empty.Used)
	assert.Empty(t, empty.Names)
}

func TestCatalog_Ping(t *testing.T) {
	c, err := Open("")
	require.NoError(t, err)

	require.NoError(t, c.Ping(context.Background()))
	require.NoError(t, c.Close())
	assert.Error(t, c.Ping(context.Background()))
}

func TestCatalog_RecordReplaces(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	require.NoError(t, c.Record(ctx, &models.FileInfo{ID: "1", Name: "a.gz", Size: 10, Org: "acme"}))
	require.NoError(t, c.Record(ctx, &models.FileInfo{ID: "1", Name: "a", Size: 40, Org: "acme", Fingerprint: "abc"}))

	usage, err := c.Usage(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(40), usage.Used)
	assert.Equal(t, []string{"a"}, usage.Names)
}

func TestCatalog_Delete(t *testing.T) {
	c := openTest(t)
	ctx := context.Background()

	require.NoError(t, c.Record(ctx, &models.FileInfo{ID: "1", Name: "a.csv", Size: 100, Org: "acme"}))
	require.NoError(t, c.Delete(ctx, "1"))
	require.NoError(t, c.Delete(ctx, "missing"))

	usage, err := c.Usage(ctx, "acme")
	require.NoError(t, err)
	assert.Zero(t, usage.Used)
}

func TestCatalog_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.duckdb")
	ctx := context.Background()

	c, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, c.Record(ctx, &models.FileInfo{ID: "1", Name: "a.csv", Size: 7, Org: "acme"}))
	require.NoError(t, c.Close())

	c, err = Open(path)
	require.NoError(t, err)
	defer c.Close()

	usage, err := c.Usage(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, int64(7), usage.Used)
}
