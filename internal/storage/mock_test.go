package storage

import (
	"context"
	"testing"

	"github.com/plc-visualizer/uploader/internal/models"
	"github.com/plc-visualizer/uploader/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockAdapter(t *testing.T) {
	m := NewMockAdapter().FailOn("bad.csv", "disk full")
	ctx := context.Background()

	var reports []int
	id, err := m.Upload(ctx, models.NewFileFromBytes("good.csv", []byte("a")), func(p int) { reports = append(reports, p) })
	require.NoError(t, err)
	assert.Equal(t, "mock-1", id)
	assert.Equal(t, []int{25, 50, 75, 100}, reports)

	_, err = m.Upload(ctx, models.NewFileFromBytes("bad.csv", []byte("a")), nil)
	assert.EqualError(t, err, "disk full")

	id, err = m.Upload(ctx, models.NewFileFromBytes("other.csv", []byte("a")), nil)
	require.NoError(t, err)
	assert.Equal(t, "mock-2", id)
	assert.Equal(t, []string{"good.csv", "other.csv"}, m.Uploaded())
}

func TestMockAdapter_ZeroValue(t *testing.T) {
	m := &MockAdapter{}
	m.FailOn("bad.csv", "rejected")

	_, err := m.Upload(context.Background(), models.NewFileFromBytes("bad.csv", []byte("a")), nil)
	assert.EqualError(t, err, "rejected")

	id, err := m.Upload(context.Background(), models.NewFileFromBytes("ok.csv", []byte("a")), nil)
	require.NoError(t, err)
	assert.Equal(t, "mock-1", id)
}

func TestProgressTracker(t *testing.T) {
	tests := []struct {
		name   string
		total  int64
		lo, hi int
		adds   []int64
		want   []int
	}{
		{"full range", 100, 0, 100, []int64{10, 10, 80}, []int{0, 10, 20, 100}},
		{"half range", 100, 0, 50, []int64{50, 50}, []int{0, 25, 50}},
		{"drops repeats", 1000, 0, 100, []int64{1, 1, 1000}, []int{0, 100}},
		{"empty file", 0, 0, 50, nil, []int{50}},
		{"overshoot clamps", 10, 0, 100, []int64{20, 5}, []int{0, 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			p := newProgressTracker(tt.total, tt.lo, tt.hi, func(pct int) { got = append(got, pct) })
			p.Start()
			for _, n := range tt.adds {
				p.Add(n)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	a, err := New(ctx, Config{Backend: "mock"})
	require.NoError(t, err)
	assert.IsType(t, &MockAdapter{}, a)

	a, err = New(ctx, Config{Backend: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, a)

	a, err = New(ctx, Config{Backend: "chunked", Chunked: ChunkedOptions{ServerURL: "http://localhost:8089"}})
	require.NoError(t, err)
	assert.IsType(t, &ChunkedAdapter{}, a)

	_, err = New(ctx, Config{Backend: "ftp"})
	assert.ErrorIs(t, err, ErrUnknownBackend)

	_, err = New(ctx, Config{Backend: "local"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Backend: "minio"})
	assert.Error(t, err, "missing endpoint must fail at construction")
}

func TestMinIOAdapter_ValidateFile(t *testing.T) {
	m := &MinIOAdapter{}

	small := &models.File{Name: "a.bin", Size: 1 << 20}
	assert.True(t, m.ValidateFile(small, validation.Policy{}).Accepted)

	huge := &models.File{Name: "b.bin", Size: MaxObjectSize + 1}
	res := m.ValidateFile(huge, validation.Policy{})
	assert.False(t, res.Accepted)
	assert.Equal(t, models.StatusExceded, res.Reason)
}

func TestMinIOAdapter_ObjectKey(t *testing.T) {
	m := &MinIOAdapter{prefix: "acme"}
	key := m.ObjectKey("Report.CSV")
	assert.Regexp(t, `^acme/[0-9a-f-]{36}\.csv$`, key)
}
