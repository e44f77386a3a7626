package report

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/internal/metrics"
	"github.com/vitalog/vitalog/internal/storage"
	"github.com/vitalog/vitalog/pkg/types"
)

type rejectingObjects struct {
	storage.ObjectStorage
}

func (rejectingObjects) Put(context.Context, string, []byte) (string, error) {
	return "", storage.ErrUploadFailed
}

func TestDailyKey(t *testing.T) {
	assert.Equal(t, "reports/daily/2026-03-07.json.sz", DailyKey(end))
}

func TestExportDaily_RoundTrip(t *testing.T) {
	s := openStore(t)
	put(t, s, types.DailyAggregate{UserID: 2, Date: end, TotalSleep: 480, Mood: types.IntPtr(4)})
	put(t, s, types.DailyAggregate{UserID: 1, Date: end, TotalSteps: 12000})

	objects, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	generated := time.Date(2026, 3, 8, 0, 30, 0, 0, time.UTC)
	m := metrics.New()
	exp := NewExporter(NewService(s), objects,
		WithExportClock(func() time.Time { return generated }), WithExportMetrics(m))

	key, err := exp.ExportDaily(context.Background(), end)
	require.NoError(t, err)
	assert.Equal(t, DailyKey(end), key)

	compressed, err := objects.Get(context.Background(), key)
	require.NoError(t, err)
	_, err = snappy.Decode(nil, compressed)
	require.NoError(t, err, "snapshot should be snappy-compressed")

	snap, err := LoadDaily(context.Background(), objects, end)
	require.NoError(t, err)
	assert.Equal(t, end, snap.Date)
	assert.True(t, snap.GeneratedAt.Equal(generated))
	assert.Equal(t, 2, snap.Users)
	require.Len(t, snap.Aggregates, 2)
	assert.Equal(t, int64(1), snap.Aggregates[0].UserID)
	assert.Nil(t, snap.Aggregates[0].Mood)
	require.NotNil(t, snap.Aggregates[1].Mood)
	assert.Equal(t, 4, *snap.Aggregates[1].Mood)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var exported bool
	for _, f := range families {
		if f.GetName() == "vitalog_snapshot_exports_total" {
			exported = len(f.GetMetric()) == 1 && f.GetMetric()[0].GetCounter().GetValue() == 1
		}
	}
	assert.True(t, exported, "export should be counted once")
}

func TestExportDaily_EmptyDate(t *testing.T) {
	objects, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = NewExporter(NewService(openStore(t)), objects).ExportDaily(context.Background(), end)
	require.NoError(t, err)

	snap, err := LoadDaily(context.Background(), objects, end)
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Users)
	assert.Empty(t, snap.Aggregates)
}

func TestExportDaily_UploadFailure(t *testing.T) {
	_, err := NewExporter(NewService(openStore(t)), rejectingObjects{}).ExportDaily(context.Background(), end)
	require.Error(t, err)
	assert.Equal(t, verrors.CodeUploadFailed, verrors.GetCode(err))
	assert.True(t, errors.Is(err, storage.ErrUploadFailed))
}

func TestLoadDaily_Missing(t *testing.T) {
	objects, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = LoadDaily(context.Background(), objects, end)
	require.Error(t, err)
	assert.Equal(t, verrors.CodeObjectNotFound, verrors.GetCode(err))
	assert.False(t, verrors.IsRetryable(err))
}

type unlistableObjects struct {
	storage.ObjectStorage
}

func (unlistableObjects) List(context.Context, string) ([]string, error) {
	return nil, errors.New("listing denied")
}

func TestListDaily(t *testing.T) {
	objects, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	exp := NewExporter(NewService(openStore(t)), objects)

	for _, d := range []types.Date{end, end.AddDays(-2)} {
		_, err := exp.ExportDaily(ctx, d)
		require.NoError(t, err)
	}
	for _, key := range []string{DailyPrefix + "notes.txt", DailyPrefix + "latest.json.sz", "reports/weekly/" + end.String() + ".json.sz"} {
		_, err := objects.Put(ctx, key, []byte("x"))
		require.NoError(t, err)
	}

	dates, err := ListDaily(ctx, objects)
	require.NoError(t, err)
	assert.Equal(t, []types.Date{end.AddDays(-2), end}, dates)
}

func TestListDaily_ListFailure(t *testing.T) {
	_, err := ListDaily(context.Background(), unlistableObjects{})
	require.Error(t, err)
	assert.Equal(t, verrors.CodeReadFailed, verrors.GetCode(err))
}
