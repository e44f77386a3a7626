package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalog/vitalog/internal/report"
	"github.com/vitalog/vitalog/internal/storage"
	"github.com/vitalog/vitalog/internal/store/sqlite"
	"github.com/vitalog/vitalog/pkg/types"
)

var fixedNow = func() time.Time { return time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC) }

func TestResolveDates(t *testing.T) {
	tests := []struct {
		name     string
		opts     options
		from, to string
		wantErr  bool
	}{
		{name: "default yesterday", from: "2024-03-09", to: "2024-03-09"},
		{name: "single date", opts: options{date: "2024-01-31"}, from: "2024-01-31", to: "2024-01-31"},
		{name: "range", opts: options{from: "2024-02-27", to: "2024-03-02"}, from: "2024-02-27", to: "2024-03-02"},
		{name: "date with range", opts: options{date: "2024-01-01", from: "2024-01-01"}, wantErr: true},
		{name: "half range", opts: options{from: "2024-01-01"}, wantErr: true},
		{name: "inverted range", opts: options{from: "2024-01-05", to: "2024-01-01"}, wantErr: true},
		{name: "bad date", opts: options{date: "03/10/2024"}, wantErr: true},
		{name: "too long", opts: options{from: "2023-01-01", to: "2024-01-02"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := resolveDates(tt.opts, fixedNow)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.from, from.String())
			assert.Equal(t, tt.to, to.String())
		})
	}
}

func seedEvents(t *testing.T, dataDir string) {
	t.Helper()
	st, err := sqlite.Open(filepath.Join(dataDir, "vitalog.db"))
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	day := time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC)
	_, err = st.Append(ctx, 1, types.KindSleep, 420, day)
	require.NoError(t, err)
	_, err = st.Append(ctx, 1, types.KindSleep, 480, day.Add(time.Hour))
	require.NoError(t, err)
	_, err = st.Append(ctx, 2, types.KindSteps, 9000, day.Add(2*time.Hour))
	require.NoError(t, err)
}

func TestRun_RepairsAndExports(t *testing.T) {
	dataDir := t.TempDir()
	seedEvents(t, dataDir)

	var out bytes.Buffer
	err := run(context.Background(), options{dataDir: dataDir, export: true}, &out, fixedNow)
	require.NoError(t, err)

	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, "2024-03-09", summary["date"])
	assert.EqualValues(t, 2, summary["users"])
	assert.EqualValues(t, 3, summary["events"])
	assert.Equal(t, report.DailyKey(types.MustParseDate("2024-03-09")), summary["snapshot"])

	objects, err := storage.NewLocalStorage(filepath.Join(dataDir, "exports"))
	require.NoError(t, err)
	snap, err := report.LoadDaily(context.Background(), objects, types.MustParseDate("2024-03-09"))
	require.NoError(t, err)
	require.Len(t, snap.Aggregates, 2)
	assert.Equal(t, 480.0, snap.Aggregates[0].TotalSleep)
	assert.Equal(t, 9000.0, snap.Aggregates[1].TotalSteps)
}

func TestRun_DiffDoesNotWrite(t *testing.T) {
	dataDir := t.TempDir()
	seedEvents(t, dataDir)

	var out bytes.Buffer
	err := run(context.Background(), options{dataDir: dataDir, diff: true}, &out, fixedNow)
	require.NoError(t, err)

	var res struct {
		Date  string            `json:"date"`
		Drift []json.RawMessage `json:"drift"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "2024-03-09", res.Date)
	assert.Len(t, res.Drift, 2)

	st, err := sqlite.Open(filepath.Join(dataDir, "vitalog.db"))
	require.NoError(t, err)
	defer st.Close()
	aggs, err := st.ForDate(context.Background(), types.MustParseDate("2024-03-09"))
	require.NoError(t, err)
	assert.Empty(t, aggs)
}

func TestRun_ListSnapshots(t *testing.T) {
	dataDir := t.TempDir()
	seedEvents(t, dataDir)
	ctx := context.Background()

	require.NoError(t, run(ctx, options{dataDir: dataDir, date: "2024-03-08", export: true}, &bytes.Buffer{}, fixedNow))
	require.NoError(t, run(ctx, options{dataDir: dataDir, export: true}, &bytes.Buffer{}, fixedNow))

	var out bytes.Buffer
	require.NoError(t, run(ctx, options{dataDir: dataDir, list: true}, &out, fixedNow))

	var listed struct {
		Snapshots []string `json:"snapshots"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &listed))
	assert.Equal(t, []string{"2024-03-08", "2024-03-09"}, listed.Snapshots)
}
