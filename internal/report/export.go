package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/golang/snappy"

	verrors "github.com/vitalog/vitalog/internal/errors"
	"github.com/vitalog/vitalog/internal/logging"
	"github.com/vitalog/vitalog/internal/metrics"
	"github.com/vitalog/vitalog/internal/storage"
	"github.com/vitalog/vitalog/pkg/types"
)

// DailyPrefix is the object key prefix for daily snapshots.
const DailyPrefix = "reports/daily/"

const dailySuffix = ".json.sz"

// Snapshot is the exported form of one date's aggregates.
type Snapshot struct {
	Date        types.Date             `json:"date"`
	GeneratedAt time.Time              `json:"generated_at"`
	Users       int                    `json:"users"`
	Aggregates  []types.DailyAggregate `json:"aggregates"`
}

// Exporter writes daily snapshots to object storage as snappy-compressed JSON.
type Exporter struct {
	reports *Service
	objects storage.ObjectStorage
	now     func() time.Time
	logger  *bolt.Logger
	metrics *metrics.Metrics
}

// ExporterOption configures an Exporter.
type ExporterOption func(*Exporter)

func WithExportClock(now func() time.Time) ExporterOption {
	return func(e *Exporter) { e.now = now }
}

func WithExportLogger(l *bolt.Logger) ExporterOption {
	return func(e *Exporter) { e.logger = l }
}

func WithExportMetrics(m *metrics.Metrics) ExporterOption {
	return func(e *Exporter) { e.metrics = m }
}

// NewExporter creates an exporter reading from reports and writing to objects.
func NewExporter(reports *Service, objects storage.ObjectStorage, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		reports: reports,
		objects: objects,
		now:     time.Now,
		logger:  logging.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DailyKey returns the object key for date's snapshot.
func DailyKey(date types.Date) string {
	return DailyPrefix + date.String() + dailySuffix
}

// ExportDaily snapshots Daily(date) and returns the object key written.
// An existing snapshot for the date is replaced.
func (e *Exporter) ExportDaily(ctx context.Context, date types.Date) (string, error) {
	aggs, err := e.reports.Daily(ctx, date)
	if err != nil {
		e.metrics.Export(false)
		logging.With(e.logger.Error(), logging.Component("report"), logging.Operation("export"),
			logging.Date(date), logging.Error(err)).Msg("snapshot read failed")
		return "", err
	}

	raw, err := json.Marshal(Snapshot{
		Date:        date,
		GeneratedAt: e.now().UTC(),
		Users:       len(aggs),
		Aggregates:  aggs,
	})
	if err != nil {
		e.metrics.Export(false)
		logging.With(e.logger.Error(), logging.Component("report"), logging.Operation("export"),
			logging.Date(date), logging.Error(err)).Msg("snapshot encode failed")
		return "", verrors.NewInternalError("failed to encode snapshot", err)
	}

	key := DailyKey(date)
	if _, err := e.objects.Put(ctx, key, snappy.Encode(nil, raw)); err != nil {
		e.metrics.Export(false)
		logging.With(e.logger.Error(), logging.Component("report"), logging.Operation("export"),
			logging.Date(date), logging.Error(err)).Msg("snapshot upload failed")
		return "", verrors.NewStorageError(verrors.CodeUploadFailed, "failed to upload snapshot", err).
			WithDetails(map[string]interface{}{"key": key})
	}

	e.metrics.Export(true)
	logging.With(e.logger.Info(), logging.Component("report"), logging.Operation("export"),
		logging.Date(date), logging.Count("users", len(aggs)), logging.Str("key", key)).Msg("snapshot exported")
	return key, nil
}

// LoadDaily reads back the snapshot for date.
func LoadDaily(ctx context.Context, objects storage.ObjectStorage, date types.Date) (*Snapshot, error) {
	key := DailyKey(date)
	compressed, err := objects.Get(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, verrors.Wrap(verrors.ErrCategoryStorage, verrors.CodeObjectNotFound, "snapshot not found", err).
			WithDetails(map[string]interface{}{"key": key})
	}
	if err != nil {
		return nil, verrors.NewStorageError(verrors.CodeReadFailed, "failed to download snapshot", err)
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress snapshot %s: %w", key, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key, err)
	}
	return &snap, nil
}

// ListDaily returns the dates that have a snapshot, oldest first. Keys
// under DailyPrefix that do not name a date are ignored.
func ListDaily(ctx context.Context, objects storage.ObjectStorage) ([]types.Date, error) {
	keys, err := objects.List(ctx, DailyPrefix)
	if err != nil {
		return nil, verrors.NewStorageError(verrors.CodeReadFailed, "failed to list snapshots", err)
	}
	dates := make([]types.Date, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, DailyPrefix)
		if !strings.HasSuffix(name, dailySuffix) {
			continue
		}
		d, err := types.ParseDate(strings.TrimSuffix(name, dailySuffix))
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}
