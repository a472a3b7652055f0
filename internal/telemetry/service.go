// Package telemetry implements reading ingestion and the dashboard read paths
// over the store: latest values, time windows and bucketed series.
package telemetry

import (
	"context"
	"time"

	"sensor-service/internal/bucket"
	"sensor-service/internal/store"
)

// TimeLayout is the textual timestamp format used on every endpoint.
const TimeLayout = "2006-01-02 15:04:05"

// BucketLayout formats bucket keys at minute precision.
const BucketLayout = "2006-01-02 15:04"

const lastHistoryLimit = 7

type UserStore interface {
	FirstUser(ctx context.Context) (*store.User, error)
	UserByUsername(ctx context.Context, username string) (*store.User, error)
}

type DeviceStore interface {
	DeviceByMAC(ctx context.Context, mac string) (*store.Device, error)
	DeviceByID(ctx context.Context, id uint) (*store.Device, error)
	ListDevices(ctx context.Context) ([]store.Device, error)
	CreateDevice(ctx context.Context, d *store.Device) error
	UpdateDeviceIP(ctx context.Context, id uint, ip string) error
}

type ReadingStore interface {
	InsertReading(ctx context.Context, r *store.Reading) error
	LatestReadings(ctx context.Context, deviceID uint, n int) ([]store.Reading, error)
	ListReadings(ctx context.Context, q store.ReadingQuery) ([]store.Reading, error)
}

type Options struct {
	// DefaultOwner names the user that owns auto-provisioned devices.
	// Empty falls back to the earliest created user.
	DefaultOwner string
	BucketWidth  time.Duration
	SeriesWindow time.Duration
	RangeDefault time.Duration
	Now          func() time.Time
}

type Service struct {
	users    UserStore
	devices  DeviceStore
	readings ReadingStore

	defaultOwner string
	width        time.Duration
	seriesWindow time.Duration
	rangeDefault time.Duration
	now          func() time.Time
}

func New(users UserStore, devices DeviceStore, readings ReadingStore, opts Options) *Service {
	s := &Service{
		users:        users,
		devices:      devices,
		readings:     readings,
		defaultOwner: opts.DefaultOwner,
		width:        opts.BucketWidth,
		seriesWindow: opts.SeriesWindow,
		rangeDefault: opts.RangeDefault,
		now:          opts.Now,
	}
	if s.width <= 0 {
		s.width = bucket.DefaultWidth
	}
	if s.seriesWindow <= 0 {
		s.seriesWindow = 2 * time.Hour
	}
	if s.rangeDefault <= 0 {
		s.rangeDefault = 24 * time.Hour
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// NewFromRepo wires every store capability from a single repo.
func NewFromRepo(repo *store.Repo, opts Options) *Service {
	return New(repo, repo, repo, opts)
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

func samplesOf(rows []store.Reading) []bucket.Sample {
	out := make([]bucket.Sample, 0, len(rows))
	for _, r := range rows {
		out = append(out, bucket.Sample{
			DeviceID:    r.DeviceID,
			Timestamp:   r.Timestamp,
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
			Pressure:    r.Pressure,
		})
	}
	return out
}
