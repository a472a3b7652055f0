package store

import (
	"context"
	"time"

	"gorm.io/gorm/clause"
)

func (r *Repo) InsertReading(ctx context.Context, rd *Reading) error {
	if rd.Timestamp.IsZero() {
		rd.Timestamp = time.Now().UTC()
	}
	dev := rd.Device
	rd.Device = nil
	err := r.db.WithContext(ctx).Create(rd).Error
	rd.Device = dev
	return translate(err)
}

// ReadingQuery filters readings. Zero values mean "no constraint".
type ReadingQuery struct {
	DeviceID    uint
	From        time.Time
	To          time.Time
	Desc        bool
	Limit       int
	WithDevices bool
}

// ListReadings orders by (timestamp, id) in the requested direction so rows
// sharing a timestamp come back in insertion order.
func (r *Repo) ListReadings(ctx context.Context, q ReadingQuery) ([]Reading, error) {
	var exprs []clause.Expression
	if q.DeviceID != 0 {
		exprs = append(exprs, clause.Eq{Column: clause.Column{Name: "device_id"}, Value: q.DeviceID})
	}
	if !q.From.IsZero() {
		exprs = append(exprs, clause.Gte{Column: clause.Column{Name: "timestamp"}, Value: q.From.UTC()})
	}
	if !q.To.IsZero() {
		exprs = append(exprs, clause.Lte{Column: clause.Column{Name: "timestamp"}, Value: q.To.UTC()})
	}

	order := clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "timestamp"}, Desc: q.Desc},
		{Column: clause.Column{Name: "id"}, Desc: q.Desc},
	}}

	db := r.db.WithContext(ctx)
	if q.WithDevices {
		db = db.Preload("Device")
	}
	if len(exprs) > 0 {
		db = db.Clauses(clause.Where{Exprs: exprs})
	}
	db = db.Clauses(order)
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var rows []Reading
	if err := db.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LatestReadings returns at most n readings for one device, newest first.
func (r *Repo) LatestReadings(ctx context.Context, deviceID uint, n int) ([]Reading, error) {
	return r.ListReadings(ctx, ReadingQuery{DeviceID: deviceID, Desc: true, Limit: n})
}
