package telemetry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"sensor-service/internal/apperr"
	"sensor-service/internal/observability"
	"sensor-service/internal/store"
)

// Interval is an inclusive [Start, End] window.
type Interval struct {
	Start time.Time
	End   time.Time
}

// ParseBound parses an optional bound in TimeLayout (UTC). An empty value
// yields nil. The error names the parameter and echoes the rejected value.
func ParseBound(name, value string) (*time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(TimeLayout, v, time.UTC)
	if err != nil {
		return nil, apperr.InvalidArgument(fmt.Sprintf("invalid %s %q: use YYYY-MM-DD HH:MM:SS", name, v)).
			WithField("parameter", name).
			WithField("value", v)
	}
	return &t, nil
}

// ResolveInterval fills missing bounds: end defaults to now and start to
// end minus the default range.
func (s *Service) ResolveInterval(start, end *time.Time) Interval {
	var iv Interval
	if end != nil {
		iv.End = end.UTC()
	} else {
		iv.End = s.clock()
	}
	if start != nil {
		iv.Start = start.UTC()
	} else {
		iv.Start = iv.End.Add(-s.rangeDefault)
	}
	return iv
}

// RangeQuery returns every reading inside the window, oldest first, with
// devices attached. An inverted window is empty rather than an error.
func (s *Service) RangeQuery(ctx context.Context, start, end *time.Time) (Interval, []store.Reading, error) {
	defer observability.ObserveQuery(ctx, "range", time.Now())

	iv := s.ResolveInterval(start, end)
	if iv.Start.After(iv.End) {
		return iv, []store.Reading{}, nil
	}
	rows, err := s.readings.ListReadings(ctx, store.ReadingQuery{From: iv.Start, To: iv.End, WithDevices: true})
	if err != nil {
		return iv, nil, apperr.Internal("range query", err)
	}
	return iv, rows, nil
}

// LastSeven returns the seven newest readings of one device, newest first,
// with metrics rounded to two decimals. Bounds only apply when given.
func (s *Service) LastSeven(ctx context.Context, deviceID uint, start, end *time.Time) ([]store.Reading, error) {
	defer observability.ObserveQuery(ctx, "last_seven", time.Now())

	dev, err := s.devices.DeviceByID(ctx, deviceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(fmt.Sprintf("device %d not found", deviceID))
	}
	if err != nil {
		return nil, apperr.Internal("lookup device", err)
	}

	q := store.ReadingQuery{DeviceID: dev.ID, Desc: true, Limit: lastHistoryLimit}
	if start != nil {
		q.From = start.UTC()
	}
	if end != nil {
		q.To = end.UTC()
	}
	if start != nil && end != nil && start.After(*end) {
		return []store.Reading{}, nil
	}
	rows, err := s.readings.ListReadings(ctx, q)
	if err != nil {
		return nil, apperr.Internal("last readings", err)
	}
	for i := range rows {
		rows[i].Temperature = Round2(rows[i].Temperature)
		rows[i].Humidity = Round2(rows[i].Humidity)
		rows[i].Pressure = Round2(rows[i].Pressure)
		rows[i].Device = dev
	}
	return rows, nil
}

// Round2 rounds to two decimal places, halves away from zero. Values too
// large to scale are already integral and come back unchanged.
func Round2(v float64) float64 {
	scaled := v * 100
	if math.IsInf(scaled, 0) {
		return v
	}
	return math.Round(scaled) / 100
}
