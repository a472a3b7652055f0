package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"sensor-service/internal/apperr"
	"sensor-service/internal/bucket"
	"sensor-service/internal/observability"
	"sensor-service/internal/store"
)

// Series buckets the readings of the recent series window. An empty mac
// covers every device; an unknown mac is NotFound.
func (s *Service) Series(ctx context.Context, mac string) (bucket.Result, error) {
	defer observability.ObserveQuery(ctx, "series", time.Now())

	q, err := s.windowQuery()
	if err != nil {
		return nil, err
	}
	if mac = NormalizeMAC(mac); mac != "" {
		dev, err := s.devices.DeviceByMAC(ctx, mac)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("device %s not found", mac))
		}
		if err != nil {
			return nil, apperr.Internal("lookup device", err)
		}
		q.DeviceID = dev.ID
	}

	rows, err := s.readings.ListReadings(ctx, q)
	if err != nil {
		return nil, apperr.Internal("series readings", err)
	}
	res, err := bucket.Aggregate(samplesOf(rows), s.width)
	if err != nil {
		return nil, apperr.Internal("aggregate", err)
	}
	observability.ObserveBuckets(ctx, "series", countBuckets(res))
	return res, nil
}

// ParseMetricFilter maps the chart "data" parameter onto metrics.
func ParseMetricFilter(v string) ([]bucket.Metric, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "all":
		return bucket.Metrics, nil
	case "temp", "temperature":
		return []bucket.Metric{bucket.Temperature}, nil
	case "humidity", "hum":
		return []bucket.Metric{bucket.Humidity}, nil
	case "press", "pressure":
		return []bucket.Metric{bucket.Pressure}, nil
	}
	return nil, apperr.InvalidArgument(fmt.Sprintf("invalid data %q: use temp, humidity, press or all", v)).
		WithField("parameter", "data").
		WithField("value", v)
}

// ChartSeries is keyed by device name, then metric.
type ChartSeries map[string]map[bucket.Metric]bucket.Series

// Chart buckets the series window for one device (or all) and keeps only
// the requested metrics. No matching readings is NotFound.
func (s *Service) Chart(ctx context.Context, deviceID *uint, metrics []bucket.Metric) (ChartSeries, error) {
	defer observability.ObserveQuery(ctx, "chart", time.Now())

	if len(metrics) == 0 {
		metrics = bucket.Metrics
	}
	q, err := s.windowQuery()
	if err != nil {
		return nil, err
	}
	q.WithDevices = true
	if deviceID != nil {
		q.DeviceID = *deviceID
	}

	rows, err := s.readings.ListReadings(ctx, q)
	if err != nil {
		return nil, apperr.Internal("chart readings", err)
	}
	if len(rows) == 0 {
		return nil, apperr.NotFound("no readings in chart window")
	}

	res, err := bucket.Aggregate(samplesOf(rows), s.width)
	if err != nil {
		return nil, apperr.Internal("aggregate", err)
	}
	observability.ObserveBuckets(ctx, "chart", countBuckets(res))

	names := deviceNames(rows)
	out := make(ChartSeries, len(res))
	for devID, perMetric := range res {
		selected := make(map[bucket.Metric]bucket.Series, len(metrics))
		for _, m := range metrics {
			selected[m] = perMetric[m]
		}
		out[names[devID]] = selected
	}
	return out, nil
}

func (s *Service) windowQuery() (store.ReadingQuery, error) {
	if s.width <= 0 {
		return store.ReadingQuery{}, apperr.Internal("aggregate", bucket.ErrInvalidWidth)
	}
	now := s.clock()
	return store.ReadingQuery{From: now.Add(-s.seriesWindow), To: now}, nil
}

// deviceNames labels devices by name, disambiguating duplicates with the id.
// A label never collides with another device's real name.
func deviceNames(rows []store.Reading) map[uint]string {
	byID := make(map[uint]string)
	count := make(map[string]int)
	var ids []uint
	for _, r := range rows {
		if _, ok := byID[r.DeviceID]; ok {
			continue
		}
		name := fmt.Sprintf("device %d", r.DeviceID)
		if r.Device != nil && r.Device.Name != "" {
			name = r.Device.Name
		}
		byID[r.DeviceID] = name
		count[name]++
		ids = append(ids, r.DeviceID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	taken := make(map[string]bool, len(byID))
	for _, name := range byID {
		if count[name] == 1 {
			taken[name] = true
		}
	}
	for _, id := range ids {
		name := byID[id]
		if count[name] == 1 {
			continue
		}
		label := fmt.Sprintf("%s (#%d)", name, id)
		for n := 2; taken[label]; n++ {
			label = fmt.Sprintf("%s (#%d-%d)", name, id, n)
		}
		taken[label] = true
		byID[id] = label
	}
	return byID
}

func countBuckets(res bucket.Result) int {
	n := 0
	for _, perMetric := range res {
		n += len(perMetric[bucket.Temperature])
	}
	return n
}
