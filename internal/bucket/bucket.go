// Package bucket downsamples sensor readings into fixed-width time buckets.
package bucket

import (
	"errors"
	"math"
	"sort"
	"time"
)

type Metric string

const (
	Temperature Metric = "temperature"
	Humidity    Metric = "humidity"
	Pressure    Metric = "pressure"
)

// Metrics lists every metric a Sample carries, in output order.
var Metrics = []Metric{Temperature, Humidity, Pressure}

// DefaultWidth is the dashboard resolution.
const DefaultWidth = 10 * time.Minute

var ErrInvalidWidth = errors.New("bucket width must be positive")

// Sample is one reading as seen by the engine. All three metrics are present;
// readings with missing values are rejected at ingestion.
type Sample struct {
	DeviceID    uint
	Timestamp   time.Time
	Temperature float64
	Humidity    float64
	Pressure    float64
}

func (s Sample) value(i int) float64 {
	switch Metrics[i] {
	case Temperature:
		return s.Temperature
	case Humidity:
		return s.Humidity
	default:
		return s.Pressure
	}
}

// Point is the mean of every sample that fell into [Start, Start+width).
type Point struct {
	Start time.Time
	Mean  float64
	Count int
}

// Series is ordered by Start ascending.
type Series []Point

// Result is keyed by device id, then metric.
type Result map[uint]map[Metric]Series

// Floor returns the start of the bucket containing ts.
func Floor(ts time.Time, width time.Duration) time.Time {
	return ts.UTC().Truncate(width)
}

type bucketKey struct {
	device uint
	start  int64
}

type accumulator struct {
	start time.Time
	count int
	sums  [3]float64
	// means is a running mean, used when a sum overflows float64.
	means [3]float64
}

func (a *accumulator) add(s Sample) {
	a.count++
	n := float64(a.count)
	for i := range Metrics {
		v := s.value(i)
		a.sums[i] += v
		a.means[i] += v/n - a.means[i]/n
	}
}

func (a *accumulator) mean(i int) float64 {
	m := a.sums[i] / float64(a.count)
	if math.IsInf(m, 0) || math.IsNaN(m) {
		return a.means[i]
	}
	return m
}

// Aggregate assigns every sample to exactly one bucket per metric and returns
// the per-bucket means. Sums are accumulated in input order, so the same input
// always produces bit-identical means. Means stay finite for finite input.
// samples is not modified.
func Aggregate(samples []Sample, width time.Duration) (Result, error) {
	if width <= 0 {
		return nil, ErrInvalidWidth
	}

	accs := make(map[bucketKey]*accumulator)
	order := make(map[uint][]bucketKey)
	var devices []uint

	for _, s := range samples {
		start := Floor(s.Timestamp, width)
		k := bucketKey{device: s.DeviceID, start: start.UnixNano()}
		a, ok := accs[k]
		if !ok {
			a = &accumulator{start: start}
			accs[k] = a
			if _, seen := order[s.DeviceID]; !seen {
				devices = append(devices, s.DeviceID)
			}
			order[s.DeviceID] = append(order[s.DeviceID], k)
		}
		a.add(s)
	}

	out := make(Result, len(devices))
	for _, dev := range devices {
		keys := order[dev]
		sort.Slice(keys, func(i, j int) bool { return keys[i].start < keys[j].start })

		perMetric := make(map[Metric]Series, len(Metrics))
		for i, m := range Metrics {
			series := make(Series, 0, len(keys))
			for _, k := range keys {
				a := accs[k]
				if a.count == 0 {
					continue
				}
				series = append(series, Point{Start: a.start, Mean: a.mean(i), Count: a.count})
			}
			perMetric[m] = series
		}
		out[dev] = perMetric
	}
	return out, nil
}
