package telemetry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"sensor-service/internal/apperr"
	"sensor-service/internal/bucket"
)

func TestSeries(t *testing.T) {
	svc, repo, _ := newTestService(t, Options{})
	ctx := context.Background()
	owner := seedUser(t, repo, "alice", time.Time{})
	dev := seedDevice(t, repo, owner, "AA:01", "porch")
	other := seedDevice(t, repo, owner, "AA:02", "attic")

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	seedReading(t, repo, dev.ID, day.Add(7*time.Hour), 99, 99, 99)
	seedReading(t, repo, dev.ID, day.Add(9*time.Hour+31*time.Minute), 20, 40, 1000)
	seedReading(t, repo, dev.ID, day.Add(9*time.Hour+37*time.Minute), 22, 42, 1002)
	seedReading(t, repo, dev.ID, day.Add(9*time.Hour+42*time.Minute), 24, 44, 1004)
	seedReading(t, repo, other.ID, day.Add(9*time.Hour+45*time.Minute), 5, 5, 5)

	res, err := svc.Series(ctx, "AA:01")
	if err != nil {
		t.Fatalf("series: %v", err)
	}
	if len(res) != 1 {
		t.Fatalf("expected only the requested device, got %d", len(res))
	}
	temps := res[dev.ID][bucket.Temperature]
	if len(temps) != 2 {
		t.Fatalf("expected 2 buckets, got %+v", temps)
	}
	if !temps[0].Start.Equal(day.Add(9*time.Hour+30*time.Minute)) || temps[0].Mean != 21 || temps[0].Count != 2 {
		t.Fatalf("unexpected first bucket %+v", temps[0])
	}
	if temps[1].Mean != 24 || temps[1].Count != 1 {
		t.Fatalf("unexpected second bucket %+v", temps[1])
	}

	all, err := svc.Series(ctx, "")
	if err != nil {
		t.Fatalf("series all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected both devices, got %d", len(all))
	}

	if _, err := svc.Series(ctx, "FF:FF"); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParseMetricFilter(t *testing.T) {
	cases := map[string][]bucket.Metric{
		"":         bucket.Metrics,
		"all":      bucket.Metrics,
		"temp":     {bucket.Temperature},
		"Humidity": {bucket.Humidity},
		"press":    {bucket.Pressure},
	}
	for in, want := range cases {
		got, err := ParseMetricFilter(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if len(got) != len(want) || got[0] != want[0] {
			t.Fatalf("%q: expected %v, got %v", in, want, got)
		}
	}
	if _, err := ParseMetricFilter("wind"); apperr.KindOf(err) != apperr.KindInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestChart(t *testing.T) {
	svc, repo, _ := newTestService(t, Options{})
	ctx := context.Background()
	owner := seedUser(t, repo, "alice", time.Time{})
	a := seedDevice(t, repo, owner, "AA:01", "sensor")
	b := seedDevice(t, repo, owner, "AA:02", "sensor")
	c := seedDevice(t, repo, owner, "AA:03", "garage")

	ts := time.Date(2025, 3, 1, 9, 50, 0, 0, time.UTC)
	seedReading(t, repo, a.ID, ts, 1, 2, 3)
	seedReading(t, repo, b.ID, ts, 4, 5, 6)
	seedReading(t, repo, c.ID, ts, 7, 8, 9)

	chart, err := svc.Chart(ctx, nil, []bucket.Metric{bucket.Humidity})
	if err != nil {
		t.Fatalf("chart: %v", err)
	}
	if len(chart) != 3 {
		t.Fatalf("expected 3 series, got %v", chart)
	}
	if _, ok := chart["garage"]; !ok {
		t.Fatalf("expected garage keyed by name, got %v", chart)
	}
	dup, ok := chart[fmt.Sprintf("sensor (#%d)", a.ID)]
	if !ok {
		t.Fatalf("expected duplicate names disambiguated, got %v", chart)
	}
	if _, has := dup[bucket.Temperature]; has {
		t.Fatalf("expected only humidity, got %v", dup)
	}
	if got := dup[bucket.Humidity]; len(got) != 1 || got[0].Mean != 2 {
		t.Fatalf("unexpected humidity series %+v", got)
	}

	id := c.ID
	one, err := svc.Chart(ctx, &id, nil)
	if err != nil {
		t.Fatalf("chart one: %v", err)
	}
	if len(one) != 1 || len(one["garage"]) != 3 {
		t.Fatalf("expected all metrics for garage, got %v", one)
	}

	missing := uint(999)
	if _, err := svc.Chart(ctx, &missing, nil); apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestChartLabelsNeverCollide(t *testing.T) {
	svc, repo, _ := newTestService(t, Options{})
	owner := seedUser(t, repo, "alice", time.Time{})
	a := seedDevice(t, repo, owner, "AA:01", "A")
	b := seedDevice(t, repo, owner, "AA:02", "A")
	c := seedDevice(t, repo, owner, "AA:03", fmt.Sprintf("A (#%d)", b.ID))

	ts := time.Date(2025, 3, 1, 9, 50, 0, 0, time.UTC)
	seedReading(t, repo, a.ID, ts, 1, 2, 3)
	seedReading(t, repo, b.ID, ts, 4, 5, 6)
	seedReading(t, repo, c.ID, ts, 7, 8, 9)

	chart, err := svc.Chart(context.Background(), nil, []bucket.Metric{bucket.Temperature})
	if err != nil {
		t.Fatalf("chart: %v", err)
	}
	if len(chart) != 3 {
		t.Fatalf("expected 3 distinct series, got %v", chart)
	}
	want := map[string]float64{
		fmt.Sprintf("A (#%d)", a.ID):   1,
		fmt.Sprintf("A (#%d-2)", b.ID): 4,
		c.Name:                         7,
	}
	for label, mean := range want {
		got := chart[label][bucket.Temperature]
		if len(got) != 1 || got[0].Mean != mean {
			t.Fatalf("label %q: expected mean %v, got %+v (chart %v)", label, mean, got, chart)
		}
	}
}
