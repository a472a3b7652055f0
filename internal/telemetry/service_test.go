package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"sensor-service/internal/store"
)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func openTestRepo(t *testing.T) *store.Repo {
	t.Helper()
	dsn := "file:telemetry_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := store.OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := store.New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func newTestService(t *testing.T, opts Options) (*Service, *store.Repo, *testClock) {
	t.Helper()
	repo := openTestRepo(t)
	clk := &testClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	if opts.Now == nil {
		opts.Now = clk.Now
	}
	return NewFromRepo(repo, opts), repo, clk
}

func seedUser(t *testing.T, repo *store.Repo, name string, created time.Time) *store.User {
	t.Helper()
	u := &store.User{Username: name, PasswordHash: "x", Status: 1, CreatedAt: created}
	if err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func seedDevice(t *testing.T, repo *store.Repo, owner *store.User, mac, name string) *store.Device {
	t.Helper()
	d := &store.Device{MACAddress: mac, OwnerID: owner.ID, Name: name, IsActive: 1}
	if err := repo.CreateDevice(context.Background(), d); err != nil {
		t.Fatalf("create device: %v", err)
	}
	return d
}

func seedReading(t *testing.T, repo *store.Repo, deviceID uint, ts time.Time, temp, hum, press float64) *store.Reading {
	t.Helper()
	rd := &store.Reading{DeviceID: deviceID, Timestamp: ts, Temperature: temp, Humidity: hum, Pressure: press}
	if err := repo.InsertReading(context.Background(), rd); err != nil {
		t.Fatalf("insert reading: %v", err)
	}
	return rd
}

func f(v float64) *float64 { return &v }
