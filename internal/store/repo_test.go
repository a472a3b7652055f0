package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func openTestRepo(t *testing.T) *Repo {
	t.Helper()
	// Use a unique in-memory DB per test to avoid cross-test contamination.
	dsn := "file:store_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	repo, err := New(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo
}

func seedDevice(t *testing.T, repo *Repo, mac string) *Device {
	t.Helper()
	ctx := context.Background()
	u := &User{Username: "owner-" + mac, PasswordHash: "x", Status: 1}
	if err := repo.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	d := &Device{MACAddress: mac, OwnerID: u.ID, Name: "Device " + mac, IsActive: 1}
	if err := repo.CreateDevice(ctx, d); err != nil {
		t.Fatalf("create device: %v", err)
	}
	return d
}

func TestCreateDeviceDuplicateMAC(t *testing.T) {
	repo := openTestRepo(t)
	d := seedDevice(t, repo, "AA:BB")

	dup := &Device{MACAddress: "AA:BB", OwnerID: d.OwnerID, Name: "again", IsActive: 1}
	err := repo.CreateDevice(context.Background(), dup)
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestFirstUserByCreationOrder(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	if _, err := repo.FirstUser(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty table, got %v", err)
	}
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	late := &User{Username: "late", PasswordHash: "x", Status: 1, CreatedAt: base.Add(time.Hour)}
	early := &User{Username: "early", PasswordHash: "x", Status: 1, CreatedAt: base}
	for _, u := range []*User{late, early} {
		if err := repo.CreateUser(ctx, u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}
	first, err := repo.FirstUser(ctx)
	if err != nil {
		t.Fatalf("first user: %v", err)
	}
	if first.Username != "early" {
		t.Fatalf("expected early, got %s", first.Username)
	}
}

func TestListReadingsTieBreakOnID(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	d := seedDevice(t, repo, "AA:01")
	ts := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	var ids []uint
	for i := 0; i < 3; i++ {
		rd := &Reading{DeviceID: d.ID, Timestamp: ts, Temperature: float64(i)}
		if err := repo.InsertReading(ctx, rd); err != nil {
			t.Fatalf("insert: %v", err)
		}
		ids = append(ids, rd.ID)
	}

	asc, err := repo.ListReadings(ctx, ReadingQuery{DeviceID: d.ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i, rd := range asc {
		if rd.ID != ids[i] {
			t.Fatalf("asc position %d: expected id %d, got %d", i, ids[i], rd.ID)
		}
	}

	latest, err := repo.LatestReadings(ctx, d.ID, 2)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 2 || latest[0].ID != ids[2] || latest[1].ID != ids[1] {
		t.Fatalf("unexpected latest order: %+v", latest)
	}
}

func TestListReadingsInclusiveBounds(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	d := seedDevice(t, repo, "AA:02")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		if err := repo.InsertReading(ctx, &Reading{DeviceID: d.ID, Timestamp: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	rows, err := repo.ListReadings(ctx, ReadingQuery{From: base.Add(time.Minute), To: base.Add(3 * time.Minute), WithDevices: true})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Device == nil || rows[0].Device.MACAddress != "AA:02" {
		t.Fatalf("expected preloaded device, got %+v", rows[0].Device)
	}

	none, err := repo.ListReadings(ctx, ReadingQuery{From: base.Add(time.Hour), To: base})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no rows for inverted window, got %d", len(none))
	}
}

func TestUpdateDeviceIP(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	d := seedDevice(t, repo, "AA:03")
	if err := repo.UpdateDeviceIP(ctx, d.ID, "10.0.0.7"); err != nil {
		t.Fatalf("update ip: %v", err)
	}
	got, err := repo.DeviceByMAC(ctx, "AA:03")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.IPAddress != "10.0.0.7" {
		t.Fatalf("expected ip updated, got %q", got.IPAddress)
	}
	if got.Owner == nil || got.Owner.Username != "owner-AA:03" {
		t.Fatalf("expected owner preloaded, got %+v", got.Owner)
	}
	if err := repo.UpdateDeviceIP(ctx, 9999, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
