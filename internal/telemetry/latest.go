package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sensor-service/internal/apperr"
	"sensor-service/internal/observability"
	"sensor-service/internal/store"
)

// DeviceLatest holds the newest and second-newest reading of a device.
// Current is nil only when the device has never reported.
type DeviceLatest struct {
	Device   store.Device
	Current  *store.Reading
	Previous *store.Reading
}

// LatestTwo resolves one device when deviceID is set, otherwise every device.
func (s *Service) LatestTwo(ctx context.Context, deviceID *uint) ([]DeviceLatest, error) {
	defer observability.ObserveQuery(ctx, "latest_two", time.Now())

	var devices []store.Device
	if deviceID != nil {
		dev, err := s.devices.DeviceByID(ctx, *deviceID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("device %d not found", *deviceID))
		}
		if err != nil {
			return nil, apperr.Internal("lookup device", err)
		}
		devices = []store.Device{*dev}
	} else {
		all, err := s.devices.ListDevices(ctx)
		if err != nil {
			return nil, apperr.Internal("list devices", err)
		}
		devices = all
	}

	out := make([]DeviceLatest, 0, len(devices))
	for _, dev := range devices {
		rows, err := s.readings.LatestReadings(ctx, dev.ID, 2)
		if err != nil {
			return nil, apperr.Internal("latest readings", err)
		}
		entry := DeviceLatest{Device: dev}
		if len(rows) > 0 {
			entry.Current = &rows[0]
		}
		if len(rows) > 1 {
			entry.Previous = &rows[1]
		}
		out = append(out, entry)
	}
	return out, nil
}
