package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"

	"sensor-service/internal/apperr"
	"sensor-service/internal/observability"
	"sensor-service/internal/store"
)

// IngestRequest is one reading as submitted by a device. Metrics are pointers
// so that an absent value can be told apart from a measured zero.
type IngestRequest struct {
	MACAddress  string
	Temperature *float64
	Humidity    *float64
	Pressure    *float64
	IPAddress   string
	Source      string
}

// Ingest validates and stores one reading, provisioning the device on first
// contact. It is not idempotent: a retried request stores a second reading.
// The returned reading has Device populated.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*store.Reading, error) {
	mac := NormalizeMAC(req.MACAddress)
	if mac == "" || req.Temperature == nil || req.Humidity == nil || req.Pressure == nil {
		return nil, apperr.Validation("missing field: mac_address, temperature, humidity and pressure are required")
	}
	for _, m := range []struct {
		name string
		v    float64
	}{{"temperature", *req.Temperature}, {"humidity", *req.Humidity}, {"pressure", *req.Pressure}} {
		if math.IsNaN(m.v) || math.IsInf(m.v, 0) {
			return nil, apperr.Validation(m.name + " must be a finite number").WithField("parameter", m.name)
		}
	}

	dev, err := s.resolveDevice(ctx, mac, strings.TrimSpace(req.IPAddress))
	if err != nil {
		return nil, err
	}

	rd := &store.Reading{
		DeviceID:    dev.ID,
		Timestamp:   s.clock().Truncate(time.Microsecond),
		Temperature: *req.Temperature,
		Humidity:    *req.Humidity,
		Pressure:    *req.Pressure,
	}
	if err := s.readings.InsertReading(ctx, rd); err != nil {
		return nil, apperr.Internal("store reading", err)
	}
	rd.Device = dev

	source := req.Source
	if source == "" {
		source = "http"
	}
	observability.ReadingsIngested.WithLabelValues(source).Inc()
	slog.Debug("reading stored", "device_id", dev.ID, "mac", mac, "source", source, "ts", rd.Timestamp)
	return rd, nil
}

// NormalizeMAC trims and upper-cases a MAC address.
func NormalizeMAC(mac string) string {
	return strings.ToUpper(strings.TrimSpace(mac))
}

func (s *Service) resolveDevice(ctx context.Context, mac, ip string) (*store.Device, error) {
	dev, err := s.devices.DeviceByMAC(ctx, mac)
	switch {
	case err == nil:
		if ip != "" && dev.IPAddress != ip {
			if err := s.devices.UpdateDeviceIP(ctx, dev.ID, ip); err != nil {
				slog.Warn("device ip update failed", "device_id", dev.ID, "error", err)
			} else {
				dev.IPAddress = ip
			}
		}
		return dev, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, apperr.Internal("lookup device", err)
	}

	owner, err := s.resolveOwner(ctx)
	if err != nil {
		return nil, err
	}

	dev = &store.Device{
		MACAddress:  mac,
		IPAddress:   ip,
		OwnerID:     owner.ID,
		Owner:       owner,
		Name:        "Device " + mac,
		Description: "Auto-created device",
		IsActive:    1,
	}
	if err := s.devices.CreateDevice(ctx, dev); err != nil {
		// A concurrent ingest may have created the row first; the unique
		// index on mac_address makes its row the one to use.
		if existing, lerr := s.devices.DeviceByMAC(ctx, mac); lerr == nil {
			slog.Info("device provisioning lost race, reusing row", "mac", mac, "device_id", existing.ID)
			return existing, nil
		}
		return nil, apperr.Internal("provision device", err)
	}
	observability.DevicesProvisioned.Inc()
	slog.Info("device provisioned", "mac", mac, "device_id", dev.ID, "owner", owner.Username)
	return dev, nil
}

func (s *Service) resolveOwner(ctx context.Context) (*store.User, error) {
	var (
		owner *store.User
		err   error
	)
	if s.defaultOwner != "" {
		owner, err = s.users.UserByUsername(ctx, s.defaultOwner)
	} else {
		owner, err = s.users.FirstUser(ctx)
	}
	if errors.Is(err, store.ErrNotFound) {
		msg := "no owner available for new device"
		if s.defaultOwner != "" {
			msg = "default owner " + s.defaultOwner + " does not exist"
		}
		return nil, apperr.NoOwnerAvailable(msg)
	}
	if err != nil {
		return nil, apperr.Internal("lookup owner", err)
	}
	return owner, nil
}
