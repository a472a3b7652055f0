package store

import (
	"context"
	"time"
)

func (r *Repo) DeviceByMAC(ctx context.Context, mac string) (*Device, error) {
	var d Device
	if err := r.db.WithContext(ctx).Preload("Owner").Where("mac_address = ?", mac).First(&d).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *Repo) DeviceByID(ctx context.Context, id uint) (*Device, error) {
	var d Device
	if err := r.db.WithContext(ctx).Preload("Owner").First(&d, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &d, nil
}

func (r *Repo) ListDevices(ctx context.Context) ([]Device, error) {
	var rows []Device
	if err := r.db.WithContext(ctx).Preload("Owner").Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CreateDevice fails with ErrDuplicate when another writer already owns the MAC.
func (r *Repo) CreateDevice(ctx context.Context, d *Device) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	owner := d.Owner
	d.Owner = nil
	err := r.db.WithContext(ctx).Create(d).Error
	d.Owner = owner
	return translate(err)
}

func (r *Repo) UpdateDeviceIP(ctx context.Context, id uint, ip string) error {
	res := r.db.WithContext(ctx).Model(&Device{}).Where("id = ?", id).Update("ip_address", ip)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
