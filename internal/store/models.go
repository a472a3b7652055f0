package store

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"size:100;not null" json:"-"`
	Status       float64   `gorm:"not null" json:"status"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (User) TableName() string { return "sensor_users" }

// Device is a sensor unit. MACAddress is unique; provisioning relies on it.
type Device struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	MACAddress  string    `gorm:"column:mac_address;size:50;uniqueIndex;not null" json:"mac_address"`
	IPAddress   string    `gorm:"column:ip_address;size:50;not null" json:"ip_address"`
	OwnerID     uint      `gorm:"index;not null" json:"owner_id"`
	Owner       *User     `gorm:"foreignKey:OwnerID" json:"-"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `gorm:"size:50" json:"description"`
	IsActive    float64   `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

func (Device) TableName() string { return "sensor_devices" }

// Reading is immutable once stored. ID doubles as insertion order.
type Reading struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	DeviceID    uint      `gorm:"index:idx_reading_device_ts,priority:1;not null" json:"device_id"`
	Device      *Device   `gorm:"foreignKey:DeviceID" json:"-"`
	Timestamp   time.Time `gorm:"index:idx_reading_device_ts,priority:2;index:idx_reading_ts;not null" json:"timestamp"`
	Temperature float64   `gorm:"not null" json:"temperature"`
	Humidity    float64   `gorm:"not null" json:"humidity"`
	Pressure    float64   `gorm:"not null" json:"pressure"`
}

func (Reading) TableName() string { return "sensor_readings" }
