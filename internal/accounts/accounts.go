// Package accounts manages users and exposes device records.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"sensor-service/internal/apperr"
	"sensor-service/internal/store"

	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *store.User) error
	ListUsers(ctx context.Context) ([]store.User, error)
}

type DeviceStore interface {
	DeviceByID(ctx context.Context, id uint) (*store.Device, error)
	ListDevices(ctx context.Context) ([]store.Device, error)
}

type Service struct {
	users    UserStore
	devices  DeviceStore
	hashCost int
}

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

func New(users UserStore, devices DeviceStore) *Service {
	return &Service{users: users, devices: devices, hashCost: bcrypt.DefaultCost}
}

// WithHashCost lowers the bcrypt cost, for tests.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

func (s *Service) CreateUser(ctx context.Context, username, password string) (*store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Validation("username and password are required")
	}
	if len(password) > maxPasswordBytes {
		return nil, apperr.Validation(fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes)).
			WithField("parameter", "password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}
	u := &store.User{Username: username, PasswordHash: string(hash), Status: 1}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict(fmt.Sprintf("user %s already exists", username))
		}
		return nil, apperr.Internal("create user", err)
	}
	slog.Info("user created", "user_id", u.ID, "username", u.Username)
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]store.User, error) {
	rows, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, apperr.Internal("list users", err)
	}
	return rows, nil
}

func (s *Service) ListDevices(ctx context.Context) ([]store.Device, error) {
	rows, err := s.devices.ListDevices(ctx)
	if err != nil {
		return nil, apperr.Internal("list devices", err)
	}
	return rows, nil
}

func (s *Service) GetDevice(ctx context.Context, id uint) (*store.Device, error) {
	d, err := s.devices.DeviceByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(fmt.Sprintf("device %d not found", id))
	}
	if err != nil {
		return nil, apperr.Internal("lookup device", err)
	}
	return d, nil
}
