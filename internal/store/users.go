package store

import (
	"context"
	"strings"
	"time"
)

func (r *Repo) CreateUser(ctx context.Context, u *User) error {
	u.Username = strings.TrimSpace(u.Username)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return translate(r.db.WithContext(ctx).Create(u).Error)
}

func (r *Repo) ListUsers(ctx context.Context) ([]User, error) {
	var rows []User
	if err := r.db.WithContext(ctx).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FirstUser returns the earliest created user, ties broken by id.
func (r *Repo) FirstUser(ctx context.Context) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Order("created_at asc, id asc").First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (r *Repo) UserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	if err := r.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}
