package model

import (
	"time"

	"pix-membership-platform/internal/domain"

	"github.com/google/uuid"
)

// User is a member of the site. Anonymous users are created on first visit
// and upgraded in place when they register; stale anonymous accounts are
// swept by the cleanup job.
type User struct {
	ID           string
	Email        string // empty while anonymous
	Name         string
	Phone        string
	IsAdmin      bool
	IsAnonymous  bool
	RegisteredAt time.Time
	LastActiveAt time.Time
}

func NewUser(id, email, name string) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &User{
		ID:           id,
		Email:        email,
		Name:         name,
		RegisteredAt: now,
		LastActiveAt: now,
	}, nil
}

func NewAnonymousUser() *User {
	now := time.Now()
	return &User{
		ID:           uuid.NewString(),
		IsAnonymous:  true,
		RegisteredAt: now,
		LastActiveAt: now,
	}
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }
func (u *User) Touch()       { u.LastActiveAt = time.Now() }
