package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Account identity as the settlement core sees it.
// Authentication and profile management live outside this service.
type Account struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Username  string
	Email     string
	Role      string
}
