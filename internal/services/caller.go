package services

import (
	"github.com/gofrs/uuid"

	"taskhub/backend/internal/models"
)

// Caller is the identity recovered from a validated token.
type Caller struct {
	ID   uuid.UUID `json:"id"`
	Role string    `json:"role"`
}

func (c Caller) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

func CallerFromUser(u *models.User) Caller {
	return Caller{ID: u.ID, Role: u.Role}
}
