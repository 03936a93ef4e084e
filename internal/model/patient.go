package model

import (
	"github.com/google/uuid"
)

// Patient is owned by the student-management module; this service only
// resolves the opaque identifier to a display name.
type Patient struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Name string    `json:"name" db:"name"`
}
