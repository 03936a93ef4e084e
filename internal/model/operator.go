package model

import (
	"github.com/google/uuid"
)

// Operator is the authenticated clinical staff member acting on a request.
// Identity is established by the HTTP layer; services receive it as data.
type Operator struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}
