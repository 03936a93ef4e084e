package model

import (
	"time"

	"github.com/google/uuid"
)

// DispensationRecord is evidence of a physical act that already occurred.
// It is immutable once created; no update path exists anywhere.
type DispensationRecord struct {
	ID                 uuid.UUID `json:"id" db:"id"`
	EpisodeID          uuid.UUID `json:"episode_id" db:"episode_id"`
	LotID              uuid.UUID `json:"lot_id" db:"lot_id"`
	OperatorID         uuid.UUID `json:"operator_id" db:"operator_id"`
	Quantity           int       `json:"quantity" db:"quantity"`
	DosageInstructions string    `json:"dosage_instructions" db:"dosage_instructions"`
	AllergyCheckPassed bool      `json:"allergy_check_passed" db:"allergy_check_passed"`
	DispensedAt        time.Time `json:"dispensed_at" db:"dispensed_at"`
}
