package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one row of the append-only ledger. Seq is assigned by the
// storage layer as a monotonic sequence. Targets are referenced by
// (table, id) pair rather than foreign key so an entry survives any
// lifecycle change of the row it describes.
type AuditEntry struct {
	Seq         int64           `json:"seq" db:"seq"`
	ActorID     uuid.UUID       `json:"actor_id" db:"actor_id"`
	ActionKind  string          `json:"action_kind" db:"action_kind"`
	TargetTable string          `json:"target_table,omitempty" db:"target_table"`
	TargetID    *uuid.UUID      `json:"target_id,omitempty" db:"target_id"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	OccurredAt  time.Time       `json:"occurred_at" db:"occurred_at"`
}

// Action kinds.
const (
	AuditDispenseAttempt        = "DISPENSE_ATTEMPT"
	AuditDispenseSuccess        = "DISPENSE_SUCCESS"
	AuditDispenseBlockedAllergy = "DISPENSE_BLOCKED_ALLERGY"
	AuditAllergyCreate          = "ALLERGY_CREATE"
	AuditAllergyDelete          = "ALLERGY_DELETE"
	AuditMedicationCreate       = "MEDICATION_CREATE"
	AuditLotReceive             = "LOT_RECEIVE"
	AuditEpisodeOpen            = "EPISODE_OPEN"
	AuditEpisodeClose           = "EPISODE_CLOSE"
)

// Target tables.
const (
	AuditTargetEpisode      = "clinical_episodes"
	AuditTargetLot          = "inventory_lots"
	AuditTargetAllergy      = "allergy_records"
	AuditTargetMedication   = "medications"
	AuditTargetDispensation = "dispensation_records"
)

// AuditFilter narrows ledger reads; zero values mean "any".
type AuditFilter struct {
	ActorID     *uuid.UUID
	ActionKind  string
	TargetTable string
	TargetID    *uuid.UUID
	Limit       int
}
