package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/model"
)

// Sentinel errors shared by all storage implementations.
var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTxConflict is returned when a serializable transaction lost to a
	// concurrent one. Callers must re-run their precondition reads from
	// scratch before retrying the write.
	ErrTxConflict = errors.New("transaction serialization conflict")

	// ErrInsufficientStock is returned by DecrementLot when the decrement
	// would take quantity_available below zero.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrStaleTransition is returned when an episode status transition found
	// the episode no longer in the expected source status.
	ErrStaleTransition = errors.New("episode status changed concurrently")

	// ErrDuplicateAllergy is returned when a (patient, normalized ingredient)
	// pair already has a record.
	ErrDuplicateAllergy = errors.New("duplicate allergy record for ingredient")
)

type (
	// PatientRepository resolves patient references owned by the excluded
	// student-management module. Read-only here.
	PatientRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	}

	// AllergyRepository stores allergy records. Records are created and hard
	// deleted, never updated.
	AllergyRepository interface {
		Create(ctx context.Context, rec *model.AllergyRecord) error
		Get(ctx context.Context, id uuid.UUID) (*model.AllergyRecord, error)
		Delete(ctx context.Context, id uuid.UUID) error
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.AllergyRecord, error)
	}

	MedicationRepository interface {
		Create(ctx context.Context, med *model.Medication) error
		Get(ctx context.Context, id uuid.UUID) (*model.Medication, error)
		List(ctx context.Context, activeOnly bool) ([]*model.Medication, error)
	}

	// LotRepository stores inventory lots. Lots are never deleted; outside of
	// the dispense transaction their quantities are never mutated either.
	LotRepository interface {
		Create(ctx context.Context, lot *model.InventoryLot) error
		Get(ctx context.Context, id uuid.UUID) (*model.InventoryLot, error)
		ListByMedication(ctx context.Context, medicationID uuid.UUID) ([]*model.InventoryLot, error)
	}

	EpisodeRepository interface {
		Create(ctx context.Context, ep *model.ClinicalEpisode) error
		Get(ctx context.Context, id uuid.UUID) (*model.ClinicalEpisode, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.ClinicalEpisode, error)
		// Transition moves an episode from one status to another, guarded by
		// the expected source status. Returns ErrStaleTransition if the
		// episode was not in the expected status.
		Transition(ctx context.Context, id uuid.UUID, from, to model.EpisodeStatus, closedAt *time.Time) error
	}

	// DispensationRepository reads dispensation records. Creation happens
	// only inside DispenseTx; there is no update or delete anywhere.
	DispensationRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.DispensationRecord, error)
		ListByEpisode(ctx context.Context, episodeID uuid.UUID) ([]*model.DispensationRecord, error)
	}

	// AuditRepository is the append-only ledger. Update and delete are not
	// part of the interface at all; the schema additionally rejects them for
	// callers that bypass this layer.
	AuditRepository interface {
		Append(ctx context.Context, entry *model.AuditEntry) error
		List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEntry, error)
	}

	OutboxRepository interface {
		GetPendingWithLock(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
	}
)

// DispenseTx is the set of writes available inside the dispensation atomic
// unit. It is the only place a dispensation record is created or a lot
// quantity mutated.
type DispenseTx interface {
	// LotForUpdate re-reads the lot with a row lock; stock observed before
	// the transaction began may already be gone.
	LotForUpdate(ctx context.Context, id uuid.UUID) (*model.InventoryLot, error)
	CreateDispensation(ctx context.Context, rec *model.DispensationRecord) error
	// DecrementLot subtracts qty and returns the remaining quantity.
	DecrementLot(ctx context.Context, lotID uuid.UUID, qty int) (int, error)
	TransitionEpisode(ctx context.Context, id uuid.UUID, from, to model.EpisodeStatus, closedAt *time.Time) error
	AppendAudit(ctx context.Context, entry *model.AuditEntry) error
	EnqueueEvent(ctx context.Context, event *model.OutboxEvent) error
}

// Transactor runs a function inside a serializable transaction. A returned
// error rolls everything back; ErrTxConflict signals the caller to re-read
// and retry.
type Transactor interface {
	WithSerializableTx(ctx context.Context, fn func(tx DispenseTx) error) error
}
