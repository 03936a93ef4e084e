package allergy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/ingredient"
	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
	"github.com/lbarbosa/infirmary-api/internal/service/audit"
	apperrors "github.com/lbarbosa/infirmary-api/pkg/errors"
	"github.com/lbarbosa/infirmary-api/pkg/logger"
)

// Service owns allergy records and the cross-check engine.
type Service struct {
	patients  repository.PatientRepository
	allergies repository.AllergyRepository
	auditor   *audit.Service
	logger    *logger.Logger
}

func NewService(patients repository.PatientRepository, allergies repository.AllergyRepository, auditor *audit.Service, log *logger.Logger) *Service {
	return &Service{
		patients:  patients,
		allergies: allergies,
		auditor:   auditor,
		logger:    log.WithComponent("allergy"),
	}
}

// Create registers a new allergy record. Duplicate ingredient for the same
// patient is rejected here, at creation, not at dispensation time.
func (s *Service) Create(ctx context.Context, operator model.Operator, patientID uuid.UUID, req *model.CreateAllergyRequest) (*model.AllergyRecord, error) {
	if _, err := s.patients.Get(ctx, patientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to resolve patient: %w", err)
	}

	normalized := ingredient.Normalize(req.Allergen)
	if normalized == "" {
		return nil, apperrors.BadRequest("allergen name normalizes to empty string", nil)
	}

	severity := model.Severity(req.Severity)
	if !model.ValidSeverity(severity) {
		return nil, apperrors.BadRequest(fmt.Sprintf("unknown severity %q", req.Severity), nil)
	}

	rec := &model.AllergyRecord{
		ID:                   uuid.New(),
		PatientID:            patientID,
		NormalizedIngredient: normalized,
		DisplayAllergenName:  req.Allergen,
		Severity:             severity,
		ReactionNote:         req.ReactionNote,
		DiagnosedBy:          req.DiagnosedBy,
		CreatedAt:            time.Now().UTC(),
	}

	if err := s.allergies.Create(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicateAllergy) {
			return nil, apperrors.Conflict("patient already has an allergy record for this ingredient", err)
		}
		return nil, fmt.Errorf("failed to create allergy record: %w", err)
	}

	if _, err := s.auditor.Append(ctx, operator.ID, model.AuditAllergyCreate, model.AuditTargetAllergy, &rec.ID, rec); err != nil {
		s.logger.Error(err, "allergy create audit failed", map[string]interface{}{"allergy_id": rec.ID})
	}

	return rec, nil
}

// Delete hard-deletes a record; the deletion itself is audited with a full
// snapshot so the history survives the row.
func (s *Service) Delete(ctx context.Context, operator model.Operator, id uuid.UUID) error {
	rec, err := s.allergies.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("allergy record", err)
		}
		return fmt.Errorf("failed to get allergy record: %w", err)
	}

	if err := s.allergies.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("allergy record", err)
		}
		return fmt.Errorf("failed to delete allergy record: %w", err)
	}

	if _, err := s.auditor.Append(ctx, operator.ID, model.AuditAllergyDelete, model.AuditTargetAllergy, &id, rec); err != nil {
		s.logger.Error(err, "allergy delete audit failed", map[string]interface{}{"allergy_id": id})
	}

	return nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.AllergyRecord, error) {
	return s.allergies.ListByPatient(ctx, patientID)
}

// Check is the cross-check engine: it compares the target ingredient against
// every allergy on file for the patient and classifies the matches. It is a
// pure read with no side effects, safe to call speculatively.
func (s *Service) Check(ctx context.Context, patientID uuid.UUID, rawIngredient string) (*model.CheckResult, error) {
	if _, err := s.patients.Get(ctx, patientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to resolve patient: %w", err)
	}

	target := ingredient.Normalize(rawIngredient)

	records, err := s.allergies.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to load allergy records: %w", err)
	}

	result := &model.CheckResult{}
	for _, rec := range records {
		if rec.NormalizedIngredient != target || target == "" {
			continue
		}
		conflict := model.Conflict{
			AllergenName: rec.DisplayAllergenName,
			Severity:     rec.Severity,
			ReactionNote: rec.ReactionNote,
			DiagnosedBy:  rec.DiagnosedBy,
		}
		result.Conflicts = append(result.Conflicts, conflict)

		if model.BlockingSeverity(rec.Severity) {
			result.HasBlockingConflict = true
		}
		// Ties broken by encounter order: strict greater-than keeps the
		// first conflict of the highest rank.
		if result.MostSevere == nil || model.SeverityRank(rec.Severity) > model.SeverityRank(result.MostSevere.Severity) {
			c := conflict
			result.MostSevere = &c
		}
	}

	result.Safe = len(result.Conflicts) == 0
	result.WarningOnly = len(result.Conflicts) > 0 && !result.HasBlockingConflict

	return result, nil
}
