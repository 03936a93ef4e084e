package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
)

type allergyRepository struct {
	BaseRepository
}

func NewAllergyRepository(base BaseRepository) repository.AllergyRepository {
	return &allergyRepository{base}
}

func (r *allergyRepository) Create(ctx context.Context, rec *model.AllergyRecord) error {
	query := `
        INSERT INTO allergy_records (
            id, patient_id, normalized_ingredient, display_allergen_name,
            severity, reaction_note, diagnosed_by, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := r.GetDB().ExecContext(ctx, query,
		rec.ID,
		rec.PatientID,
		rec.NormalizedIngredient,
		rec.DisplayAllergenName,
		rec.Severity,
		rec.ReactionNote,
		rec.DiagnosedBy,
		rec.CreatedAt,
	)
	if err != nil {
		// The unique constraint on (patient_id, normalized_ingredient) is the
		// last line of defense against duplicate records for one ingredient.
		if isUniqueViolation(err) {
			return repository.ErrDuplicateAllergy
		}
		return fmt.Errorf("failed to create allergy record: %w", err)
	}
	return nil
}

func (r *allergyRepository) Get(ctx context.Context, id uuid.UUID) (*model.AllergyRecord, error) {
	var rec model.AllergyRecord
	err := r.GetDB().GetContext(ctx, &rec, `SELECT * FROM allergy_records WHERE id = $1`, id)
	if err != nil {
		if err := translateErr(err); errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get allergy record: %w", err)
	}
	return &rec, nil
}

func (r *allergyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.GetDB().ExecContext(ctx, `DELETE FROM allergy_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete allergy record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *allergyRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.AllergyRecord, error) {
	var recs []*model.AllergyRecord
	query := `SELECT * FROM allergy_records WHERE patient_id = $1 ORDER BY created_at ASC`
	if err := r.GetDB().SelectContext(ctx, &recs, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list allergy records: %w", err)
	}
	return recs, nil
}
