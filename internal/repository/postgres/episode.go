package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
)

type episodeRepository struct {
	BaseRepository
}

func NewEpisodeRepository(base BaseRepository) repository.EpisodeRepository {
	return &episodeRepository{base}
}

func (r *episodeRepository) Create(ctx context.Context, ep *model.ClinicalEpisode) error {
	query := `
        INSERT INTO clinical_episodes (
            id, patient_id, operator_id, complaint, status, opened_at, closed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := r.GetDB().ExecContext(ctx, query,
		ep.ID,
		ep.PatientID,
		ep.OperatorID,
		ep.Complaint,
		ep.Status,
		ep.OpenedAt,
		ep.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create episode: %w", err)
	}
	return nil
}

func (r *episodeRepository) Get(ctx context.Context, id uuid.UUID) (*model.ClinicalEpisode, error) {
	var ep model.ClinicalEpisode
	err := r.GetDB().GetContext(ctx, &ep, `SELECT * FROM clinical_episodes WHERE id = $1`, id)
	if err != nil {
		if err := translateErr(err); errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}
	return &ep, nil
}

func (r *episodeRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.ClinicalEpisode, error) {
	var eps []*model.ClinicalEpisode
	query := `SELECT * FROM clinical_episodes WHERE patient_id = $1 ORDER BY opened_at DESC`
	if err := r.GetDB().SelectContext(ctx, &eps, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list episodes: %w", err)
	}
	return eps, nil
}

func (r *episodeRepository) Transition(ctx context.Context, id uuid.UUID, from, to model.EpisodeStatus, closedAt *time.Time) error {
	if !model.ValidEpisodeTransition(from, to) {
		return fmt.Errorf("invalid episode transition %s -> %s", from, to)
	}

	query := `
        UPDATE clinical_episodes
        SET status = $1, closed_at = $2
        WHERE id = $3 AND status = $4
    `
	res, err := r.GetDB().ExecContext(ctx, query, to, closedAt, id, from)
	if err != nil {
		return fmt.Errorf("failed to transition episode: %w", translateErr(err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repository.ErrStaleTransition
	}
	return nil
}
