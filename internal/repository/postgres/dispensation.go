package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
)

type dispensationRepository struct {
	BaseRepository
}

func NewDispensationRepository(base BaseRepository) repository.DispensationRepository {
	return &dispensationRepository{base}
}

func (r *dispensationRepository) Get(ctx context.Context, id uuid.UUID) (*model.DispensationRecord, error) {
	var rec model.DispensationRecord
	err := r.GetDB().GetContext(ctx, &rec, `SELECT * FROM dispensation_records WHERE id = $1`, id)
	if err != nil {
		if err := translateErr(err); errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get dispensation record: %w", err)
	}
	return &rec, nil
}

func (r *dispensationRepository) ListByEpisode(ctx context.Context, episodeID uuid.UUID) ([]*model.DispensationRecord, error) {
	var recs []*model.DispensationRecord
	query := `SELECT * FROM dispensation_records WHERE episode_id = $1 ORDER BY dispensed_at ASC`
	if err := r.GetDB().SelectContext(ctx, &recs, query, episodeID); err != nil {
		return nil, fmt.Errorf("failed to list dispensation records: %w", err)
	}
	return recs, nil
}
