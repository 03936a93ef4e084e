package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
)

type medicationRepository struct {
	BaseRepository
}

func NewMedicationRepository(base BaseRepository) repository.MedicationRepository {
	return &medicationRepository{base}
}

func (r *medicationRepository) Create(ctx context.Context, med *model.Medication) error {
	query := `
        INSERT INTO medications (
            id, name, active_ingredient, normalized_ingredient,
            min_stock_level, active, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := r.GetDB().ExecContext(ctx, query,
		med.ID,
		med.Name,
		med.ActiveIngredient,
		med.NormalizedIngredient,
		med.MinStockLevel,
		med.Active,
		med.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create medication: %w", err)
	}
	return nil
}

func (r *medicationRepository) Get(ctx context.Context, id uuid.UUID) (*model.Medication, error) {
	var med model.Medication
	err := r.GetDB().GetContext(ctx, &med, `SELECT * FROM medications WHERE id = $1`, id)
	if err != nil {
		if err := translateErr(err); errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get medication: %w", err)
	}
	return &med, nil
}

func (r *medicationRepository) List(ctx context.Context, activeOnly bool) ([]*model.Medication, error) {
	query := `SELECT * FROM medications`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name ASC`

	var meds []*model.Medication
	if err := r.GetDB().SelectContext(ctx, &meds, query); err != nil {
		return nil, fmt.Errorf("failed to list medications: %w", err)
	}
	return meds, nil
}

type lotRepository struct {
	BaseRepository
}

func NewLotRepository(base BaseRepository) repository.LotRepository {
	return &lotRepository{base}
}

func (r *lotRepository) Create(ctx context.Context, lot *model.InventoryLot) error {
	query := `
        INSERT INTO inventory_lots (
            id, medication_id, lot_number, quantity_total, quantity_available,
            expiry_date, alert_window_days, received_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := r.GetDB().ExecContext(ctx, query,
		lot.ID,
		lot.MedicationID,
		lot.LotNumber,
		lot.QuantityTotal,
		lot.QuantityAvailable,
		lot.ExpiryDate,
		lot.AlertWindowDays,
		lot.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inventory lot: %w", err)
	}
	return nil
}

func (r *lotRepository) Get(ctx context.Context, id uuid.UUID) (*model.InventoryLot, error) {
	var lot model.InventoryLot
	err := r.GetDB().GetContext(ctx, &lot, `SELECT * FROM inventory_lots WHERE id = $1`, id)
	if err != nil {
		if err := translateErr(err); errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get inventory lot: %w", err)
	}
	return &lot, nil
}

func (r *lotRepository) ListByMedication(ctx context.Context, medicationID uuid.UUID) ([]*model.InventoryLot, error) {
	var lots []*model.InventoryLot
	query := `
        SELECT * FROM inventory_lots
        WHERE medication_id = $1
        ORDER BY expiry_date ASC, id ASC
    `
	if err := r.GetDB().SelectContext(ctx, &lots, query, medicationID); err != nil {
		return nil, fmt.Errorf("failed to list inventory lots: %w", err)
	}
	return lots, nil
}
