package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
)

// Transactor runs the dispensation atomic unit under SERIALIZABLE isolation.
// Two transactions that both read a lot's remaining stock and both try to
// decrement it cannot both commit; the loser surfaces ErrTxConflict and the
// orchestrator re-runs its precondition checks from scratch.
type Transactor struct {
	db *sqlx.DB
}

func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) WithSerializableTx(ctx context.Context, fn func(tx repository.DispenseTx) error) error {
	tx, err := t.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&dispenseTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return translateErr(err)
	}
	return nil
}

type dispenseTx struct {
	tx *sqlx.Tx
}

func (d *dispenseTx) LotForUpdate(ctx context.Context, id uuid.UUID) (*model.InventoryLot, error) {
	var lot model.InventoryLot
	query := `SELECT * FROM inventory_lots WHERE id = $1 FOR UPDATE`
	if err := d.tx.GetContext(ctx, &lot, query, id); err != nil {
		return nil, translateErr(err)
	}
	return &lot, nil
}

func (d *dispenseTx) CreateDispensation(ctx context.Context, rec *model.DispensationRecord) error {
	query := `
        INSERT INTO dispensation_records (
            id, episode_id, lot_id, operator_id, quantity,
            dosage_instructions, allergy_check_passed, dispensed_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := d.tx.ExecContext(ctx, query,
		rec.ID,
		rec.EpisodeID,
		rec.LotID,
		rec.OperatorID,
		rec.Quantity,
		rec.DosageInstructions,
		rec.AllergyCheckPassed,
		rec.DispensedAt,
	)
	return translateErr(err)
}

func (d *dispenseTx) DecrementLot(ctx context.Context, lotID uuid.UUID, qty int) (int, error) {
	// The WHERE guard re-validates sufficiency at write time; the CHECK
	// constraint on the table backs it up.
	query := `
        UPDATE inventory_lots
        SET quantity_available = quantity_available - $1
        WHERE id = $2 AND quantity_available >= $1
        RETURNING quantity_available
    `
	var remaining int
	err := d.tx.QueryRowContext(ctx, query, qty, lotID).Scan(&remaining)
	if err != nil {
		translated := translateErr(err)
		if translated == repository.ErrNotFound {
			return 0, repository.ErrInsufficientStock
		}
		return 0, translated
	}
	return remaining, nil
}

func (d *dispenseTx) TransitionEpisode(ctx context.Context, id uuid.UUID, from, to model.EpisodeStatus, closedAt *time.Time) error {
	if !model.ValidEpisodeTransition(from, to) {
		return fmt.Errorf("invalid episode transition %s -> %s", from, to)
	}

	query := `
        UPDATE clinical_episodes
        SET status = $1, closed_at = $2
        WHERE id = $3 AND status = $4
    `
	res, err := d.tx.ExecContext(ctx, query, to, closedAt, id, from)
	if err != nil {
		return translateErr(err)
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

func (d *dispenseTx) AppendAudit(ctx context.Context, entry *model.AuditEntry) error {
	query := `
        INSERT INTO audit_entries (
            actor_id, action_kind, target_table, target_id, payload, occurred_at
        ) VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING seq
    `
	err := d.tx.QueryRowContext(ctx, query,
		entry.ActorID,
		entry.ActionKind,
		entry.TargetTable,
		entry.TargetID,
		entry.Payload,
		entry.OccurredAt,
	).Scan(&entry.Seq)
	return translateErr(err)
}

func (d *dispenseTx) EnqueueEvent(ctx context.Context, event *model.OutboxEvent) error {
	query := `
        INSERT INTO outbox_events (id, event_type, payload, status, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `
	_, err := d.tx.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.Payload,
		event.Status,
		event.CreatedAt,
	)
	return translateErr(err)
}
