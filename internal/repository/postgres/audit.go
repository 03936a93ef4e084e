package postgres

import (
	"context"
	"fmt"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
)

// auditRepository appends to and reads from the ledger. There is no update
// or delete on purpose; the audit_entries trigger rejects them at the
// storage layer for anything that bypasses this type.
type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Append(ctx context.Context, entry *model.AuditEntry) error {
	query := `
        INSERT INTO audit_entries (
            actor_id, action_kind, target_table, target_id, payload, occurred_at
        ) VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING seq
    `
	err := r.GetDB().QueryRowContext(ctx, query,
		entry.ActorID,
		entry.ActionKind,
		entry.TargetTable,
		entry.TargetID,
		entry.Payload,
		entry.OccurredAt,
	).Scan(&entry.Seq)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", translateErr(err))
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEntry, error) {
	query := `SELECT * FROM audit_entries WHERE 1=1`
	var args []interface{}

	if filter.ActorID != nil {
		args = append(args, *filter.ActorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}
	if filter.ActionKind != "" {
		args = append(args, filter.ActionKind)
		query += fmt.Sprintf(" AND action_kind = $%d", len(args))
	}
	if filter.TargetTable != "" {
		args = append(args, filter.TargetTable)
		query += fmt.Sprintf(" AND target_table = $%d", len(args))
	}
	if filter.TargetID != nil {
		args = append(args, *filter.TargetID)
		query += fmt.Sprintf(" AND target_id = $%d", len(args))
	}

	query += " ORDER BY seq DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	var entries []*model.AuditEntry
	if err := r.GetDB().SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, nil
}
