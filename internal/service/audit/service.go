package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
	"github.com/lbarbosa/infirmary-api/pkg/metrics"
)

// Service is the write/read surface of the audit ledger. Appending is the
// only mutation; immutability of existing entries is enforced below this
// layer (interface without update/delete, plus a schema trigger).
type Service struct {
	repo    repository.AuditRepository
	metrics *metrics.Metrics
}

func NewService(repo repository.AuditRepository, m *metrics.Metrics) *Service {
	return &Service{repo: repo, metrics: m}
}

// Append records one domain-significant action. payload is marshaled as the
// structured snapshot of what happened.
func (s *Service) Append(ctx context.Context, actorID uuid.UUID, actionKind, targetTable string, targetID *uuid.UUID, payload interface{}) (*model.AuditEntry, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit payload: %w", err)
	}

	entry := &model.AuditEntry{
		ActorID:     actorID,
		ActionKind:  actionKind,
		TargetTable: targetTable,
		TargetID:    targetID,
		Payload:     raw,
		OccurredAt:  time.Now().UTC(),
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.AuditAppends.WithLabelValues(actionKind).Inc()
	}
	return entry, nil
}

// NewEntry builds an entry without persisting it, for appends that must ride
// inside someone else's transaction.
func NewEntry(actorID uuid.UUID, actionKind, targetTable string, targetID *uuid.UUID, payload interface{}) (*model.AuditEntry, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit payload: %w", err)
	}
	return &model.AuditEntry{
		ActorID:     actorID,
		ActionKind:  actionKind,
		TargetTable: targetTable,
		TargetID:    targetID,
		Payload:     raw,
		OccurredAt:  time.Now().UTC(),
	}, nil
}

func (s *Service) List(ctx context.Context, filter model.AuditFilter) ([]*model.AuditEntry, error) {
	return s.repo.List(ctx, filter)
}

func marshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage(`{}`), nil
	}
	return json.Marshal(payload)
}
