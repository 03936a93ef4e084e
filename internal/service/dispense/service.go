package dispense

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
	"github.com/lbarbosa/infirmary-api/internal/service/audit"
	"github.com/lbarbosa/infirmary-api/pkg/logger"
	"github.com/lbarbosa/infirmary-api/pkg/metrics"
)

// CrossChecker is the allergy cross-check engine as the orchestrator sees it.
type CrossChecker interface {
	Check(ctx context.Context, patientID uuid.UUID, rawIngredient string) (*model.CheckResult, error)
}

// AlertDeriver computes the post-dispensation stock alert for a medication.
type AlertDeriver interface {
	AlertForMedication(ctx context.Context, medicationID uuid.UUID) (*model.StockAlert, error)
}

// Request is a validated dispensation request plus the acting operator.
type Request struct {
	EpisodeID          uuid.UUID
	LotID              uuid.UUID
	Quantity           int
	DosageInstructions string
	Operator           model.Operator
}

// Service is the dispensation orchestrator: the only component that mutates
// stock or creates dispensation records, and the owner of the
// open → dispensed / open → blocked_allergy transitions.
type Service struct {
	episodes repository.EpisodeRepository
	lots     repository.LotRepository
	meds     repository.MedicationRepository
	checker  CrossChecker
	alerts   AlertDeriver
	tx       repository.Transactor
	logger   *logger.Logger
	metrics  *metrics.Metrics

	now        func() time.Time
	maxRetries int
}

func NewService(
	episodes repository.EpisodeRepository,
	lots repository.LotRepository,
	meds repository.MedicationRepository,
	checker CrossChecker,
	alerts AlertDeriver,
	tx repository.Transactor,
	log *logger.Logger,
	m *metrics.Metrics,
	maxRetries int,
) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{
		episodes:   episodes,
		lots:       lots,
		meds:       meds,
		checker:    checker,
		alerts:     alerts,
		tx:         tx,
		logger:     log.WithComponent("dispense"),
		metrics:    m,
		now:        time.Now,
		maxRetries: maxRetries,
	}
}

// errRecheck aborts the atomic unit because an in-transaction re-validation
// failed; the precomputed outcome in attempt state is returned instead.
var errRecheck = errors.New("in-transaction revalidation failed")

// Dispense runs the full sequence: preconditions, cross-check, atomic write
// unit, post-commit alert derivation. A serialization conflict re-runs the
// precondition checks from scratch since stock may have changed under us.
func (s *Service) Dispense(ctx context.Context, req Request) *Outcome {
	var out *Outcome
	for attempt := 0; ; attempt++ {
		var conflict bool
		out, conflict = s.attempt(ctx, req)
		if !conflict {
			break
		}
		if attempt >= s.maxRetries {
			out = internalOutcome(fmt.Errorf("dispense retries exhausted after %d conflicts", attempt+1))
			break
		}
		if s.metrics != nil {
			s.metrics.DispenseTxRetries.Inc()
		}
		s.logger.Warn("dispense transaction conflict, re-reading state", map[string]interface{}{
			"episode_id": req.EpisodeID,
			"lot_id":     req.LotID,
			"attempt":    attempt + 1,
		})
	}

	if s.metrics != nil {
		s.metrics.DispenseOutcomes.WithLabelValues(string(out.Kind)).Inc()
	}
	if out.Kind == KindInternal {
		s.logger.Error(out.Err(), "dispense failed", map[string]interface{}{
			"episode_id": req.EpisodeID,
			"lot_id":     req.LotID,
		})
	}
	return out
}

// attempt runs one full pass. The bool result reports a serialization
// conflict that warrants a fresh pass.
func (s *Service) attempt(ctx context.Context, req Request) (*Outcome, bool) {
	now := s.now().UTC()

	// Preconditions, in order, each a distinct failure mode. No side effects
	// occur before all of them pass.
	ep, err := s.episodes.Get(ctx, req.EpisodeID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundOutcome(), false
		}
		return internalOutcome(err), false
	}
	if ep.Status != model.EpisodeOpen {
		return episodeClosedOutcome(), false
	}

	lot, err := s.lots.Get(ctx, req.LotID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return notFoundOutcome(), false
		}
		return internalOutcome(err), false
	}

	// Expiry before quantity: an expired lot must never be offered no matter
	// how much stock it still holds.
	if model.LotExpired(lot, now) {
		return batchExpiredOutcome(), false
	}

	if lot.QuantityAvailable < req.Quantity {
		return stockInsufficientOutcome(req.Quantity, lot.QuantityAvailable), false
	}

	med, err := s.meds.Get(ctx, lot.MedicationID)
	if err != nil {
		return internalOutcome(err), false
	}

	// The cross-check is a pure read and runs outside the atomic unit.
	check, err := s.checker.Check(ctx, ep.PatientID, med.ActiveIngredient)
	if err != nil {
		return internalOutcome(err), false
	}

	if check.HasBlockingConflict {
		return s.block(ctx, req, ep, lot, med, check)
	}

	return s.commit(ctx, req, ep, lot, med, check, now)
}

// block transitions the episode to blocked_allergy and appends the block
// audit entry atomically. Stock is not touched.
func (s *Service) block(ctx context.Context, req Request, ep *model.ClinicalEpisode, lot *model.InventoryLot, med *model.Medication, check *model.CheckResult) (*Outcome, bool) {
	entry, err := audit.NewEntry(req.Operator.ID, model.AuditDispenseBlockedAllergy, model.AuditTargetEpisode, &ep.ID, blockedPayload(req, ep, lot, med, check))
	if err != nil {
		return internalOutcome(err), false
	}

	event, err := outboxEvent(model.EventDispenseBlocked, blockedPayload(req, ep, lot, med, check))
	if err != nil {
		return internalOutcome(err), false
	}

	err = s.tx.WithSerializableTx(ctx, func(tx repository.DispenseTx) error {
		if err := tx.TransitionEpisode(ctx, ep.ID, model.EpisodeOpen, model.EpisodeBlockedAllergy, nil); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}
		return tx.EnqueueEvent(ctx, event)
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrTxConflict), errors.Is(err, repository.ErrStaleTransition):
		return nil, true
	default:
		return internalOutcome(err), false
	}

	if s.metrics != nil && check.MostSevere != nil {
		s.metrics.BlockedConflicts.WithLabelValues(string(check.MostSevere.Severity)).Inc()
	}

	return blockedOutcome(check), false
}

// commit performs the atomic unit: record creation, stock decrement, episode
// transition, success audit, outbox event. Stock sufficiency is re-validated
// against a locked re-read because time passed since the precondition check.
func (s *Service) commit(ctx context.Context, req Request, ep *model.ClinicalEpisode, lot *model.InventoryLot, med *model.Medication, check *model.CheckResult, now time.Time) (*Outcome, bool) {
	var warnings []model.Conflict
	if check.WarningOnly {
		warnings = check.Conflicts
	}

	rec := &model.DispensationRecord{
		ID:                 uuid.New(),
		EpisodeID:          ep.ID,
		LotID:              lot.ID,
		OperatorID:         req.Operator.ID,
		Quantity:           req.Quantity,
		DosageInstructions: req.DosageInstructions,
		AllergyCheckPassed: !check.HasBlockingConflict,
		DispensedAt:        now,
	}

	var failed *Outcome
	var remaining int

	err := s.tx.WithSerializableTx(ctx, func(tx repository.DispenseTx) error {
		fresh, err := tx.LotForUpdate(ctx, lot.ID)
		if err != nil {
			return err
		}
		if model.LotExpired(fresh, now) {
			failed = batchExpiredOutcome()
			return errRecheck
		}
		if fresh.QuantityAvailable < req.Quantity {
			failed = stockInsufficientOutcome(req.Quantity, fresh.QuantityAvailable)
			return errRecheck
		}

		if err := tx.CreateDispensation(ctx, rec); err != nil {
			return err
		}

		remaining, err = tx.DecrementLot(ctx, lot.ID, req.Quantity)
		if err != nil {
			if errors.Is(err, repository.ErrInsufficientStock) {
				failed = stockInsufficientOutcome(req.Quantity, fresh.QuantityAvailable)
				return errRecheck
			}
			return err
		}

		closedAt := now
		if err := tx.TransitionEpisode(ctx, ep.ID, model.EpisodeOpen, model.EpisodeDispensed, &closedAt); err != nil {
			return err
		}

		entry, err := audit.NewEntry(req.Operator.ID, model.AuditDispenseSuccess, model.AuditTargetDispensation, &rec.ID, successPayload(req, ep, lot, med, rec, remaining, warnings))
		if err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, entry); err != nil {
			return err
		}

		event, err := outboxEvent(model.EventDispenseSuccess, successPayload(req, ep, lot, med, rec, remaining, warnings))
		if err != nil {
			return err
		}
		return tx.EnqueueEvent(ctx, event)
	})
	switch {
	case err == nil:
	case errors.Is(err, errRecheck):
		return failed, false
	case errors.Is(err, repository.ErrTxConflict), errors.Is(err, repository.ErrStaleTransition):
		return nil, true
	default:
		return internalOutcome(err), false
	}

	out := successOutcome(rec, remaining, warnings)

	// Alert derivation is outside the atomic unit: its failure must not undo
	// a dispensation that physically happened.
	alert, err := s.alerts.AlertForMedication(ctx, med.ID)
	if err != nil {
		s.logger.Error(err, "stock alert derivation failed", map[string]interface{}{"medication_id": med.ID})
	} else if alert != nil {
		out.StockAlert = alert
		if s.metrics != nil {
			s.metrics.StockAlerts.WithLabelValues(string(alert.Level)).Inc()
		}
	}

	return out, false
}

func blockedPayload(req Request, ep *model.ClinicalEpisode, lot *model.InventoryLot, med *model.Medication, check *model.CheckResult) map[string]interface{} {
	return map[string]interface{}{
		"episode_id":      ep.ID,
		"patient_id":      ep.PatientID,
		"operator_id":     req.Operator.ID,
		"operator_name":   req.Operator.Name,
		"medication_id":   med.ID,
		"medication_name": med.Name,
		"lot_id":          lot.ID,
		"lot_number":      lot.LotNumber,
		"quantity":        req.Quantity,
		"conflicts":       check.Conflicts,
		"most_severe":     check.MostSevere,
	}
}

func successPayload(req Request, ep *model.ClinicalEpisode, lot *model.InventoryLot, med *model.Medication, rec *model.DispensationRecord, remaining int, warnings []model.Conflict) map[string]interface{} {
	return map[string]interface{}{
		"record_id":       rec.ID,
		"episode_id":      ep.ID,
		"patient_id":      ep.PatientID,
		"operator_id":     req.Operator.ID,
		"operator_name":   req.Operator.Name,
		"medication_id":   med.ID,
		"medication_name": med.Name,
		"lot_id":          lot.ID,
		"lot_number":      lot.LotNumber,
		"quantity":        req.Quantity,
		"remaining_stock": remaining,
		"warnings":        warnings,
	}
}

func outboxEvent(eventType string, payload interface{}) (*model.OutboxEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   raw,
		Status:    model.OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}
