package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/lbarbosa/infirmary-api/internal/ingredient"
	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
	"github.com/lbarbosa/infirmary-api/internal/service/audit"
	apperrors "github.com/lbarbosa/infirmary-api/pkg/errors"
	"github.com/lbarbosa/infirmary-api/pkg/logger"
)

const alertsCacheKey = "stock_alerts"

// Service owns the medication catalog, lot receipt, and the lot selector.
// It never mutates lot quantities; that belongs to the orchestrator.
type Service struct {
	meds    repository.MedicationRepository
	lots    repository.LotRepository
	auditor *audit.Service
	cache   *cache.Cache
	logger  *logger.Logger
	now     func() time.Time
}

func NewService(meds repository.MedicationRepository, lots repository.LotRepository, auditor *audit.Service, log *logger.Logger, alertCacheTTL time.Duration) *Service {
	if alertCacheTTL <= 0 {
		alertCacheTTL = 30 * time.Second
	}
	return &Service{
		meds:    meds,
		lots:    lots,
		auditor: auditor,
		cache:   cache.New(alertCacheTTL, 5*time.Minute),
		logger:  log.WithComponent("inventory"),
		now:     time.Now,
	}
}

func (s *Service) CreateMedication(ctx context.Context, operator model.Operator, req *model.CreateMedicationRequest) (*model.Medication, error) {
	normalized := ingredient.Normalize(req.ActiveIngredient)
	if normalized == "" {
		return nil, apperrors.BadRequest("active ingredient normalizes to empty string", nil)
	}

	med := &model.Medication{
		ID:                   uuid.New(),
		Name:                 req.Name,
		ActiveIngredient:     req.ActiveIngredient,
		NormalizedIngredient: normalized,
		MinStockLevel:        req.MinStockLevel,
		Active:               true,
		CreatedAt:            time.Now().UTC(),
	}

	if err := s.meds.Create(ctx, med); err != nil {
		return nil, fmt.Errorf("failed to create medication: %w", err)
	}

	if _, err := s.auditor.Append(ctx, operator.ID, model.AuditMedicationCreate, model.AuditTargetMedication, &med.ID, med); err != nil {
		s.logger.Error(err, "medication create audit failed", map[string]interface{}{"medication_id": med.ID})
	}

	return med, nil
}

func (s *Service) GetMedication(ctx context.Context, id uuid.UUID) (*model.Medication, error) {
	med, err := s.meds.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("medication", err)
		}
		return nil, fmt.Errorf("failed to get medication: %w", err)
	}
	return med, nil
}

func (s *Service) ListMedications(ctx context.Context) ([]*model.Medication, error) {
	return s.meds.List(ctx, true)
}

// ReceiveLot registers a receipted batch. Quantity available starts equal to
// quantity total and only ever decreases, through dispensation.
func (s *Service) ReceiveLot(ctx context.Context, operator model.Operator, medicationID uuid.UUID, req *model.ReceiveLotRequest) (*model.InventoryLot, error) {
	if _, err := s.meds.Get(ctx, medicationID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("medication", err)
		}
		return nil, fmt.Errorf("failed to resolve medication: %w", err)
	}

	lot := &model.InventoryLot{
		ID:                uuid.New(),
		MedicationID:      medicationID,
		LotNumber:         req.LotNumber,
		QuantityTotal:     req.Quantity,
		QuantityAvailable: req.Quantity,
		ExpiryDate:        req.ExpiryDate,
		AlertWindowDays:   req.AlertWindowDays,
		ReceivedAt:        time.Now().UTC(),
	}
	if lot.AlertWindowDays == 0 {
		lot.AlertWindowDays = 30
	}

	if err := s.lots.Create(ctx, lot); err != nil {
		return nil, fmt.Errorf("failed to create lot: %w", err)
	}

	if _, err := s.auditor.Append(ctx, operator.ID, model.AuditLotReceive, model.AuditTargetLot, &lot.ID, lot); err != nil {
		s.logger.Error(err, "lot receive audit failed", map[string]interface{}{"lot_id": lot.ID})
	}

	s.cache.Delete(alertsCacheKey)
	return lot, nil
}

func (s *Service) ListLots(ctx context.Context, medicationID uuid.UUID) ([]*model.InventoryLot, error) {
	return s.lots.ListByMedication(ctx, medicationID)
}

// BestLot selects the eligible lot that expires first (FEFO). An already
// expired lot is never selected regardless of its stock. Returns nil when no
// lot qualifies.
func (s *Service) BestLot(ctx context.Context, medicationID uuid.UUID, quantityNeeded int) (*model.InventoryLot, error) {
	lots, err := s.lots.ListByMedication(ctx, medicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	return SelectLot(lots, quantityNeeded, s.now()), nil
}

// SelectLot is the FEFO policy as a pure function: earliest expiry first
// among lots with enough stock and a future expiry; ties keep encounter
// order.
func SelectLot(lots []*model.InventoryLot, quantityNeeded int, now time.Time) *model.InventoryLot {
	eligible := make([]*model.InventoryLot, 0, len(lots))
	for _, lot := range lots {
		if lot.QuantityAvailable >= quantityNeeded && lot.ExpiryDate.After(now) {
			eligible = append(eligible, lot)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].ExpiryDate.Before(eligible[j].ExpiryDate)
	})
	return eligible[0]
}

// TotalStock sums available quantity across non-expired lots.
func (s *Service) TotalStock(ctx context.Context, medicationID uuid.UUID) (int, error) {
	lots, err := s.lots.ListByMedication(ctx, medicationID)
	if err != nil {
		return 0, fmt.Errorf("failed to list lots: %w", err)
	}
	return totalStock(lots, s.now()), nil
}

func totalStock(lots []*model.InventoryLot, now time.Time) int {
	total := 0
	for _, lot := range lots {
		if !model.LotExpired(lot, now) {
			total += lot.QuantityAvailable
		}
	}
	return total
}

// AlertForMedication derives the most urgent stock condition for one
// medication, or nil when nothing needs attention. Used by the orchestrator
// right after a dispensation commits.
func (s *Service) AlertForMedication(ctx context.Context, medicationID uuid.UUID) (*model.StockAlert, error) {
	med, err := s.meds.Get(ctx, medicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get medication: %w", err)
	}
	lots, err := s.lots.ListByMedication(ctx, medicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}
	return deriveAlert(med, lots, s.now()), nil
}

// deriveAlert classifies a medication's stock posture. Critical beats
// warning; nil means no alert-worthy condition.
func deriveAlert(med *model.Medication, lots []*model.InventoryLot, now time.Time) *model.StockAlert {
	total := totalStock(lots, now)

	base := model.StockAlert{
		MedicationID:   med.ID,
		MedicationName: med.Name,
		TotalStock:     total,
	}

	for _, lot := range lots {
		if model.LotExpired(lot, now) && !model.LotExhausted(lot) {
			alert := base
			alert.Level = model.AlertCritical
			alert.Reason = model.AlertReasonExpiredStock
			lotID := lot.ID
			alert.LotID = &lotID
			alert.LotNumber = lot.LotNumber
			return &alert
		}
	}

	if total == 0 {
		alert := base
		alert.Level = model.AlertCritical
		alert.Reason = model.AlertReasonOutOfStock
		return &alert
	}

	if total <= med.MinStockLevel {
		alert := base
		alert.Level = model.AlertWarning
		alert.Reason = model.AlertReasonLowStock
		return &alert
	}

	for _, lot := range lots {
		if model.LotExpiringSoon(lot, now) && !model.LotExhausted(lot) {
			alert := base
			alert.Level = model.AlertWarning
			alert.Reason = model.AlertReasonExpiringSoon
			lotID := lot.ID
			alert.LotID = &lotID
			alert.LotNumber = lot.LotNumber
			return &alert
		}
	}

	return nil
}

// Alerts scans all active medications and classifies each; results are
// sorted critical-first and cached briefly since this is a dashboard read.
func (s *Service) Alerts(ctx context.Context) ([]model.StockAlert, error) {
	if cached, ok := s.cache.Get(alertsCacheKey); ok {
		return cached.([]model.StockAlert), nil
	}

	meds, err := s.meds.List(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list medications: %w", err)
	}

	now := s.now()
	alerts := make([]model.StockAlert, 0, len(meds))
	for _, med := range meds {
		lots, err := s.lots.ListByMedication(ctx, med.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list lots for %s: %w", med.ID, err)
		}
		if alert := deriveAlert(med, lots, now); alert != nil {
			alerts = append(alerts, *alert)
		} else {
			alerts = append(alerts, model.StockAlert{
				Level:          model.AlertInfo,
				MedicationID:   med.ID,
				MedicationName: med.Name,
				TotalStock:     totalStock(lots, now),
			})
		}
	}

	levelOrder := map[model.AlertLevel]int{
		model.AlertCritical: 0,
		model.AlertWarning:  1,
		model.AlertInfo:     2,
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return levelOrder[alerts[i].Level] < levelOrder[alerts[j].Level]
	})

	s.cache.SetDefault(alertsCacheKey, alerts)
	return alerts, nil
}
