package dispense

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/pkg/logger"
)

var (
	fixedNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	operator = model.Operator{ID: uuid.New(), Name: "Nurse Clara"}
)

type fixture struct {
	svc     *Service
	store   *memStore
	checker *fakeChecker
	alerter *fakeAlerter

	patientID uuid.UUID
	episode   model.ClinicalEpisode
	med       model.Medication
	lot       model.InventoryLot
}

func newFixture(t *testing.T, maxRetries int) *fixture {
	t.Helper()

	store := newMemStore()
	checker := &fakeChecker{results: make(map[string]*model.CheckResult)}
	alerter := &fakeAlerter{}

	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	svc := NewService(store, lotRepo{store}, medRepo{store}, checker, alerter, memTransactor{store}, log, nil, maxRetries)
	svc.now = func() time.Time { return fixedNow }

	f := &fixture{
		svc:       svc,
		store:     store,
		checker:   checker,
		alerter:   alerter,
		patientID: uuid.New(),
	}

	f.med = model.Medication{
		ID:               uuid.New(),
		Name:             "Dipyrone 500mg",
		ActiveIngredient: "dipyrone",
		MinStockLevel:    10,
		Active:           true,
	}
	store.addMedication(f.med)

	f.lot = model.InventoryLot{
		ID:                uuid.New(),
		MedicationID:      f.med.ID,
		LotNumber:         "B2024-001",
		QuantityTotal:     50,
		QuantityAvailable: 50,
		ExpiryDate:        fixedNow.AddDate(1, 0, 0),
		AlertWindowDays:   30,
	}
	store.addLot(f.lot)

	f.episode = model.ClinicalEpisode{
		ID:        uuid.New(),
		PatientID: f.patientID,
		Status:    model.EpisodeOpen,
		OpenedAt:  fixedNow.Add(-time.Hour),
	}
	store.addEpisode(f.episode)

	return f
}

func (f *fixture) request(quantity int) Request {
	return Request{
		EpisodeID:          f.episode.ID,
		LotID:              f.lot.ID,
		Quantity:           quantity,
		DosageInstructions: "one tablet, with water",
		Operator:           operator,
	}
}

func TestDispenseSuccess(t *testing.T) {
	f := newFixture(t, 3)

	out := f.svc.Dispense(context.Background(), f.request(2))

	require.Equal(t, KindSuccess, out.Kind)
	require.NotNil(t, out.Record)
	assert.Equal(t, 48, out.RemainingStock)
	assert.Equal(t, 2, out.Record.Quantity)
	assert.True(t, out.Record.AllergyCheckPassed)
	assert.Empty(t, out.Warnings)

	assert.Equal(t, 48, f.store.lot(f.lot.ID).QuantityAvailable)

	ep := f.store.episode(f.episode.ID)
	assert.Equal(t, model.EpisodeDispensed, ep.Status)
	require.NotNil(t, ep.ClosedAt)

	assert.Equal(t, []string{model.AuditDispenseSuccess}, f.store.auditKinds())
	assert.Equal(t, []string{model.EventDispenseSuccess}, f.store.eventTypes())
}

func TestDispenseBlockedByAllergy(t *testing.T) {
	f := newFixture(t, 3)
	f.checker.results["dipyrone"] = &model.CheckResult{
		Conflicts:           []model.Conflict{{AllergenName: "Dipirona Sódica", Severity: model.SeverityAnaphylactic}},
		HasBlockingConflict: true,
		MostSevere:          &model.Conflict{AllergenName: "Dipirona Sódica", Severity: model.SeverityAnaphylactic},
	}

	out := f.svc.Dispense(context.Background(), f.request(2))

	require.Equal(t, KindBlocked, out.Kind)
	require.NotNil(t, out.MostSevere)
	assert.Equal(t, model.SeverityAnaphylactic, out.MostSevere.Severity)
	assert.Nil(t, out.Record)

	// Stock must be exactly as it was.
	assert.Equal(t, 50, f.store.lot(f.lot.ID).QuantityAvailable)

	ep := f.store.episode(f.episode.ID)
	assert.Equal(t, model.EpisodeBlockedAllergy, ep.Status)

	assert.Equal(t, []string{model.AuditDispenseBlockedAllergy}, f.store.auditKinds())
	assert.Equal(t, []string{model.EventDispenseBlocked}, f.store.eventTypes())
}

func TestDispenseWarningConflictProceeds(t *testing.T) {
	f := newFixture(t, 3)
	f.checker.results["dipyrone"] = &model.CheckResult{
		Conflicts:   []model.Conflict{{AllergenName: "dipirona", Severity: model.SeverityMild}},
		WarningOnly: true,
		MostSevere:  &model.Conflict{AllergenName: "dipirona", Severity: model.SeverityMild},
	}

	out := f.svc.Dispense(context.Background(), f.request(1))

	require.Equal(t, KindSuccess, out.Kind)
	require.Len(t, out.Warnings, 1)
	assert.Equal(t, model.SeverityMild, out.Warnings[0].Severity)
	assert.True(t, out.Record.AllergyCheckPassed)
	assert.Equal(t, 49, f.store.lot(f.lot.ID).QuantityAvailable)
}

func TestDispenseStockInsufficient(t *testing.T) {
	f := newFixture(t, 3)
	low := f.lot
	low.ID = uuid.New()
	low.QuantityTotal = 5
	low.QuantityAvailable = 5
	f.store.addLot(low)

	req := f.request(10)
	req.LotID = low.ID
	out := f.svc.Dispense(context.Background(), req)

	require.Equal(t, KindStockInsufficient, out.Kind)
	assert.Equal(t, 10, out.Requested)
	assert.Equal(t, 5, out.Available)

	// Nothing happened: no audit, no event, episode still open.
	assert.Empty(t, f.store.auditKinds())
	assert.Empty(t, f.store.eventTypes())
	assert.Equal(t, model.EpisodeOpen, f.store.episode(f.episode.ID).Status)
	assert.Equal(t, 5, f.store.lot(low.ID).QuantityAvailable)
}

func TestDispenseBatchExpired(t *testing.T) {
	f := newFixture(t, 3)
	expired := f.lot
	expired.ID = uuid.New()
	expired.ExpiryDate = fixedNow.AddDate(0, -1, 0)
	f.store.addLot(expired)

	req := f.request(1)
	req.LotID = expired.ID
	out := f.svc.Dispense(context.Background(), req)

	// Plenty of stock, but expiry wins.
	require.Equal(t, KindBatchExpired, out.Kind)
	assert.Equal(t, 50, f.store.lot(expired.ID).QuantityAvailable)
	assert.Equal(t, model.EpisodeOpen, f.store.episode(f.episode.ID).Status)
	assert.Empty(t, f.store.auditKinds())
}

func TestDispenseEpisodeNotOpen(t *testing.T) {
	f := newFixture(t, 3)

	for _, status := range []model.EpisodeStatus{model.EpisodeDispensed, model.EpisodeReferred, model.EpisodeClosed, model.EpisodeBlockedAllergy} {
		ep := model.ClinicalEpisode{ID: uuid.New(), PatientID: f.patientID, Status: status, OpenedAt: fixedNow}
		f.store.addEpisode(ep)

		req := f.request(1)
		req.EpisodeID = ep.ID
		out := f.svc.Dispense(context.Background(), req)
		assert.Equal(t, KindEpisodeClosed, out.Kind, "status %s", status)
	}

	assert.Equal(t, 50, f.store.lot(f.lot.ID).QuantityAvailable)
}

func TestDispenseNotFound(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	req := f.request(1)
	req.EpisodeID = uuid.New()
	assert.Equal(t, KindNotFound, f.svc.Dispense(ctx, req).Kind)

	req = f.request(1)
	req.LotID = uuid.New()
	assert.Equal(t, KindNotFound, f.svc.Dispense(ctx, req).Kind)
}

func TestDispenseRetriesOnSerializationConflict(t *testing.T) {
	f := newFixture(t, 3)
	f.store.conflicts = 2

	out := f.svc.Dispense(context.Background(), f.request(1))

	require.Equal(t, KindSuccess, out.Kind)
	// The two rolled-back attempts left no trace.
	assert.Equal(t, 49, f.store.lot(f.lot.ID).QuantityAvailable)
	assert.Equal(t, []string{model.AuditDispenseSuccess}, f.store.auditKinds())
}

func TestDispenseRetriesExhausted(t *testing.T) {
	f := newFixture(t, 2)
	f.store.conflicts = 10

	out := f.svc.Dispense(context.Background(), f.request(1))

	require.Equal(t, KindInternal, out.Kind)
	require.Error(t, out.Err())
	assert.Equal(t, 50, f.store.lot(f.lot.ID).QuantityAvailable)
	assert.Equal(t, model.EpisodeOpen, f.store.episode(f.episode.ID).Status)
}

func TestDispenseAttachesStockAlert(t *testing.T) {
	f := newFixture(t, 3)
	f.alerter.alert = &model.StockAlert{
		Level:          model.AlertWarning,
		Reason:         model.AlertReasonLowStock,
		MedicationID:   f.med.ID,
		MedicationName: f.med.Name,
		TotalStock:     8,
	}

	out := f.svc.Dispense(context.Background(), f.request(1))

	require.Equal(t, KindSuccess, out.Kind)
	require.NotNil(t, out.StockAlert)
	assert.Equal(t, model.AlertReasonLowStock, out.StockAlert.Reason)
}

func TestDispenseConcurrentNeverOversells(t *testing.T) {
	f := newFixture(t, 5)

	// A small lot shared by many concurrent requests, each on its own open
	// episode.
	small := f.lot
	small.ID = uuid.New()
	small.QuantityTotal = 10
	small.QuantityAvailable = 10
	f.store.addLot(small)

	const attempts = 25
	outcomes := make([]*Outcome, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		ep := model.ClinicalEpisode{ID: uuid.New(), PatientID: f.patientID, Status: model.EpisodeOpen, OpenedAt: fixedNow}
		f.store.addEpisode(ep)

		wg.Add(1)
		go func(i int, episodeID uuid.UUID) {
			defer wg.Done()
			req := f.request(1)
			req.EpisodeID = episodeID
			req.LotID = small.ID
			outcomes[i] = f.svc.Dispense(context.Background(), req)
		}(i, ep.ID)
	}
	wg.Wait()

	successes := 0
	for _, out := range outcomes {
		switch out.Kind {
		case KindSuccess:
			successes++
		case KindStockInsufficient:
		default:
			t.Fatalf("unexpected outcome %s", out.Kind)
		}
	}

	assert.Equal(t, 10, successes)
	assert.Equal(t, 0, f.store.lot(small.ID).QuantityAvailable)

	// Exactly one success audit per dispensed unit.
	kinds := f.store.auditKinds()
	assert.Len(t, kinds, 10)
	for _, k := range kinds {
		assert.Equal(t, model.AuditDispenseSuccess, k)
	}
}
