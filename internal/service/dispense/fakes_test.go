package dispense

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
)

// memStore backs every repository interface the orchestrator touches. Its
// transactor serializes transactions with a mutex and rolls back by
// restoring a snapshot, which is close enough to the real isolation level
// for these tests.
type memStore struct {
	mu       sync.Mutex
	episodes map[uuid.UUID]*model.ClinicalEpisode
	lots     map[uuid.UUID]*model.InventoryLot
	meds     map[uuid.UUID]*model.Medication
	records  []*model.DispensationRecord
	audits   []*model.AuditEntry
	events   []*model.OutboxEvent

	// conflicts makes the next N transactions fail with ErrTxConflict after
	// running (and rolling back) their body.
	conflicts int
}

func newMemStore() *memStore {
	return &memStore{
		episodes: make(map[uuid.UUID]*model.ClinicalEpisode),
		lots:     make(map[uuid.UUID]*model.InventoryLot),
		meds:     make(map[uuid.UUID]*model.Medication),
	}
}

func (s *memStore) addEpisode(ep model.ClinicalEpisode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes[ep.ID] = &ep
}

func (s *memStore) addLot(lot model.InventoryLot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lots[lot.ID] = &lot
}

func (s *memStore) addMedication(med model.Medication) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meds[med.ID] = &med
}

func (s *memStore) episode(id uuid.UUID) model.ClinicalEpisode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.episodes[id]
}

func (s *memStore) lot(id uuid.UUID) model.InventoryLot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.lots[id]
}

func (s *memStore) auditKinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, 0, len(s.audits))
	for _, e := range s.audits {
		kinds = append(kinds, e.ActionKind)
	}
	return kinds
}

func (s *memStore) eventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

// Episode repository.

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*model.ClinicalEpisode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ep, ok := s.episodes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *ep
	return &cp, nil
}

func (s *memStore) Create(ctx context.Context, ep *model.ClinicalEpisode) error {
	s.addEpisode(*ep)
	return nil
}

func (s *memStore) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.ClinicalEpisode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.ClinicalEpisode
	for _, ep := range s.episodes {
		if ep.PatientID == patientID {
			cp := *ep
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) Transition(ctx context.Context, id uuid.UUID, from, to model.EpisodeStatus, closedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, from, to, closedAt)
}

func (s *memStore) transitionLocked(id uuid.UUID, from, to model.EpisodeStatus, closedAt *time.Time) error {
	ep, ok := s.episodes[id]
	if !ok {
		return repository.ErrNotFound
	}
	if ep.Status != from {
		return repository.ErrStaleTransition
	}
	ep.Status = to
	ep.ClosedAt = closedAt
	return nil
}

// lotRepo adapts memStore to the lot repository so Get does not clash with
// the episode repository's Get.
type lotRepo struct{ s *memStore }

func (r lotRepo) Create(ctx context.Context, lot *model.InventoryLot) error {
	r.s.addLot(*lot)
	return nil
}

func (r lotRepo) Get(ctx context.Context, id uuid.UUID) (*model.InventoryLot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	lot, ok := r.s.lots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *lot
	return &cp, nil
}

func (r lotRepo) ListByMedication(ctx context.Context, medicationID uuid.UUID) ([]*model.InventoryLot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.InventoryLot
	for _, lot := range r.s.lots {
		if lot.MedicationID == medicationID {
			cp := *lot
			out = append(out, &cp)
		}
	}
	return out, nil
}

type medRepo struct{ s *memStore }

func (r medRepo) Create(ctx context.Context, med *model.Medication) error {
	r.s.addMedication(*med)
	return nil
}

func (r medRepo) Get(ctx context.Context, id uuid.UUID) (*model.Medication, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	med, ok := r.s.meds[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *med
	return &cp, nil
}

func (r medRepo) List(ctx context.Context, activeOnly bool) ([]*model.Medication, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.Medication
	for _, med := range r.s.meds {
		if activeOnly && !med.Active {
			continue
		}
		cp := *med
		out = append(out, &cp)
	}
	return out, nil
}

// Transactor.

type memTransactor struct{ s *memStore }

type snapshot struct {
	episodes map[uuid.UUID]model.ClinicalEpisode
	lots     map[uuid.UUID]model.InventoryLot
	records  int
	audits   int
	events   int
}

func (s *memStore) snapshotLocked() snapshot {
	snap := snapshot{
		episodes: make(map[uuid.UUID]model.ClinicalEpisode, len(s.episodes)),
		lots:     make(map[uuid.UUID]model.InventoryLot, len(s.lots)),
		records:  len(s.records),
		audits:   len(s.audits),
		events:   len(s.events),
	}
	for id, ep := range s.episodes {
		snap.episodes[id] = *ep
	}
	for id, lot := range s.lots {
		snap.lots[id] = *lot
	}
	return snap
}

func (s *memStore) restoreLocked(snap snapshot) {
	s.episodes = make(map[uuid.UUID]*model.ClinicalEpisode, len(snap.episodes))
	for id, ep := range snap.episodes {
		cp := ep
		s.episodes[id] = &cp
	}
	s.lots = make(map[uuid.UUID]*model.InventoryLot, len(snap.lots))
	for id, lot := range snap.lots {
		cp := lot
		s.lots[id] = &cp
	}
	s.records = s.records[:snap.records]
	s.audits = s.audits[:snap.audits]
	s.events = s.events[:snap.events]
}

func (t memTransactor) WithSerializableTx(ctx context.Context, fn func(tx repository.DispenseTx) error) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	snap := t.s.snapshotLocked()
	err := fn(memTx{t.s})
	if err != nil {
		t.s.restoreLocked(snap)
		return err
	}
	if t.s.conflicts > 0 {
		t.s.conflicts--
		t.s.restoreLocked(snap)
		return repository.ErrTxConflict
	}
	return nil
}

type memTx struct{ s *memStore }

func (tx memTx) LotForUpdate(ctx context.Context, id uuid.UUID) (*model.InventoryLot, error) {
	lot, ok := tx.s.lots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *lot
	return &cp, nil
}

func (tx memTx) CreateDispensation(ctx context.Context, rec *model.DispensationRecord) error {
	cp := *rec
	tx.s.records = append(tx.s.records, &cp)
	return nil
}

func (tx memTx) DecrementLot(ctx context.Context, lotID uuid.UUID, qty int) (int, error) {
	lot, ok := tx.s.lots[lotID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if lot.QuantityAvailable < qty {
		return 0, repository.ErrInsufficientStock
	}
	lot.QuantityAvailable -= qty
	return lot.QuantityAvailable, nil
}

func (tx memTx) TransitionEpisode(ctx context.Context, id uuid.UUID, from, to model.EpisodeStatus, closedAt *time.Time) error {
	return tx.s.transitionLocked(id, from, to, closedAt)
}

func (tx memTx) AppendAudit(ctx context.Context, entry *model.AuditEntry) error {
	cp := *entry
	tx.s.audits = append(tx.s.audits, &cp)
	return nil
}

func (tx memTx) EnqueueEvent(ctx context.Context, event *model.OutboxEvent) error {
	cp := *event
	tx.s.events = append(tx.s.events, &cp)
	return nil
}

// fakeChecker returns a fixed verdict per normalized ingredient.
type fakeChecker struct {
	mu      sync.Mutex
	results map[string]*model.CheckResult
}

func (c *fakeChecker) Check(ctx context.Context, patientID uuid.UUID, rawIngredient string) (*model.CheckResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.results[rawIngredient]; ok {
		return r, nil
	}
	return &model.CheckResult{Safe: true}, nil
}

type fakeAlerter struct {
	mu    sync.Mutex
	alert *model.StockAlert
}

func (a *fakeAlerter) AlertForMedication(ctx context.Context, medicationID uuid.UUID) (*model.StockAlert, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.alert, nil
}
