package episode

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
	"github.com/lbarbosa/infirmary-api/internal/repository"
	"github.com/lbarbosa/infirmary-api/internal/service/audit"
	apperrors "github.com/lbarbosa/infirmary-api/pkg/errors"
	"github.com/lbarbosa/infirmary-api/pkg/logger"
)

type fakePatientRepo struct {
	patients map[uuid.UUID]*model.Patient
}

func (f *fakePatientRepo) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	p, ok := f.patients[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return p, nil
}

type fakeEpisodeRepo struct {
	mu       sync.Mutex
	episodes map[uuid.UUID]*model.ClinicalEpisode
}

func newFakeEpisodeRepo() *fakeEpisodeRepo {
	return &fakeEpisodeRepo{episodes: make(map[uuid.UUID]*model.ClinicalEpisode)}
}

func (f *fakeEpisodeRepo) Create(_ context.Context, ep *model.ClinicalEpisode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *ep
	f.episodes[ep.ID] = &cp
	return nil
}

func (f *fakeEpisodeRepo) Get(_ context.Context, id uuid.UUID) (*model.ClinicalEpisode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.episodes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *ep
	return &cp, nil
}

func (f *fakeEpisodeRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.ClinicalEpisode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ClinicalEpisode
	for _, ep := range f.episodes {
		if ep.PatientID == patientID {
			cp := *ep
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeEpisodeRepo) Transition(_ context.Context, id uuid.UUID, from, to model.EpisodeStatus, closedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ep, ok := f.episodes[id]
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

type fakeDispensationRepo struct {
	records []*model.DispensationRecord
}

func (f *fakeDispensationRepo) Get(_ context.Context, id uuid.UUID) (*model.DispensationRecord, error) {
	for _, rec := range f.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDispensationRepo) ListByEpisode(_ context.Context, episodeID uuid.UUID) ([]*model.DispensationRecord, error) {
	var out []*model.DispensationRecord
	for _, rec := range f.records {
		if rec.EpisodeID == episodeID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeAuditRepo struct {
	entries []*model.AuditEntry
}

func (f *fakeAuditRepo) Append(_ context.Context, entry *model.AuditEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeAuditRepo) List(_ context.Context, _ model.AuditFilter) ([]*model.AuditEntry, error) {
	return f.entries, nil
}

var operator = model.Operator{ID: uuid.New(), Name: "Nurse Clara"}

func setup(t *testing.T) (*Service, uuid.UUID, *fakeEpisodeRepo, *fakeAuditRepo) {
	t.Helper()
	svc, patientID, episodes, _, auditRepo := setupWithDispensations(t)
	return svc, patientID, episodes, auditRepo
}

func setupWithDispensations(t *testing.T) (*Service, uuid.UUID, *fakeEpisodeRepo, *fakeDispensationRepo, *fakeAuditRepo) {
	t.Helper()
	patientID := uuid.New()
	patients := &fakePatientRepo{patients: map[uuid.UUID]*model.Patient{
		patientID: {ID: patientID, Name: "Ana Souza"},
	}}
	episodes := newFakeEpisodeRepo()
	dispensations := &fakeDispensationRepo{}
	auditRepo := &fakeAuditRepo{}
	log := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	svc := NewService(episodes, patients, dispensations, audit.NewService(auditRepo, nil), log)
	return svc, patientID, episodes, dispensations, auditRepo
}

func TestOpenEpisode(t *testing.T) {
	svc, patientID, _, auditRepo := setup(t)

	ep, err := svc.Open(context.Background(), operator, &model.OpenEpisodeRequest{
		PatientID: patientID,
		Complaint: "headache",
	})
	require.NoError(t, err)
	assert.Equal(t, model.EpisodeOpen, ep.Status)
	assert.Equal(t, operator.ID, ep.OperatorID)
	assert.Nil(t, ep.ClosedAt)

	require.Len(t, auditRepo.entries, 1)
	assert.Equal(t, model.AuditEpisodeOpen, auditRepo.entries[0].ActionKind)
}

func TestOpenEpisodeUnknownPatient(t *testing.T) {
	svc, _, _, _ := setup(t)

	_, err := svc.Open(context.Background(), operator, &model.OpenEpisodeRequest{PatientID: uuid.New()})
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}

func TestCloseEpisode(t *testing.T) {
	svc, patientID, repo, auditRepo := setup(t)
	ctx := context.Background()

	ep, err := svc.Open(ctx, operator, &model.OpenEpisodeRequest{PatientID: patientID})
	require.NoError(t, err)

	closed, err := svc.Close(ctx, operator, ep.ID, &model.CloseEpisodeRequest{Outcome: "referred", Notes: "sent to ER"})
	require.NoError(t, err)
	assert.Equal(t, model.EpisodeReferred, closed.Status)
	require.NotNil(t, closed.ClosedAt)

	stored, err := repo.Get(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, model.EpisodeReferred, stored.Status)

	require.Len(t, auditRepo.entries, 2)
	assert.Equal(t, model.AuditEpisodeClose, auditRepo.entries[1].ActionKind)
}

func TestCloseEpisodeInvalidOutcome(t *testing.T) {
	svc, patientID, _, _ := setup(t)
	ctx := context.Background()

	ep, err := svc.Open(ctx, operator, &model.OpenEpisodeRequest{PatientID: patientID})
	require.NoError(t, err)

	// dispensed and blocked_allergy belong to the orchestrator, not this
	// endpoint.
	for _, outcome := range []string{"dispensed", "blocked_allergy", "open", "done"} {
		_, err := svc.Close(ctx, operator, ep.ID, &model.CloseEpisodeRequest{Outcome: outcome})
		assert.Equal(t, apperrors.ErrBadRequest, apperrors.CodeOf(err), "outcome %q", outcome)
	}
}

func TestCloseEpisodeAlreadyClosed(t *testing.T) {
	svc, patientID, _, _ := setup(t)
	ctx := context.Background()

	ep, err := svc.Open(ctx, operator, &model.OpenEpisodeRequest{PatientID: patientID})
	require.NoError(t, err)

	_, err = svc.Close(ctx, operator, ep.ID, &model.CloseEpisodeRequest{Outcome: "closed"})
	require.NoError(t, err)

	_, err = svc.Close(ctx, operator, ep.ID, &model.CloseEpisodeRequest{Outcome: "closed"})
	assert.Equal(t, apperrors.ErrConflict, apperrors.CodeOf(err))
}

func TestEpisodeDispensations(t *testing.T) {
	svc, patientID, _, dispensations, _ := setupWithDispensations(t)
	ctx := context.Background()

	ep, err := svc.Open(ctx, operator, &model.OpenEpisodeRequest{PatientID: patientID})
	require.NoError(t, err)

	records, err := svc.Dispensations(ctx, ep.ID)
	require.NoError(t, err)
	assert.Empty(t, records)

	dispensations.records = append(dispensations.records, &model.DispensationRecord{
		ID:        uuid.New(),
		EpisodeID: ep.ID,
		Quantity:  2,
	})

	records, err = svc.Dispensations(ctx, ep.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ep.ID, records[0].EpisodeID)
}

func TestEpisodeDispensationsUnknownEpisode(t *testing.T) {
	svc, _, _, _ := setup(t)

	_, err := svc.Dispensations(context.Background(), uuid.New())
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}

func TestCloseEpisodeNotFound(t *testing.T) {
	svc, _, _, _ := setup(t)

	_, err := svc.Close(context.Background(), operator, uuid.New(), &model.CloseEpisodeRequest{Outcome: "closed"})
	assert.Equal(t, apperrors.ErrNotFound, apperrors.CodeOf(err))
}
