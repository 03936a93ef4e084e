package episode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
	"github.com/lbarbosa/infirmary-api/internal/service/audit"
	apperrors "github.com/lbarbosa/infirmary-api/pkg/errors"
	"github.com/lbarbosa/infirmary-api/pkg/logger"
)

// Service handles the episode lifecycle outside dispensation: opening when
// care begins and the closing workflow (referred/closed). The dispensed and
// blocked_allergy transitions belong to the orchestrator.
type Service struct {
	episodes      repository.EpisodeRepository
	patients      repository.PatientRepository
	dispensations repository.DispensationRepository
	auditor       *audit.Service
	logger        *logger.Logger
}

func NewService(episodes repository.EpisodeRepository, patients repository.PatientRepository, dispensations repository.DispensationRepository, auditor *audit.Service, log *logger.Logger) *Service {
	return &Service{
		episodes:      episodes,
		patients:      patients,
		dispensations: dispensations,
		auditor:       auditor,
		logger:        log.WithComponent("episode"),
	}
}

func (s *Service) Open(ctx context.Context, operator model.Operator, req *model.OpenEpisodeRequest) (*model.ClinicalEpisode, error) {
	if _, err := s.patients.Get(ctx, req.PatientID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("patient", err)
		}
		return nil, fmt.Errorf("failed to resolve patient: %w", err)
	}

	ep := &model.ClinicalEpisode{
		ID:         uuid.New(),
		PatientID:  req.PatientID,
		OperatorID: operator.ID,
		Complaint:  req.Complaint,
		Status:     model.EpisodeOpen,
		OpenedAt:   time.Now().UTC(),
	}

	if err := s.episodes.Create(ctx, ep); err != nil {
		return nil, fmt.Errorf("failed to create episode: %w", err)
	}

	if _, err := s.auditor.Append(ctx, operator.ID, model.AuditEpisodeOpen, model.AuditTargetEpisode, &ep.ID, ep); err != nil {
		s.logger.Error(err, "episode open audit failed", map[string]interface{}{"episode_id": ep.ID})
	}

	return ep, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*model.ClinicalEpisode, error) {
	ep, err := s.episodes.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("episode", err)
		}
		return nil, fmt.Errorf("failed to get episode: %w", err)
	}
	return ep, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.ClinicalEpisode, error) {
	return s.episodes.ListByPatient(ctx, patientID)
}

// Dispensations returns the dispensation history of an episode. An open
// episode has none yet; a dispensed one has exactly one record.
func (s *Service) Dispensations(ctx context.Context, episodeID uuid.UUID) ([]*model.DispensationRecord, error) {
	if _, err := s.Get(ctx, episodeID); err != nil {
		return nil, err
	}
	return s.dispensations.ListByEpisode(ctx, episodeID)
}

// Close ends an open episode as referred or closed.
func (s *Service) Close(ctx context.Context, operator model.Operator, id uuid.UUID, req *model.CloseEpisodeRequest) (*model.ClinicalEpisode, error) {
	target := model.EpisodeStatus(req.Outcome)
	if target != model.EpisodeReferred && target != model.EpisodeClosed {
		return nil, apperrors.BadRequest(fmt.Sprintf("invalid close outcome %q", req.Outcome), nil)
	}

	ep, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if ep.Status != model.EpisodeOpen {
		return nil, apperrors.Conflict(fmt.Sprintf("episode is %s, not open", ep.Status), nil)
	}

	closedAt := time.Now().UTC()
	if err := s.episodes.Transition(ctx, id, model.EpisodeOpen, target, &closedAt); err != nil {
		if errors.Is(err, repository.ErrStaleTransition) {
			return nil, apperrors.Conflict("episode was closed concurrently", err)
		}
		return nil, fmt.Errorf("failed to close episode: %w", err)
	}

	ep.Status = target
	ep.ClosedAt = &closedAt

	if _, err := s.auditor.Append(ctx, operator.ID, model.AuditEpisodeClose, model.AuditTargetEpisode, &id, map[string]interface{}{
		"outcome": req.Outcome,
		"notes":   req.Notes,
	}); err != nil {
		s.logger.Error(err, "episode close audit failed", map[string]interface{}{"episode_id": id})
	}

	return ep, nil
}
