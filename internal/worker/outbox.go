package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/internal/repository"
	"github.com/lbarbosa/infirmary-api/pkg/logger"
	"github.com/lbarbosa/infirmary-api/pkg/messaging"
	"github.com/lbarbosa/infirmary-api/pkg/metrics"
)

// Alerter derives the current stock alert for a medication.
type Alerter interface {
	AlertForMedication(ctx context.Context, medicationID uuid.UUID) (*model.StockAlert, error)
}

// Notifier delivers stock alerts out of band.
type Notifier interface {
	SendStockAlert(alert *model.StockAlert) error
}

type OutboxProcessorConfig struct {
	BatchSize     int
	PollInterval  time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// OutboxProcessor drains pending outbox events to the message broker and
// raises coordinator notifications for critical stock levels. Events are
// written transactionally with the dispensation, so delivery here is
// at-least-once.
type OutboxProcessor struct {
	repo     repository.OutboxRepository
	broker   messaging.Broker
	alerter  Alerter
	notifier Notifier
	config   OutboxProcessorConfig
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	alerter Alerter,
	notifier Notifier,
	config OutboxProcessorConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *OutboxProcessor {
	if config.BatchSize <= 0 {
		config.BatchSize = 50
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.RetryAttempts <= 0 {
		config.RetryAttempts = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 500 * time.Millisecond
	}

	return &OutboxProcessor{
		repo:     repo,
		broker:   broker,
		alerter:  alerter,
		notifier: notifier,
		config:   config,
		logger:   log.WithComponent("outbox_processor"),
		metrics:  m,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("starting outbox processor", map[string]interface{}{
		"batch_size":    p.config.BatchSize,
		"poll_interval": p.config.PollInterval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping outbox processor", nil)
			return
		case <-ticker.C:
			if err := p.processBatch(ctx); err != nil {
				p.logger.Error(err, "outbox batch failed", nil)
			}
		}
	}
}

func (p *OutboxProcessor) processBatch(ctx context.Context) error {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.GetPendingWithLock(ctx, p.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch pending events: %w", err)
	}

	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "failed to process outbox event", map[string]interface{}{
				"event_id":   event.ID.String(),
				"event_type": event.EventType,
			})
		}
	}
	return nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	err := retry(p.config.RetryAttempts, p.config.RetryDelay, func() error {
		return p.broker.Publish(ctx, event.EventType, event.Payload)
	})
	if err != nil {
		p.metrics.OutboxEventsFailed.Inc()
		retryAt := time.Now().UTC().Add(p.config.RetryDelay * time.Duration(event.RetryCount+1))
		if markErr := p.repo.MarkFailed(ctx, event.ID, err.Error(), retryAt); markErr != nil {
			p.logger.Error(markErr, "failed to mark event failed", map[string]interface{}{
				"event_id": event.ID.String(),
			})
		}
		return err
	}

	if err := p.repo.MarkProcessed(ctx, event.ID); err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	p.metrics.OutboxEventsProcessed.Inc()

	if event.EventType == model.EventDispenseSuccess {
		p.checkStockAlert(ctx, event)
	}
	return nil
}

// checkStockAlert re-derives the medication's stock alert after a successful
// dispensation and notifies the coordinator on critical levels. Failures are
// logged and swallowed; notification never gates event delivery.
func (p *OutboxProcessor) checkStockAlert(ctx context.Context, event *model.OutboxEvent) {
	var payload struct {
		MedicationID uuid.UUID `json:"medication_id"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		p.logger.Error(err, "failed to decode dispensation payload", map[string]interface{}{
			"event_id": event.ID.String(),
		})
		return
	}

	alert, err := p.alerter.AlertForMedication(ctx, payload.MedicationID)
	if err != nil {
		p.logger.Error(err, "failed to derive stock alert", map[string]interface{}{
			"medication_id": payload.MedicationID.String(),
		})
		return
	}
	if alert == nil {
		return
	}

	p.metrics.StockAlerts.WithLabelValues(string(alert.Level)).Inc()
	if alert.Level != model.AlertCritical {
		return
	}
	if err := p.notifier.SendStockAlert(alert); err != nil {
		p.logger.Error(err, "failed to send stock alert notification", map[string]interface{}{
			"medication_id": payload.MedicationID.String(),
			"reason":        alert.Reason,
		})
	}
}

func retry(attempts int, delay time.Duration, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
