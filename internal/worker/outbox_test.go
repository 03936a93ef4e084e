package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lbarbosa/infirmary-api/internal/model"
	"github.com/lbarbosa/infirmary-api/pkg/logger"
	"github.com/lbarbosa/infirmary-api/pkg/metrics"
)

// Registered once; prometheus collectors cannot be registered twice in one
// test binary.
var testMetrics = metrics.NewMetrics("test", "worker")

type fakeOutboxRepo struct {
	mu        sync.Mutex
	pending   []*model.OutboxEvent
	processed []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeOutboxRepo) GetPendingWithLock(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeOutboxRepo) MarkFailed(_ context.Context, id uuid.UUID, _ string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

type fakeBroker struct {
	mu        sync.Mutex
	published map[string][]interface{}
	failures  int
}

func (f *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("broker unavailable")
	}
	if f.published == nil {
		f.published = make(map[string][]interface{})
	}
	f.published[channel] = append(f.published[channel], message)
	return nil
}

func (f *fakeBroker) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBroker) Close() error { return nil }

type fakeAlerter struct {
	alert *model.StockAlert
}

func (f *fakeAlerter) AlertForMedication(_ context.Context, _ uuid.UUID) (*model.StockAlert, error) {
	return f.alert, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []*model.StockAlert
	fail bool
}

func (f *fakeNotifier) SendStockAlert(alert *model.StockAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, alert)
	return nil
}

func testLogger() *logger.Logger {
	return logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
}

func newProcessor(repo *fakeOutboxRepo, broker *fakeBroker, alerter *fakeAlerter, notifier *fakeNotifier) *OutboxProcessor {
	return NewOutboxProcessor(repo, broker, alerter, notifier, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}, testLogger(), testMetrics)
}

func event(eventType string, payload interface{}) *model.OutboxEvent {
	raw, _ := json.Marshal(payload)
	return &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   raw,
		Status:    model.OutboxStatusPending,
		CreatedAt: time.Now().UTC(),
	}
}

func TestProcessBatchPublishesAndMarksProcessed(t *testing.T) {
	repo := &fakeOutboxRepo{}
	broker := &fakeBroker{}
	ev := event(model.EventDispenseBlocked, map[string]interface{}{"episode_id": uuid.New()})
	repo.pending = []*model.OutboxEvent{ev}

	p := newProcessor(repo, broker, &fakeAlerter{}, &fakeNotifier{})
	require.NoError(t, p.processBatch(context.Background()))

	assert.Len(t, broker.published[model.EventDispenseBlocked], 1)
	assert.Equal(t, []uuid.UUID{ev.ID}, repo.processed)
	assert.Empty(t, repo.failed)
}

func TestProcessEventBrokerFailureMarksFailed(t *testing.T) {
	repo := &fakeOutboxRepo{}
	broker := &fakeBroker{failures: 10}
	ev := event(model.EventDispenseBlocked, map[string]interface{}{})

	p := newProcessor(repo, broker, &fakeAlerter{}, &fakeNotifier{})
	err := p.processEvent(context.Background(), ev)

	require.Error(t, err)
	assert.Equal(t, []uuid.UUID{ev.ID}, repo.failed)
	assert.Empty(t, repo.processed)
}

func TestProcessEventRetriesTransientBrokerFailure(t *testing.T) {
	repo := &fakeOutboxRepo{}
	broker := &fakeBroker{failures: 1}
	ev := event(model.EventDispenseBlocked, map[string]interface{}{})

	p := newProcessor(repo, broker, &fakeAlerter{}, &fakeNotifier{})
	require.NoError(t, p.processEvent(context.Background(), ev))

	assert.Equal(t, []uuid.UUID{ev.ID}, repo.processed)
}

func TestCriticalAlertTriggersNotification(t *testing.T) {
	repo := &fakeOutboxRepo{}
	broker := &fakeBroker{}
	notifier := &fakeNotifier{}
	alerter := &fakeAlerter{alert: &model.StockAlert{
		Level:  model.AlertCritical,
		Reason: model.AlertReasonOutOfStock,
	}}
	ev := event(model.EventDispenseSuccess, map[string]interface{}{"medication_id": uuid.New()})

	p := newProcessor(repo, broker, alerter, notifier)
	require.NoError(t, p.processEvent(context.Background(), ev))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, model.AlertReasonOutOfStock, notifier.sent[0].Reason)
}

func TestWarningAlertDoesNotNotify(t *testing.T) {
	repo := &fakeOutboxRepo{}
	broker := &fakeBroker{}
	notifier := &fakeNotifier{}
	alerter := &fakeAlerter{alert: &model.StockAlert{
		Level:  model.AlertWarning,
		Reason: model.AlertReasonLowStock,
	}}
	ev := event(model.EventDispenseSuccess, map[string]interface{}{"medication_id": uuid.New()})

	p := newProcessor(repo, broker, alerter, notifier)
	require.NoError(t, p.processEvent(context.Background(), ev))

	assert.Empty(t, notifier.sent)
}

func TestNotificationFailureDoesNotFailEvent(t *testing.T) {
	repo := &fakeOutboxRepo{}
	broker := &fakeBroker{}
	notifier := &fakeNotifier{fail: true}
	alerter := &fakeAlerter{alert: &model.StockAlert{Level: model.AlertCritical, Reason: model.AlertReasonOutOfStock}}
	ev := event(model.EventDispenseSuccess, map[string]interface{}{"medication_id": uuid.New()})

	p := newProcessor(repo, broker, alerter, notifier)
	require.NoError(t, p.processEvent(context.Background(), ev))

	assert.Equal(t, []uuid.UUID{ev.ID}, repo.processed)
}
