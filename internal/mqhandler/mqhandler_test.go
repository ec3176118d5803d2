package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	mqcontracts "luxuryestates/contracts/mq"
	"luxuryestates/internal/model"
	"luxuryestates/pkg/mq"
	"luxuryestates/pkg/util"
)

type dlqEntry struct {
	routingKey string
	payload    []byte
	reason     string
}

type fakeDLQ struct {
	entries []dlqEntry
	err     error
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, routingKey string, payload []byte, originalError string) error {
	if d.err != nil {
		return d.err
	}
	d.entries = append(d.entries, dlqEntry{routingKey: routingKey, payload: payload, reason: originalError})
	return nil
}

type fakeWelcome struct {
	calls []model.Alert
	err   error
}

func (w *fakeWelcome) SendWelcome(_ context.Context, a model.Alert) (model.BatchResult, error) {
	w.calls = append(w.calls, a)
	if w.err != nil {
		return model.BatchResult{}, w.err
	}
	return model.BatchResult{
		JobID:    "welcome-1",
		Kind:     model.KindWelcome,
		Outcomes: []model.DeliveryOutcome{{Destination: a.Email, AlertID: a.ID, Status: model.DeliverySent}},
	}, nil
}

type fakeRunner struct {
	jobs []mqcontracts.NotificationFanoutPayload
}

func (r *fakeRunner) FanOut(_ context.Context, job mqcontracts.NotificationFanoutPayload) model.BatchResult {
	r.jobs = append(r.jobs, job)
	return model.BatchResult{JobID: job.JobID, Kind: model.KindNewListing}
}

func newRetries(t *testing.T) (*miniredis.Miniredis, *util.RetryCounter) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, util.NewRetryCounter(rdb, time.Hour)
}

func alertPayload(t *testing.T, category string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(mqcontracts.AlertCreatedPayload{
		AlertID:      7,
		Email:        "buyer@example.com",
		PropertyType: category,
		CreatedAt:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return raw
}

func TestAlertCreatedHandlerSendsWelcome(t *testing.T) {
	_, retries := newRetries(t)
	sender := &fakeWelcome{}
	dlq := &fakeDLQ{}
	h := NewAlertCreatedHandler(sender, retries, dlq, 3, zaptest.NewLogger(t))

	require.NoError(t, h.Handle(context.Background(), alertPayload(t, "Villa")))

	require.Len(t, sender.calls, 1)
	assert.Equal(t, int64(7), sender.calls[0].ID)
	assert.Equal(t, model.CategoryVilla, sender.calls[0].PropertyType)
	assert.Empty(t, dlq.entries)
}

func TestAlertCreatedHandlerMalformedPayloadGoesToDLQ(t *testing.T) {
	_, retries := newRetries(t)
	sender := &fakeWelcome{}
	dlq := &fakeDLQ{}
	h := NewAlertCreatedHandler(sender, retries, dlq, 3, zaptest.NewLogger(t))

	require.NoError(t, h.Handle(context.Background(), json.RawMessage(`{"alert_id":`)))

	assert.Empty(t, sender.calls)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, mq.RoutingKeyAlertCreated, dlq.entries[0].routingKey)
	assert.Contains(t, dlq.entries[0].reason, "json_decode_error")
}

func TestAlertCreatedHandlerUnknownCategoryGoesToDLQ(t *testing.T) {
	_, retries := newRetries(t)
	sender := &fakeWelcome{}
	dlq := &fakeDLQ{}
	h := NewAlertCreatedHandler(sender, retries, dlq, 3, zaptest.NewLogger(t))

	require.NoError(t, h.Handle(context.Background(), alertPayload(t, "Castle")))

	assert.Empty(t, sender.calls)
	assert.Len(t, dlq.entries, 1)
}

func TestAlertCreatedHandlerRetriesThenDeadLetters(t *testing.T) {
	mr, retries := newRetries(t)
	sender := &fakeWelcome{err: context.DeadlineExceeded}
	dlq := &fakeDLQ{}
	h := NewAlertCreatedHandler(sender, retries, dlq, 2, zaptest.NewLogger(t))
	ctx := context.Background()
	raw := alertPayload(t, "Villa")

	assert.Error(t, h.Handle(ctx, raw))
	assert.Error(t, h.Handle(ctx, raw))
	assert.Empty(t, dlq.entries)

	require.NoError(t, h.Handle(ctx, raw))
	require.Len(t, dlq.entries, 1)
	assert.Contains(t, dlq.entries[0].reason, "timeout")
	assert.False(t, mr.Exists(util.FormatRetryKey("alert_created", "7")))
}

func TestAlertCreatedHandlerRequeuesWhenDLQUnavailable(t *testing.T) {
	_, retries := newRetries(t)
	sender := &fakeWelcome{err: errors.New("template broken")}
	dlq := &fakeDLQ{err: errors.New("channel closed")}
	h := NewAlertCreatedHandler(sender, retries, dlq, 3, zaptest.NewLogger(t))

	assert.Error(t, h.Handle(context.Background(), alertPayload(t, "Villa")))
}

func TestAlertCreatedHandlerSuccessResetsCounter(t *testing.T) {
	mr, retries := newRetries(t)
	sender := &fakeWelcome{err: context.DeadlineExceeded}
	h := NewAlertCreatedHandler(sender, retries, &fakeDLQ{}, 3, zaptest.NewLogger(t))
	ctx := context.Background()
	raw := alertPayload(t, "Villa")

	assert.Error(t, h.Handle(ctx, raw))
	key := util.FormatRetryKey("alert_created", "7")
	assert.True(t, mr.Exists(key))

	sender.err = nil
	require.NoError(t, h.Handle(ctx, raw))
	assert.False(t, mr.Exists(key))
}

func TestNotificationFanoutHandlerRunsJob(t *testing.T) {
	_, retries := newRetries(t)
	runner := &fakeRunner{}
	dlq := &fakeDLQ{}
	h := NewNotificationFanoutHandler(runner, retries, dlq, zaptest.NewLogger(t))

	raw, err := json.Marshal(mqcontracts.NotificationFanoutPayload{
		JobID:        "job-9",
		PropertyID:   3,
		Category:     "Mansion",
		Destinations: []mqcontracts.FanoutDestination{{AlertID: 1, Email: "a@example.com"}},
	})
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), raw))
	require.Len(t, runner.jobs, 1)
	assert.Equal(t, "job-9", runner.jobs[0].JobID)
	assert.Empty(t, dlq.entries)
}

func TestNotificationFanoutHandlerRejectsInvalidJobs(t *testing.T) {
	cases := map[string]string{
		"malformed":    `{"job_id":`,
		"missing id":   `{"property_id":1,"category":"Villa"}`,
		"bad category": `{"job_id":"j","property_id":1,"category":"Castle"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, retries := newRetries(t)
			runner := &fakeRunner{}
			dlq := &fakeDLQ{}
			h := NewNotificationFanoutHandler(runner, retries, dlq, zaptest.NewLogger(t))

			require.NoError(t, h.Handle(context.Background(), json.RawMessage(body)))
			assert.Empty(t, runner.jobs)
			require.Len(t, dlq.entries, 1)
			assert.Equal(t, mq.RoutingKeyNotificationFanout, dlq.entries[0].routingKey)
		})
	}
}
