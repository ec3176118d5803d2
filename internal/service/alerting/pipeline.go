package alerting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	mqcontracts "luxuryestates/contracts/mq"
	"luxuryestates/internal/model"
	"luxuryestates/pkg/logger"
	"luxuryestates/pkg/metrics"
	"luxuryestates/pkg/otel"
	"luxuryestates/pkg/trace"
)

const (
	defaultBatchSize   = 2
	defaultConcurrency = 8

	dedupScopeFanout  = "fanout"
	dedupScopeWelcome = "welcome"
)

// PropertyStore 管道需要的房源读写
type PropertyStore interface {
	Create(ctx context.Context, property *model.Property) error
	FindRecentByCategory(ctx context.Context, category model.Category, limit int) ([]model.Property, error)
}

// JobQueue 把邮件发送交给后台 worker
type JobQueue interface {
	EnqueueWelcome(ctx context.Context, payload mqcontracts.AlertCreatedPayload) error
	EnqueueFanout(ctx context.Context, payload mqcontracts.NotificationFanoutPayload) error
}

// DeliveryRecorder 持久化投递结果
type DeliveryRecorder interface {
	InsertBatch(ctx context.Context, propertyID *int64, result model.BatchResult) error
}

// Deduper 记录已经发送成功的 (scope, id)，重投时跳过
type Deduper interface {
	Done(ctx context.Context, scope, id string) bool
	MarkDone(ctx context.Context, scope, id string)
}

// Dispatch 是房源创建后返回给调用方的结果。Count 是发出的投递次数，不是成功次数
type Dispatch struct {
	Count int
	JobID string
	Async bool
	// Result 仅在同步模式下有值
	Result *model.BatchResult
}

// Pipeline 串联订阅、匹配和通知
type Pipeline struct {
	alerts      AlertStore
	properties  PropertyStore
	matcher     *Matcher
	notifier    *Notifier
	queue       JobQueue
	recorder    DeliveryRecorder
	dedup       Deduper
	batchSize   int
	concurrency int
	newJobID    func() string
	logger      *zap.Logger
}

func NewPipeline(alerts AlertStore, properties PropertyStore, notifier *Notifier, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		alerts:      alerts,
		properties:  properties,
		matcher:     NewMatcher(alerts),
		notifier:    notifier,
		batchSize:   defaultBatchSize,
		concurrency: defaultConcurrency,
		newJobID:    uuid.NewString,
		logger:      logger,
	}
}

// WithQueue 开启异步模式
func (p *Pipeline) WithQueue(q JobQueue) *Pipeline {
	p.queue = q
	return p
}

func (p *Pipeline) WithRecorder(r DeliveryRecorder) *Pipeline {
	p.recorder = r
	return p
}

func (p *Pipeline) WithDeduper(d Deduper) *Pipeline {
	p.dedup = d
	return p
}

func (p *Pipeline) WithBatchSize(n int) *Pipeline {
	if n > 0 {
		p.batchSize = n
	}
	return p
}

func (p *Pipeline) WithConcurrency(n int) *Pipeline {
	if n > 0 {
		p.concurrency = n
	}
	return p
}

func (p *Pipeline) WithJobIDs(gen func() string) *Pipeline {
	if gen != nil {
		p.newJobID = gen
	}
	return p
}

func (p *Pipeline) Matcher() *Matcher {
	return p.matcher
}

// CreateAlert 校验、持久化，然后发送欢迎邮件。邮件结果不影响返回值
func (p *Pipeline) CreateAlert(ctx context.Context, email, propertyType string) (*model.Alert, error) {
	email = strings.TrimSpace(email)
	if err := model.ValidateEmail(email); err != nil {
		return nil, err
	}
	category, err := model.ParseCategory(propertyType)
	if err != nil {
		return nil, err
	}

	ctx, span := otel.StartSpan(ctx, "alerting.create_alert",
		oteltrace.WithAttributes(attribute.String("alert.category", string(category))))
	defer span.End()

	alert := &model.Alert{Email: email, PropertyType: category}
	if err := p.alerts.Create(ctx, alert); err != nil {
		span.RecordError(err)
		return nil, model.Persistence("create alert", err)
	}

	log := logger.WithTrace(ctx, p.logger).With(
		zap.Int64("alert_id", alert.ID),
		zap.String("category", string(category)),
	)
	log.Info("Alert created")

	// 先持久化再通知
	if p.queue != nil {
		err := p.queue.EnqueueWelcome(ctx, mqcontracts.AlertCreatedPayload{
			AlertID:      alert.ID,
			Email:        alert.Email,
			PropertyType: string(alert.PropertyType),
			CreatedAt:    alert.CreatedAt,
			TraceID:      trace.FromContext(ctx),
		})
		if err == nil {
			return alert, nil
		}
		log.Error("Failed to enqueue welcome notification, sending inline", zap.Error(err))
	}

	if _, err := p.SendWelcome(context.WithoutCancel(ctx), *alert); err != nil {
		log.Error("Welcome notification not sent", zap.Error(err))
	}
	return alert, nil
}

// SendWelcome 查询该分类最近的房源并给新订阅者发一封邮件。
// 只有查询失败会返回 error，此时还没有发出任何邮件
func (p *Pipeline) SendWelcome(ctx context.Context, alert model.Alert) (model.BatchResult, error) {
	result := model.BatchResult{
		JobID: dedupScopeWelcome + "-" + strconv.FormatInt(alert.ID, 10),
		Kind:  model.KindWelcome,
	}

	recent, err := p.RecentBatch(ctx, alert.PropertyType)
	if err != nil {
		return result, err
	}

	dedupID := strconv.FormatInt(alert.ID, 10)
	if p.dedup != nil && p.dedup.Done(ctx, dedupScopeWelcome, dedupID) {
		result.Outcomes = []model.DeliveryOutcome{skipped(alert.Email, alert.ID)}
		metrics.IncrementNotificationDelivery(string(model.KindWelcome), string(model.DeliverySkipped))
		return result, nil
	}

	outcome := p.notifier.Notify(ctx, Notification{
		Kind:        model.KindWelcome,
		Destination: alert.Email,
		AlertID:     alert.ID,
		Category:    alert.PropertyType,
		Properties:  recent,
	})
	p.markSent(ctx, dedupScopeWelcome, dedupID, outcome)
	result.Outcomes = []model.DeliveryOutcome{outcome}
	p.record(ctx, nil, result)
	return result, nil
}

// RecentBatch 返回该分类最新的 batchSize 个房源快照，最新的在前
func (p *Pipeline) RecentBatch(ctx context.Context, category model.Category) ([]model.PropertySnapshot, error) {
	recent, err := p.properties.FindRecentByCategory(ctx, category, p.batchSize)
	if err != nil {
		return nil, fmt.Errorf("load recent %s properties: %w", category, err)
	}
	if len(recent) > p.batchSize {
		recent = recent[:p.batchSize]
	}
	return model.Snapshots(recent), nil
}

// CreateProperty 持久化房源并向所有匹配的订阅者扇出通知。
// 只有持久化失败会返回 error；之后的任何失败都不会回滚房源
func (p *Pipeline) CreateProperty(ctx context.Context, property *model.Property) (Dispatch, error) {
	if strings.TrimSpace(property.Title) == "" {
		return Dispatch{}, model.NewValidationError("title", "is required")
	}
	if _, err := model.ParseCategory(string(property.Category)); err != nil {
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			return Dispatch{}, model.NewValidationError("category", verr.Message)
		}
		return Dispatch{}, err
	}

	ctx, span := otel.StartSpan(ctx, "alerting.create_property",
		oteltrace.WithAttributes(attribute.String("property.category", string(property.Category))))
	defer span.End()

	if err := p.properties.Create(ctx, property); err != nil {
		span.RecordError(err)
		metrics.IncrementPropertyMutation("create", "error")
		if model.IsValidation(err) {
			return Dispatch{}, err
		}
		return Dispatch{}, model.Persistence("create property", err)
	}
	metrics.IncrementPropertyMutation("create", "ok")

	log := logger.WithTrace(ctx, p.logger).With(
		zap.Int64("property_id", property.ID),
		zap.String("category", string(property.Category)),
	)

	matches, err := p.matcher.MatchAlerts(ctx, property.Category)
	if err != nil {
		span.RecordError(err)
		log.Error("Alert matching failed, no notifications dispatched", zap.Error(err))
		return Dispatch{}, nil
	}
	metrics.ObserveFanoutSize(len(matches))
	span.SetAttributes(attribute.Int("alert.matches", len(matches)))

	if len(matches) == 0 {
		log.Info("Property created, no matching alerts")
		return Dispatch{}, nil
	}

	batch, err := p.RecentBatch(ctx, property.Category)
	if err != nil {
		log.Warn("Falling back to single-property batch", zap.Error(err))
		batch = []model.PropertySnapshot{property.Snapshot()}
	}

	job := mqcontracts.NotificationFanoutPayload{
		JobID:        p.newJobID(),
		PropertyID:   property.ID,
		Category:     string(property.Category),
		Destinations: destinations(matches),
		Properties:   batch,
		CreatedAt:    time.Now().UTC(),
		TraceID:      trace.FromContext(ctx),
	}
	dispatch := Dispatch{Count: len(matches), JobID: job.JobID}
	log = log.With(zap.String("job_id", job.JobID), zap.Int("dispatched", dispatch.Count))

	if p.queue != nil {
		err := p.queue.EnqueueFanout(ctx, job)
		if err == nil {
			dispatch.Async = true
			log.Info("Property created, fan-out queued")
			return dispatch, nil
		}
		log.Error("Failed to enqueue fan-out, sending inline", zap.Error(err))
	}

	result := p.FanOut(context.WithoutCancel(ctx), job)
	dispatch.Result = &result
	log.Info("Property created, fan-out finished",
		zap.Int("sent", result.Sent()),
		zap.Int("failed", result.Failed()),
	)
	return dispatch, nil
}

// FanOut 并发给每个收件人发送一次，等待全部结束。单个失败不会取消其他发送，
// 结果顺序与 job.Destinations 一致
func (p *Pipeline) FanOut(ctx context.Context, job mqcontracts.NotificationFanoutPayload) model.BatchResult {
	ctx, span := otel.StartSpan(ctx, "alerting.fanout",
		oteltrace.WithAttributes(
			attribute.String("job.id", job.JobID),
			attribute.Int("job.destinations", len(job.Destinations)),
		))
	defer span.End()

	category := model.Category(job.Category)
	properties := job.Properties
	if len(properties) > p.batchSize {
		properties = properties[:p.batchSize]
	}

	outcomes := make([]model.DeliveryOutcome, len(job.Destinations))
	var g errgroup.Group
	g.SetLimit(p.concurrency)

	for i, dest := range job.Destinations {
		g.Go(func() error {
			dedupID := job.JobID + ":" + strconv.FormatInt(dest.AlertID, 10)
			if p.dedup != nil && p.dedup.Done(ctx, dedupScopeFanout, dedupID) {
				outcomes[i] = skipped(dest.Email, dest.AlertID)
				metrics.IncrementNotificationDelivery(string(model.KindNewListing), string(model.DeliverySkipped))
				return nil
			}
			outcomes[i] = p.notifier.Notify(ctx, Notification{
				Kind:        model.KindNewListing,
				Destination: dest.Email,
				AlertID:     dest.AlertID,
				Category:    category,
				Properties:  properties,
			})
			p.markSent(ctx, dedupScopeFanout, dedupID, outcomes[i])
			return nil
		})
	}
	_ = g.Wait()

	result := model.BatchResult{JobID: job.JobID, Kind: model.KindNewListing, Outcomes: outcomes}
	propertyID := job.PropertyID
	p.record(ctx, &propertyID, result)
	return result
}

// markSent 只标记已发出的邮件，失败或中途崩溃的收件人重投时会再发一次
func (p *Pipeline) markSent(ctx context.Context, scope, id string, outcome model.DeliveryOutcome) {
	if p.dedup != nil && outcome.Status == model.DeliverySent {
		p.dedup.MarkDone(ctx, scope, id)
	}
}

func (p *Pipeline) record(ctx context.Context, propertyID *int64, result model.BatchResult) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.InsertBatch(ctx, propertyID, result); err != nil {
		logger.WithTrace(ctx, p.logger).Warn("Failed to record delivery outcomes",
			zap.String("job_id", result.JobID),
			zap.Error(err),
		)
	}
}

func destinations(alerts []model.Alert) []mqcontracts.FanoutDestination {
	out := make([]mqcontracts.FanoutDestination, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, mqcontracts.FanoutDestination{AlertID: a.ID, Email: a.Email})
	}
	return out
}

func skipped(destination string, alertID int64) model.DeliveryOutcome {
	return model.DeliveryOutcome{
		Destination: destination,
		AlertID:     alertID,
		Status:      model.DeliverySkipped,
		AttemptedAt: time.Now(),
	}
}
