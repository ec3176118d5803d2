package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"luxuryestates/internal/model"
)

type NotificationLogRepository struct {
	db *pgxpool.Pool
}

func NewNotificationLogRepository(db *pgxpool.Pool) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

// InsertBatch 用 COPY 一次写入一个批次的全部投递结果
func (r *NotificationLogRepository) InsertBatch(ctx context.Context, propertyID *int64, result model.BatchResult) error {
	if len(result.Outcomes) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		attempted := o.AttemptedAt
		if attempted.IsZero() {
			attempted = time.Now()
		}
		rows = append(rows, []any{
			result.JobID, o.AlertID, propertyID, o.Destination,
			string(result.Kind), string(o.Status), o.Error, attempted,
		})
	}

	_, err := r.db.CopyFrom(ctx,
		pgx.Identifier{"notification_logs"},
		[]string{"job_id", "alert_id", "property_id", "destination", "kind", "status", "error", "created_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("insert notification logs: %w", err)
	}
	return nil
}

// ListByJob 按写入顺序返回一个批次的日志
func (r *NotificationLogRepository) ListByJob(ctx context.Context, jobID string) ([]model.NotificationLog, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, job_id, alert_id, property_id, destination, kind, status, error, created_at
        FROM notification_logs
        WHERE job_id = $1
        ORDER BY id ASC
    `, jobID)
	if err != nil {
		return nil, fmt.Errorf("query notification logs: %w", err)
	}

	logs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.NotificationLog, error) {
		var l model.NotificationLog
		var kind, status string
		err := row.Scan(&l.ID, &l.JobID, &l.AlertID, &l.PropertyID, &l.Destination, &kind, &status, &l.Error, &l.CreatedAt)
		l.Kind = model.NotificationKind(kind)
		l.Status = model.DeliveryStatus(status)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan notification logs: %w", err)
	}
	return logs, nil
}
