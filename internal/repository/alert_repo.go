package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"luxuryestates/internal/model"
)

type AlertRepository struct {
	db *pgxpool.Pool
}

func NewAlertRepository(db *pgxpool.Pool) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create 写入订阅；同一邮箱可以重复订阅同一分类
func (r *AlertRepository) Create(ctx context.Context, a *model.Alert) error {
	query := `
        INSERT INTO alerts (email, property_type)
        VALUES ($1, $2)
        RETURNING id, created_at
    `
	if err := r.db.QueryRow(ctx, query, a.Email, string(a.PropertyType)).Scan(&a.ID, &a.CreatedAt); err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// FindByCategory 返回 property_type 精确等于 category 的全部订阅
func (r *AlertRepository) FindByCategory(ctx context.Context, category model.Category) ([]model.Alert, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, email, property_type, created_at
        FROM alerts
        WHERE property_type = $1
        ORDER BY id ASC
    `, string(category))
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}

	alerts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Alert, error) {
		var a model.Alert
		var propertyType string
		err := row.Scan(&a.ID, &a.Email, &propertyType, &a.CreatedAt)
		a.PropertyType = model.Category(propertyType)
		return a, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan alerts: %w", err)
	}
	return alerts, nil
}
