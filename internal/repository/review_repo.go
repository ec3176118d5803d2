package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"luxuryestates/internal/model"
)

type ReviewRepository struct {
	db *pgxpool.Pool
}

func NewReviewRepository(db *pgxpool.Pool) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) Create(ctx context.Context, rv *model.Review) error {
	err := r.db.QueryRow(ctx, `
        INSERT INTO reviews (property_id, user_id, rating, comment)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at
    `, rv.PropertyID, rv.UserID, rv.Rating, rv.Comment).Scan(&rv.ID, &rv.CreatedAt)
	if isForeignKeyViolation(err) {
		return model.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *ReviewRepository) GetByID(ctx context.Context, id int64) (*model.Review, error) {
	var rv model.Review
	err := r.db.QueryRow(ctx, `
        SELECT rv.id, rv.property_id, rv.user_id, COALESCE(u.name, ''), rv.rating, rv.comment, rv.created_at
        FROM reviews rv
        LEFT JOIN users u ON u.id = rv.user_id
        WHERE rv.id = $1
    `, id).Scan(&rv.ID, &rv.PropertyID, &rv.UserID, &rv.UserName, &rv.Rating, &rv.Comment, &rv.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &rv, nil
}

// ListByProperty 按创建顺序返回，附带作者名
func (r *ReviewRepository) ListByProperty(ctx context.Context, propertyID int64) ([]model.Review, error) {
	rows, err := r.db.Query(ctx, `
        SELECT rv.id, rv.property_id, rv.user_id, COALESCE(u.name, ''), rv.rating, rv.comment, rv.created_at
        FROM reviews rv
        LEFT JOIN users u ON u.id = rv.user_id
        WHERE rv.property_id = $1
        ORDER BY rv.created_at ASC, rv.id ASC
    `, propertyID)
	if err != nil {
		return nil, fmt.Errorf("query reviews: %w", err)
	}

	reviews, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Review, error) {
		var rv model.Review
		err := row.Scan(&rv.ID, &rv.PropertyID, &rv.UserID, &rv.UserName, &rv.Rating, &rv.Comment, &rv.CreatedAt)
		return rv, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan reviews: %w", err)
	}
	return reviews, nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}
