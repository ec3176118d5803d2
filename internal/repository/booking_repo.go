package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"luxuryestates/internal/model"
)

type BookingRepository struct {
	db *pgxpool.Pool
}

func NewBookingRepository(db *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{db: db}
}

// Create 以 stripe_session_id 去重；webhook 重投时返回 false
func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) (bool, error) {
	err := r.db.QueryRow(ctx, `
        INSERT INTO bookings (property_id, user_id, checkin, checkout, guests, amount, currency,
                              stripe_session_id, payment_status)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (stripe_session_id) DO NOTHING
        RETURNING id, created_at
    `,
		b.PropertyID, b.UserID, b.Checkin, b.Checkout, b.Guests, b.Amount, b.Currency,
		b.StripeSessionID, b.PaymentStatus,
	).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		if notFound(err) == model.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("insert booking: %w", err)
	}
	return true, nil
}
