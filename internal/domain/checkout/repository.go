// internal/domain/checkout/repository.go
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repository stores redirect payment data and the attempt journal
type Repository interface {
	SavePaymentCache(ctx context.Context, cache *PaymentCache) error
	FindPaymentCache(ctx context.Context, orderRef string) (*PaymentCache, error)
	DeletePaymentCache(ctx context.Context, id uint) error
	RecordAttempt(ctx context.Context, attempt *CheckoutAttempt) error
	ListAttempts(ctx context.Context, login string, limit int) ([]CheckoutAttempt, error)
}

// GormRepository is the Postgres-backed Repository
type GormRepository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) SavePaymentCache(ctx context.Context, cache *PaymentCache) error {
	if err := r.db.WithContext(ctx).Create(cache).Error; err != nil {
		return fmt.Errorf("failed to save payment cache: %w", err)
	}
	return nil
}

// FindPaymentCache returns ErrNoPaymentCache for unknown or expired references
func (r *GormRepository) FindPaymentCache(ctx context.Context, orderRef string) (*PaymentCache, error) {
	var cache PaymentCache
	err := r.db.WithContext(ctx).
		Where("order_ref = ? AND expires_at > ?", orderRef, time.Now().UTC()).
		First(&cache).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoPaymentCache
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find payment cache: %w", err)
	}
	return &cache, nil
}

func (r *GormRepository) DeletePaymentCache(ctx context.Context, id uint) error {
	if err := r.db.WithContext(ctx).Delete(&PaymentCache{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete payment cache: %w", err)
	}
	return nil
}

// PurgeExpiredPaymentCaches removes entries whose redirect never came back
func (r *GormRepository) PurgeExpiredPaymentCaches(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Where("expires_at <= ?", time.Now().UTC()).Delete(&PaymentCache{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge payment caches: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (r *GormRepository) RecordAttempt(ctx context.Context, attempt *CheckoutAttempt) error {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to record checkout attempt: %w", err)
	}
	return nil
}

func (r *GormRepository) ListAttempts(ctx context.Context, login string, limit int) ([]CheckoutAttempt, error) {
	switch {
	case limit <= 0:
		limit = 20
	case limit > 100:
		limit = 100
	}
	var attempts []CheckoutAttempt
	err := r.db.WithContext(ctx).
		Where("user_login = ?", login).
		Order("created_at DESC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list checkout attempts: %w", err)
	}
	return attempts, nil
}
