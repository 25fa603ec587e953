package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/pkg/pg"
	"gorm.io/gorm"
)

const (
	maxRetries = 3
	baseDelay  = 2 * time.Millisecond
)

type CreditRepository struct {
	*pg.DB
}

func NewCreditRepository(db *pg.DB) *CreditRepository {
	return &CreditRepository{
		db,
	}
}

// Reserve atomically takes amount credits of channel ch from the user.
// The check and the decrement are one conditional UPDATE, so concurrent
// callers can never overdraw a balance.
func (r *CreditRepository) Reserve(ctx context.Context, userID int64, ch model.Channel, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	col, err := creditColumn(ch)
	if err != nil {
		return err
	}
	return withRetry(ctx, func() error {
		return r.reserveAttempt(ctx, userID, col, amount)
	}, ErrUserNotFound, ErrInsufficientCredits)
}

func (r *CreditRepository) reserveAttempt(ctx context.Context, userID int64, col string, amount int64) error {
	result := r.Write(ctx).
		Model(&UserEntity{}).
		Where("id = ? AND "+col+" >= ?", userID, amount).
		Update(col, gorm.Expr(col+" - ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.checkReserveFailureReason(ctx, userID)
	}
	return nil
}

// checkReserveFailureReason tells a missing user from an empty balance after
// the conditional update matched nothing.
func (r *CreditRepository) checkReserveFailureReason(ctx context.Context, userID int64) error {
	var n int64
	if err := r.Write(ctx).Model(&UserEntity{}).Where("id = ?", userID).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return ErrInsufficientCredits
}

// Add increases the balance and returns the new value. Refunds use it too.
func (r *CreditRepository) Add(ctx context.Context, userID int64, ch model.Channel, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	col, err := creditColumn(ch)
	if err != nil {
		return 0, err
	}
	err = withRetry(ctx, func() error {
		result := r.Write(ctx).
			Model(&UserEntity{}).
			Where("id = ?", userID).
			Update(col, gorm.Expr(col+" + ?", amount))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	}, ErrUserNotFound)
	if err != nil {
		return 0, err
	}
	return r.balanceOf(ctx, userID, ch)
}

// Set overwrites a balance. Used by admin tooling only.
func (r *CreditRepository) Set(ctx context.Context, userID int64, ch model.Channel, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	col, err := creditColumn(ch)
	if err != nil {
		return err
	}
	result := r.Write(ctx).
		Model(&UserEntity{}).
		Where("id = ?", userID).
		Update(col, amount)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *CreditRepository) GetBalance(ctx context.Context, userID int64) (*model.CreditBalance, error) {
	var entity UserEntity
	err := r.Read(ctx).
		Where("id = ?", userID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toCreditBalance(&entity), nil
}

func (r *CreditRepository) balanceOf(ctx context.Context, userID int64, ch model.Channel) (int64, error) {
	var entity UserEntity
	err := r.Write(ctx).Where("id = ?", userID).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return toCreditBalance(&entity).Of(ch), nil
}

// withRetry runs fn until it succeeds, returns one of the permanent errors,
// or runs out of attempts. Delays grow 2ms, 4ms, 8ms.
func withRetry(ctx context.Context, fn func() error, permanent ...error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		for _, p := range permanent {
			if errors.Is(err, p) {
				return err
			}
		}
		// inside a transaction a failed statement poisons the tx, retrying is pointless
		if pg.InTransaction(ctx) {
			return err
		}
		lastErr = err

		if attempt < maxRetries {
			delay := baseDelay * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return fmt.Errorf("%w: failed after %d attempts: %v", ErrMaxRetriesExceeded, maxRetries+1, lastErr)
}
