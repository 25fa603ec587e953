package repository

import (
	"context"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/pkg/pg"
)

type CreditTransactionRepository struct {
	*pg.DB
}

func NewCreditTransactionRepository(db *pg.DB) *CreditTransactionRepository {
	return &CreditTransactionRepository{
		db,
	}
}

func (r *CreditTransactionRepository) Create(ctx context.Context, txn *model.CreditTransaction) (*model.CreditTransaction, error) {
	entity := toCreditTransactionEntity(txn)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toCreditTransactionModel(entity), nil
}

type CreditTransactionFilter struct {
	UserID        int64
	Channel       model.Channel
	DispatchLogID *int64
	Limit         int
	Offset        int
}

// List returns the newest rows first.
func (r *CreditTransactionRepository) List(ctx context.Context, f CreditTransactionFilter) ([]*model.CreditTransaction, error) {
	q := r.Read(ctx).Model(&CreditTransactionEntity{})
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Channel != "" {
		q = q.Where("channel = ?", string(f.Channel))
	}
	if f.DispatchLogID != nil {
		q = q.Where("dispatch_log_id = ?", *f.DispatchLogID)
	}

	var entities []*CreditTransactionEntity
	if err := q.Order("id DESC").Limit(clampLimit(f.Limit)).Offset(max(f.Offset, 0)).Find(&entities).Error; err != nil {
		return nil, err
	}

	out := make([]*model.CreditTransaction, len(entities))
	for i, e := range entities {
		out[i] = toCreditTransactionModel(e)
	}
	return out, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 50
	}
	return limit
}
