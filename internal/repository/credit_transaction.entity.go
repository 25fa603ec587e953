package repository

import (
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
)

type CreditTransactionEntity struct {
	ID            int64     `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	UserID        int64     `db:"user_id"         gorm:"column:user_id;not null;index"`
	Channel       string    `db:"channel"         gorm:"column:channel;not null"`
	Amount        int64     `db:"amount"          gorm:"column:amount;not null"`
	Type          string    `db:"type"            gorm:"column:type;not null"`
	DispatchLogID *int64    `db:"dispatch_log_id" gorm:"column:dispatch_log_id;index"`
	Reason        string    `db:"reason"          gorm:"column:reason"`
	CreatedAt     time.Time `db:"created_at"      gorm:"column:created_at;autoCreateTime"`
}

func (CreditTransactionEntity) TableName() string {
	return "credit_transactions"
}

func toCreditTransactionEntity(m *model.CreditTransaction) *CreditTransactionEntity {
	if m == nil {
		return nil
	}
	return &CreditTransactionEntity{
		ID:            m.ID,
		UserID:        m.UserID,
		Channel:       string(m.Channel),
		Amount:        m.Amount,
		Type:          string(m.Type),
		DispatchLogID: m.DispatchLogID,
		Reason:        m.Reason,
		CreatedAt:     m.CreatedAt,
	}
}

func toCreditTransactionModel(e *CreditTransactionEntity) *model.CreditTransaction {
	if e == nil {
		return nil
	}
	return &model.CreditTransaction{
		ID:            e.ID,
		UserID:        e.UserID,
		Channel:       model.Channel(e.Channel),
		Amount:        e.Amount,
		Type:          model.CreditTxType(e.Type),
		DispatchLogID: e.DispatchLogID,
		Reason:        e.Reason,
		CreatedAt:     e.CreatedAt,
	}
}
