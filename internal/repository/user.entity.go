package repository

import (
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
)

// UserEntity carries the credit balances. Users themselves are owned by the
// auth subsystem; this service never deletes them.
type UserEntity struct {
	ID              int64     `db:"id"               gorm:"primaryKey;autoIncrement;column:id"`
	Email           string    `db:"email"            gorm:"column:email"`
	SMSCredits      int64     `db:"sms_credits"      gorm:"column:sms_credits;not null"`
	EmailCredits    int64     `db:"email_credits"    gorm:"column:email_credits;not null"`
	WhatsAppCredits int64     `db:"whatsapp_credits" gorm:"column:whatsapp_credits;not null"`
	AICredits       int64     `db:"ai_credits"       gorm:"column:ai_credits;not null"`
	CreatedAt       time.Time `db:"created_at"       gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `db:"updated_at"       gorm:"column:updated_at;autoUpdateTime"`
}

func (UserEntity) TableName() string {
	return "users"
}

func toCreditBalance(e *UserEntity) *model.CreditBalance {
	if e == nil {
		return nil
	}
	return &model.CreditBalance{
		UserID:   e.ID,
		SMS:      e.SMSCredits,
		Email:    e.EmailCredits,
		WhatsApp: e.WhatsAppCredits,
		AI:       e.AICredits,
	}
}

// creditColumn maps a channel to its balance column. Only these names are
// ever interpolated into SQL.
func creditColumn(ch model.Channel) (string, error) {
	switch ch {
	case model.ChannelSMS:
		return "sms_credits", nil
	case model.ChannelEmail:
		return "email_credits", nil
	case model.ChannelWhatsApp:
		return "whatsapp_credits", nil
	case model.ChannelAI:
		return "ai_credits", nil
	}
	return "", ErrUnknownChannel
}
