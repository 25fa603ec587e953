package repository

import (
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
)

type DispatchLogEntity struct {
	ID                  int64      `db:"id"                   gorm:"primaryKey;autoIncrement;column:id"`
	CampaignID          int64      `db:"campaign_id"          gorm:"column:campaign_id;not null;uniqueIndex:uq_dispatch_logs_campaign_recipient,priority:1"`
	UserID              int64      `db:"user_id"              gorm:"column:user_id;not null;index"`
	Channel             string     `db:"channel"              gorm:"column:channel;not null"`
	ResponseID          string     `db:"response_id"          gorm:"column:response_id;not null"`
	Recipient           string     `db:"recipient"            gorm:"column:recipient;not null;uniqueIndex:uq_dispatch_logs_campaign_recipient,priority:2"`
	Phone               string     `db:"phone"                gorm:"column:phone"`
	Email               string     `db:"email"                gorm:"column:email"`
	Name                string     `db:"name"                 gorm:"column:name"`
	PersonalizedMessage string     `db:"personalized_message" gorm:"column:personalized_message;not null"`
	Subject             string     `db:"subject"              gorm:"column:subject"`
	Status              string     `db:"status"               gorm:"column:status;not null;index"`
	CreditReserved      bool       `db:"credit_reserved"      gorm:"column:credit_reserved;not null"`
	ScheduledAt         time.Time  `db:"scheduled_at"         gorm:"column:scheduled_at;not null"`
	SentAt              *time.Time `db:"sent_at"              gorm:"column:sent_at"`
	DeliveredAt         *time.Time `db:"delivered_at"         gorm:"column:delivered_at"`
	Error               *string    `db:"error"                gorm:"column:error"`
	CreatedAt           time.Time  `db:"created_at"           gorm:"column:created_at;autoCreateTime"`
}

func (DispatchLogEntity) TableName() string {
	return "dispatch_logs"
}

func toDispatchLogEntity(m *model.DispatchLog) *DispatchLogEntity {
	if m == nil {
		return nil
	}
	return &DispatchLogEntity{
		ID:                  m.ID,
		CampaignID:          m.CampaignID,
		UserID:              m.UserID,
		Channel:             string(m.Channel),
		ResponseID:          m.ResponseID,
		Recipient:           m.Recipient,
		Phone:               m.Phone,
		Email:               m.Email,
		Name:                m.Name,
		PersonalizedMessage: m.PersonalizedMessage,
		Subject:             m.Subject,
		Status:              string(m.Status),
		CreditReserved:      m.CreditReserved,
		ScheduledAt:         m.ScheduledAt.UTC(),
		SentAt:              m.SentAt,
		DeliveredAt:         m.DeliveredAt,
		Error:               m.Error,
	}
}

func toDispatchLogModel(e *DispatchLogEntity) *model.DispatchLog {
	if e == nil {
		return nil
	}
	return &model.DispatchLog{
		ID:                  e.ID,
		CampaignID:          e.CampaignID,
		UserID:              e.UserID,
		Channel:             model.Channel(e.Channel),
		ResponseID:          e.ResponseID,
		Recipient:           e.Recipient,
		Phone:               e.Phone,
		Email:               e.Email,
		Name:                e.Name,
		PersonalizedMessage: e.PersonalizedMessage,
		Subject:             e.Subject,
		Status:              model.LogStatus(e.Status),
		CreditReserved:      e.CreditReserved,
		ScheduledAt:         e.ScheduledAt.UTC(),
		SentAt:              utcPtr(e.SentAt),
		DeliveredAt:         utcPtr(e.DeliveredAt),
		Error:               e.Error,
		CreatedAt:           e.CreatedAt.UTC(),
	}
}

func toDispatchLogModels(entities []*DispatchLogEntity) []*model.DispatchLog {
	models := make([]*model.DispatchLog, len(entities))
	for i, e := range entities {
		models[i] = toDispatchLogModel(e)
	}
	return models
}
