package repository

import (
	"encoding/json"
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/pkg/pg"
	"gorm.io/datatypes"
)

type CampaignEntity struct {
	ID             int64          `db:"id"              gorm:"primaryKey;autoIncrement;column:id"`
	UserID         int64          `db:"user_id"         gorm:"column:user_id;not null;index"`
	Channel        string         `db:"channel"         gorm:"column:channel;not null"`
	QuizID         string         `db:"quiz_id"         gorm:"column:quiz_id;not null"`
	Name           string         `db:"name"            gorm:"column:name;not null"`
	Payload        datatypes.JSON `db:"payload"         gorm:"column:payload;not null"`
	TargetAudience string         `db:"target_audience" gorm:"column:target_audience;not null"`
	DateFilter     *time.Time     `db:"date_filter"     gorm:"column:date_filter"`
	TriggerType    string         `db:"trigger_type"    gorm:"column:trigger_type;not null"`
	ScheduledAt    *time.Time     `db:"scheduled_at"    gorm:"column:scheduled_at"`
	DelayMinutes   int            `db:"delay_minutes"   gorm:"column:delay_minutes;not null"`
	Status         string         `db:"status"          gorm:"column:status;not null;index"`
	PauseSource    *string        `db:"pause_source"    gorm:"column:pause_source"`
	PausedReason   *string        `db:"paused_reason"   gorm:"column:paused_reason"`
	ResumedReason  *string        `db:"resumed_reason"  gorm:"column:resumed_reason"`
	pg.Model
}

func (CampaignEntity) TableName() string {
	return "campaigns"
}

func toCampaignEntity(m *model.Campaign) (*CampaignEntity, error) {
	raw, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, err
	}
	var source *string
	if m.PauseSource != nil {
		s := string(*m.PauseSource)
		source = &s
	}
	return &CampaignEntity{
		ID:             m.ID,
		UserID:         m.UserID,
		Channel:        string(m.Channel),
		QuizID:         m.QuizID,
		Name:           m.Name,
		Payload:        datatypes.JSON(raw),
		TargetAudience: string(m.TargetAudience),
		DateFilter:     m.DateFilter,
		TriggerType:    string(m.TriggerType),
		ScheduledAt:    m.ScheduledAt,
		DelayMinutes:   m.DelayMinutes,
		Status:         string(m.Status),
		PauseSource:    source,
		PausedReason:   m.PausedReason,
		ResumedReason:  m.ResumedReason,
	}, nil
}

func toCampaignModel(e *CampaignEntity) (*model.Campaign, error) {
	ch := model.Channel(e.Channel)
	payload, err := model.DecodePayload(ch, e.Payload)
	if err != nil {
		return nil, err
	}
	var source *model.PauseSource
	if e.PauseSource != nil {
		s := model.PauseSource(*e.PauseSource)
		source = &s
	}
	return &model.Campaign{
		ID:             e.ID,
		UserID:         e.UserID,
		Channel:        ch,
		QuizID:         e.QuizID,
		Name:           e.Name,
		Payload:        payload,
		TargetAudience: model.Audience(e.TargetAudience),
		DateFilter:     utcPtr(e.DateFilter),
		TriggerType:    model.TriggerType(e.TriggerType),
		ScheduledAt:    utcPtr(e.ScheduledAt),
		DelayMinutes:   e.DelayMinutes,
		Status:         model.CampaignStatus(e.Status),
		PauseSource:    source,
		PausedReason:   e.PausedReason,
		ResumedReason:  e.ResumedReason,
		CreatedAt:      e.CreatedAt.UTC(),
		UpdatedAt:      e.UpdatedAt.UTC(),
	}, nil
}

func toCampaignModels(entities []*CampaignEntity) ([]*model.Campaign, error) {
	models := make([]*model.Campaign, 0, len(entities))
	for _, e := range entities {
		m, err := toCampaignModel(e)
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
