package repository

import (
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
)

type ExtensionSessionEntity struct {
	UserID              int64     `db:"user_id"               gorm:"primaryKey;autoIncrement:false;column:user_id"`
	LastPingAt          time.Time `db:"last_ping_at"          gorm:"column:last_ping_at;not null"`
	IsActive            bool      `db:"is_active"             gorm:"column:is_active;not null"`
	PendingCount        int64     `db:"pending_count"         gorm:"column:pending_count;not null"`
	SentCount           int64     `db:"sent_count"            gorm:"column:sent_count;not null"`
	FailedCount         int64     `db:"failed_count"          gorm:"column:failed_count;not null"`
	ExtensionVersion    string    `db:"extension_version"     gorm:"column:extension_version"`
	SettingsVersion     int64     `db:"settings_version"      gorm:"column:settings_version;not null"`
	MessageDelaySeconds int       `db:"message_delay_seconds" gorm:"column:message_delay_seconds;not null"`
	DailyLimit          int       `db:"daily_limit"           gorm:"column:daily_limit;not null"`
	WorkingHoursStart   string    `db:"working_hours_start"   gorm:"column:working_hours_start;not null"`
	WorkingHoursEnd     string    `db:"working_hours_end"     gorm:"column:working_hours_end;not null"`
	UpdatedAt           time.Time `db:"updated_at"            gorm:"column:updated_at;autoUpdateTime"`
}

func (ExtensionSessionEntity) TableName() string {
	return "extension_sessions"
}

func newExtensionSessionEntity(userID int64) *ExtensionSessionEntity {
	d := model.DefaultExtensionSettings()
	return &ExtensionSessionEntity{
		UserID:              userID,
		MessageDelaySeconds: d.MessageDelaySeconds,
		DailyLimit:          d.DailyLimit,
		WorkingHoursStart:   d.WorkingHoursStart,
		WorkingHoursEnd:     d.WorkingHoursEnd,
	}
}

func toExtensionSessionModel(e *ExtensionSessionEntity) *model.ExtensionSession {
	return &model.ExtensionSession{
		UserID:           e.UserID,
		LastPingAt:       e.LastPingAt.UTC(),
		IsActive:         e.IsActive,
		PendingCount:     e.PendingCount,
		SentCount:        e.SentCount,
		FailedCount:      e.FailedCount,
		ExtensionVersion: e.ExtensionVersion,
		Settings: model.ExtensionSettings{
			MessageDelaySeconds: e.MessageDelaySeconds,
			DailyLimit:          e.DailyLimit,
			WorkingHoursStart:   e.WorkingHoursStart,
			WorkingHoursEnd:     e.WorkingHoursEnd,
			SettingsVersion:     e.SettingsVersion,
		},
	}
}
