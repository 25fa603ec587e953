package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ExtensionSessionRepository struct {
	*pg.DB
}

func NewExtensionSessionRepository(db *pg.DB) *ExtensionSessionRepository {
	return &ExtensionSessionRepository{
		db,
	}
}

// Heartbeat upserts the session of userID. The pending count is overwritten
// while sent and failed are added to the stored totals.
func (r *ExtensionSessionRepository) Heartbeat(ctx context.Context, userID int64, hb model.Heartbeat, now time.Time) (*model.ExtensionSession, error) {
	entity := newExtensionSessionEntity(userID)
	entity.LastPingAt = now.UTC()
	entity.IsActive = hb.IsActive
	entity.PendingCount = hb.PendingMessages
	entity.SentCount = hb.SentMessages
	entity.FailedCount = hb.FailedMessages
	entity.ExtensionVersion = hb.Version

	updates := clause.AssignmentColumns([]string{"last_ping_at", "is_active", "pending_count", "extension_version", "updated_at"})
	updates = append(updates, clause.Assignments(map[string]any{
		"sent_count":   gorm.Expr("extension_sessions.sent_count + excluded.sent_count"),
		"failed_count": gorm.Expr("extension_sessions.failed_count + excluded.failed_count"),
	})...)

	err := r.Write(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: updates,
		}).
		Create(entity).
		Error
	if err != nil {
		return nil, err
	}
	return r.get(r.Write(ctx), userID)
}

func (r *ExtensionSessionRepository) Get(ctx context.Context, userID int64) (*model.ExtensionSession, error) {
	return r.get(r.Read(ctx), userID)
}

// UpdateSettings stores new settings and bumps settingsVersion so that the
// extension picks them up on its next ping.
func (r *ExtensionSessionRepository) UpdateSettings(ctx context.Context, userID int64, s model.ExtensionSettings) (*model.ExtensionSession, error) {
	entity := newExtensionSessionEntity(userID)
	entity.MessageDelaySeconds = s.MessageDelaySeconds
	entity.DailyLimit = s.DailyLimit
	entity.WorkingHoursStart = s.WorkingHoursStart
	entity.WorkingHoursEnd = s.WorkingHoursEnd
	entity.SettingsVersion = 1

	updates := clause.AssignmentColumns([]string{"message_delay_seconds", "daily_limit", "working_hours_start", "working_hours_end", "updated_at"})
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "settings_version"},
		Value:  gorm.Expr("extension_sessions.settings_version + 1"),
	})

	err := r.Write(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: updates,
		}).
		Create(entity).
		Error
	if err != nil {
		return nil, err
	}
	return r.get(r.Write(ctx), userID)
}

func (r *ExtensionSessionRepository) get(db *gorm.DB, userID int64) (*model.ExtensionSession, error) {
	var entity ExtensionSessionEntity
	if err := db.Where("user_id = ?", userID).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return toExtensionSessionModel(&entity), nil
}
