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

const insertBatchSize = 200

type DispatchLogRepository struct {
	*pg.DB
}

func NewDispatchLogRepository(db *pg.DB) *DispatchLogRepository {
	return &DispatchLogRepository{
		db,
	}
}

// InsertNew inserts logs whose (campaign, recipient) pair does not exist yet
// and returns how many rows were written. Existing rows are left untouched.
func (r *DispatchLogRepository) InsertNew(ctx context.Context, logs []*model.DispatchLog) (int64, error) {
	if len(logs) == 0 {
		return 0, nil
	}
	entities := make([]*DispatchLogEntity, len(logs))
	for i, l := range logs {
		entities[i] = toDispatchLogEntity(l)
	}

	result := r.Write(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "campaign_id"}, {Name: "recipient"}},
			DoNothing: true,
		}).
		CreateInBatches(entities, insertBatchSize)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Recipients returns the recipient keys already materialized for a campaign.
func (r *DispatchLogRepository) Recipients(ctx context.Context, campaignID int64) (map[string]struct{}, error) {
	var recipients []string
	err := r.Write(ctx).
		Model(&DispatchLogEntity{}).
		Where("campaign_id = ?", campaignID).
		Pluck("recipient", &recipients).
		Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(recipients))
	for _, rc := range recipients {
		out[rc] = struct{}{}
	}
	return out, nil
}

func (r *DispatchLogRepository) GetByID(ctx context.Context, id int64) (*model.DispatchLog, error) {
	var entity DispatchLogEntity
	if err := r.Write(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLogNotFound
		}
		return nil, err
	}
	return toDispatchLogModel(&entity), nil
}

// List returns a campaign's logs in creation order.
func (r *DispatchLogRepository) List(ctx context.Context, f model.LogFilter) ([]*model.DispatchLog, error) {
	q := r.Read(ctx).Where("campaign_id = ?", f.CampaignID)
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", logStatusStrings(f.Statuses))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var entities []*DispatchLogEntity
	if err := q.Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toDispatchLogModels(entities), nil
}

// NextBatch returns due scheduled logs of one campaign, oldest first.
func (r *DispatchLogRepository) NextBatch(ctx context.Context, campaignID int64, limit int, now time.Time) ([]*model.DispatchLog, error) {
	var entities []*DispatchLogEntity
	err := r.Write(ctx).
		Where("campaign_id = ? AND status = ? AND scheduled_at <= ?", campaignID, string(model.LogStatusScheduled), now.UTC()).
		Order("id ASC").
		Limit(clampLimit(limit)).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toDispatchLogModels(entities), nil
}

// PendingForUser returns due scheduled logs of ch across the user's active,
// non-deleted campaigns.
func (r *DispatchLogRepository) PendingForUser(ctx context.Context, userID int64, ch model.Channel, limit int, now time.Time) ([]*model.DispatchLog, error) {
	var entities []*DispatchLogEntity
	err := r.Write(ctx).
		Joins("JOIN campaigns c ON c.id = dispatch_logs.campaign_id").
		Where("dispatch_logs.user_id = ? AND dispatch_logs.channel = ? AND dispatch_logs.status = ? AND dispatch_logs.scheduled_at <= ?",
			userID, string(ch), string(model.LogStatusScheduled), now.UTC()).
		Where("c.status = ? AND c.deleted_at IS NULL", string(model.CampaignStatusActive)).
		Order("dispatch_logs.id ASC").
		Limit(clampLimit(limit)).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toDispatchLogModels(entities), nil
}

// CountSentSince counts the user's logs on ch sent at or after since.
func (r *DispatchLogRepository) CountSentSince(ctx context.Context, userID int64, ch model.Channel, since time.Time) (int64, error) {
	var n int64
	err := r.Write(ctx).
		Model(&DispatchLogEntity{}).
		Where("user_id = ? AND channel = ? AND sent_at >= ?", userID, string(ch), since.UTC()).
		Count(&n).
		Error
	return n, err
}

// RecordOutcome moves a log to status when its current status is an allowed
// predecessor. A duplicate or out-of-order report is a no-op and returns false.
func (r *DispatchLogRepository) RecordOutcome(ctx context.Context, id int64, status model.LogStatus, errMsg *string, at time.Time) (bool, error) {
	from := model.AllowedPredecessors(status)
	if len(from) == 0 {
		return false, nil
	}
	at = at.UTC()
	updates := map[string]any{"status": string(status)}
	switch status {
	case model.LogStatusSent:
		updates["sent_at"] = at
	case model.LogStatusDelivered:
		updates["delivered_at"] = at
		updates["sent_at"] = gorm.Expr("COALESCE(sent_at, ?)", at)
	}
	if errMsg != nil {
		updates["error"] = *errMsg
	}

	result := r.Write(ctx).
		Model(&DispatchLogEntity{}).
		Where("id = ? AND status IN ?", id, logStatusStrings(from)).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkReserved flags a scheduled log as holding one credit. It returns false
// when the log already holds one, is no longer scheduled, or its campaign is
// not active anymore.
func (r *DispatchLogRepository) MarkReserved(ctx context.Context, id int64) (bool, error) {
	result := r.Write(ctx).
		Model(&DispatchLogEntity{}).
		Where("id = ? AND status = ? AND credit_reserved = ?", id, string(model.LogStatusScheduled), false).
		Where("EXISTS (SELECT 1 FROM campaigns c WHERE c.id = dispatch_logs.campaign_id AND c.status = ? AND c.deleted_at IS NULL)",
			string(model.CampaignStatusActive)).
		Update("credit_reserved", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ClearReserved releases the flag and reports whether it was set.
func (r *DispatchLogRepository) ClearReserved(ctx context.Context, id int64) (bool, error) {
	result := r.Write(ctx).
		Model(&DispatchLogEntity{}).
		Where("id = ? AND credit_reserved = ?", id, true).
		Update("credit_reserved", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *DispatchLogRepository) CountByStatus(ctx context.Context, campaignID int64) (model.LogStats, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.Read(ctx).
		Model(&DispatchLogEntity{}).
		Select("status, COUNT(*) AS count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	stats := make(model.LogStats, len(rows))
	for _, row := range rows {
		stats[model.LogStatus(row.Status)] = row.Count
	}
	return stats, nil
}

func logStatusStrings(statuses []model.LogStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
