package repository

import (
	"context"
	"errors"
	"slices"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/pkg/pg"
	"gorm.io/gorm"
)

type CampaignRepository struct {
	*pg.DB
}

func NewCampaignRepository(db *pg.DB) *CampaignRepository {
	return &CampaignRepository{
		db,
	}
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) (*model.Campaign, error) {
	entity, err := toCampaignEntity(c)
	if err != nil {
		return nil, err
	}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toCampaignModel(entity)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	var entity CampaignEntity
	if err := r.Write(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return toCampaignModel(&entity)
}

// GetForUser hides campaigns of other users and other channels behind
// ErrCampaignNotFound.
func (r *CampaignRepository) GetForUser(ctx context.Context, id, userID int64, ch model.Channel) (*model.Campaign, error) {
	var entity CampaignEntity
	err := r.Read(ctx).
		Where("id = ? AND user_id = ? AND channel = ?", id, userID, string(ch)).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCampaignNotFound
		}
		return nil, err
	}
	return toCampaignModel(&entity)
}

func (r *CampaignRepository) List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, error) {
	q := r.Read(ctx).Model(&CampaignEntity{})
	if f.UserID > 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.Channel != "" {
		q = q.Where("channel = ?", string(f.Channel))
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", statusStrings(f.Statuses))
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var entities []*CampaignEntity
	if err := q.Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toCampaignModels(entities)
}

// ListPausedForCredits returns campaigns paused by the credit gate. Zero
// userID or empty ch match everything.
func (r *CampaignRepository) ListPausedForCredits(ctx context.Context, userID int64, ch model.Channel) ([]*model.Campaign, error) {
	q := r.Write(ctx).
		Model(&CampaignEntity{}).
		Where("status = ? AND pause_source = ?", string(model.CampaignStatusPaused), string(model.PauseSourceCredits))
	if userID > 0 {
		q = q.Where("user_id = ?", userID)
	}
	if ch != "" {
		q = q.Where("channel = ?", string(ch))
	}

	var entities []*CampaignEntity
	if err := q.Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toCampaignModels(entities)
}

// transition moves the campaign to `to` while it is in one of from. A nil
// from means every status the state machine allows, and entries the state
// machine forbids are dropped. It reports whether the row changed.
func (r *CampaignRepository) transition(ctx context.Context, id int64, to model.CampaignStatus, from []model.CampaignStatus, extra string, args []any, updates map[string]any) (bool, error) {
	allowed := model.AllowedFrom(to)
	if from != nil {
		allowed = slices.DeleteFunc(slices.Clone(from), func(s model.CampaignStatus) bool {
			return !model.CanTransition(s, to)
		})
	}
	if len(allowed) == 0 {
		return false, nil
	}
	updates["status"] = string(to)

	q := r.Write(ctx).
		Model(&CampaignEntity{}).
		Where("id = ? AND status IN ?", id, statusStrings(allowed))
	if extra != "" {
		q = q.Where(extra, args...)
	}
	result := q.Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *CampaignRepository) Activate(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, model.CampaignStatusActive, []model.CampaignStatus{model.CampaignStatusDraft}, "", nil, map[string]any{})
}

// Pause moves the campaign to paused from any of from, or from every status
// allowed to pause when from is nil.
func (r *CampaignRepository) Pause(ctx context.Context, id int64, from []model.CampaignStatus, source model.PauseSource, reason string) (bool, error) {
	return r.transition(ctx, id, model.CampaignStatusPaused, from, "", nil, map[string]any{
		"pause_source":  string(source),
		"paused_reason": reason,
	})
}

// Resume only moves a campaign paused by one of sources.
func (r *CampaignRepository) Resume(ctx context.Context, id int64, sources []model.PauseSource, reason string) (bool, error) {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = string(s)
	}
	return r.transition(ctx, id, model.CampaignStatusActive, []model.CampaignStatus{model.CampaignStatusPaused}, "pause_source IN ?", []any{names}, map[string]any{
		"pause_source":   nil,
		"resumed_reason": reason,
	})
}

func (r *CampaignRepository) Complete(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, model.CampaignStatusCompleted, nil, "", nil, map[string]any{})
}

func (r *CampaignRepository) SoftDelete(ctx context.Context, id, userID int64) error {
	result := r.Write(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&CampaignEntity{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

func statusStrings(statuses []model.CampaignStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
