package repository

import (
	"context"
	"testing"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCampaign(userID int64, ch model.Channel) *model.Campaign {
	var payload model.Payload = model.SMSPayload{Message: "Oi {{nome}}"}
	switch ch {
	case model.ChannelEmail:
		payload = model.EmailPayload{Subject: "Oi", Content: "<p>{{nome}}</p>"}
	case model.ChannelWhatsApp:
		payload = model.WhatsAppPayload{Messages: []string{"a {{nome}}", "b {{nome}}"}}
	}
	return &model.Campaign{
		UserID:         userID,
		Channel:        ch,
		QuizID:         "quiz-1",
		Name:           "Remarketing",
		Payload:        payload,
		TargetAudience: model.AudienceAll,
		TriggerType:    model.TriggerImmediate,
		Status:         model.CampaignStatusDraft,
	}
}

func TestCampaignRepository_CreateAndGet(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newTestCampaign(1, model.ChannelWhatsApp))
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := repo.GetForUser(ctx, created.ID, 1, model.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Equal(t, "Remarketing", got.Name)
	assert.Equal(t, []string{"a {{nome}}", "b {{nome}}"}, got.Payload.Templates())
	assert.Equal(t, model.CampaignStatusDraft, got.Status)

	t.Run("other user", func(t *testing.T) {
		_, err := repo.GetForUser(ctx, created.ID, 2, model.ChannelWhatsApp)
		assert.ErrorIs(t, err, ErrCampaignNotFound)
	})

	t.Run("other channel", func(t *testing.T) {
		_, err := repo.GetForUser(ctx, created.ID, 1, model.ChannelSMS)
		assert.ErrorIs(t, err, ErrCampaignNotFound)
	})

	t.Run("email payload round trip", func(t *testing.T) {
		c, err := repo.Create(ctx, newTestCampaign(1, model.ChannelEmail))
		require.NoError(t, err)
		got, err := repo.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "Oi", got.Payload.SubjectTemplate())
	})
}

func TestCampaignRepository_Transitions(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	c, err := repo.Create(ctx, newTestCampaign(1, model.ChannelSMS))
	require.NoError(t, err)

	ok, err := repo.Complete(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok, "draft campaigns cannot complete")

	ok, err = repo.Activate(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Activate(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok, "activation happens once")

	active := []model.CampaignStatus{model.CampaignStatusActive}
	ok, err = repo.Pause(ctx, c.ID, active, model.PauseSourceCredits, "Insufficient SMS credits")
	require.NoError(t, err)
	assert.True(t, ok)

	paused, err := repo.ListPausedForCredits(ctx, 1, model.ChannelSMS)
	require.NoError(t, err)
	require.Len(t, paused, 1)
	assert.Equal(t, "Insufficient SMS credits", *paused[0].PausedReason)

	ok, err = repo.Resume(ctx, c.ID, []model.PauseSource{model.PauseSourceUser}, "user")
	require.NoError(t, err)
	assert.False(t, ok, "a credit pause is not resumed as a user pause")

	ok, err = repo.Resume(ctx, c.ID, []model.PauseSource{model.PauseSourceCredits}, "credits added")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusActive, got.Status)
	assert.Nil(t, got.PauseSource)
	require.NotNil(t, got.ResumedReason)
	assert.Equal(t, "credits added", *got.ResumedReason)

	ok, err = repo.Complete(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Pause(ctx, c.ID, active, model.PauseSourceUser, "stopped")
	require.NoError(t, err)
	assert.False(t, ok, "completed is terminal")

	ok, err = repo.Pause(ctx, c.ID, nil, model.PauseSourceUser, "stopped")
	require.NoError(t, err)
	assert.False(t, ok, "completed is terminal")
}

func TestCampaignRepository_TransitionsFollowStateMachine(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	c, err := repo.Create(ctx, newTestCampaign(1, model.ChannelSMS))
	require.NoError(t, err)

	ok, err := repo.Pause(ctx, c.ID, nil, model.PauseSourceUser, "stopped")
	require.NoError(t, err)
	assert.False(t, ok, "draft cannot pause")

	ok, err = repo.Pause(ctx, c.ID, []model.CampaignStatus{model.CampaignStatusDraft}, model.PauseSourceUser, "stopped")
	require.NoError(t, err)
	assert.False(t, ok, "a caller cannot widen the state machine")

	_, err = repo.Activate(ctx, c.ID)
	require.NoError(t, err)
	ok, err = repo.Pause(ctx, c.ID, []model.CampaignStatus{model.CampaignStatusActive}, model.PauseSourceCredits, "no credits")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Pause(ctx, c.ID, nil, model.PauseSourceUser, "stopped")
	require.NoError(t, err)
	assert.True(t, ok, "a credit pause can become a user stop")

	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusPaused, got.Status)
	require.NotNil(t, got.PauseSource)
	assert.Equal(t, model.PauseSourceUser, *got.PauseSource)

	ok, err = repo.Complete(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok, "paused cannot complete")
}

func TestCampaignRepository_ListAndDelete(t *testing.T) {
	db := OpenTestDB(t)
	repo := NewCampaignRepository(db)
	ctx := context.Background()

	a, err := repo.Create(ctx, newTestCampaign(1, model.ChannelSMS))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newTestCampaign(1, model.ChannelEmail))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newTestCampaign(2, model.ChannelSMS))
	require.NoError(t, err)

	list, err := repo.List(ctx, model.CampaignFilter{UserID: 1, Channel: model.ChannelSMS})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)

	assert.ErrorIs(t, repo.SoftDelete(ctx, a.ID, 2), ErrCampaignNotFound)
	require.NoError(t, repo.SoftDelete(ctx, a.ID, 1))

	_, err = repo.GetByID(ctx, a.ID)
	assert.ErrorIs(t, err, ErrCampaignNotFound)

	list, err = repo.List(ctx, model.CampaignFilter{Statuses: []model.CampaignStatus{model.CampaignStatusDraft}})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
