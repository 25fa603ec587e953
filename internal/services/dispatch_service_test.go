package services

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchService_PausesOnCreditsAndResumesAfterPurchase(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 2})
	f.addLeads(t, 5)
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, smsRequest())
	require.NoError(t, err)

	res, err := f.dispatch.DispatchCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.True(t, res.Paused)
	assert.False(t, res.Completed)
	assert.Equal(t, int64(0), f.balance(t).SMS)

	got, err := f.campaigns.Campaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusPaused, got.Status)
	require.NotNil(t, got.PauseSource)
	assert.Equal(t, model.PauseSourceCredits, *got.PauseSource)

	stats := f.stats(t, c.ID)
	assert.Equal(t, int64(2), stats[model.LogStatusSent])
	assert.Equal(t, int64(3), stats[model.LogStatusScheduled])

	_, err = f.credits.Purchase(ctx, testUserID, model.PurchaseRequest{Type: "sms", PackageID: "sms-10"})
	require.NoError(t, err)
	require.Len(t, f.published.events, 1)
	assert.Equal(t, int64(10), f.published.events[0].Amount)

	res, err = f.dispatch.DispatchCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sent)
	assert.True(t, res.Completed)
	assert.Equal(t, int64(7), f.balance(t).SMS)
	assert.Equal(t, 5, f.sender.count())

	got, err = f.campaigns.Campaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, got.Status)
}

func TestDispatchService_SendFailureRefunds(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 5})
	f.addLeads(t, 3)
	f.sender.failOn = map[string]bool{"5511999990002": true}
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, smsRequest())
	require.NoError(t, err)

	res, err := f.dispatch.DispatchCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, 1, res.Failed)
	assert.True(t, res.Completed)
	assert.Equal(t, int64(3), f.balance(t).SMS)

	logs, err := f.logs.List(ctx, model.LogFilter{CampaignID: c.ID, Statuses: []model.LogStatus{model.LogStatusFailed}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].Error)
	assert.Contains(t, *logs[0].Error, "provider timeout")
	assert.False(t, logs[0].CreditReserved)

	t.Run("second run sends nothing", func(t *testing.T) {
		res, err := f.dispatch.DispatchCampaign(ctx, c.ID)
		require.NoError(t, err)
		assert.Zero(t, res.Sent)
		assert.Equal(t, 2, f.sender.count())
	})
}

func TestDispatchService_StoppedCampaignIsNotSent(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 5})
	f.addLeads(t, 2)
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, smsRequest())
	require.NoError(t, err)
	_, err = f.campaigns.Stop(ctx, testUserID, model.ChannelSMS, c.ID)
	require.NoError(t, err)

	res, err := f.dispatch.DispatchCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Sent)
	assert.Zero(t, f.sender.count())
}

func TestDispatchService_StopDuringBatchHaltsSending(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 10})
	f.addLeads(t, 5)
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, smsRequest())
	require.NoError(t, err)

	f.sender.onSend = func(*model.DispatchLog) {
		if f.sender.count() == 0 {
			_, err := f.campaigns.Stop(ctx, testUserID, model.ChannelSMS, c.ID)
			require.NoError(t, err)
		}
	}
	dispatch := NewDispatchService(f.campaigns, f.logs, map[model.Channel]Sender{model.ChannelSMS: f.sender}, 100)
	dispatch.SetClock(func() time.Time { return f.now })

	res, err := dispatch.DispatchCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent, "only the send already in flight")
	assert.False(t, res.Completed)
	assert.Equal(t, 1, f.sender.count())
	assert.Equal(t, int64(9), f.balance(t).SMS)

	got, err := f.campaigns.Campaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusPaused, got.Status)
	require.NotNil(t, got.PauseSource)
	assert.Equal(t, model.PauseSourceUser, *got.PauseSource)

	stats := f.stats(t, c.ID)
	assert.Equal(t, int64(1), stats[model.LogStatusSent])
	assert.Equal(t, int64(4), stats[model.LogStatusScheduled])

	t.Run("resume sends the rest", func(t *testing.T) {
		f.sender.onSend = nil
		_, err := f.campaigns.Resume(ctx, testUserID, model.ChannelSMS, c.ID)
		require.NoError(t, err)

		res, err := dispatch.DispatchCampaign(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 4, res.Sent)
		assert.True(t, res.Completed)
		assert.Equal(t, int64(5), f.balance(t).SMS)
	})
}

func TestCampaignService_ReserveForLogRefusesInactiveCampaign(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 10})
	f.addLeads(t, 2)
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, smsRequest())
	require.NoError(t, err)
	logs, err := f.logs.List(ctx, model.LogFilter{CampaignID: c.ID})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	require.True(t, logs[0].CreditReserved)

	_, err = f.campaigns.Stop(ctx, testUserID, model.ChannelSMS, c.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.campaigns.ReserveForLog(ctx, logs[0]), ErrCampaignNotActive, "held credit is not spent while stopped")
	assert.ErrorIs(t, f.campaigns.ReserveForLog(ctx, logs[1]), ErrCampaignNotActive)
	assert.Equal(t, int64(9), f.balance(t).SMS)
}

func TestDispatchService_NoSenderForChannel(t *testing.T) {
	f := newFixture(t, repository.UserEntity{WhatsAppCredits: 5})
	f.addLeads(t, 1)
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelWhatsApp, model.CampaignCreateRequest{
		Name: "wa", QuizID: "quiz-1", Messages: []string{"oi"},
	})
	require.NoError(t, err)

	_, err = f.dispatch.DispatchCampaign(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNoSender)
}

func TestDispatchService_FutureLogsWait(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 5})
	f.addLeads(t, 2)
	ctx := context.Background()

	req := smsRequest()
	req.TriggerType = model.TriggerDelayed
	req.DelayMinutes = 120
	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, req)
	require.NoError(t, err)

	res, err := f.dispatch.DispatchCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Sent)
	assert.False(t, res.Completed)

	f.now = f.now.Add(2 * time.Hour)
	res, err = f.dispatch.DispatchCampaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.True(t, res.Completed)
}
