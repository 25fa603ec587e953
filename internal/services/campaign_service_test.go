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

func TestCampaignService_Create_MaterializesAndReservesFirstLog(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 3})
	f.addLeads(t, 4)
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, smsRequest())
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusActive, c.Status)
	assert.Equal(t, int64(2), f.balance(t).SMS)

	logs, err := f.logs.List(ctx, model.LogFilter{CampaignID: c.ID})
	require.NoError(t, err)
	require.Len(t, logs, 4)
	assert.True(t, logs[0].CreditReserved)
	assert.False(t, logs[1].CreditReserved)
	assert.Equal(t, "5511999990001", logs[0].Recipient)
	assert.Equal(t, "Oi Lead 1, volte ao quiz!", logs[0].PersonalizedMessage)
	for _, l := range logs {
		assert.Equal(t, model.LogStatusScheduled, l.Status)
		assert.True(t, f.now.Equal(l.ScheduledAt))
	}
}

func TestCampaignService_Create_InsufficientCreditsStoresNothing(t *testing.T) {
	f := newFixture(t, repository.UserEntity{})
	f.addLeads(t, 2)
	ctx := context.Background()

	_, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, smsRequest())
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	list, err := f.campaigns.List(ctx, testUserID, model.ChannelSMS)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestCampaignService_Create_Validation(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 10})
	ctx := context.Background()

	req := smsRequest()
	req.Message = ""
	_, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, req)
	var verr *model.ValidationError
	assert.ErrorAs(t, err, &verr)

	req = smsRequest()
	req.TriggerType = model.TriggerScheduled
	_, err = f.campaigns.Create(ctx, testUserID, model.ChannelSMS, req)
	assert.ErrorAs(t, err, &verr)
}

func TestCampaignService_Create_WithoutLeadsStaysActive(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 1})

	c, err := f.campaigns.Create(context.Background(), testUserID, model.ChannelSMS, smsRequest())
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusActive, c.Status)
	assert.Equal(t, int64(1), f.balance(t).SMS)
}

func TestCampaignService_Create_WithoutLeadsNeedsCredits(t *testing.T) {
	f := newFixture(t, repository.UserEntity{EmailCredits: 5})
	ctx := context.Background()

	_, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, smsRequest())
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	list, err := f.campaigns.List(ctx, testUserID, model.ChannelSMS)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, int64(5), f.balance(t).Email)
}

func TestCampaignService_Materialize_SkipsUnreachableLeads(t *testing.T) {
	f := newFixture(t, repository.UserEntity{EmailCredits: 5})
	ctx := context.Background()
	require.NoError(t, f.responses.Create(ctx, &model.QuizResponse{
		ID: "no-email", QuizID: "quiz-1", UserID: testUserID,
		Responses:   map[string]any{"nome": "Sem Email", "telefone": "11999990009"},
		IsComplete:  true,
		SubmittedAt: f.now,
	}))
	require.NoError(t, f.responses.Create(ctx, &model.QuizResponse{
		ID: "with-email", QuizID: "quiz-1", UserID: testUserID,
		Responses:   map[string]any{"nome": "<b>Ana</b>", "email": "Ana@Example.com"},
		IsComplete:  true,
		SubmittedAt: f.now,
	}))

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelEmail, model.CampaignCreateRequest{
		Name:    "Newsletter",
		QuizID:  "quiz-1",
		Subject: "Olá {{nome}}",
		Content: "<p>Olá {{nome}}</p>",
	})
	require.NoError(t, err)

	stats := f.stats(t, c.ID)
	assert.Equal(t, int64(1), stats[model.LogStatusSkipped])
	assert.Equal(t, int64(1), stats[model.LogStatusScheduled])

	logs, err := f.logs.List(ctx, model.LogFilter{CampaignID: c.ID, Statuses: []model.LogStatus{model.LogStatusScheduled}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "ana@example.com", logs[0].Recipient)
	assert.Equal(t, "<p>Olá &lt;b&gt;Ana&lt;/b&gt;</p>", logs[0].PersonalizedMessage)

	t.Run("rerun adds only new leads", func(t *testing.T) {
		n, err := f.campaigns.Materialize(ctx, c)
		require.NoError(t, err)
		assert.Zero(t, n)

		f.addLeads(t, 1)
		n, err = f.campaigns.Materialize(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestCampaignService_Create_OnlySkippedLogsCompletes(t *testing.T) {
	f := newFixture(t, repository.UserEntity{EmailCredits: 5})
	ctx := context.Background()
	require.NoError(t, f.responses.Create(ctx, &model.QuizResponse{
		ID: "phone-only", QuizID: "quiz-1", UserID: testUserID,
		Responses:   map[string]any{"telefone": "11999990009"},
		SubmittedAt: f.now,
	}))

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelEmail, model.CampaignCreateRequest{
		Name: "x", QuizID: "quiz-1", Subject: "s", Content: "c",
	})
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusCompleted, c.Status)
	assert.Equal(t, int64(5), f.balance(t).Email)
}

func TestCampaignService_StopResume(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 5})
	f.addLeads(t, 2)
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, smsRequest())
	require.NoError(t, err)

	stopped, err := f.campaigns.Stop(ctx, testUserID, model.ChannelSMS, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusPaused, stopped.Status)
	require.NotNil(t, stopped.PauseSource)
	assert.Equal(t, model.PauseSourceUser, *stopped.PauseSource)

	t.Run("top-up does not resume a user stop", func(t *testing.T) {
		_, err := f.credits.Purchase(ctx, testUserID, model.PurchaseRequest{Type: "sms", PackageID: "sms-10"})
		require.NoError(t, err)
		got, err := f.campaigns.Campaign(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, model.CampaignStatusPaused, got.Status)
	})

	resumed, err := f.campaigns.Resume(ctx, testUserID, model.ChannelSMS, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusActive, resumed.Status)

	_, err = f.campaigns.Resume(ctx, testUserID, model.ChannelSMS, c.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.campaigns.Stop(ctx, testUserID+1, model.ChannelSMS, c.ID)
	assert.ErrorIs(t, err, ErrCampaignNotFound)
}

func TestCampaignService_ResumeRequiresCredits(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 1})
	f.addLeads(t, 2)
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, smsRequest())
	require.NoError(t, err)
	_, err = f.campaigns.Stop(ctx, testUserID, model.ChannelSMS, c.ID)
	require.NoError(t, err)

	_, err = f.campaigns.Resume(ctx, testUserID, model.ChannelSMS, c.ID)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestCampaignService_DeleteRefundsReservedLogs(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 2})
	f.addLeads(t, 3)
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, smsRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.balance(t).SMS)

	require.NoError(t, f.campaigns.Delete(ctx, testUserID, model.ChannelSMS, c.ID))
	assert.Equal(t, int64(2), f.balance(t).SMS)

	_, err = f.campaigns.Get(ctx, testUserID, model.ChannelSMS, c.ID)
	assert.ErrorIs(t, err, ErrCampaignNotFound)

	txns, err := f.creditTx.List(ctx, repository.CreditTransactionFilter{UserID: testUserID})
	require.NoError(t, err)
	var refunds int
	for _, tx := range txns {
		if tx.Type == model.CreditTxRefund {
			refunds++
			assert.Equal(t, "campaign deleted", tx.Reason)
		}
	}
	assert.Equal(t, 1, refunds)
}

func TestCampaignService_PauseAndResumeForCredits(t *testing.T) {
	f := newFixture(t, repository.UserEntity{WhatsAppCredits: 1})
	f.addLeads(t, 2)
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelWhatsApp, model.CampaignCreateRequest{
		Name: "wa", QuizID: "quiz-1", Messages: []string{"A {{nome}}", "B {{nome}}"},
	})
	require.NoError(t, err)

	ok, err := f.campaigns.PauseForCredits(ctx, c.ID, model.ChannelWhatsApp)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := f.campaigns.Campaign(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PausedReason)
	assert.Equal(t, "Insufficient WhatsApp credits: campaign paused until credits are added", *got.PausedReason)

	resumed, err := f.campaigns.ResumeForCredits(ctx, testUserID, model.ChannelWhatsApp)
	require.NoError(t, err)
	assert.Empty(t, resumed, "balance is zero")

	_, err = f.credits.Purchase(ctx, testUserID, model.PurchaseRequest{Type: "whatsapp", PackageID: "whatsapp-100"})
	require.NoError(t, err)

	got, err = f.campaigns.Campaign(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CampaignStatusActive, got.Status)
	require.NotNil(t, got.ResumedReason)
	assert.Equal(t, "WhatsApp credits added: campaign resumed", *got.ResumedReason)

	logs, err := f.logs.List(ctx, model.LogFilter{CampaignID: c.ID})
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "A Lead 1", logs[0].PersonalizedMessage)
	assert.Equal(t, "B Lead 2", logs[1].PersonalizedMessage)
}

func TestCampaignService_ResumeAllEligible(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 1})
	f.addLeads(t, 2)
	ctx := context.Background()

	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, smsRequest())
	require.NoError(t, err)
	_, err = f.campaigns.PauseForCredits(ctx, c.ID, model.ChannelSMS)
	require.NoError(t, err)

	n, err := f.campaigns.ResumeAllEligible(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// credits added behind the service's back, e.g. by another instance
	require.NoError(t, f.db.Write(ctx).Model(&repository.UserEntity{}).
		Where("id = ?", testUserID).Update("sms_credits", 4).Error)

	n, err = f.campaigns.ResumeAllEligible(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCampaignService_DelayedTrigger(t *testing.T) {
	f := newFixture(t, repository.UserEntity{SMSCredits: 2})
	f.addLeads(t, 1)
	ctx := context.Background()

	req := smsRequest()
	req.TriggerType = model.TriggerDelayed
	req.DelayMinutes = 90
	c, err := f.campaigns.Create(ctx, testUserID, model.ChannelSMS, req)
	require.NoError(t, err)

	logs, err := f.logs.List(ctx, model.LogFilter{CampaignID: c.ID})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, f.now.Add(30*time.Minute).Equal(logs[0].ScheduledAt))
}
