package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCampaignCreateRequest_Validate(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name  string
		ch    Channel
		req   CampaignCreateRequest
		field string
	}{
		{"sms ok", ChannelSMS, CampaignCreateRequest{Name: "a", QuizID: "q", Message: "oi"}, ""},
		{"missing name", ChannelSMS, CampaignCreateRequest{QuizID: "q", Message: "oi"}, "name"},
		{"missing quiz", ChannelSMS, CampaignCreateRequest{Name: "a", Message: "oi"}, "quizId"},
		{"sms without message", ChannelSMS, CampaignCreateRequest{Name: "a", QuizID: "q", Messages: []string{" "}}, "message"},
		{"sms too long", ChannelSMS, CampaignCreateRequest{Name: "a", QuizID: "q", Message: strings.Repeat("x", MaxSMSLength+1)}, "messages[0]"},
		{"email without subject", ChannelEmail, CampaignCreateRequest{Name: "a", QuizID: "q", Content: "<p>x</p>"}, "subject"},
		{"email ok", ChannelEmail, CampaignCreateRequest{Name: "a", QuizID: "q", Subject: "s", Content: "c"}, ""},
		{"whatsapp rotation", ChannelWhatsApp, CampaignCreateRequest{Name: "a", QuizID: "q", Messages: []string{"1", "2"}}, ""},
		{"scheduled without time", ChannelSMS, CampaignCreateRequest{Name: "a", QuizID: "q", Message: "m", TriggerType: TriggerScheduled}, "scheduledAt"},
		{"scheduled ok", ChannelSMS, CampaignCreateRequest{Name: "a", QuizID: "q", Message: "m", TriggerType: TriggerScheduled, ScheduledAt: &at}, ""},
		{"delayed without minutes", ChannelSMS, CampaignCreateRequest{Name: "a", QuizID: "q", Message: "m", TriggerType: TriggerDelayed}, "delayMinutes"},
		{"bad audience", ChannelSMS, CampaignCreateRequest{Name: "a", QuizID: "q", Message: "m", TargetAudience: "vip"}, "targetAudience"},
		{"ai is not a campaign channel", ChannelAI, CampaignCreateRequest{Name: "a", QuizID: "q", Message: "m"}, "channel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.Normalize()
			err := req.Validate(tt.ch)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCampaignCreateRequest_Normalize(t *testing.T) {
	req := CampaignCreateRequest{Name: "  Promo  ", QuizID: " q1 "}
	req.Normalize()
	assert.Equal(t, "Promo", req.Name)
	assert.Equal(t, "q1", req.QuizID)
	assert.Equal(t, AudienceAll, req.TargetAudience)
	assert.Equal(t, TriggerImmediate, req.TriggerType)
}

func TestPayload_TemplatesPreferRotation(t *testing.T) {
	p := SMSPayload{Message: "single", Messages: []string{"a", "", "b"}}
	assert.Equal(t, []string{"a", "b"}, p.Templates())
	assert.Equal(t, []string{"single"}, SMSPayload{Message: "single"}.Templates())
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload(ChannelEmail, []byte(`{"subject":"Oi","content":"<b>x</b>"}`))
	require.NoError(t, err)
	assert.Equal(t, "Oi", p.SubjectTemplate())
	assert.Equal(t, ChannelEmail, p.Channel())

	p, err = DecodePayload(ChannelWhatsApp, []byte(`{"messages":["1","2"]}`))
	require.NoError(t, err)
	assert.Len(t, p.Templates(), 2)

	_, err = DecodePayload(ChannelAI, []byte(`{}`))
	assert.Error(t, err)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(CampaignStatusActive, CampaignStatusPaused))
	assert.True(t, CanTransition(CampaignStatusPaused, CampaignStatusActive))
	assert.True(t, CanTransition(CampaignStatusActive, CampaignStatusCompleted))
	assert.False(t, CanTransition(CampaignStatusCompleted, CampaignStatusActive))
	assert.False(t, CanTransition(CampaignStatusPaused, CampaignStatusCompleted))

	assert.Equal(t, []CampaignStatus{CampaignStatusActive, CampaignStatusPaused}, AllowedFrom(CampaignStatusPaused))
	assert.Equal(t, []CampaignStatus{CampaignStatusDraft, CampaignStatusPaused}, AllowedFrom(CampaignStatusActive))
	assert.Equal(t, []CampaignStatus{CampaignStatusActive}, AllowedFrom(CampaignStatusCompleted))
	assert.Empty(t, AllowedFrom(CampaignStatusDraft))
}

func TestLogStatus(t *testing.T) {
	assert.ElementsMatch(t, []LogStatus{LogStatusScheduled, LogStatusSent}, AllowedPredecessors(LogStatusDelivered))
	assert.Empty(t, AllowedPredecessors(LogStatusScheduled))
	assert.True(t, LogStatusDelivered.IsOutcome())
	assert.False(t, LogStatusSkipped.IsOutcome())

	stats := LogStats{LogStatusSent: 3, LogStatusFailed: 1}
	assert.Equal(t, int64(4), stats.Total())
}

func TestCredits(t *testing.T) {
	pkg, ok := LookupPackage(ChannelSMS, "sms-10")
	require.True(t, ok)
	assert.Equal(t, int64(10), pkg.Credits)

	_, ok = LookupPackage(ChannelEmail, "sms-10")
	assert.False(t, ok)

	pkgs := CreditPackages()
	pkgs[0].Credits = 0
	assert.Equal(t, int64(10), CreditPackages()[0].Credits)

	b := CreditBalance{SMS: 1, Email: 2, WhatsApp: 3, AI: 4}
	assert.Equal(t, int64(3), b.Of(ChannelWhatsApp))

	_, err := ParseChannel("fax")
	assert.Error(t, err)
	assert.Error(t, AdminCreditRequest{UserID: 1, Type: "sms", Amount: -1}.Validate())
	assert.NoError(t, AdminCreditRequest{UserID: 1, Type: "ai", Amount: 0}.Validate())
}

func TestExtensionValidation(t *testing.T) {
	assert.NoError(t, DefaultExtensionSettings().Validate())

	s := DefaultExtensionSettings()
	s.WorkingHoursEnd = "24:00"
	assert.Error(t, s.Validate())

	id, err := OutcomeReport{LogID: "12", Status: LogStatusSent, Phone: "+55 11 98888-1001"}.Validate()
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = OutcomeReport{LogID: "x", Status: LogStatusSent, Phone: "5511988881001"}.Validate()
	assert.Error(t, err)
	_, err = OutcomeReport{LogID: "1", Status: LogStatusSkipped, Phone: "5511988881001"}.Validate()
	assert.Error(t, err)
	assert.Error(t, Heartbeat{SentMessages: -1}.Validate())

	now := time.Now()
	sess := &ExtensionSession{IsActive: true, LastPingAt: now.Add(-time.Minute)}
	assert.True(t, sess.Connected(now))
	sess.LastPingAt = now.Add(-HeartbeatTTL)
	assert.False(t, sess.Connected(now))
	var none *ExtensionSession
	assert.False(t, none.Connected(now))
}

func TestLeadRecipient(t *testing.T) {
	l := Lead{Phone: "5511999990001", Email: "lead@example.com"}
	for _, ch := range []Channel{ChannelSMS, ChannelWhatsApp} {
		assert.True(t, ch.UsesPhone())
		assert.Equal(t, l.Phone, l.Recipient(ch))
	}
	assert.False(t, ChannelEmail.UsesPhone())
	assert.Equal(t, l.Email, l.Recipient(ChannelEmail))
	assert.False(t, ChannelAI.UsesPhone())
	assert.Empty(t, l.Recipient(ChannelAI))
}
