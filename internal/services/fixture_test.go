package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/internal/repository"
	"github.com/nimasrn/vendzz-dispatch/pkg/pg"
	"github.com/stretchr/testify/require"
)

const testUserID int64 = 1

// fixture wires the real repositories over sqlite so flows run end to end.
type fixture struct {
	db        *pg.DB
	now       time.Time
	credits   *CreditService
	campaigns *CampaignService
	dispatch  *DispatchService
	extension *ExtensionService
	logs      *repository.DispatchLogRepository
	responses *repository.QuizResponseRepository
	sessions  *repository.ExtensionSessionRepository
	creditTx  *repository.CreditTransactionRepository
	sender    *fakeSender
	published *recordingPublisher
}

func newFixture(t *testing.T, balances repository.UserEntity) *fixture {
	t.Helper()
	db := repository.OpenTestDB(t)
	balances.ID = testUserID
	balances.Email = "owner@vendzz.test"
	repository.SeedUser(t, db, &balances)

	f := &fixture{
		db:        db,
		now:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
		logs:      repository.NewDispatchLogRepository(db),
		responses: repository.NewQuizResponseRepository(db),
		sessions:  repository.NewExtensionSessionRepository(db),
		creditTx:  repository.NewCreditTransactionRepository(db),
		sender:    &fakeSender{},
		published: &recordingPublisher{},
	}
	clock := func() time.Time { return f.now }

	f.credits = NewCreditService(db, repository.NewCreditRepository(db), f.creditTx, f.published)
	f.credits.SetClock(clock)
	f.campaigns = NewCampaignService(db, repository.NewCampaignRepository(db), f.logs, f.responses, f.credits)
	f.campaigns.SetClock(clock)
	f.credits.SetResumer(f.campaigns)
	f.dispatch = NewDispatchService(f.campaigns, f.logs, map[model.Channel]Sender{
		model.ChannelSMS:   f.sender,
		model.ChannelEmail: f.sender,
	}, 2)
	f.dispatch.SetClock(clock)
	f.extension = NewExtensionService(f.campaigns, f.logs, f.sessions)
	f.extension.SetClock(clock)
	return f
}

// addLeads stores n quiz responses for quiz-1 with distinct phones and emails.
func (f *fixture) addLeads(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, f.responses.Create(context.Background(), &model.QuizResponse{
			ID:     fmt.Sprintf("resp-%02d", i+1),
			QuizID: "quiz-1",
			UserID: testUserID,
			Responses: map[string]any{
				"nome":     fmt.Sprintf("Lead %d", i+1),
				"telefone": fmt.Sprintf("(11) 99999-00%02d", i+1),
				"email":    fmt.Sprintf("lead%d@example.com", i+1),
			},
			IsComplete:  true,
			SubmittedAt: f.now.Add(-time.Hour),
		}))
	}
}

func (f *fixture) balance(t *testing.T) *model.CreditBalance {
	t.Helper()
	b, err := f.credits.Balance(context.Background(), testUserID)
	require.NoError(t, err)
	return b
}

func (f *fixture) stats(t *testing.T, campaignID int64) model.LogStats {
	t.Helper()
	s, err := f.logs.CountByStatus(context.Background(), campaignID)
	require.NoError(t, err)
	return s
}

func smsRequest() model.CampaignCreateRequest {
	return model.CampaignCreateRequest{
		Name:    "Recuperação",
		QuizID:  "quiz-1",
		Message: "Oi {{nome}}, volte ao quiz!",
	}
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []*model.DispatchLog
	failOn map[string]bool
	// onSend runs before each send, outside the lock.
	onSend func(*model.DispatchLog)
}

func (s *fakeSender) Send(_ context.Context, l *model.DispatchLog) error {
	if s.onSend != nil {
		s.onSend(l)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[l.Recipient] {
		return errors.New("provider timeout")
	}
	s.sent = append(s.sent, l)
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.CreditTopUpEvent
}

func (p *recordingPublisher) PublishTopUp(_ context.Context, ev model.CreditTopUpEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}
