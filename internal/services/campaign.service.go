package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/leads"
	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/internal/repository"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/nimasrn/vendzz-dispatch/pkg/prom"
)

const skippedRecipientPrefix = "skip:"

type CampaignRepository interface {
	Create(ctx context.Context, c *model.Campaign) (*model.Campaign, error)
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	GetForUser(ctx context.Context, id, userID int64, ch model.Channel) (*model.Campaign, error)
	List(ctx context.Context, f model.CampaignFilter) ([]*model.Campaign, error)
	ListPausedForCredits(ctx context.Context, userID int64, ch model.Channel) ([]*model.Campaign, error)
	Activate(ctx context.Context, id int64) (bool, error)
	// Pause with a nil from accepts every status allowed to pause.
	Pause(ctx context.Context, id int64, from []model.CampaignStatus, source model.PauseSource, reason string) (bool, error)
	Resume(ctx context.Context, id int64, sources []model.PauseSource, reason string) (bool, error)
	Complete(ctx context.Context, id int64) (bool, error)
	SoftDelete(ctx context.Context, id, userID int64) error
}

type DispatchLogRepository interface {
	InsertNew(ctx context.Context, logs []*model.DispatchLog) (int64, error)
	Recipients(ctx context.Context, campaignID int64) (map[string]struct{}, error)
	GetByID(ctx context.Context, id int64) (*model.DispatchLog, error)
	List(ctx context.Context, f model.LogFilter) ([]*model.DispatchLog, error)
	NextBatch(ctx context.Context, campaignID int64, limit int, now time.Time) ([]*model.DispatchLog, error)
	PendingForUser(ctx context.Context, userID int64, ch model.Channel, limit int, now time.Time) ([]*model.DispatchLog, error)
	CountSentSince(ctx context.Context, userID int64, ch model.Channel, since time.Time) (int64, error)
	RecordOutcome(ctx context.Context, id int64, status model.LogStatus, errMsg *string, at time.Time) (bool, error)
	MarkReserved(ctx context.Context, id int64) (bool, error)
	ClearReserved(ctx context.Context, id int64) (bool, error)
	CountByStatus(ctx context.Context, campaignID int64) (model.LogStats, error)
}

type QuizResponseRepository interface {
	ListByQuiz(ctx context.Context, quizID string, ownerID int64) ([]*model.QuizResponse, error)
}

// Ledger is the part of CreditService campaigns depend on.
type Ledger interface {
	CheckAndReserve(ctx context.Context, userID int64, ch model.Channel, amount int64, logID *int64) error
	Refund(ctx context.Context, userID int64, ch model.Channel, amount int64, logID *int64, reason string) error
	Balance(ctx context.Context, userID int64) (*model.CreditBalance, error)
}

type CampaignService struct {
	tx        Transactor
	campaigns CampaignRepository
	logs      DispatchLogRepository
	responses QuizResponseRepository
	credits   Ledger
	now       func() time.Time
}

func NewCampaignService(tx Transactor, campaigns CampaignRepository, logs DispatchLogRepository, responses QuizResponseRepository, credits Ledger) *CampaignService {
	return &CampaignService{
		tx:        tx,
		campaigns: campaigns,
		logs:      logs,
		responses: responses,
		credits:   credits,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the time source.
func (s *CampaignService) SetClock(now func() time.Time) {
	s.now = now
}

// Create validates the request, materializes the audience and activates the
// campaign. The first scheduled log must get a credit, or the channel must
// hold one when there is no scheduled log yet. Otherwise nothing is stored
// and ErrInsufficientCredits is returned.
func (s *CampaignService) Create(ctx context.Context, userID int64, ch model.Channel, req model.CampaignCreateRequest) (*model.Campaign, error) {
	req.Normalize()
	if err := req.Validate(ch); err != nil {
		return nil, err
	}
	payload, err := req.Payload(ch)
	if err != nil {
		return nil, err
	}

	var created *model.Campaign
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		c, err := s.campaigns.Create(ctx, &model.Campaign{
			UserID:         userID,
			Channel:        ch,
			QuizID:         req.QuizID,
			Name:           req.Name,
			Payload:        payload,
			TargetAudience: req.TargetAudience,
			DateFilter:     utc(req.DateFilter),
			TriggerType:    req.TriggerType,
			ScheduledAt:    utc(req.ScheduledAt),
			DelayMinutes:   req.DelayMinutes,
			Status:         model.CampaignStatusDraft,
		})
		if err != nil {
			return fmt.Errorf("create campaign: %w", err)
		}
		if _, err := s.Materialize(ctx, c); err != nil {
			return fmt.Errorf("materialize: %w", err)
		}
		if _, err := s.campaigns.Activate(ctx, c.ID); err != nil {
			return err
		}

		first, err := s.logs.List(ctx, model.LogFilter{CampaignID: c.ID, Statuses: []model.LogStatus{model.LogStatusScheduled}, Limit: 1})
		if err != nil {
			return err
		}
		if len(first) > 0 {
			if err := s.ReserveForLog(ctx, first[0]); err != nil {
				return err
			}
		} else {
			// nothing to bind a credit to yet, the channel must still be funded
			balance, err := s.credits.Balance(ctx, userID)
			if err != nil {
				return err
			}
			if balance.Of(ch) <= 0 {
				return ErrInsufficientCredits
			}
			if _, err := s.CheckCompletion(ctx, c.ID); err != nil {
				return err
			}
		}

		created, err = s.campaigns.GetByID(ctx, c.ID)
		return err
	})
	if err != nil {
		return nil, mapRepoErr(err)
	}
	prom.CampaignTransition(string(model.CampaignStatusActive), "user")
	logger.Info("[campaigns] campaign created", "campaign_id", created.ID, "user_id", userID, "channel", ch, "status", created.Status)
	return created, nil
}

// Materialize writes one log per audience lead not yet present. Leads
// without a usable address become skipped logs. It is safe to run any number
// of times and returns how many logs were added.
func (s *CampaignService) Materialize(ctx context.Context, c *model.Campaign) (int64, error) {
	responses, err := s.responses.ListByQuiz(ctx, c.QuizID, c.UserID)
	if err != nil {
		return 0, err
	}
	audience := leads.Resolve(responses, c.TargetAudience, c.DateFilter)
	if len(audience) == 0 {
		return 0, nil
	}
	existing, err := s.logs.Recipients(ctx, c.ID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	templates := c.Payload.Templates()
	escape := c.Channel == model.ChannelEmail
	ordinal := len(existing)
	batch := make([]*model.DispatchLog, 0, len(audience))
	for _, l := range audience {
		log := &model.DispatchLog{
			CampaignID:  c.ID,
			UserID:      c.UserID,
			Channel:     c.Channel,
			ResponseID:  l.ResponseID,
			Phone:       l.Phone,
			Email:       l.Email,
			Name:        l.Name,
			Status:      model.LogStatusScheduled,
			ScheduledAt: c.DueAt(l.SubmittedAt, now),
		}
		recipient, err := leads.Recipient(l, c.Channel)
		if err != nil {
			recipient = skippedRecipientPrefix + l.ResponseID
			msg := err.Error()
			log.Status = model.LogStatusSkipped
			log.Error = &msg
		}
		if _, ok := existing[recipient]; ok {
			continue
		}
		existing[recipient] = struct{}{}
		log.Recipient = recipient

		if log.Status == model.LogStatusScheduled {
			log.PersonalizedMessage = RenderVariant(templates, ordinal, l, escape)
			log.Subject = Render(c.Payload.SubjectTemplate(), l)
			ordinal++
		}
		batch = append(batch, log)
	}
	return s.logs.InsertNew(ctx, batch)
}

// ReserveForLog binds one credit to a scheduled log of an active campaign. A
// log that already holds a credit is not charged again. ErrCampaignNotActive
// means the campaign was stopped, paused or deleted meanwhile.
func (s *CampaignService) ReserveForLog(ctx context.Context, log *model.DispatchLog) error {
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		marked, err := s.logs.MarkReserved(ctx, log.ID)
		if err != nil {
			return err
		}
		if !marked {
			cur, err := s.logs.GetByID(ctx, log.ID)
			if err != nil {
				return mapRepoErr(err)
			}
			if cur.Status != model.LogStatusScheduled {
				return ErrLogNotScheduled
			}
			c, err := s.campaigns.GetByID(ctx, cur.CampaignID)
			if err != nil && !errors.Is(err, repository.ErrCampaignNotFound) {
				return err
			}
			if c == nil || c.Status != model.CampaignStatusActive {
				return ErrCampaignNotActive
			}
			if cur.CreditReserved {
				return nil
			}
			return ErrLogNotScheduled
		}
		id := log.ID
		return s.credits.CheckAndReserve(ctx, log.UserID, log.Channel, 1, &id)
	})
}

// RefundForLog returns the credit a log holds, if any.
func (s *CampaignService) RefundForLog(ctx context.Context, log *model.DispatchLog, reason string) error {
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		cleared, err := s.logs.ClearReserved(ctx, log.ID)
		if err != nil || !cleared {
			return err
		}
		id := log.ID
		return s.credits.Refund(ctx, log.UserID, log.Channel, 1, &id, reason)
	})
}

func (s *CampaignService) Get(ctx context.Context, userID int64, ch model.Channel, id int64) (*model.CampaignWithStats, error) {
	c, err := s.campaigns.GetForUser(ctx, id, userID, ch)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	stats, err := s.logs.CountByStatus(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &model.CampaignWithStats{Campaign: c, Stats: stats}, nil
}

func (s *CampaignService) List(ctx context.Context, userID int64, ch model.Channel) ([]*model.Campaign, error) {
	return s.campaigns.List(ctx, model.CampaignFilter{UserID: userID, Channel: ch})
}

func (s *CampaignService) Logs(ctx context.Context, userID int64, ch model.Channel, id int64, limit, offset int) ([]*model.DispatchLog, error) {
	c, err := s.campaigns.GetForUser(ctx, id, userID, ch)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	return s.logs.List(ctx, model.LogFilter{CampaignID: c.ID, Limit: limit, Offset: offset})
}

// Stop pauses a campaign on behalf of the user. Credit top-ups never resume it.
func (s *CampaignService) Stop(ctx context.Context, userID int64, ch model.Channel, id int64) (*model.Campaign, error) {
	c, err := s.campaigns.GetForUser(ctx, id, userID, ch)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	ok, err := s.campaigns.Pause(ctx, c.ID, nil, model.PauseSourceUser, "Stopped by user")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	prom.CampaignTransition(string(model.CampaignStatusPaused), string(model.PauseSourceUser))
	return s.campaigns.GetByID(ctx, c.ID)
}

// Resume reactivates a paused campaign if the channel has credits left.
func (s *CampaignService) Resume(ctx context.Context, userID int64, ch model.Channel, id int64) (*model.Campaign, error) {
	c, err := s.campaigns.GetForUser(ctx, id, userID, ch)
	if err != nil {
		return nil, mapRepoErr(err)
	}
	if c.Status != model.CampaignStatusPaused {
		return nil, ErrInvalidTransition
	}
	balance, err := s.credits.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance.Of(ch) <= 0 {
		return nil, ErrInsufficientCredits
	}
	ok, err := s.campaigns.Resume(ctx, c.ID,
		[]model.PauseSource{model.PauseSourceUser, model.PauseSourceCredits}, "Resumed by user")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	prom.CampaignTransition(string(model.CampaignStatusActive), string(model.PauseSourceUser))
	return s.campaigns.GetByID(ctx, c.ID)
}

// Delete soft-deletes the campaign and returns credits still held by its
// unsent logs.
func (s *CampaignService) Delete(ctx context.Context, userID int64, ch model.Channel, id int64) error {
	c, err := s.campaigns.GetForUser(ctx, id, userID, ch)
	if err != nil {
		return mapRepoErr(err)
	}
	return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		pending, err := s.logs.List(ctx, model.LogFilter{CampaignID: c.ID, Statuses: []model.LogStatus{model.LogStatusScheduled}})
		if err != nil {
			return err
		}
		for _, l := range pending {
			if !l.CreditReserved {
				continue
			}
			if err := s.RefundForLog(ctx, l, "campaign deleted"); err != nil {
				return err
			}
		}
		return mapRepoErr(s.campaigns.SoftDelete(ctx, c.ID, userID))
	})
}

// PauseForCredits pauses an active campaign after the credit gate refused a
// reservation.
func (s *CampaignService) PauseForCredits(ctx context.Context, campaignID int64, ch model.Channel) (bool, error) {
	reason := fmt.Sprintf("Insufficient %s credits: campaign paused until credits are added", ch.Label())
	ok, err := s.campaigns.Pause(ctx, campaignID, []model.CampaignStatus{model.CampaignStatusActive}, model.PauseSourceCredits, reason)
	if err != nil {
		return false, err
	}
	if ok {
		prom.CampaignTransition(string(model.CampaignStatusPaused), string(model.PauseSourceCredits))
		logger.Info("[campaigns] paused for credits", "campaign_id", campaignID, "channel", ch)
	}
	return ok, nil
}

// ResumeForCredits resumes the user's campaigns on ch that the credit gate
// paused, provided the balance is positive again.
func (s *CampaignService) ResumeForCredits(ctx context.Context, userID int64, ch model.Channel) ([]*model.Campaign, error) {
	if !ch.IsCampaignChannel() {
		return nil, nil
	}
	balance, err := s.credits.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance.Of(ch) <= 0 {
		return nil, nil
	}
	paused, err := s.campaigns.ListPausedForCredits(ctx, userID, ch)
	if err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("%s credits added: campaign resumed", ch.Label())
	var resumed []*model.Campaign
	for _, c := range paused {
		ok, err := s.campaigns.Resume(ctx, c.ID, []model.PauseSource{model.PauseSourceCredits}, reason)
		if err != nil {
			return resumed, err
		}
		if !ok {
			continue
		}
		prom.CampaignTransition(string(model.CampaignStatusActive), string(model.PauseSourceCredits))
		c.Status = model.CampaignStatusActive
		c.PauseSource = nil
		c.ResumedReason = &reason
		resumed = append(resumed, c)
	}
	return resumed, nil
}

// ResumeAllEligible runs ResumeForCredits for every user and channel that
// has campaigns paused by the credit gate.
func (s *CampaignService) ResumeAllEligible(ctx context.Context) (int, error) {
	paused, err := s.campaigns.ListPausedForCredits(ctx, 0, "")
	if err != nil {
		return 0, err
	}
	type key struct {
		user int64
		ch   model.Channel
	}
	seen := map[key]bool{}
	total := 0
	for _, c := range paused {
		k := key{c.UserID, c.Channel}
		if seen[k] {
			continue
		}
		seen[k] = true
		resumed, err := s.ResumeForCredits(ctx, c.UserID, c.Channel)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				continue
			}
			return total, err
		}
		total += len(resumed)
	}
	return total, nil
}

// CheckCompletion completes an active campaign once it has logs and none of
// them is still scheduled.
func (s *CampaignService) CheckCompletion(ctx context.Context, campaignID int64) (bool, error) {
	c, err := s.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return false, mapRepoErr(err)
	}
	if c.Status != model.CampaignStatusActive {
		return false, nil
	}
	stats, err := s.logs.CountByStatus(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if stats.Total() == 0 || stats[model.LogStatusScheduled] > 0 {
		return false, nil
	}
	ok, err := s.campaigns.Complete(ctx, campaignID)
	if err != nil {
		return false, err
	}
	if ok {
		prom.CampaignTransition(string(model.CampaignStatusCompleted), "dispatch")
		logger.Info("[campaigns] campaign completed", "campaign_id", campaignID)
	}
	return ok, nil
}

// ActiveCampaigns lists every active campaign, for the scheduler.
func (s *CampaignService) ActiveCampaigns(ctx context.Context) ([]*model.Campaign, error) {
	return s.campaigns.List(ctx, model.CampaignFilter{Statuses: []model.CampaignStatus{model.CampaignStatusActive}})
}

func (s *CampaignService) Campaign(ctx context.Context, id int64) (*model.Campaign, error) {
	c, err := s.campaigns.GetByID(ctx, id)
	return c, mapRepoErr(err)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
