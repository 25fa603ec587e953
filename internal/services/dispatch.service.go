package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/nimasrn/vendzz-dispatch/pkg/prom"
)

const defaultDispatchBatchSize = 100

// Sender delivers one personalized message through a provider. Any error is
// treated as a transient send failure.
type Sender interface {
	Send(ctx context.Context, log *model.DispatchLog) error
}

type DispatchResult struct {
	CampaignID int64
	Sent       int
	Failed     int
	Paused     bool
	Completed  bool
}

// DispatchService pushes due SMS and email logs to their providers.
// WhatsApp logs are pulled by the browser extension instead.
type DispatchService struct {
	campaigns *CampaignService
	logs      DispatchLogRepository
	senders   map[model.Channel]Sender
	batchSize int
	now       func() time.Time
}

func NewDispatchService(campaigns *CampaignService, logs DispatchLogRepository, senders map[model.Channel]Sender, batchSize int) *DispatchService {
	if batchSize <= 0 {
		batchSize = defaultDispatchBatchSize
	}
	return &DispatchService{
		campaigns: campaigns,
		logs:      logs,
		senders:   senders,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *DispatchService) SetClock(now func() time.Time) {
	s.now = now
}

// DispatchCampaign sends the campaign's due logs in creation order. It stops
// at the first reservation refused for lack of credits and pauses the
// campaign, and it stops as soon as the campaign is no longer active. Send
// failures are recorded per log and refunded.
func (s *DispatchService) DispatchCampaign(ctx context.Context, campaignID int64) (DispatchResult, error) {
	res := DispatchResult{CampaignID: campaignID}
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		c, err := s.campaigns.Campaign(ctx, campaignID)
		if err != nil {
			return res, err
		}
		if c.Status != model.CampaignStatusActive {
			return res, nil
		}
		sender, ok := s.senders[c.Channel]
		if !ok {
			return res, fmt.Errorf("%w: %s", ErrNoSender, c.Channel)
		}

		batch, err := s.logs.NextBatch(ctx, c.ID, s.batchSize, s.now())
		if err != nil {
			return res, err
		}
		for _, l := range batch {
			err := s.campaigns.ReserveForLog(ctx, l)
			switch {
			case errors.Is(err, ErrInsufficientCredits):
				if _, perr := s.campaigns.PauseForCredits(ctx, c.ID, c.Channel); perr != nil {
					return res, perr
				}
				res.Paused = true
				return res, nil
			case errors.Is(err, ErrCampaignNotActive):
				logger.Info("[dispatch] campaign left active mid-batch", "campaign_id", c.ID, "sent", res.Sent)
				return res, nil
			case errors.Is(err, ErrLogNotScheduled):
				continue
			case err != nil:
				return res, err
			}

			sent, err := s.send(ctx, sender, l)
			if err != nil {
				return res, err
			}
			if sent {
				res.Sent++
			} else {
				res.Failed++
			}
		}
		if len(batch) < s.batchSize {
			break
		}
	}

	done, err := s.campaigns.CheckCompletion(ctx, campaignID)
	if err != nil {
		return res, err
	}
	res.Completed = done
	return res, nil
}

// send delivers one reserved log and records the outcome. A provider error
// marks the log failed and refunds its credit. Only bookkeeping errors are
// returned, they stop the batch.
func (s *DispatchService) send(ctx context.Context, sender Sender, l *model.DispatchLog) (bool, error) {
	start := time.Now()
	sendErr := sender.Send(ctx, l)
	prom.SendDuration(string(l.Channel), time.Since(start).Seconds())

	if sendErr != nil {
		msg := fmt.Errorf("%w: %v", ErrTransientSendFailure, sendErr).Error()
		if _, err := s.logs.RecordOutcome(ctx, l.ID, model.LogStatusFailed, &msg, s.now()); err != nil {
			return false, fmt.Errorf("record failed outcome: %w", err)
		}
		if err := s.campaigns.RefundForLog(ctx, l, "send failed"); err != nil {
			return false, fmt.Errorf("refund: %w", err)
		}
		prom.DispatchOutcome(string(l.Channel), string(model.LogStatusFailed))
		logger.Warn("[dispatch] send failed", "campaign_id", l.CampaignID, "log_id", l.ID, "error", sendErr)
		return false, nil
	}

	if _, err := s.logs.RecordOutcome(ctx, l.ID, model.LogStatusSent, nil, s.now()); err != nil {
		return true, fmt.Errorf("record sent outcome: %w", err)
	}
	prom.DispatchOutcome(string(l.Channel), string(model.LogStatusSent))
	return true, nil
}
