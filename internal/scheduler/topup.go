package scheduler

import (
	"context"
	"fmt"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/internal/queue"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
)

// HandleTopUp re-evaluates a user's campaigns as soon as credits arrive
// instead of waiting for the next sweep. Each event is handled once.
func (s *Service) HandleTopUp(ctx context.Context, msg *queue.Message) error {
	ev, err := queue.DecodeTopUp(msg)
	if err != nil {
		// a malformed event will never decode; drop it
		logger.Error("[scheduler] bad top-up event", "id", msg.ID, "error", err)
		return nil
	}
	if ev.ID == "" {
		ev.ID = msg.ID
	}

	seen, err := s.locks.IsProcessed(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("check processed: %w", err)
	}
	if seen {
		logger.Debug("[scheduler] top-up already handled", "event_id", ev.ID)
		return nil
	}

	resumed, err := s.campaigns.ResumeForCredits(ctx, ev.UserID, ev.Channel)
	if err != nil {
		return fmt.Errorf("resume for user %d: %w", ev.UserID, err)
	}
	if len(resumed) > 0 {
		s.metrics.resumed.Add(int64(len(resumed)))
		logger.Info("[scheduler] campaigns resumed by top-up", "user_id", ev.UserID, "channel", ev.Channel, "count", len(resumed))
	}

	// the API usually resumed them already, so run every active campaign
	// of the user on that channel
	active, err := s.campaigns.ActiveCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("list active campaigns: %w", err)
	}
	var mine []*model.Campaign
	for _, c := range active {
		if c.UserID == ev.UserID && c.Channel == ev.Channel {
			mine = append(mine, c)
		}
	}
	s.runAll(ctx, mine)

	if err := s.locks.MarkProcessed(ctx, ev.ID); err != nil {
		logger.Warn("[scheduler] mark top-up processed failed", "event_id", ev.ID, "error", err)
	}
	return nil
}
