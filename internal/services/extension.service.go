package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/internal/repository"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/nimasrn/vendzz-dispatch/pkg/prom"
)

const (
	defaultPendingLimit = 50
	minPhoneMatchDigits = 8
)

type ExtensionSessionRepository interface {
	Heartbeat(ctx context.Context, userID int64, hb model.Heartbeat, now time.Time) (*model.ExtensionSession, error)
	Get(ctx context.Context, userID int64) (*model.ExtensionSession, error)
	UpdateSettings(ctx context.Context, userID int64, s model.ExtensionSettings) (*model.ExtensionSession, error)
}

// ExtensionService is the server side of the WhatsApp browser extension: it
// hands out pending messages and records what the extension reports back.
type ExtensionService struct {
	campaigns *CampaignService
	logs      DispatchLogRepository
	sessions  ExtensionSessionRepository
	now       func() time.Time
}

func NewExtensionService(campaigns *CampaignService, logs DispatchLogRepository, sessions ExtensionSessionRepository) *ExtensionService {
	return &ExtensionService{
		campaigns: campaigns,
		logs:      logs,
		sessions:  sessions,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ExtensionService) SetClock(now func() time.Time) {
	s.now = now
}

// PendingMessages returns due WhatsApp logs while the extension is connected,
// at most what is left of the daily limit. Each returned log holds a credit;
// campaigns whose reservation fails are paused and their logs withheld.
func (s *ExtensionService) PendingMessages(ctx context.Context, userID int64, limit int) (*model.PendingMessages, error) {
	out := &model.PendingMessages{Messages: []*model.DispatchLog{}}

	sess, err := s.sessions.Get(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}
	now := s.now()
	if !sess.Connected(now) {
		return out, nil
	}
	out.Connected = true

	if limit <= 0 {
		limit = defaultPendingLimit
	}
	sentToday, err := s.logs.CountSentSince(ctx, userID, model.ChannelWhatsApp, now.Truncate(24*time.Hour))
	if err != nil {
		return nil, err
	}
	remaining := int64(sess.Settings.DailyLimit) - sentToday
	if remaining <= 0 {
		return out, nil
	}
	if int64(limit) > remaining {
		limit = int(remaining)
	}

	candidates, err := s.logs.PendingForUser(ctx, userID, model.ChannelWhatsApp, limit, now)
	if err != nil {
		return nil, err
	}
	paused := map[int64]bool{}
	for _, l := range candidates {
		if paused[l.CampaignID] {
			continue
		}
		err := s.campaigns.ReserveForLog(ctx, l)
		switch {
		case errors.Is(err, ErrInsufficientCredits):
			paused[l.CampaignID] = true
			if _, err := s.campaigns.PauseForCredits(ctx, l.CampaignID, l.Channel); err != nil {
				return nil, err
			}
			continue
		case errors.Is(err, ErrCampaignNotActive):
			paused[l.CampaignID] = true
			continue
		case errors.Is(err, ErrLogNotScheduled):
			continue
		case err != nil:
			return nil, err
		}
		l.CreditReserved = true
		out.Messages = append(out.Messages, l)
	}
	return out, nil
}

func (s *ExtensionService) Heartbeat(ctx context.Context, userID int64, hb model.Heartbeat) (*model.HeartbeatResult, error) {
	if err := hb.Validate(); err != nil {
		return nil, err
	}
	now := s.now()
	sess, err := s.sessions.Heartbeat(ctx, userID, hb, now)
	if err != nil {
		return nil, err
	}
	return &model.HeartbeatResult{
		Connected: sess.Connected(now),
		Settings:  sess.Settings,
	}, nil
}

// ReportOutcome applies a delivery report from the extension. Duplicate or
// out-of-order reports return false without error so the extension stops
// retrying them.
func (s *ExtensionService) ReportOutcome(ctx context.Context, userID int64, r model.OutcomeReport) (bool, error) {
	logID, err := r.Validate()
	if err != nil {
		return false, err
	}
	l, err := s.logs.GetByID(ctx, logID)
	if err != nil {
		return false, mapRepoErr(err)
	}
	if l.UserID != userID || l.Channel != model.ChannelWhatsApp {
		return false, ErrLogNotFound
	}
	if !samePhone(r.Phone, l.Phone) {
		return false, &model.ValidationError{Field: "phone", Reason: "does not match the dispatch log"}
	}

	at := r.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	var errMsg *string
	if r.Status == model.LogStatusFailed {
		msg := strings.TrimSpace(r.Error)
		if msg == "" {
			msg = "reported failed by extension"
		}
		errMsg = &msg
	}

	applied, err := s.logs.RecordOutcome(ctx, l.ID, r.Status, errMsg, at)
	if err != nil {
		return false, err
	}
	if !applied {
		logger.Debug("[extension] outcome ignored", "log_id", l.ID, "status", r.Status)
		return false, nil
	}
	prom.DispatchOutcome(string(l.Channel), string(r.Status))

	if r.Status == model.LogStatusFailed {
		if err := s.campaigns.RefundForLog(ctx, l, "extension reported failure"); err != nil {
			return true, err
		}
	}
	if _, err := s.campaigns.CheckCompletion(ctx, l.CampaignID); err != nil {
		return true, err
	}
	return true, nil
}

func (s *ExtensionService) Settings(ctx context.Context, userID int64) (model.ExtensionSettings, error) {
	sess, err := s.sessions.Get(ctx, userID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return model.DefaultExtensionSettings(), nil
	}
	if err != nil {
		return model.ExtensionSettings{}, err
	}
	return sess.Settings, nil
}

func (s *ExtensionService) UpdateSettings(ctx context.Context, userID int64, settings model.ExtensionSettings) (model.ExtensionSettings, error) {
	if err := settings.Validate(); err != nil {
		return model.ExtensionSettings{}, err
	}
	sess, err := s.sessions.UpdateSettings(ctx, userID, settings)
	if err != nil {
		return model.ExtensionSettings{}, err
	}
	return sess.Settings, nil
}

// samePhone compares digits only. The extension may report the number with
// or without country code, so a long enough suffix match is accepted.
func samePhone(reported, stored string) bool {
	a, b := digits(reported), digits(stored)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if len(a) < minPhoneMatchDigits || len(b) < minPhoneMatchDigits {
		return false
	}
	return strings.HasSuffix(a, b) || strings.HasSuffix(b, a)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
