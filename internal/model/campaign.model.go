package model

import (
	"strings"
	"time"
)

type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// PauseSource records who paused a campaign, so that a credit top-up never
// resumes a campaign the user stopped.
type PauseSource string

const (
	PauseSourceCredits PauseSource = "credits"
	PauseSourceUser    PauseSource = "user"
)

type Audience string

const (
	AudienceAll       Audience = "all"
	AudienceCompleted Audience = "completed"
	AudienceAbandoned Audience = "abandoned"
)

func (a Audience) Valid() bool {
	return a == AudienceAll || a == AudienceCompleted || a == AudienceAbandoned
}

type TriggerType string

const (
	TriggerImmediate TriggerType = "immediate"
	TriggerScheduled TriggerType = "scheduled"
	TriggerDelayed   TriggerType = "delayed"
)

func (t TriggerType) Valid() bool {
	return t == TriggerImmediate || t == TriggerScheduled || t == TriggerDelayed
}

// campaignTransitions is the campaign state machine. Completed is terminal.
// Paused to paused lets a user stop a campaign the credit gate paused.
var campaignTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:  {CampaignStatusActive},
	CampaignStatusActive: {CampaignStatusPaused, CampaignStatusCompleted},
	CampaignStatusPaused: {CampaignStatusActive, CampaignStatusPaused},
}

var campaignStatusOrder = []CampaignStatus{
	CampaignStatusDraft,
	CampaignStatusActive,
	CampaignStatusPaused,
	CampaignStatusCompleted,
}

func CanTransition(from, to CampaignStatus) bool {
	for _, s := range campaignTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses that may move to `to`.
func AllowedFrom(to CampaignStatus) []CampaignStatus {
	var out []CampaignStatus
	for _, from := range campaignStatusOrder {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

type Campaign struct {
	ID             int64          `json:"id"`
	UserID         int64          `json:"userId"`
	Channel        Channel        `json:"channel"`
	QuizID         string         `json:"quizId"`
	Name           string         `json:"name"`
	Payload        Payload        `json:"payload"`
	TargetAudience Audience       `json:"targetAudience"`
	DateFilter     *time.Time     `json:"dateFilter,omitempty"`
	TriggerType    TriggerType    `json:"triggerType"`
	ScheduledAt    *time.Time     `json:"scheduledAt,omitempty"`
	DelayMinutes   int            `json:"delayMinutes"`
	Status         CampaignStatus `json:"status"`
	PauseSource    *PauseSource   `json:"pauseSource,omitempty"`
	PausedReason   *string        `json:"pausedReason"`
	ResumedReason  *string        `json:"resumedReason"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

// DueAt returns when the log for a lead submitted at submittedAt becomes due.
func (c *Campaign) DueAt(submittedAt, now time.Time) time.Time {
	switch c.TriggerType {
	case TriggerScheduled:
		if c.ScheduledAt != nil {
			return c.ScheduledAt.UTC()
		}
	case TriggerDelayed:
		return submittedAt.Add(time.Duration(c.DelayMinutes) * time.Minute).UTC()
	}
	return now.UTC()
}

type CampaignWithStats struct {
	*Campaign
	Stats LogStats `json:"stats"`
}

// CampaignCreateRequest is the body of POST /{channel}-campaigns.
type CampaignCreateRequest struct {
	Name           string      `json:"name"`
	QuizID         string      `json:"quizId"`
	Message        string      `json:"message,omitempty"`
	Messages       []string    `json:"messages,omitempty"`
	Subject        string      `json:"subject,omitempty"`
	Content        string      `json:"content,omitempty"`
	TargetAudience Audience    `json:"targetAudience"`
	TriggerType    TriggerType `json:"triggerType"`
	DateFilter     *time.Time  `json:"dateFilter,omitempty"`
	ScheduledAt    *time.Time  `json:"scheduledAt,omitempty"`
	DelayMinutes   int         `json:"delayMinutes,omitempty"`
}

// Payload builds the variant for ch from the flat request fields.
func (r CampaignCreateRequest) Payload(ch Channel) (Payload, error) {
	switch ch {
	case ChannelSMS:
		return SMSPayload{Message: r.Message, Messages: r.Messages}, nil
	case ChannelEmail:
		return EmailPayload{Subject: r.Subject, Content: r.Content}, nil
	case ChannelWhatsApp:
		return WhatsAppPayload{Message: r.Message, Messages: r.Messages}, nil
	}
	return nil, invalid("channel", "campaigns are not supported on "+string(ch))
}

// Normalize fills defaults in place.
func (r *CampaignCreateRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.QuizID = strings.TrimSpace(r.QuizID)
	if r.TargetAudience == "" {
		r.TargetAudience = AudienceAll
	}
	if r.TriggerType == "" {
		r.TriggerType = TriggerImmediate
	}
}

func (r CampaignCreateRequest) Validate(ch Channel) error {
	if r.Name == "" {
		return invalid("name", "is required")
	}
	if r.QuizID == "" {
		return invalid("quizId", "is required")
	}
	if !r.TargetAudience.Valid() {
		return invalid("targetAudience", "must be one of all, completed, abandoned")
	}
	if !r.TriggerType.Valid() {
		return invalid("triggerType", "must be one of immediate, scheduled, delayed")
	}
	switch r.TriggerType {
	case TriggerScheduled:
		if r.ScheduledAt == nil {
			return invalid("scheduledAt", "is required for scheduled campaigns")
		}
	case TriggerDelayed:
		if r.DelayMinutes <= 0 {
			return invalid("delayMinutes", "must be positive for delayed campaigns")
		}
	}
	p, err := r.Payload(ch)
	if err != nil {
		return err
	}
	return p.Validate()
}

// CampaignFilter controls List queries.
type CampaignFilter struct {
	UserID   int64
	Channel  Channel
	Statuses []CampaignStatus
	Limit    int
	Offset   int
}
