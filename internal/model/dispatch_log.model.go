package model

import "time"

type LogStatus string

const (
	LogStatusScheduled LogStatus = "scheduled"
	LogStatusSent      LogStatus = "sent"
	LogStatusDelivered LogStatus = "delivered"
	LogStatusFailed    LogStatus = "failed"
	LogStatusSkipped   LogStatus = "skipped"
)

// logPredecessors lists, for every target status, the statuses a log may be
// in when it moves there. Terminal states never move back.
var logPredecessors = map[LogStatus][]LogStatus{
	LogStatusSent:      {LogStatusScheduled},
	LogStatusFailed:    {LogStatusScheduled},
	LogStatusSkipped:   {LogStatusScheduled},
	LogStatusDelivered: {LogStatusScheduled, LogStatusSent},
}

func AllowedPredecessors(to LogStatus) []LogStatus {
	return logPredecessors[to]
}

func (s LogStatus) IsOutcome() bool {
	return s == LogStatusSent || s == LogStatusFailed || s == LogStatusDelivered
}

type DispatchLog struct {
	ID                  int64      `json:"id"`
	CampaignID          int64      `json:"campaignId"`
	UserID              int64      `json:"userId"`
	Channel             Channel    `json:"channel"`
	ResponseID          string     `json:"responseId"`
	Recipient           string     `json:"recipient"`
	Phone               string     `json:"phone,omitempty"`
	Email               string     `json:"email,omitempty"`
	Name                string     `json:"name,omitempty"`
	PersonalizedMessage string     `json:"personalizedMessage"`
	Subject             string     `json:"subject,omitempty"`
	Status              LogStatus  `json:"status"`
	CreditReserved      bool       `json:"creditReserved"`
	ScheduledAt         time.Time  `json:"scheduledAt"`
	SentAt              *time.Time `json:"sentAt,omitempty"`
	DeliveredAt         *time.Time `json:"deliveredAt,omitempty"`
	Error               *string    `json:"error,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// LogStats counts logs of one campaign per status.
type LogStats map[LogStatus]int64

func (s LogStats) Total() int64 {
	var n int64
	for _, v := range s {
		n += v
	}
	return n
}

type LogFilter struct {
	CampaignID int64
	Statuses   []LogStatus
	Limit      int
	Offset     int
}
