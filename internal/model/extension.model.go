package model

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// HeartbeatTTL is how long a ping keeps the extension connected.
const HeartbeatTTL = 120 * time.Second

const (
	DefaultMessageDelaySeconds = 15
	DefaultDailyLimit          = 100
	DefaultWorkingHoursStart   = "08:00"
	DefaultWorkingHoursEnd     = "20:00"
)

var hhmm = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// ExtensionSettings drive the browser extension. DailyLimit caps the
// messages sent per UTC day: pending polls shrink as the day's sent count
// grows and return nothing once it is reached.
type ExtensionSettings struct {
	MessageDelaySeconds int    `json:"messageDelay"`
	DailyLimit          int    `json:"dailyLimit"`
	WorkingHoursStart   string `json:"workingHoursStart"`
	WorkingHoursEnd     string `json:"workingHoursEnd"`
	SettingsVersion     int64  `json:"settingsVersion"`
}

func DefaultExtensionSettings() ExtensionSettings {
	return ExtensionSettings{
		MessageDelaySeconds: DefaultMessageDelaySeconds,
		DailyLimit:          DefaultDailyLimit,
		WorkingHoursStart:   DefaultWorkingHoursStart,
		WorkingHoursEnd:     DefaultWorkingHoursEnd,
	}
}

func (s ExtensionSettings) Validate() error {
	if s.MessageDelaySeconds < 1 || s.MessageDelaySeconds > 3600 {
		return invalid("messageDelay", "must be between 1 and 3600 seconds")
	}
	if s.DailyLimit < 1 || s.DailyLimit > 10000 {
		return invalid("dailyLimit", "must be between 1 and 10000")
	}
	if !hhmm.MatchString(s.WorkingHoursStart) {
		return invalid("workingHoursStart", "must be HH:MM")
	}
	if !hhmm.MatchString(s.WorkingHoursEnd) {
		return invalid("workingHoursEnd", "must be HH:MM")
	}
	return nil
}

type ExtensionSession struct {
	UserID           int64             `json:"userId"`
	LastPingAt       time.Time         `json:"lastPingAt"`
	IsActive         bool              `json:"isActive"`
	PendingCount     int64             `json:"pendingCount"`
	SentCount        int64             `json:"sentCount"`
	FailedCount      int64             `json:"failedCount"`
	ExtensionVersion string            `json:"extensionVersion"`
	Settings         ExtensionSettings `json:"settings"`
}

// Connected is true only for an active session pinged within HeartbeatTTL.
func (s *ExtensionSession) Connected(now time.Time) bool {
	if s == nil || !s.IsActive {
		return false
	}
	return now.Sub(s.LastPingAt) < HeartbeatTTL
}

// Heartbeat is the body of POST /whatsapp-extension/status. Sent and failed
// are counts since the previous ping.
type Heartbeat struct {
	IsActive        bool   `json:"isActive"`
	PendingMessages int64  `json:"pendingMessages"`
	SentMessages    int64  `json:"sentMessages"`
	FailedMessages  int64  `json:"failedMessages"`
	Version         string `json:"version"`
}

func (h Heartbeat) Validate() error {
	if h.PendingMessages < 0 || h.SentMessages < 0 || h.FailedMessages < 0 {
		return invalid("", "message counters must not be negative")
	}
	return nil
}

type HeartbeatResult struct {
	Connected bool              `json:"connected"`
	Settings  ExtensionSettings `json:"settings"`
}

// OutcomeReport is the body of POST /whatsapp-extension/logs.
type OutcomeReport struct {
	LogID     string    `json:"logId"`
	Status    LogStatus `json:"status"`
	Phone     string    `json:"phone"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

var phoneish = regexp.MustCompile(`^\+?[0-9][0-9 ()\-.]{5,24}$`)

// Validate checks the report shape and returns the parsed log id.
func (r OutcomeReport) Validate() (int64, error) {
	id := strings.TrimSpace(r.LogID)
	if id == "" {
		return 0, invalid("logId", "is required")
	}
	logID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || logID <= 0 {
		return 0, invalid("logId", "must be a positive integer")
	}
	if !r.Status.IsOutcome() {
		return 0, invalid("status", fmt.Sprintf("must be one of sent, failed, delivered; got %q", r.Status))
	}
	if !phoneish.MatchString(strings.TrimSpace(r.Phone)) {
		return 0, invalid("phone", "is not a phone number")
	}
	return logID, nil
}

type PendingMessages struct {
	Connected bool           `json:"connected"`
	Messages  []*DispatchLog `json:"messages"`
}
