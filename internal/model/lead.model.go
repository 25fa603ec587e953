package model

import "time"

// QuizResponse is owned by the quiz subsystem; this service only reads it.
type QuizResponse struct {
	ID                   string         `json:"id"`
	QuizID               string         `json:"quizId"`
	UserID               int64          `json:"userId"`
	Responses            map[string]any `json:"responses"`
	IsComplete           bool           `json:"isComplete"`
	CompletionPercentage int            `json:"completionPercentage"`
	SubmittedAt          time.Time      `json:"submittedAt"`
}

// Lead is derived from a QuizResponse on every audience pass and never stored.
type Lead struct {
	ResponseID     string            `json:"responseId"`
	Phone          string            `json:"phone,omitempty"`
	Email          string            `json:"email,omitempty"`
	Name           string            `json:"name,omitempty"`
	CapturedFields map[string]string `json:"capturedFields"`
	IsComplete     bool              `json:"isComplete"`
	SubmittedAt    time.Time         `json:"submittedAt"`
}

// Recipient returns the address used on ch, empty when unresolvable.
func (l Lead) Recipient(ch Channel) string {
	switch {
	case ch.UsesPhone():
		return l.Phone
	case ch == ChannelEmail:
		return l.Email
	}
	return ""
}
