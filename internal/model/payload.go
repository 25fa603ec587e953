package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const MaxSMSLength = 640

// Payload is the channel specific part of a campaign. Exactly one variant
// exists per channel.
type Payload interface {
	Channel() Channel
	Validate() error
	// Templates returns the message bodies in rotation order.
	Templates() []string
	SubjectTemplate() string
}

type SMSPayload struct {
	Message  string   `json:"message,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

func (SMSPayload) Channel() Channel        { return ChannelSMS }
func (SMSPayload) SubjectTemplate() string { return "" }

func (p SMSPayload) Templates() []string {
	return variants(p.Message, p.Messages)
}

func (p SMSPayload) Validate() error {
	tpls := p.Templates()
	if len(tpls) == 0 {
		return invalid("message", "is required")
	}
	for i, t := range tpls {
		if utf8.RuneCountInString(t) > MaxSMSLength {
			return invalid(fmt.Sprintf("messages[%d]", i), fmt.Sprintf("exceeds %d characters", MaxSMSLength))
		}
	}
	return nil
}

type EmailPayload struct {
	Subject string `json:"subject"`
	Content string `json:"content"`
}

func (EmailPayload) Channel() Channel { return ChannelEmail }

func (p EmailPayload) Templates() []string     { return variants(p.Content, nil) }
func (p EmailPayload) SubjectTemplate() string { return p.Subject }

func (p EmailPayload) Validate() error {
	if strings.TrimSpace(p.Subject) == "" {
		return invalid("subject", "is required")
	}
	if strings.TrimSpace(p.Content) == "" {
		return invalid("content", "is required")
	}
	return nil
}

type WhatsAppPayload struct {
	Message  string   `json:"message,omitempty"`
	Messages []string `json:"messages,omitempty"`
}

func (WhatsAppPayload) Channel() Channel        { return ChannelWhatsApp }
func (WhatsAppPayload) SubjectTemplate() string { return "" }

func (p WhatsAppPayload) Templates() []string {
	return variants(p.Message, p.Messages)
}

func (p WhatsAppPayload) Validate() error {
	if len(p.Templates()) == 0 {
		return invalid("message", "is required")
	}
	return nil
}

// DecodePayload restores the variant stored for ch.
func DecodePayload(ch Channel, raw []byte) (Payload, error) {
	switch ch {
	case ChannelSMS:
		var p SMSPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case ChannelEmail:
		var p EmailPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case ChannelWhatsApp:
		var p WhatsAppPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("no payload for channel %q", ch)
}

func variants(single string, many []string) []string {
	out := make([]string, 0, len(many)+1)
	for _, m := range many {
		if strings.TrimSpace(m) != "" {
			out = append(out, m)
		}
	}
	if len(out) == 0 && strings.TrimSpace(single) != "" {
		out = append(out, single)
	}
	return out
}
