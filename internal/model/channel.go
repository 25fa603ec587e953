package model

import "fmt"

// Channel identifies both a campaign transport and a credit bucket.
type Channel string

const (
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelAI       Channel = "ai"
)

var CampaignChannels = []Channel{ChannelSMS, ChannelEmail, ChannelWhatsApp}

func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelWhatsApp, ChannelAI:
		return true
	}
	return false
}

func (c Channel) IsCampaignChannel() bool {
	return c == ChannelSMS || c == ChannelEmail || c == ChannelWhatsApp
}

// UsesPhone reports whether recipients on this channel are phone numbers.
func (c Channel) UsesPhone() bool {
	return c == ChannelSMS || c == ChannelWhatsApp
}

func (c Channel) Label() string {
	switch c {
	case ChannelSMS:
		return "SMS"
	case ChannelEmail:
		return "Email"
	case ChannelWhatsApp:
		return "WhatsApp"
	case ChannelAI:
		return "AI"
	}
	return string(c)
}

func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if !c.Valid() {
		return "", &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown channel %q", s)}
	}
	return c, nil
}
