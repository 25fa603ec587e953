package model

import "time"

type CreditBalance struct {
	UserID   int64 `json:"userId"`
	SMS      int64 `json:"sms"`
	Email    int64 `json:"email"`
	WhatsApp int64 `json:"whatsapp"`
	AI       int64 `json:"ai"`
}

func (b CreditBalance) Of(ch Channel) int64 {
	switch ch {
	case ChannelSMS:
		return b.SMS
	case ChannelEmail:
		return b.Email
	case ChannelWhatsApp:
		return b.WhatsApp
	case ChannelAI:
		return b.AI
	}
	return 0
}

type CreditTxType string

const (
	CreditTxDebit  CreditTxType = "debit"
	CreditTxRefund CreditTxType = "refund"
	CreditTxCredit CreditTxType = "credit"
	CreditTxSet    CreditTxType = "set"
)

// CreditTransaction is one append-only ledger row. Amount is signed for
// debits and refunds, and holds the new balance for set.
type CreditTransaction struct {
	ID            int64        `json:"id"`
	UserID        int64        `json:"userId"`
	Channel       Channel      `json:"channel"`
	Amount        int64        `json:"amount"`
	Type          CreditTxType `json:"type"`
	DispatchLogID *int64       `json:"dispatchLogId,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	CreatedAt     time.Time    `json:"createdAt"`
}

// CreditTopUpEvent is published whenever a channel balance grows.
type CreditTopUpEvent struct {
	ID      string    `json:"id"`
	UserID  int64     `json:"userId"`
	Channel Channel   `json:"channel"`
	Amount  int64     `json:"amount"`
	Balance int64     `json:"balance"`
	At      time.Time `json:"at"`
}

type CreditPackage struct {
	ID      string  `json:"id"`
	Channel Channel `json:"type"`
	Credits int64   `json:"credits"`
}

var creditPackages = []CreditPackage{
	{ID: "sms-10", Channel: ChannelSMS, Credits: 10},
	{ID: "sms-100", Channel: ChannelSMS, Credits: 100},
	{ID: "sms-1000", Channel: ChannelSMS, Credits: 1000},
	{ID: "email-100", Channel: ChannelEmail, Credits: 100},
	{ID: "email-1000", Channel: ChannelEmail, Credits: 1000},
	{ID: "whatsapp-100", Channel: ChannelWhatsApp, Credits: 100},
	{ID: "whatsapp-500", Channel: ChannelWhatsApp, Credits: 500},
	{ID: "ai-50", Channel: ChannelAI, Credits: 50},
}

func CreditPackages() []CreditPackage {
	return append([]CreditPackage(nil), creditPackages...)
}

func LookupPackage(ch Channel, id string) (CreditPackage, bool) {
	for _, p := range creditPackages {
		if p.Channel == ch && p.ID == id {
			return p, true
		}
	}
	return CreditPackage{}, false
}

type PurchaseRequest struct {
	Type      string `json:"type"`
	PackageID string `json:"packageId"`
}

// AdminCreditRequest is used by both admin set and admin add.
type AdminCreditRequest struct {
	UserID int64  `json:"userId"`
	Type   string `json:"type"`
	Amount int64  `json:"amount"`
}

func (r AdminCreditRequest) Validate() error {
	if r.UserID <= 0 {
		return invalid("userId", "is required")
	}
	if _, err := ParseChannel(r.Type); err != nil {
		return err
	}
	if r.Amount < 0 {
		return invalid("amount", "must not be negative")
	}
	return nil
}
