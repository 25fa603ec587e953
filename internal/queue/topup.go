package queue

import (
	"context"
	"strconv"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
)

const (
	TopUpStream = "credits:topup"
	TopUpGroup  = "scheduler"

	eventTypeTopUp = "credit.topup"
)

// TopUpPublisher puts credit top-ups on the stream the scheduler consumes.
type TopUpPublisher struct {
	q *Queue
}

func NewTopUpPublisher(q *Queue) *TopUpPublisher {
	return &TopUpPublisher{q: q}
}

func (p *TopUpPublisher) PublishTopUp(ctx context.Context, ev model.CreditTopUpEvent) error {
	_, err := p.q.PublishJSON(ctx, ev, map[string]string{
		"type":    eventTypeTopUp,
		"user_id": strconv.FormatInt(ev.UserID, 10),
		"channel": string(ev.Channel),
	})
	return err
}

// DecodeTopUp reads a top-up event back from a stream message.
func DecodeTopUp(m *Message) (model.CreditTopUpEvent, error) {
	var ev model.CreditTopUpEvent
	err := m.Decode(&ev)
	return ev, err
}
