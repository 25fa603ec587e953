package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/nimasrn/vendzz-dispatch/pkg/redis"
	"github.com/pkg/errors"
)

var ErrAlreadySettled = errors.New("message already acked or rejected")

type Message struct {
	ID        string
	Data      []byte
	Metadata  map[string]string
	Timestamp time.Time
	// Attempts counts deliveries, starting at 1.
	Attempts int64
	settled  bool
	queue    *Queue
}

func (m *Message) Ack(ctx context.Context) error {
	if m.settled {
		return ErrAlreadySettled
	}
	m.settled = true
	return m.queue.ack(ctx, m.ID)
}

// Nack leaves the message pending; it is redelivered after the visibility
// timeout.
func (m *Message) Nack() error {
	if m.settled {
		return ErrAlreadySettled
	}
	m.settled = true
	return nil
}

// Decode unmarshals the JSON payload into v.
func (m *Message) Decode(v any) error {
	return json.Unmarshal(m.Data, v)
}

// Handler processes one message. nil acks it, an error leaves it pending
// for another attempt.
type Handler func(ctx context.Context, msg *Message) error

type Config struct {
	Stream            string
	Group             string
	Consumer          string
	MaxRetries        int64
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	BatchSize         int64
	EnableDLQ         bool
}

type Queue struct {
	adapter redis.RedisAdapter
	config  Config
	handler Handler
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Stats struct {
	Length  int64
	Pending int64
	DLQ     int64
}

func New(ctx context.Context, adapter redis.RedisAdapter, config Config) (*Queue, error) {
	if config.Stream == "" {
		return nil, errors.New("queue stream is required")
	}
	if config.Group == "" {
		config.Group = "default-group"
	}
	if config.Consumer == "" {
		config.Consumer = fmt.Sprintf("consumer-%d", time.Now().UnixNano())
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = 30 * time.Second
	}
	if config.PollInterval <= 0 {
		config.PollInterval = time.Second
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}

	err := adapter.XGroupCreateMkStream(ctx, config.Stream, config.Group, "0")
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, errors.Wrapf(err, "create consumer group %s", config.Group)
	}
	return &Queue{adapter: adapter, config: config}, nil
}

func (q *Queue) Publish(ctx context.Context, data []byte, metadata map[string]string) (string, error) {
	values := map[string]interface{}{
		"data":      string(data),
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range metadata {
		values["meta_"+k] = v
	}
	id, err := q.adapter.XAdd(ctx, q.config.Stream, values)
	if err != nil {
		return "", errors.Wrap(err, "publish")
	}
	return id, nil
}

func (q *Queue) PublishJSON(ctx context.Context, v any, metadata map[string]string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrap(err, "marshal")
	}
	return q.Publish(ctx, data, metadata)
}

// Consume starts the poll loop in the background until Stop or ctx ends.
func (q *Queue) Consume(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}
	q.handler = handler
	ctx, q.cancel = context.WithCancel(ctx)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.config.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.Poll(ctx)
			}
		}
	}()
	return nil
}

// Poll handles one round: new messages first, then messages whose consumer
// went silent longer than the visibility timeout.
func (q *Queue) Poll(ctx context.Context) {
	msgs, err := q.adapter.XReadGroup(ctx, q.config.Group, q.config.Consumer, q.config.Stream, ">", q.config.BatchSize, redis.NoBlock)
	if err != nil {
		logger.Error("[queue] read failed", "stream", q.config.Stream, "error", err)
	}
	for _, sm := range msgs {
		m := q.toMessage(sm)
		m.Attempts = 1
		q.handle(ctx, m)
	}
	q.reclaim(ctx)
}

func (q *Queue) reclaim(ctx context.Context) {
	pending, err := q.adapter.XPendingExt(ctx, q.config.Stream, q.config.Group, "-", "+", 100)
	if err != nil || len(pending) == 0 {
		return
	}

	attempts := make(map[string]int64, len(pending))
	var ids []string
	for _, p := range pending {
		if p.Idle < q.config.VisibilityTimeout {
			continue
		}
		attempts[p.ID] = p.RetryCount
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return
	}

	msgs, err := q.adapter.XClaim(ctx, q.config.Stream, q.config.Group, q.config.Consumer, q.config.VisibilityTimeout, ids...)
	if err != nil {
		logger.Warn("[queue] claim failed", "stream", q.config.Stream, "error", err)
		return
	}
	for _, sm := range msgs {
		m := q.toMessage(sm)
		// XCLAIM itself counts as one more delivery.
		m.Attempts = attempts[sm.ID] + 1
		q.handle(ctx, m)
	}
}

func (q *Queue) handle(ctx context.Context, m *Message) {
	if m.Attempts > q.config.MaxRetries {
		q.deadLetter(ctx, m)
		if err := q.ack(ctx, m.ID); err != nil {
			logger.Error("[queue] ack after dead letter failed", "id", m.ID, "error", err)
		}
		return
	}

	hctx, cancel := context.WithTimeout(ctx, q.config.VisibilityTimeout)
	defer cancel()
	if err := q.handler(hctx, m); err != nil {
		logger.Warn("[queue] handler failed", "stream", q.config.Stream, "id", m.ID, "attempt", m.Attempts, "error", err)
		return
	}
	if m.settled {
		return
	}
	if err := m.Ack(ctx); err != nil {
		logger.Error("[queue] ack failed", "id", m.ID, "error", err)
	}
}

func (q *Queue) ack(ctx context.Context, id string) error {
	return q.adapter.XAck(ctx, q.config.Stream, q.config.Group, id)
}

func (q *Queue) dlqStream() string {
	return q.config.Stream + ":dlq"
}

func (q *Queue) deadLetter(ctx context.Context, m *Message) {
	logger.Warn("[queue] giving up on message", "stream", q.config.Stream, "id", m.ID, "attempts", m.Attempts)
	if !q.config.EnableDLQ {
		return
	}
	values := map[string]interface{}{
		"data":        string(m.Data),
		"original_id": m.ID,
		"attempts":    m.Attempts,
		"failed_at":   time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range m.Metadata {
		values["meta_"+k] = v
	}
	if _, err := q.adapter.XAdd(ctx, q.dlqStream(), values); err != nil {
		logger.Error("[queue] dead letter write failed", "id", m.ID, "error", err)
	}
}

func (q *Queue) toMessage(sm redis.StreamMessage) *Message {
	m := &Message{ID: sm.ID, Metadata: map[string]string{}, queue: q}
	for k, v := range sm.Values {
		s, _ := v.(string)
		switch {
		case k == "data":
			m.Data = []byte(s)
		case k == "timestamp":
			if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
				m.Timestamp = ts
			} else if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
				m.Timestamp = time.Unix(unix, 0).UTC()
			}
		case strings.HasPrefix(k, "meta_"):
			m.Metadata[strings.TrimPrefix(k, "meta_")] = s
		}
	}
	return m
}

// Stop cancels the poll loop and waits for the in-flight round.
func (q *Queue) Stop(timeout time.Duration) error {
	if q.cancel == nil {
		return nil
	}
	q.cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("timeout waiting for queue to stop")
	}
}

func (q *Queue) Stats(ctx context.Context) (*Stats, error) {
	length, err := q.adapter.XLen(ctx, q.config.Stream)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Length: length}
	if pending, err := q.adapter.XPendingExt(ctx, q.config.Stream, q.config.Group, "-", "+", 1000); err == nil {
		stats.Pending = int64(len(pending))
	}
	if dlq, err := q.adapter.XLen(ctx, q.dlqStream()); err == nil {
		stats.DLQ = dlq
	}
	return stats, nil
}
