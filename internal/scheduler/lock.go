package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/nimasrn/vendzz-dispatch/pkg/redis"
)

var ErrLockHeld = errors.New("lock held by another instance")

type LockConfig struct {
	// LockTTL bounds how long a crashed instance can block a campaign.
	LockTTL time.Duration
	// ProcessedTTL is how long handled event ids are remembered.
	ProcessedTTL time.Duration

	LockKeyPrefix      string
	ProcessedKeyPrefix string
}

func DefaultLockConfig() LockConfig {
	return LockConfig{
		LockTTL:            2 * time.Minute,
		ProcessedTTL:       24 * time.Hour,
		LockKeyPrefix:      "lock:campaign:",
		ProcessedKeyPrefix: "processed:topup:",
	}
}

// Locks keeps scheduler instances from dispatching the same campaign twice
// and from handling the same top-up event twice.
type Locks struct {
	redis  redis.RedisAdapter
	config LockConfig
}

func NewLocks(adapter redis.RedisAdapter, config LockConfig) *Locks {
	return &Locks{redis: adapter, config: config}
}

// CampaignLock is held while a campaign is being worked on.
type CampaignLock struct {
	key   string
	token []byte
	locks *Locks
}

func (l *Locks) AcquireCampaign(ctx context.Context, campaignID int64) (*CampaignLock, error) {
	key := fmt.Sprintf("%s%d", l.config.LockKeyPrefix, campaignID)
	token := []byte(uuid.NewString())

	ok, err := l.redis.SetNX(ctx, key, token, l.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &CampaignLock{key: key, token: token, locks: l}, nil
}

// Release drops the lock unless it already expired and someone else took it.
func (c *CampaignLock) Release(ctx context.Context) {
	if c == nil {
		return
	}
	released, err := c.locks.redis.CompareAndDelete(ctx, c.key, c.token)
	if err != nil {
		logger.Warn("[scheduler] release lock failed", "key", c.key, "error", err)
		return
	}
	if !released {
		logger.Warn("[scheduler] lock expired before release", "key", c.key)
	}
}

// IsProcessed reports whether the event was already handled.
func (l *Locks) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	n, err := l.redis.Exist(ctx, l.config.ProcessedKeyPrefix+eventID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *Locks) MarkProcessed(ctx context.Context, eventID string) error {
	return l.redis.Set(ctx, l.config.ProcessedKeyPrefix+eventID, []byte("1"), l.config.ProcessedTTL)
}
