package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/internal/queue"
	"github.com/nimasrn/vendzz-dispatch/internal/services"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/nimasrn/vendzz-dispatch/pkg/prom"
	"github.com/nimasrn/vendzz-dispatch/pkg/worker"
)

const (
	DefaultInterval = 15 * time.Second
	ReportInterval  = 30 * time.Second
	ShutdownTimeout = time.Minute
)

// Campaigns is the part of services.CampaignService the scheduler drives.
type Campaigns interface {
	ResumeAllEligible(ctx context.Context) (int, error)
	ResumeForCredits(ctx context.Context, userID int64, ch model.Channel) ([]*model.Campaign, error)
	ActiveCampaigns(ctx context.Context) ([]*model.Campaign, error)
	Materialize(ctx context.Context, c *model.Campaign) (int64, error)
	CheckCompletion(ctx context.Context, campaignID int64) (bool, error)
}

type Dispatcher interface {
	DispatchCampaign(ctx context.Context, campaignID int64) (services.DispatchResult, error)
}

type Config struct {
	Interval   time.Duration
	Workers    int
	BufferSize int
	JobTimeout time.Duration
}

type Service struct {
	config    Config
	campaigns Campaigns
	dispatch  Dispatcher
	locks     *Locks
	topups    *queue.Queue
	worker    *worker.WorkerManager
	metrics   *SweepMetrics
	wg        sync.WaitGroup
	cancel    context.CancelFunc
}

func New(config Config, campaigns Campaigns, dispatch Dispatcher, locks *Locks, topups *queue.Queue) *Service {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Workers <= 0 {
		config.Workers = 8
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 1024
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 2 * time.Minute
	}
	s := &Service{
		config:    config,
		campaigns: campaigns,
		dispatch:  dispatch,
		locks:     locks,
		topups:    topups,
		worker:    worker.NewWorkerManager(config.BufferSize, config.Workers),
		metrics:   NewSweepMetrics(),
	}
	s.worker.SetWorker(s.workerHandler)
	return s
}

type campaignJob struct {
	campaign *model.Campaign
	done     *sync.WaitGroup
}

// Start runs the worker pool, the sweep ticker and the top-up consumer
// until Stop is called or ctx ends.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	logger.Info("[scheduler] starting", "interval", s.config.Interval, "workers", s.config.Workers)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.worker.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("[scheduler] worker manager stopped", "error", err)
		}
	}()

	if s.topups != nil {
		if err := s.topups.Consume(ctx, s.HandleTopUp); err != nil {
			s.cancel()
			return err
		}
	}

	s.wg.Add(2)
	go s.sweepLoop(ctx)
	go s.reporter(ctx)
	return nil
}

func (s *Service) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep resumes campaigns whose credits came back, then works every active
// campaign once and waits for all of them.
func (s *Service) Sweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		d := time.Since(start)
		s.metrics.RecordSweep(d)
		prom.SweepDuration(d.Seconds())
	}()

	resumed, err := s.campaigns.ResumeAllEligible(ctx)
	if err != nil {
		s.metrics.errors.Add(1)
		logger.Error("[scheduler] resume sweep failed", "error", err)
	} else if resumed > 0 {
		s.metrics.resumed.Add(int64(resumed))
		logger.Info("[scheduler] campaigns resumed", "count", resumed)
	}

	active, err := s.campaigns.ActiveCampaigns(ctx)
	if err != nil {
		s.metrics.errors.Add(1)
		logger.Error("[scheduler] list active campaigns failed", "error", err)
		return
	}
	s.runAll(ctx, active)
}

func (s *Service) runAll(ctx context.Context, campaigns []*model.Campaign) {
	var done sync.WaitGroup
	for _, c := range campaigns {
		done.Add(1)
		if err := s.worker.Enqueue(ctx, &campaignJob{campaign: c, done: &done}); err != nil {
			done.Done()
			break
		}
	}

	// queued jobs are dropped when the workers exit on shutdown
	finished := make(chan struct{})
	go func() {
		done.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}
}

func (s *Service) workerHandler(ctx context.Context, workerIndex int, job interface{}) {
	j, ok := job.(*campaignJob)
	if !ok {
		logger.Error("[scheduler] invalid job type", "worker", workerIndex)
		return
	}
	defer j.done.Done()

	jctx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()
	if err := s.ProcessCampaign(jctx, j.campaign); err != nil {
		s.metrics.errors.Add(1)
		logger.Error("[scheduler] campaign run failed", "worker", workerIndex, "campaign_id", j.campaign.ID, "error", err)
	}
}

// ProcessCampaign refreshes the audience of one campaign, sends its due
// SMS or email logs and completes it when nothing is left. WhatsApp logs
// are left for the extension.
func (s *Service) ProcessCampaign(ctx context.Context, c *model.Campaign) error {
	lock, err := s.locks.AcquireCampaign(ctx, c.ID)
	if errors.Is(err, ErrLockHeld) {
		s.metrics.lockSkipped.Add(1)
		logger.Debug("[scheduler] campaign busy elsewhere", "campaign_id", c.ID)
		return nil
	}
	if err != nil {
		return err
	}
	defer lock.Release(context.WithoutCancel(ctx))
	s.metrics.campaigns.Add(1)

	added, err := s.campaigns.Materialize(ctx, c)
	if err != nil {
		return err
	}
	if added > 0 {
		logger.Info("[scheduler] new leads materialized", "campaign_id", c.ID, "count", added)
	}

	if c.Channel == model.ChannelWhatsApp {
		done, err := s.campaigns.CheckCompletion(ctx, c.ID)
		if done {
			s.metrics.completed.Add(1)
		}
		return err
	}

	res, err := s.dispatch.DispatchCampaign(ctx, c.ID)
	s.metrics.sent.Add(int64(res.Sent))
	s.metrics.failed.Add(int64(res.Failed))
	if res.Paused {
		s.metrics.paused.Add(1)
	}
	if res.Completed {
		s.metrics.completed.Add(1)
	}
	return err
}

func (s *Service) reporter(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(ReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.report(ctx)
		}
	}
}

func (s *Service) report(ctx context.Context) {
	st := s.metrics.GetStats()
	logger.Info("[scheduler] metrics",
		"sweeps", st["sweeps"], "campaigns", st["campaigns"], "sent", st["sent"], "failed", st["failed"],
		"paused", st["paused"], "completed", st["completed"], "resumed", st["resumed"],
		"errors", st["errors"], "lock_skipped", st["lock_skipped"], "avg_sweep_ms", st["avg_sweep_ms"],
		"queued_jobs", s.worker.GetUnreadCount())
	if s.topups == nil {
		return
	}
	if qs, err := s.topups.Stats(ctx); err == nil {
		logger.Info("[scheduler] top-up stream", "length", qs.Length, "pending", qs.Pending, "dlq", qs.DLQ)
	}
}

func (s *Service) Metrics() map[string]interface{} {
	return s.metrics.GetStats()
}

// Stop cancels the loops and waits for in-flight campaign jobs.
func (s *Service) Stop() {
	logger.Info("[scheduler] shutting down")
	if s.cancel != nil {
		s.cancel()
	}
	if s.topups != nil {
		if err := s.topups.Stop(ShutdownTimeout); err != nil {
			logger.Error("[scheduler] stop top-up consumer", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ShutdownTimeout):
		logger.Warn("[scheduler] timeout waiting for workers")
	}
	s.report(context.Background())
	logger.Info("[scheduler] stopped")
}
