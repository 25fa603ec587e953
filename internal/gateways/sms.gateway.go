package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/nimasrn/vendzz-dispatch/internal/model"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/nimasrn/vendzz-dispatch/pkg/prom"
	"github.com/valyala/fasthttp"
)

var (
	ErrNoAvailableProviders = errors.New("no available providers")
	ErrRejected             = errors.New("provider rejected message")
	ErrWrongChannel         = errors.New("log is not for this channel")
)

const sendPath = "/api/v1/sms/send"

type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusFailed    DeliveryStatus = "FAILED"
	StatusPending   DeliveryStatus = "PENDING"
)

type SendRequest struct {
	MessageID   string `json:"message_id"`
	PhoneNumber string `json:"phone_number"`
	Content     string `json:"content"`
	Priority    string `json:"priority,omitempty"`
}

type SendResponse struct {
	MessageID   string         `json:"message_id"`
	Status      DeliveryStatus `json:"status"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	ErrorMsg    string         `json:"error_message,omitempty"`
	OperatorID  string         `json:"operator_id"`
}

type ProviderConfig struct {
	Name   string
	URL    string
	Weight int
}

type Config struct {
	Providers               []ProviderConfig
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	HealthCheckInterval     time.Duration
	EvaluateInterval        time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

func (c *Config) withDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 64
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.EvaluateInterval <= 0 {
		c.EvaluateInterval = 30 * time.Second
	}
	if c.CircuitBreakerThreshold <= 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.CircuitBreakerTimeout <= 0 {
		c.CircuitBreakerTimeout = time.Minute
	}
}

// SMSClient routes SMS sends to the best scoring provider and fails over to
// the next one on error.
type SMSClient struct {
	config    Config
	providers []*Provider
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func NewSMSClient(config Config) (*SMSClient, error) {
	if len(config.Providers) == 0 {
		return nil, errors.New("at least one sms provider is required")
	}
	config.withDefaults()

	c := &SMSClient{
		config:    config,
		providers: make([]*Provider, 0, len(config.Providers)),
		stopCh:    make(chan struct{}),
	}
	for _, pc := range config.Providers {
		if pc.URL == "" {
			return nil, fmt.Errorf("sms provider %q has no url", pc.Name)
		}
		httpClient := &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: time.Minute,
		}
		c.providers = append(c.providers, NewProvider(pc.Name, pc.URL, pc.Weight, httpClient))
		logger.Info("[sms-gateway] provider added", "name", pc.Name, "url", pc.URL, "weight", pc.Weight)
	}
	return c, nil
}

// Start runs the background health checks until Close.
func (c *SMSClient) Start() {
	c.wg.Add(2)
	go c.every(c.config.HealthCheckInterval, c.checkHealth)
	go c.every(c.config.EvaluateInterval, c.evaluate)
}

func (c *SMSClient) every(d time.Duration, fn func()) {
	defer c.wg.Done()
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn()
		case <-c.stopCh:
			return
		}
	}
}

func (c *SMSClient) Close() error {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
	logger.Info("[sms-gateway] closed")
	return nil
}

// Send implements services.Sender for SMS dispatch logs.
func (c *SMSClient) Send(ctx context.Context, l *model.DispatchLog) error {
	if l.Channel != model.ChannelSMS {
		return fmt.Errorf("%w: %s", ErrWrongChannel, l.Channel)
	}
	phone := l.Phone
	if phone == "" {
		phone = l.Recipient
	}
	resp, err := c.SendSMS(ctx, &SendRequest{
		MessageID:   strconv.FormatInt(l.ID, 10),
		PhoneNumber: phone,
		Content:     l.PersonalizedMessage,
	})
	if err != nil {
		return err
	}
	if resp.Status == StatusFailed {
		return fmt.Errorf("%w: %s %s", ErrRejected, resp.ErrorCode, resp.ErrorMsg)
	}
	return nil
}

func (c *SMSClient) SelectProvider() (*Provider, error) {
	var best *Provider
	var bestScore float64
	for _, p := range c.providers {
		if score := p.Score(); score > bestScore {
			best, bestScore = p, score
		}
	}
	if best == nil {
		return nil, ErrNoAvailableProviders
	}
	return best, nil
}

// SendSMS posts the request, retrying up to MaxRetries times on whichever
// provider scores best after the previous failure.
func (c *SMSClient) SendSMS(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal sms request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		p, err := c.SelectProvider()
		if err != nil {
			lastErr = err
			continue
		}

		start := time.Now()
		raw, err := c.do(ctx, p, fasthttp.MethodPost, sendPath, body)
		latency := time.Since(start).Milliseconds()
		if err != nil {
			p.health.Failure()
			c.tripIfNeeded(p)
			prom.ProviderRequest(p.name, "error")
			logger.Warn("[sms-gateway] send failed", "provider", p.name, "message_id", req.MessageID, "attempt", attempt+1, "error", err)
			lastErr = err
			continue
		}
		p.health.Success(latency)
		prom.ProviderRequest(p.name, "ok")

		var resp SendResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("decode sms response: %w", err)
		}
		logger.Debug("[sms-gateway] sent", "provider", p.name, "message_id", req.MessageID, "status", resp.Status, "latency_ms", latency)
		return &resp, nil
	}
	return nil, fmt.Errorf("sms send failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *SMSClient) do(ctx context.Context, p *Provider, method, path string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType("application/json")
	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}
	if err := p.http.DoDeadline(req, resp, deadline); err != nil {
		return nil, err
	}

	// 202 carries a delivery failure the provider accepted
	code := resp.StatusCode()
	if code != fasthttp.StatusOK && code != fasthttp.StatusAccepted {
		return nil, fmt.Errorf("unexpected status %d: %s", code, resp.Body())
	}
	return append([]byte(nil), resp.Body()...), nil
}

func (c *SMSClient) tripIfNeeded(p *Provider) {
	fails := p.health.ConsecutiveFails.Load()
	if fails < int32(c.config.CircuitBreakerThreshold) {
		return
	}
	p.openCircuit(c.config.CircuitBreakerTimeout)
	logger.Warn("[sms-gateway] circuit opened", "provider", p.name, "consecutive_fails", fails, "timeout", c.config.CircuitBreakerTimeout)
}

func (c *SMSClient) checkHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	for _, p := range c.providers {
		healthy := c.probe(ctx, p)
		p.lastChecked.Store(time.Now().Unix())

		prev := p.State()
		next := prev
		switch {
		case !healthy:
			next = StateUnhealthy
		case prev == StateUnhealthy || prev == StateDegraded:
			next = StateHealthy
		}
		if next != prev {
			p.SetState(next)
			logger.Info("[sms-gateway] provider state changed", "provider", p.name, "from", prev.String(), "to", next.String())
		}
	}
}

func (c *SMSClient) probe(ctx context.Context, p *Provider) bool {
	raw, err := c.do(ctx, p, fasthttp.MethodGet, "/health", nil)
	if err != nil {
		return false
	}
	var h struct {
		Status string `json:"status"`
	}
	return json.Unmarshal(raw, &h) == nil && h.Status == "healthy"
}

// evaluate degrades slow or flaky providers and restores recovered ones.
func (c *SMSClient) evaluate() {
	for _, p := range c.providers {
		if p.State() == StateCircuitOpen {
			continue
		}
		rate := p.health.SuccessRate()
		avg := p.health.AvgLatencyMs()
		switch {
		case rate < 0.8 || avg > 5000:
			if p.State() != StateDegraded {
				p.SetState(StateDegraded)
				logger.Warn("[sms-gateway] provider degraded", "provider", p.name, "success_rate", rate, "avg_latency_ms", avg)
			}
		case rate > 0.95 && avg < 2000:
			if p.State() != StateHealthy {
				p.SetState(StateHealthy)
				logger.Info("[sms-gateway] provider recovered", "provider", p.name)
			}
		}
	}
}

type ProviderStats struct {
	Name             string  `json:"name"`
	State            string  `json:"state"`
	Score            float64 `json:"score"`
	Requests         int64   `json:"requests"`
	Failed           int64   `json:"failed"`
	SuccessRate      float64 `json:"successRate"`
	AvgLatencyMs     int64   `json:"avgLatencyMs"`
	P95LatencyMs     int64   `json:"p95LatencyMs"`
	ConsecutiveFails int32   `json:"consecutiveFails"`
}

// Stats lists providers best first.
func (c *SMSClient) Stats() []ProviderStats {
	out := make([]ProviderStats, 0, len(c.providers))
	for _, p := range c.providers {
		out = append(out, ProviderStats{
			Name:             p.name,
			State:            p.State().String(),
			Score:            p.Score(),
			Requests:         p.health.Requests.Load(),
			Failed:           p.health.Failed.Load(),
			SuccessRate:      p.health.SuccessRate(),
			AvgLatencyMs:     p.health.AvgLatencyMs(),
			P95LatencyMs:     p.health.P95LatencyMs(),
			ConsecutiveFails: p.health.ConsecutiveFails.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Ping succeeds when at least one provider can take traffic.
func (c *SMSClient) Ping(_ context.Context) error {
	_, err := c.SelectProvider()
	return err
}
