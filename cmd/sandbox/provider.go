package main

import (
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "DELIVERED"
	StatusFailed    DeliveryStatus = "FAILED"
)

// SendRequest mirrors the body the dispatch SMS client posts.
type SendRequest struct {
	MessageID   string `json:"message_id" binding:"required"`
	PhoneNumber string `json:"phone_number" binding:"required"`
	Content     string `json:"content" binding:"required"`
	Priority    string `json:"priority"`
}

type SendResponse struct {
	MessageID   string         `json:"message_id"`
	Status      DeliveryStatus `json:"status"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	ErrorMsg    string         `json:"error_message,omitempty"`
	OperatorID  string         `json:"operator_id"`
	ProcessedAt time.Time      `json:"processed_at"`
}

// Settings can be changed at runtime through PUT /api/v1/config to drive
// the dispatch failover paths: Down answers 503 everywhere, DeliveryRate
// controls FAILED answers.
type Settings struct {
	DeliveryRate float64       `json:"delivery_rate"`
	MinDelay     time.Duration `json:"min_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Down         bool          `json:"down"`
}

// Sandbox is a fake SMS provider. Every accepted message is kept in memory
// so manual runs can check what the scheduler actually sent.
type Sandbox struct {
	id string

	mu       sync.Mutex
	settings Settings
	rng      *rand.Rand
	sent     map[string]SendResponse

	received  atomic.Int64
	delivered atomic.Int64
}

func NewSandbox(s Settings) *Sandbox {
	return &Sandbox{
		id:       "SANDBOX_" + uuid.New().String()[:8],
		settings: s,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		sent:     make(map[string]SendResponse),
	}
}

func (s *Sandbox) snapshot() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Sandbox) roll() (time.Duration, bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delay := s.settings.MinDelay
	if span := s.settings.MaxDelay - s.settings.MinDelay; span > 0 {
		delay += time.Duration(s.rng.Int63n(int64(span)))
	}
	ok := s.rng.Float64() < s.settings.DeliveryRate
	code := errorCodes[s.rng.Intn(len(errorCodes))]
	return delay, ok, code
}

var errorCodes = []string{"INVALID_NUMBER", "NETWORK_ERROR", "BLOCKED", "INVALID_CONTENT", "OPERATOR_REJECTED"}

var errorMessages = map[string]string{
	"INVALID_NUMBER":    "The phone number is invalid or not in service",
	"NETWORK_ERROR":     "Network connectivity issue with operator",
	"BLOCKED":           "The recipient has blocked messages",
	"INVALID_CONTENT":   "Message content violates operator policies",
	"OPERATOR_REJECTED": "Operator rejected the message",
}

func (s *Sandbox) deliver(req SendRequest) SendResponse {
	delay, ok, code := s.roll()
	if req.Priority == "express" {
		delay /= 2
	}
	time.Sleep(delay)

	resp := SendResponse{MessageID: req.MessageID, OperatorID: s.id, ProcessedAt: time.Now().UTC()}
	if ok {
		now := time.Now().UTC()
		resp.Status = StatusDelivered
		resp.DeliveredAt = &now
		s.delivered.Add(1)
		log.Info().Str("message_id", req.MessageID).Str("phone", req.PhoneNumber).Dur("delay", delay).Msg("sms delivered")
	} else {
		resp.Status = StatusFailed
		resp.ErrorCode = code
		resp.ErrorMsg = errorMessages[code]
		log.Warn().Str("message_id", req.MessageID).Str("error_code", code).Msg("sms rejected")
	}

	s.mu.Lock()
	s.sent[req.MessageID] = resp
	s.mu.Unlock()
	return resp
}

type Handler struct {
	sandbox *Sandbox
}

func (h *Handler) down(c *gin.Context) bool {
	if !h.sandbox.snapshot().Down {
		return false
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
	return true
}

func (h *Handler) Send(c *gin.Context) {
	h.sandbox.received.Add(1)
	if h.down(c) {
		return
	}
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	resp := h.sandbox.deliver(req)
	status := http.StatusOK
	if resp.Status == StatusFailed {
		status = http.StatusAccepted
	}
	c.JSON(status, resp)
}

func (h *Handler) Status(c *gin.Context) {
	id := c.Param("message_id")
	h.sandbox.mu.Lock()
	resp, ok := h.sandbox.sent[id]
	h.sandbox.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown message_id"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Health(c *gin.Context) {
	if h.down(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"operator_id":   h.sandbox.id,
		"timestamp":     time.Now().UTC(),
		"delivery_rate": h.sandbox.snapshot().DeliveryRate,
		"received":      h.sandbox.received.Load(),
		"delivered":     h.sandbox.delivered.Load(),
	})
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var req struct {
		DeliveryRate *float64 `json:"delivery_rate"`
		Down         *bool    `json:"down"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "details": err.Error()})
		return
	}
	if req.DeliveryRate != nil && (*req.DeliveryRate < 0 || *req.DeliveryRate > 1) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delivery_rate must be within [0,1]"})
		return
	}

	h.sandbox.mu.Lock()
	if req.DeliveryRate != nil {
		h.sandbox.settings.DeliveryRate = *req.DeliveryRate
	}
	if req.Down != nil {
		h.sandbox.settings.Down = *req.Down
	}
	current := h.sandbox.settings
	h.sandbox.mu.Unlock()

	log.Info().Float64("delivery_rate", current.DeliveryRate).Bool("down", current.Down).Msg("sandbox settings updated")
	c.JSON(http.StatusOK, current)
}

func SetupRouter(sb *Sandbox) *gin.Engine {
	h := &Handler{sandbox: sb}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})

	v1 := r.Group("/api/v1")
	v1.POST("/sms/send", h.Send)
	v1.GET("/sms/status/:message_id", h.Status)
	v1.PUT("/config", h.UpdateConfig)
	r.GET("/health", h.Health)
	return r
}
