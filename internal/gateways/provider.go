package gateway

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
)

const latencyWindow = 100

// ProviderHealth tracks recent request outcomes of one SMS provider.
type ProviderHealth struct {
	Requests         atomic.Int64
	Succeeded        atomic.Int64
	Failed           atomic.Int64
	LatencyTotalMs   atomic.Int64
	ConsecutiveFails atomic.Int32
	LastFailureUnix  atomic.Int64

	mu        sync.Mutex
	latencies []int64
}

func NewProviderHealth() *ProviderHealth {
	return &ProviderHealth{latencies: make([]int64, 0, latencyWindow)}
}

func (h *ProviderHealth) Success(latencyMs int64) {
	h.Requests.Add(1)
	h.Succeeded.Add(1)
	h.LatencyTotalMs.Add(latencyMs)
	h.ConsecutiveFails.Store(0)

	h.mu.Lock()
	if len(h.latencies) == latencyWindow {
		h.latencies = h.latencies[1:]
	}
	h.latencies = append(h.latencies, latencyMs)
	h.mu.Unlock()
}

func (h *ProviderHealth) Failure() {
	h.Requests.Add(1)
	h.Failed.Add(1)
	h.ConsecutiveFails.Add(1)
	h.LastFailureUnix.Store(time.Now().Unix())
}

func (h *ProviderHealth) SuccessRate() float64 {
	total := h.Requests.Load()
	if total == 0 {
		return 1
	}
	return float64(h.Succeeded.Load()) / float64(total)
}

// AvgLatencyMs averages over successful requests only.
func (h *ProviderHealth) AvgLatencyMs() int64 {
	ok := h.Succeeded.Load()
	if ok == 0 {
		return 0
	}
	return h.LatencyTotalMs.Load() / ok
}

func (h *ProviderHealth) P95LatencyMs() int64 {
	h.mu.Lock()
	sorted := append([]int64(nil), h.latencies...)
	h.mu.Unlock()
	if len(sorted) == 0 {
		return 0
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type ProviderState int32

const (
	StateHealthy ProviderState = iota
	StateDegraded
	StateUnhealthy
	StateCircuitOpen
)

func (s ProviderState) String() string {
	switch s {
	case StateHealthy:
		return "HEALTHY"
	case StateDegraded:
		return "DEGRADED"
	case StateUnhealthy:
		return "UNHEALTHY"
	case StateCircuitOpen:
		return "CIRCUIT_OPEN"
	}
	return "UNKNOWN"
}

// Provider is one upstream SMS endpoint.
type Provider struct {
	name        string
	baseURL     string
	weight      int
	http        *fasthttp.Client
	health      *ProviderHealth
	state       atomic.Int32
	openUntil   atomic.Int64
	lastChecked atomic.Int64
}

func NewProvider(name, baseURL string, weight int, client *fasthttp.Client) *Provider {
	return &Provider{
		name:    name,
		baseURL: baseURL,
		weight:  weight,
		http:    client,
		health:  NewProviderHealth(),
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) State() ProviderState {
	return ProviderState(p.state.Load())
}

func (p *Provider) SetState(s ProviderState) {
	p.state.Store(int32(s))
}

// openCircuit takes the provider out of rotation until the timeout passes.
func (p *Provider) openCircuit(timeout time.Duration) {
	p.SetState(StateCircuitOpen)
	p.openUntil.Store(time.Now().Add(timeout).Unix())
}

// Available reports whether requests may be routed to the provider. An open
// circuit past its timeout is half-opened as degraded.
func (p *Provider) Available() bool {
	switch p.State() {
	case StateUnhealthy:
		return false
	case StateCircuitOpen:
		if time.Now().Unix() <= p.openUntil.Load() {
			return false
		}
		p.SetState(StateDegraded)
	}
	return true
}

// Score ranks available providers; zero means never pick.
func (p *Provider) Score() float64 {
	if !p.Available() {
		return 0
	}

	success := p.health.SuccessRate() * 100

	latency := 100.0
	if avg := p.health.AvgLatencyMs(); avg > 0 {
		latency = 100 * (1 - float64(avg)/5000)
		if latency < 0 {
			latency = 0
		}
	}

	recent := 1 - float64(p.health.ConsecutiveFails.Load())*0.1
	if recent < 0.1 {
		recent = 0.1
	}

	state := 1.0
	if p.State() == StateDegraded {
		state = 0.5
	}

	return (success*0.4 + latency*0.4 + float64(p.weight)*0.2) * recent * state
}
