package prom

import (
	"fmt"
	"sync"

	xhttp "github.com/nimasrn/vendzz-dispatch/pkg/http"
	"github.com/nimasrn/vendzz-dispatch/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const (
	SystemDispatch  = "dispatch"
	SystemCredits   = "credits"
	SystemCampaigns = "campaigns"
	SystemScheduler = "scheduler"
	SystemGateway   = "gateway"
)

const (
	MetricDispatchOutcomes   = "outcomes_total"
	MetricSendDuration       = "send_duration_seconds"
	MetricCreditReservations = "reservations_total"
	MetricCreditRefunds      = "refunds_total"
	MetricTransitions        = "transitions_total"
	MetricSweepDuration      = "sweep_duration_seconds"
	MetricProviderRequests   = "provider_requests_total"
)

const (
	TypeCounterVec   = "counterVec"
	TypeHistogram    = "histogram"
	TypeHistogramVec = "histogramVec"
)

var lockCreateMetricLock = &sync.Mutex{}
var namespace = "none"

var MetricSystemEnabled = false

var MetricCollectionCounterVec = make(map[string]*prometheus.CounterVec)
var MetricCollectionHistogram = make(map[string]prometheus.Histogram)
var MetricCollectionHistogramVec = make(map[string]*prometheus.HistogramVec)

var defaultLabels prometheus.Labels

func Create(host string, env string, nameSpace string) error {
	defaultLabels = prometheus.Labels{"env": env, "instance": host}
	namespace = nameSpace
	MetricSystemEnabled = true

	var err error
	hasError := func(e error) {
		if err == nil && e != nil {
			err = e
		}
	}

	hasError(CreateMetric(TypeCounterVec, SystemDispatch, MetricDispatchOutcomes, "channel", "status"))
	hasError(CreateMetric(TypeHistogramVec, SystemDispatch, MetricSendDuration, "channel"))
	hasError(CreateMetric(TypeCounterVec, SystemCredits, MetricCreditReservations, "channel", "result"))
	hasError(CreateMetric(TypeCounterVec, SystemCredits, MetricCreditRefunds, "channel"))
	hasError(CreateMetric(TypeCounterVec, SystemCampaigns, MetricTransitions, "to", "source"))
	hasError(CreateMetric(TypeHistogram, SystemScheduler, MetricSweepDuration))
	hasError(CreateMetric(TypeCounterVec, SystemGateway, MetricProviderRequests, "provider", "result"))

	return err
}

func CreateMetric(metricType, metricSubsystem, metricName string, labelsValues ...string) error {
	switch metricType {
	case TypeCounterVec:
		return createCounterVec(metricSubsystem, metricName, labelsValues)
	case TypeHistogram:
		return createHistogram(metricSubsystem, metricName)
	case TypeHistogramVec:
		return createHistogramVec(metricSubsystem, metricName, labelsValues)
	}
	return fmt.Errorf("metric type %s is not defined", metricType)
}

// ListenAndServer exposes the default registry on addr and blocks.
func ListenAndServer(addr string, url string) {
	hh := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	s := xhttp.CreateServer()
	s.GET(url, hh)
	logger.Info("[metrics-server] listening...", "addr", addr, "url", url)
	if err := s.ListenAndServe(addr); err != nil {
		logger.Error("[metrics-server] http listen error", "error", err)
	}
}

func createCounterVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionCounterVec[subsystem+name] = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(MetricCollectionCounterVec[subsystem+name])
}

func createHistogram(subsystem, name string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionHistogram[subsystem+name] = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
		Buckets:     prometheus.DefBuckets,
	})
	return prometheus.Register(MetricCollectionHistogram[subsystem+name])
}

func createHistogramVec(subsystem, name string, labels []string) error {
	lockCreateMetricLock.Lock()
	defer lockCreateMetricLock.Unlock()
	MetricCollectionHistogramVec[subsystem+name] = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   namespace,
		Subsystem:   subsystem,
		Name:        name,
		ConstLabels: defaultLabels,
	}, labels)
	return prometheus.Register(MetricCollectionHistogramVec[subsystem+name])
}

func AddCounterVec(subsystem, name string, num float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionCounterVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Add(num)
		return
	}
	logger.Warn("[metrics-server] counter vec not found", "subsystem", subsystem, "name", name)
}

func IncCounterVec(subsystem, name string, labelValues ...string) {
	AddCounterVec(subsystem, name, 1, labelValues...)
}

func AddHistogram(subsystem, name string, number float64) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionHistogram[subsystem+name]; ok {
		v.Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram not found", "subsystem", subsystem, "name", name)
}

func AddHistogramVec(subsystem, name string, number float64, labelValues ...string) {
	if !MetricSystemEnabled {
		return
	}
	if v, ok := MetricCollectionHistogramVec[subsystem+name]; ok {
		v.WithLabelValues(labelValues...).Observe(number)
		return
	}
	logger.Warn("[metrics-server] histogram vec not found", "subsystem", subsystem, "name", name)
}

func DispatchOutcome(channel, status string) {
	IncCounterVec(SystemDispatch, MetricDispatchOutcomes, channel, status)
}

func SendDuration(channel string, seconds float64) {
	AddHistogramVec(SystemDispatch, MetricSendDuration, seconds, channel)
}

func CreditReservation(channel, result string) {
	IncCounterVec(SystemCredits, MetricCreditReservations, channel, result)
}

func CreditRefund(channel string) {
	IncCounterVec(SystemCredits, MetricCreditRefunds, channel)
}

func CampaignTransition(to, source string) {
	IncCounterVec(SystemCampaigns, MetricTransitions, to, source)
}

func SweepDuration(seconds float64) {
	AddHistogram(SystemScheduler, MetricSweepDuration, seconds)
}

func ProviderRequest(provider, result string) {
	IncCounterVec(SystemGateway, MetricProviderRequests, provider, result)
}
