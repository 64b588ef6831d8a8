package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	purchasesRecorded    *prometheus.CounterVec
	purchasesConfirmed   *prometheus.CounterVec
	rewardsCredited      *prometheus.CounterVec
	rewardsClaimed       *prometheus.CounterVec
	referralRegistration *prometheus.CounterVec

	requestDuration *prometheus.HistogramVec
}

// New creates the collectors on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		purchasesRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "purchases_recorded_total",
				Help: "Purchase ingestion attempts",
			},
			[]string{"result"}, // recorded, duplicate, invalid, error
		),

		purchasesConfirmed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "purchases_confirmed_total",
				Help: "Purchase confirmation attempts",
			},
			[]string{"result"}, // confirmed, already_confirmed, not_verified, error
		),

		rewardsCredited: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_rewards_credited_total",
				Help: "Reward rows minted per referral level",
			},
			[]string{"level"},
		),

		rewardsClaimed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_rewards_claimed_total",
				Help: "Reward rows claimed",
			},
			[]string{"reward_type"},
		),

		referralRegistration: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "referral_registrations_total",
				Help: "Referral binding attempts",
			},
			[]string{"result"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	m.registry.MustRegister(
		m.purchasesRecorded,
		m.purchasesConfirmed,
		m.rewardsCredited,
		m.rewardsClaimed,
		m.referralRegistration,
		m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) PurchaseRecorded(result string) {
	if m == nil {
		return
	}
	m.purchasesRecorded.WithLabelValues(result).Inc()
}

func (m *Metrics) PurchaseConfirmed(result string) {
	if m == nil {
		return
	}
	m.purchasesConfirmed.WithLabelValues(result).Inc()
}

func (m *Metrics) RewardCredited(level int) {
	if m == nil {
		return
	}
	m.rewardsCredited.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (m *Metrics) RewardsClaimed(rewardType string, count int) {
	if m == nil {
		return
	}
	m.rewardsClaimed.WithLabelValues(rewardType).Add(float64(count))
}

func (m *Metrics) ReferralRegistered(result string) {
	if m == nil {
		return
	}
	m.referralRegistration.WithLabelValues(result).Inc()
}

// ObserveRequest records the latency of one HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
