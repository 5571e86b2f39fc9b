// Package metrics exports Prometheus counters and gauges for the
// proxy's pool, backend, and session behavior.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for the proxy.
type Collector struct {
	Registry *prometheus.Registry

	poolReuseTotal       *prometheus.CounterVec
	poolReassignTotal    *prometheus.CounterVec
	poolExhaustedTotal   *prometheus.CounterVec
	pooledConnections    *prometheus.GaugeVec
	backendState         *prometheus.GaugeVec
	backendChecksWoken   prometheus.Counter
	injectionsExecuted   *prometheus.CounterVec
	sessionStateDuration *prometheus.HistogramVec
	authDenied           *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics using a custom
// registry. Safe to call multiple times (e.g. in tests or on config
// reload) — each call creates an independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		poolReuseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlproxy_pool_reuse_total",
				Help: "Pooled sockets handed back to the same authenticated identity",
			},
			[]string{"username"},
		),
		poolReassignTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlproxy_pool_reassign_total",
				Help: "Pooled sockets reassigned across identities under pressure",
			},
			[]string{"from_username", "to_username"},
		),
		poolExhaustedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlproxy_pool_exhausted_total",
				Help: "Pool misses requiring a fresh backend dial",
			},
			[]string{"username"},
		),
		pooledConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlproxy_pooled_connections",
				Help: "Idle pooled connections per authenticated identity",
			},
			[]string{"username"},
		),
		backendState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mysqlproxy_backend_state",
				Help: "Backend liveness state (1=up, 0=down/unknown/offline)",
			},
			[]string{"backend", "role"},
		),
		backendChecksWoken: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mysqlproxy_backend_checks_woken_total",
				Help: "Backends flipped from down to unknown by the health-recovery sweep",
			},
		),
		injectionsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlproxy_injections_executed_total",
				Help: "Synthesized queries run ahead of the client's own query",
			},
			[]string{"result_needed"},
		),
		sessionStateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mysqlproxy_session_state_duration_seconds",
				Help:    "Time spent in each session state machine phase",
				Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
			},
			[]string{"state"},
		),
		authDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlproxy_auth_denied_total",
				Help: "Authentication attempts rejected by the script host or SPNEGO validation",
			},
			[]string{"reason"},
		),
	}

	reg.MustRegister(
		c.poolReuseTotal,
		c.poolReassignTotal,
		c.poolExhaustedTotal,
		c.pooledConnections,
		c.backendState,
		c.backendChecksWoken,
		c.injectionsExecuted,
		c.sessionStateDuration,
		c.authDenied,
	)

	return c
}

// PoolReuse increments the same-identity reuse counter.
func (c *Collector) PoolReuse(username string) {
	c.poolReuseTotal.WithLabelValues(username).Inc()
}

// PoolReassign increments the cross-identity reassignment counter.
func (c *Collector) PoolReassign(fromUsername, toUsername string) {
	c.poolReassignTotal.WithLabelValues(fromUsername, toUsername).Inc()
}

// PoolExhausted increments the pool-miss counter for username.
func (c *Collector) PoolExhausted(username string) {
	c.poolExhaustedTotal.WithLabelValues(username).Inc()
}

// SetPooledConnections records the current idle-pool depth for username.
func (c *Collector) SetPooledConnections(username string, n int) {
	c.pooledConnections.WithLabelValues(username).Set(float64(n))
}

// SetBackendState records a backend's liveness as a 1/0 gauge.
func (c *Collector) SetBackendState(backendName, role string, up bool) {
	val := 0.0
	if up {
		val = 1.0
	}
	c.backendState.WithLabelValues(backendName, role).Set(val)
}

// BackendChecksWoken adds n to the health-recovery sweep counter.
func (c *Collector) BackendChecksWoken(n int) {
	if n > 0 {
		c.backendChecksWoken.Add(float64(n))
	}
}

// InjectionExecuted increments the injection counter, split by whether
// the script host asked for the result set back.
func (c *Collector) InjectionExecuted(resultNeeded bool) {
	label := "false"
	if resultNeeded {
		label = "true"
	}
	c.injectionsExecuted.WithLabelValues(label).Inc()
}

// SessionStateDuration observes time spent in one state-machine phase.
func (c *Collector) SessionStateDuration(state string, d time.Duration) {
	c.sessionStateDuration.WithLabelValues(state).Observe(d.Seconds())
}

// AuthDenied increments the auth-rejection counter by reason.
func (c *Collector) AuthDenied(reason string) {
	c.authDenied.WithLabelValues(reason).Inc()
}
