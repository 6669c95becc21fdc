package httpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreakerConfig configures the breaker in front of one upstream API.
type CircuitBreakerConfig struct {
	// Name labels logs and metrics, e.g. "smartkasa" or "syrve".
	Name string

	// MaxRequests allowed through while half-open. Zero means one.
	MaxRequests uint32

	// Interval after which closed-state counts reset. Zero never resets.
	Interval time.Duration

	// Timeout spent open before probing again.
	Timeout time.Duration

	// FailureRatio of failed to total requests that opens the breaker,
	// evaluated once MinRequests have been seen.
	FailureRatio float64
	MinRequests  uint32
}

// DefaultCircuitBreakerConfig returns defaults for one upstream API.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.5,
		MinRequests:  5,
	}
}

// ErrCircuitOpen is returned, wrapped, for requests the breaker rejects
// without calling the upstream.
var ErrCircuitOpen = errors.New("circuit breaker open")

// BreakerMetrics records breaker state and rejected calls per upstream.
type BreakerMetrics struct {
	State    *prometheus.GaugeVec
	Rejected *prometheus.CounterVec
}

// NewBreakerMetrics creates breaker metrics and registers them with reg.
// A nil registerer leaves the metrics unregistered.
func NewBreakerMetrics(reg prometheus.Registerer) *BreakerMetrics {
	m := &BreakerMetrics{
		State: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "syncbridge_upstream_breaker_state",
				Help: "Upstream circuit breaker state (0=closed, 1=half-open, 2=open).",
			},
			[]string{"upstream"},
		),
		Rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "syncbridge_upstream_breaker_rejected_total",
				Help: "Requests rejected by an open or saturated upstream breaker.",
			},
			[]string{"upstream"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.State, m.Rejected)
	}
	return m
}

func (m *BreakerMetrics) setState(name string, state gobreaker.State) {
	if m == nil {
		return
	}
	var v float64
	switch state {
	case gobreaker.StateHalfOpen:
		v = 1
	case gobreaker.StateOpen:
		v = 2
	}
	m.State.WithLabelValues(name).Set(v)
}

func (m *BreakerMetrics) reject(name string) {
	if m != nil {
		m.Rejected.WithLabelValues(name).Inc()
	}
}

// CircuitBreakerClient wraps a Doer with a gobreaker circuit breaker.
// Transport errors and 5xx responses count as failures. Calls canceled by the
// caller do not.
type CircuitBreakerClient struct {
	client  Doer
	breaker *gobreaker.CircuitBreaker[*http.Response]
	metrics *BreakerMetrics
	logger  *slog.Logger
	name    string
}

// NewCircuitBreakerClient wraps client. Metrics may be nil.
func NewCircuitBreakerClient(client Doer, cfg CircuitBreakerConfig, metrics *BreakerMetrics, logger *slog.Logger) *CircuitBreakerClient {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("upstream circuit breaker state change",
				slog.String("upstream", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
			metrics.setState(name, to)
		},
	}
	metrics.setState(cfg.Name, gobreaker.StateClosed)

	return &CircuitBreakerClient{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](settings),
		metrics: metrics,
		logger:  logger,
		name:    cfg.Name,
	}
}

// Do sends req through the breaker. A 5xx response is consumed and returned
// as the error from ParseResponseError, which keeps the upstream status.
func (c *CircuitBreakerClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, ParseResponseError(resp, c.name)
		}
		return resp, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.metrics.reject(c.name)
		c.logger.WarnContext(ctx, "upstream request rejected by circuit breaker",
			slog.String("upstream", c.name),
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
		)
		return nil, fmt.Errorf("%s: %w: %w", c.name, ErrCircuitOpen, err)
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// State returns the current breaker state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.breaker.State()
}
