package observability

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SurveyCollector bundles Prometheus metrics for the coverage mapper:
// API traffic, recompute pipeline health, and current survey state.
type SurveyCollector struct {
	gatherer prometheus.Gatherer

	HTTPRequests  *prometheus.CounterVec
	HTTPDurations *prometheus.HistogramVec

	RecomputeTotal     *prometheus.CounterVec
	RecomputeDuration  prometheus.Histogram
	SamplesIngested    *prometheus.CounterVec
	CalibrationPoints  prometheus.Gauge
	ActiveAnchors      prometheus.Gauge
	GapCells           prometheus.Gauge
	RecommendedSites   prometheus.Gauge
	StrengthClampTotal prometheus.Counter
}

// NewSurveyCollector registers the mapper's Prometheus metrics against
// the provided registerer, defaulting to the global registry when nil.
func NewSurveyCollector(reg prometheus.Registerer) (*SurveyCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapper_http_requests_total",
		Help: "Total handled API requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"})
	httpRequests, err := registerCounterVec(reg, httpRequests, "mapper_http_requests_total")
	if err != nil {
		return nil, err
	}

	httpDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mapper_http_request_duration_seconds",
		Help:    "API request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"route", "method"})
	httpDurations, err = registerHistogramVec(reg, httpDurations, "mapper_http_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	recomputes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapper_recomputes_total",
		Help: "Coverage recompute cycles, labeled by outcome.",
	}, []string{"outcome"})
	recomputes, err = registerCounterVec(reg, recomputes, "mapper_recomputes_total")
	if err != nil {
		return nil, err
	}

	recomputeDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "mapper_recompute_duration_seconds",
		Help:    "Duration of a full interpolate/classify/optimize cycle.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2},
	})
	recomputeDuration, err = registerHistogram(reg, recomputeDuration, "mapper_recompute_duration_seconds")
	if err != nil {
		return nil, err
	}

	samples := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mapper_samples_ingested_total",
		Help: "Samples folded into the window, labeled by outcome (accepted, stale, malformed).",
	}, []string{"outcome"})
	samples, err = registerCounterVec(reg, samples, "mapper_samples_ingested_total")
	if err != nil {
		return nil, err
	}

	calibration, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mapper_calibration_points",
		Help: "Fingerprints recorded in the current calibration store.",
	}), "mapper_calibration_points")
	if err != nil {
		return nil, err
	}
	anchors, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mapper_active_anchors",
		Help: "Anchor sources with a usable strength in the latest recompute.",
	}), "mapper_active_anchors")
	if err != nil {
		return nil, err
	}
	gaps, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mapper_gap_cells",
		Help: "Grid cells below the acceptable strength in the latest snapshot.",
	}), "mapper_gap_cells")
	if err != nil {
		return nil, err
	}
	sites, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mapper_recommended_sites",
		Help: "Extender sites recommended by the latest snapshot.",
	}), "mapper_recommended_sites")
	if err != nil {
		return nil, err
	}

	clamps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "mapper_strength_clamps_total",
		Help: "Interpolated estimates clamped into the valid dBm range.",
	})
	clamps, err = registerCounter(reg, clamps, "mapper_strength_clamps_total")
	if err != nil {
		return nil, err
	}

	return &SurveyCollector{
		gatherer:           gatherer,
		HTTPRequests:       httpRequests,
		HTTPDurations:      httpDurations,
		RecomputeTotal:     recomputes,
		RecomputeDuration:  recomputeDuration,
		SamplesIngested:    samples,
		CalibrationPoints:  calibration,
		ActiveAnchors:      anchors,
		GapCells:           gaps,
		RecommendedSites:   sites,
		StrengthClampTotal: clamps,
	}, nil
}

// Middleware records request counts and durations for an HTTP route.
// The route label is the registered pattern, not the raw URL, to keep
// cardinality bounded.
func (c *SurveyCollector) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if c == nil {
			return
		}
		if c.HTTPRequests != nil {
			c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
		}
		if c.HTTPDurations != nil {
			c.HTTPDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SurveyCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// ObserveRecompute records one pipeline cycle.
func (c *SurveyCollector) ObserveRecompute(outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	if c.RecomputeTotal != nil {
		c.RecomputeTotal.WithLabelValues(outcome).Inc()
	}
	if outcome == "applied" && c.RecomputeDuration != nil {
		c.RecomputeDuration.Observe(elapsed.Seconds())
	}
}

// ObserveSample counts one ingested sample by outcome.
func (c *SurveyCollector) ObserveSample(outcome string) {
	if c == nil || c.SamplesIngested == nil {
		return
	}
	c.SamplesIngested.WithLabelValues(outcome).Inc()
}

// AddStrengthClamps counts interpolated estimates that were pulled
// back into the valid dBm range.
func (c *SurveyCollector) AddStrengthClamps(n int) {
	if c == nil || c.StrengthClampTotal == nil || n <= 0 {
		return
	}
	c.StrengthClampTotal.Add(float64(n))
}

// SetSurveyCounts drives the survey-state gauges from the engine's
// mutators after each applied snapshot.
func (c *SurveyCollector) SetSurveyCounts(calibrationPoints, activeAnchors, gapCells, recommendedSites int) {
	if c == nil {
		return
	}
	if c.CalibrationPoints != nil {
		c.CalibrationPoints.Set(float64(calibrationPoints))
	}
	if c.ActiveAnchors != nil {
		c.ActiveAnchors.Set(float64(activeAnchors))
	}
	if c.GapCells != nil {
		c.GapCells.Set(float64(gapCells))
	}
	if c.RecommendedSites != nil {
		c.RecommendedSites.Set(float64(recommendedSites))
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return c, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
