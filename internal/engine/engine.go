package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/coverage-mapper/core"
	"github.com/signalsfoundry/coverage-mapper/fingerprint"
	"github.com/signalsfoundry/coverage-mapper/internal/logging"
	"github.com/signalsfoundry/coverage-mapper/model"
)

// Re-export calibration sentinel errors so callers can depend on engine.*
// instead of fingerprint.* directly if they want to.
var (
	// ErrSessionOpen indicates a calibration session is already running.
	ErrSessionOpen = fingerprint.ErrSessionOpen
	// ErrSessionClosed indicates no calibration session is running.
	ErrSessionClosed = fingerprint.ErrSessionClosed
	// ErrNoCalibration indicates no completed calibration is available yet.
	ErrNoCalibration = errors.New("no completed calibration available")
	// ErrUnknownCommand indicates an unrecognised calibration command.
	ErrUnknownCommand = errors.New("unknown calibration command")
)

// MetricsRecorder receives pipeline and survey-state updates.
type MetricsRecorder interface {
	ObserveRecompute(outcome string, elapsed time.Duration)
	ObserveSample(outcome string)
	AddStrengthClamps(n int)
	SetSurveyCounts(calibrationPoints, activeAnchors, gapCells, recommendedSites int)
}

// Clock abstracts time for the engine so replays and tests can drive it.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Snapshot is one coherent output of the coverage pipeline.
//
// The grids and slices are owned by the engine after publication;
// callers MUST treat them as read-only.
type Snapshot struct {
	Generation  uint64
	GeneratedAt time.Time
	Anchors     []core.Anchor
	Heatmap     *core.HeatmapGrid
	Bands       *core.BandGrid
	Contours    []core.ContourSegment
	Gaps        []core.GapCell
	Placement   core.PlacementResult
}

// SourceHealth summarises the live state of one anchor source.
type SourceHealth struct {
	SourceID   string
	Strength   float64
	Confidence float64
	LastSeen   time.Time
	Missing    bool
}

// MappingEngine coordinates the sample window, the calibration stores,
// and the published coverage snapshot.
type MappingEngine struct {
	// mu is the coarse engine-level lock. Take it before touching the
	// calibration stores or the published snapshot; the SampleWindow
	// carries its own lock and may be read without mu.
	mu sync.RWMutex

	scenario    *core.SurveyScenario
	anchorOrder []string

	window *core.SampleWindow

	// session is the open calibration session, nil when none is running.
	session *fingerprint.Store
	// frozen is the last completed session, used for position queries.
	frozen *fingerprint.Store

	positioner core.PositionEstimator
	interp     core.Interpolator
	optimizer  core.PlacementOptimizer

	// recomputeMu serialises pipeline runs so snapshots publish in
	// trigger order. Acquired before mu, never the other way around.
	recomputeMu sync.Mutex

	// snapshot is the last applied pipeline output; generation counts
	// published snapshots.
	snapshot   *Snapshot
	generation uint64

	log     logging.Logger
	metrics MetricsRecorder
	clock   Clock
}

// Option customises MappingEngine construction.
type Option func(*MappingEngine)

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(e *MappingEngine) {
		e.metrics = m
	}
}

// WithClock substitutes the engine's time source.
func WithClock(c Clock) Option {
	return func(e *MappingEngine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithPositionEstimator overrides the neighbour count used for
// position queries.
func WithPositionEstimator(p core.PositionEstimator) Option {
	return func(e *MappingEngine) {
		e.positioner = p
	}
}

// New builds an engine for the given survey scenario.
func New(scenario *core.SurveyScenario, log logging.Logger, opts ...Option) *MappingEngine {
	if log == nil {
		log = logging.Noop()
	}

	order := make([]string, 0, len(scenario.Anchors))
	for id := range scenario.Anchors {
		order = append(order, id)
	}
	sort.Strings(order)

	interp := core.NewInterpolator()
	interp.Radius = scenario.InterpolationRadius
	interp.Cutoff = scenario.Cutoff
	interp.Log = log

	e := &MappingEngine{
		scenario:    scenario,
		anchorOrder: order,
		window:      core.NewSampleWindow(),
		positioner:  core.NewPositionEstimator(),
		interp:      interp,
		optimizer:   core.NewPlacementOptimizer(),
		log:         log,
		clock:       realClock{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.metrics != nil {
		e.interp.Clamps = e.metrics
	}
	return e
}

// AnchorOrder returns the stable feature-slot order for this scenario.
func (e *MappingEngine) AnchorOrder() []string {
	return append([]string(nil), e.anchorOrder...)
}

// ObserveSample folds one measurement into the sample window. Stale or
// duplicate samples are dropped and reported as such.
func (e *MappingEngine) ObserveSample(ctx context.Context, s model.Sample) bool {
	accepted := e.window.Observe(s)
	if e.metrics != nil {
		if accepted {
			e.metrics.ObserveSample("accepted")
		} else {
			e.metrics.ObserveSample("stale")
		}
	}
	if !accepted {
		e.log.Debug(ctx, "dropped stale sample",
			logging.String("source_id", s.SourceID),
			logging.String("kind", s.Kind.String()),
		)
	}
	return accepted
}

// ApplyCalibration executes one calibration command against the stores.
func (e *MappingEngine) ApplyCalibration(ctx context.Context, cmd model.CalibrationCommand) error {
	ctx, reqLog := logging.WithRequestLogger(ctx, e.log)

	switch c := cmd.(type) {
	case model.StartSession:
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.session != nil {
			return ErrSessionOpen
		}
		e.session = fingerprint.NewStore(c.SessionID)
		reqLog.Info(ctx, "calibration session started",
			logging.String("session_id", e.session.SessionID()),
		)
		return nil

	case model.AddPoint:
		features := e.window.Features(e.anchorOrder)

		e.mu.Lock()
		defer e.mu.Unlock()

		if e.session == nil {
			return ErrSessionClosed
		}
		if err := e.session.AddPoint(c.Position, features, e.clock.Now()); err != nil {
			return err
		}
		reqLog.Debug(ctx, "calibration point recorded",
			logging.String("session_id", e.session.SessionID()),
			logging.Int("points", e.session.Len()),
			logging.Int("observed_slots", features.Observed()),
		)
		e.updateSurveyCountsLocked()
		return nil

	case model.CompleteSession:
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.session == nil {
			return ErrSessionClosed
		}
		if err := e.session.Freeze(); err != nil {
			return err
		}
		e.frozen = e.session
		e.session = nil
		reqLog.Info(ctx, "calibration session completed",
			logging.String("session_id", e.frozen.SessionID()),
			logging.Int("points", e.frozen.Len()),
		)
		e.updateSurveyCountsLocked()
		return nil

	default:
		return ErrUnknownCommand
	}
}

// Position estimates the observer's position against the last completed
// calibration using the live feature vector.
func (e *MappingEngine) Position(ctx context.Context) (core.PositionEstimate, error) {
	e.mu.RLock()
	frozen := e.frozen
	e.mu.RUnlock()

	if frozen == nil {
		return core.PositionEstimate{}, ErrNoCalibration
	}
	points, err := frozen.Query()
	if err != nil {
		return core.PositionEstimate{}, err
	}

	live := e.window.Features(e.anchorOrder)
	return e.positioner.Estimate(live, points), nil
}

// Recompute runs the full interpolate, classify, gap, and placement
// pipeline and publishes the result. Runs are serialised: a recompute
// triggered after newer samples arrive always publishes after, and on
// top of, every earlier trigger.
func (e *MappingEngine) Recompute(ctx context.Context) error {
	ctx, span := otel.Tracer("coverage-mapper/engine").Start(ctx, "Recompute",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	e.recomputeMu.Lock()
	defer e.recomputeMu.Unlock()

	start := e.clock.Now()

	anchors := e.liveAnchors()

	sc := e.scenario
	heatmap := e.interp.Interpolate(ctx, anchors, sc.Extent, sc.Cols, sc.Rows)
	bands := core.ClassifyGrid(heatmap, sc.Thresholds)
	contours := core.ExtractContours(heatmap, bands)
	gaps := core.DetectGaps(heatmap, sc.GapThreshold)
	placement := e.optimizer.Optimize(heatmap, gaps, sc.Candidates, sc.PlacementCount)

	e.mu.Lock()
	e.generation++
	e.snapshot = &Snapshot{
		Generation:  e.generation,
		GeneratedAt: e.clock.Now(),
		Anchors:     anchors,
		Heatmap:     heatmap,
		Bands:       bands,
		Contours:    contours,
		Gaps:        gaps,
		Placement:   placement,
	}
	e.updateSurveyCountsLocked()
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Int("anchors", len(anchors)),
		attribute.Int("gap_cells", len(gaps)),
	)
	if e.metrics != nil {
		e.metrics.ObserveRecompute("applied", e.clock.Now().Sub(start))
	}
	e.log.Info(ctx, "coverage snapshot applied",
		logging.Int("anchors", len(anchors)),
		logging.Int("gap_cells", len(gaps)),
		logging.Int("recommendations", len(placement.Recommendations)),
	)
	return nil
}

// Snapshot returns the last applied pipeline output, or nil before the
// first recompute. The returned value is shared; treat it as read-only.
func (e *MappingEngine) Snapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshot
}

// SourceHealth reports the live state of every scenario anchor.
func (e *MappingEngine) SourceHealth() []SourceHealth {
	features := e.window.Features(e.anchorOrder)

	out := make([]SourceHealth, len(e.anchorOrder))
	for i, id := range e.anchorOrder {
		h := SourceHealth{SourceID: id}
		v := features.Values[i]
		if model.IsMissing(v) {
			h.Missing = true
		} else {
			h.Strength = v
			h.Confidence = core.StrengthConfidence(v)
		}
		if latest, ok := e.window.Latest(id); ok {
			h.LastSeen = latest.Timestamp
		}
		out[i] = h
	}
	return out
}

// GapThreshold returns the scenario's minimum acceptable strength.
func (e *MappingEngine) GapThreshold() float64 {
	return e.scenario.GapThreshold
}

// CalibrationStatus reports the active session ID (empty when closed)
// and the point count of the completed calibration.
func (e *MappingEngine) CalibrationStatus() (activeSession string, frozenPoints int) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.session != nil {
		activeSession = e.session.SessionID()
	}
	if e.frozen != nil {
		frozenPoints = e.frozen.Len()
	}
	return activeSession, frozenPoints
}

// liveAnchors builds interpolation anchors from scenario positions and
// the current smoothed strengths. Anchors without a usable reading are
// left out rather than pinned at a stale value.
func (e *MappingEngine) liveAnchors() []core.Anchor {
	features := e.window.Features(e.anchorOrder)

	anchors := make([]core.Anchor, 0, len(e.anchorOrder))
	for i, id := range e.anchorOrder {
		v := features.Values[i]
		if model.IsMissing(v) {
			continue
		}
		anchors = append(anchors, core.Anchor{
			SourceID: id,
			Position: e.scenario.Anchors[id],
			Strength: v,
		})
	}
	return anchors
}

// updateSurveyCountsLocked pushes current survey counts into the metrics
// recorder. Caller must hold e.mu.
func (e *MappingEngine) updateSurveyCountsLocked() {
	if e.metrics == nil {
		return
	}
	points := 0
	if e.frozen != nil {
		points = e.frozen.Len()
	} else if e.session != nil {
		points = e.session.Len()
	}
	anchors := 0
	gapCells := 0
	sites := 0
	if e.snapshot != nil {
		anchors = len(e.snapshot.Anchors)
		gapCells = len(e.snapshot.Gaps)
		sites = len(e.snapshot.Placement.Recommendations)
	}
	e.metrics.SetSurveyCounts(points, anchors, gapCells, sites)
}
