package core

import (
	"sort"
	"sync"

	"github.com/signalsfoundry/coverage-mapper/model"
)

// smoothingAlpha is the exponential moving-average factor applied to
// per-source strength readings before they enter a feature vector.
const smoothingAlpha = 0.3

// sourceState tracks the newest accepted sample for one source plus its
// smoothed strength-like value.
type sourceState struct {
	latest   model.Sample
	smoothed float64
}

// SampleWindow keeps the most recent sample per source from a
// best-effort feed. Duplicates and out-of-order arrivals are tolerated:
// a sample older than the one already held for its source is dropped.
//
// The window is safe for concurrent producers; feature snapshots are
// value copies, so readers never alias its internal state.
type SampleWindow struct {
	mu      sync.RWMutex
	sources map[string]*sourceState
}

// NewSampleWindow returns an empty window.
func NewSampleWindow() *SampleWindow {
	return &SampleWindow{sources: make(map[string]*sourceState)}
}

// Observe folds a sample into the window. It returns false when the
// sample was discarded as stale (an already-seen or older timestamp
// for its source).
func (w *SampleWindow) Observe(s model.Sample) bool {
	if s.SourceID == "" {
		return false
	}

	strength, usable := strengthOf(s)

	w.mu.Lock()
	defer w.mu.Unlock()

	st, seen := w.sources[s.SourceID]
	if !seen {
		st = &sourceState{latest: s, smoothed: strength}
		if !usable {
			st.smoothed = model.MissingFeature
		}
		w.sources[s.SourceID] = st
		return true
	}
	if !s.Timestamp.After(st.latest.Timestamp) {
		return false
	}
	st.latest = s
	if usable {
		if model.IsMissing(st.smoothed) {
			st.smoothed = strength
		} else {
			st.smoothed = smoothingAlpha*strength + (1-smoothingAlpha)*st.smoothed
		}
	} else {
		// A timed-out probe invalidates the slot rather than
		// freezing the last good reading forever.
		st.smoothed = model.MissingFeature
	}
	return true
}

// strengthOf maps a sample to a strength-like dBm value. The switch is
// exhaustive over the closed SampleKind set.
func strengthOf(s model.Sample) (float64, bool) {
	switch s.Kind {
	case model.SampleRSSI:
		if s.Value > 0 || s.Value < -120 {
			return 0, false
		}
		return s.Value, true
	case model.SampleRTT:
		if s.Value <= 0 {
			return 0, false
		}
		return RTTToStrength(s.Value), true
	default:
		return 0, false
	}
}

// Sources returns the IDs of every source seen so far, sorted for a
// stable feature-slot order.
func (w *SampleWindow) Sources() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ids := make([]string, 0, len(w.sources))
	for id := range w.sources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Latest returns the newest accepted sample for a source.
func (w *SampleWindow) Latest(sourceID string) (model.Sample, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	st, ok := w.sources[sourceID]
	if !ok {
		return model.Sample{}, false
	}
	return st.latest, true
}

// Features builds a feature-vector snapshot over the given slot order.
// Sources without a usable observation get the missing sentinel; they
// are never filled in from neighbours.
func (w *SampleWindow) Features(order []string) model.FeatureVector {
	w.mu.RLock()
	defer w.mu.RUnlock()

	fv := model.FeatureVector{
		Sources: append([]string(nil), order...),
		Values:  make([]float64, len(order)),
	}
	for i, id := range order {
		st, ok := w.sources[id]
		if !ok {
			fv.Values[i] = model.MissingFeature
			continue
		}
		fv.Values[i] = st.smoothed
	}
	return fv
}

// Len returns the number of distinct sources observed.
func (w *SampleWindow) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.sources)
}
