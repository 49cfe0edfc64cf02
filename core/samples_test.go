package core

import (
	"math"
	"testing"
	"time"

	"github.com/signalsfoundry/coverage-mapper/model"
)

func rssiSample(source string, at time.Time, dbm float64) model.Sample {
	return model.Sample{SourceID: source, Timestamp: at, Kind: model.SampleRSSI, Value: dbm}
}

func TestSampleWindow_LatestPerSource(t *testing.T) {
	w := NewSampleWindow()
	t0 := time.Now()

	w.Observe(rssiSample("ap-1", t0, -60))
	w.Observe(rssiSample("ap-1", t0.Add(time.Second), -62))

	s, ok := w.Latest("ap-1")
	if !ok {
		t.Fatalf("expected a sample for ap-1")
	}
	if s.Value != -62 {
		t.Errorf("latest value = %v, want -62", s.Value)
	}
}

func TestSampleWindow_OutOfOrderAndDuplicatesDropped(t *testing.T) {
	w := NewSampleWindow()
	t0 := time.Now()

	if !w.Observe(rssiSample("ap-1", t0, -60)) {
		t.Fatalf("first sample should be accepted")
	}
	if w.Observe(rssiSample("ap-1", t0, -70)) {
		t.Errorf("duplicate timestamp should be dropped")
	}
	if w.Observe(rssiSample("ap-1", t0.Add(-time.Second), -70)) {
		t.Errorf("out-of-order sample should be dropped")
	}

	s, _ := w.Latest("ap-1")
	if s.Value != -60 {
		t.Errorf("latest value = %v, want the original -60", s.Value)
	}
}

func TestSampleWindow_SmoothingConvergesToConstantInput(t *testing.T) {
	w := NewSampleWindow()
	t0 := time.Now()

	w.Observe(rssiSample("ap-1", t0, -80))
	for i := 1; i <= 40; i++ {
		w.Observe(rssiSample("ap-1", t0.Add(time.Duration(i)*time.Second), -50))
	}

	fv := w.Features([]string{"ap-1"})
	if math.Abs(fv.Values[0]-(-50)) > 0.1 {
		t.Errorf("smoothed value = %v, want convergence toward -50", fv.Values[0])
	}
}

func TestSampleWindow_MissingSlotsAreSentinels(t *testing.T) {
	w := NewSampleWindow()
	w.Observe(rssiSample("ap-1", time.Now(), -55))

	fv := w.Features([]string{"ap-1", "ap-2"})
	if model.IsMissing(fv.Values[0]) {
		t.Errorf("observed slot reported missing")
	}
	if !model.IsMissing(fv.Values[1]) {
		t.Errorf("never-seen source must be a missing slot, got %v", fv.Values[1])
	}
}

func TestSampleWindow_TimedOutProbeInvalidatesSlot(t *testing.T) {
	w := NewSampleWindow()
	t0 := time.Now()

	w.Observe(model.Sample{SourceID: "dev-1", Timestamp: t0, Kind: model.SampleRTT, Value: 6.2})
	fv := w.Features([]string{"dev-1"})
	if model.IsMissing(fv.Values[0]) {
		t.Fatalf("usable RTT should produce a strength feature")
	}

	// A timeout (non-positive RTT) must not freeze the stale reading.
	w.Observe(model.Sample{SourceID: "dev-1", Timestamp: t0.Add(time.Second), Kind: model.SampleRTT, Value: -1})
	fv = w.Features([]string{"dev-1"})
	if !model.IsMissing(fv.Values[0]) {
		t.Errorf("timed-out probe should yield a missing slot, got %v", fv.Values[0])
	}
}

func TestSampleWindow_RTTFeedsStrengthFeature(t *testing.T) {
	w := NewSampleWindow()
	w.Observe(model.Sample{SourceID: "dev-1", Timestamp: time.Now(), Kind: model.SampleRTT, Value: 10})

	fv := w.Features([]string{"dev-1"})
	if want := RTTToStrength(10); fv.Values[0] != want {
		t.Errorf("RTT feature = %v, want %v", fv.Values[0], want)
	}
}

func TestSampleWindow_SourcesSorted(t *testing.T) {
	w := NewSampleWindow()
	now := time.Now()
	w.Observe(rssiSample("b", now, -50))
	w.Observe(rssiSample("a", now, -50))
	w.Observe(rssiSample("c", now, -50))

	ids := w.Sources()
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Errorf("Sources() = %v, want sorted [a b c]", ids)
	}
}
