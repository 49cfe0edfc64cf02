package core

import (
	"strings"
	"testing"
)

const validScenarioJSON = `{
  "extent": {"min_x": 0, "min_y": 0, "max_x": 20, "max_y": 12},
  "cols": 40,
  "rows": 24,
  "interpolation_radius": 4,
  "cutoff": 25,
  "anchors": {
    "ap-living": {"x": 3, "y": 2},
    "ap-office": {"x": 15, "y": 9}
  },
  "band_cuts": [-85, -75, -67, -55],
  "gap_threshold": -78,
  "placement_count": 2,
  "candidates": [
    {"id": "hall-outlet", "position": {"x": 10, "y": 6}},
    {"id": "garage", "position": {"x": 19, "y": 1}, "feasible": false}
  ]
}`

func TestLoadSurveyScenario_Valid(t *testing.T) {
	sc, err := LoadSurveyScenario(strings.NewReader(validScenarioJSON))
	if err != nil {
		t.Fatalf("LoadSurveyScenario error: %v", err)
	}
	if sc.Cols != 40 || sc.Rows != 24 {
		t.Errorf("resolution = %dx%d, want 40x24", sc.Cols, sc.Rows)
	}
	if len(sc.Anchors) != 2 {
		t.Errorf("got %d anchors, want 2", len(sc.Anchors))
	}
	if sc.GapThreshold != -78 {
		t.Errorf("gap threshold = %v, want -78", sc.GapThreshold)
	}
	if len(sc.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(sc.Candidates))
	}
	if sc.Candidates[0].Feasible != true {
		t.Errorf("feasible should default to true")
	}
	if sc.Candidates[1].Feasible != false {
		t.Errorf("explicit feasible=false was dropped")
	}
}

func TestLoadSurveyScenario_Defaults(t *testing.T) {
	sc, err := LoadSurveyScenario(strings.NewReader(`{
	  "extent": {"max_x": 10, "max_y": 10}, "cols": 10, "rows": 10
	}`))
	if err != nil {
		t.Fatalf("LoadSurveyScenario error: %v", err)
	}
	if sc.InterpolationRadius != 5 || sc.Cutoff != 30 {
		t.Errorf("IDW defaults = (%v, %v), want (5, 30)", sc.InterpolationRadius, sc.Cutoff)
	}
	if sc.Thresholds != DefaultBandThresholds() {
		t.Errorf("band cuts should default when omitted")
	}
	if sc.GapThreshold != -80 {
		t.Errorf("gap threshold default = %v, want -80", sc.GapThreshold)
	}
}

func TestLoadSurveyScenario_Rejections(t *testing.T) {
	cases := map[string]string{
		"degenerate extent": `{"extent": {"max_x": 0, "max_y": 10}, "cols": 4, "rows": 4}`,
		"zero resolution":   `{"extent": {"max_x": 10, "max_y": 10}, "cols": 0, "rows": 4}`,
		"bad band cuts":     `{"extent": {"max_x": 10, "max_y": 10}, "cols": 4, "rows": 4, "band_cuts": [-85, -90, -67, -55]}`,
		"wrong cut count":   `{"extent": {"max_x": 10, "max_y": 10}, "cols": 4, "rows": 4, "band_cuts": [-85, -75]}`,
		"anchor outside":    `{"extent": {"max_x": 10, "max_y": 10}, "cols": 4, "rows": 4, "anchors": {"ap": {"x": 50, "y": 2}}}`,
		"not json":          `{`,
	}
	for name, payload := range cases {
		if _, err := LoadSurveyScenario(strings.NewReader(payload)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
