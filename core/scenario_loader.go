// core/scenario_loader.go
package core

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/signalsfoundry/coverage-mapper/model"
)

// SurveyScenario is everything a recompute needs about the surveyed
// space: the floorplan extent and grid resolution, where the known
// access points sit, the quality thresholds, and the candidate sites a
// placement collaborator has pre-filtered.
type SurveyScenario struct {
	Extent Extent
	Cols   int
	Rows   int

	// InterpolationRadius and Cutoff parameterise the IDW field.
	InterpolationRadius float64
	Cutoff              float64

	// Anchors maps source IDs to their fixed positions. Live
	// strengths come from the sample window at recompute time.
	Anchors map[string]Point

	Thresholds BandThresholds

	// GapThreshold is the minimum acceptable strength in dBm.
	GapThreshold float64

	// PlacementCount is how many extender sites to recommend.
	PlacementCount int

	Candidates []model.CandidateSite
}

// internal JSON shapes – unexported so the file format can evolve
// without touching the public types.
type surveyScenarioJSON struct {
	Extent struct {
		MinX float64 `json:"min_x"`
		MinY float64 `json:"min_y"`
		MaxX float64 `json:"max_x"`
		MaxY float64 `json:"max_y"`
	} `json:"extent"`
	Cols                int                     `json:"cols"`
	Rows                int                     `json:"rows"`
	InterpolationRadius float64                 `json:"interpolation_radius"`
	Cutoff              float64                 `json:"cutoff"`
	Anchors             map[string]positionJSON `json:"anchors"`
	BandCuts            []float64               `json:"band_cuts"`
	GapThreshold        *float64                `json:"gap_threshold"`
	PlacementCount      int                     `json:"placement_count"`
	Candidates          []candidateJSON         `json:"candidates"`
}

type positionJSON struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type candidateJSON struct {
	ID       string       `json:"id"`
	Position positionJSON `json:"position"`
	Feasible *bool        `json:"feasible"` // optional; defaults to true
}

// LoadSurveyScenario reads a JSON survey description from r and
// validates the parts a recompute cannot tolerate being wrong. Values
// with safe defaults (radius, cutoff, band cuts) are defaulted rather
// than rejected.
func LoadSurveyScenario(r io.Reader) (*SurveyScenario, error) {
	var payload surveyScenarioJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadSurveyScenario: decode failed: %w", err)
	}

	if payload.Extent.MaxX <= payload.Extent.MinX || payload.Extent.MaxY <= payload.Extent.MinY {
		return nil, fmt.Errorf("LoadSurveyScenario: degenerate extent")
	}
	if payload.Cols <= 0 || payload.Rows <= 0 {
		return nil, fmt.Errorf("LoadSurveyScenario: grid resolution must be positive, got %dx%d", payload.Cols, payload.Rows)
	}

	sc := &SurveyScenario{
		Extent: Extent{
			MinX: payload.Extent.MinX,
			MinY: payload.Extent.MinY,
			MaxX: payload.Extent.MaxX,
			MaxY: payload.Extent.MaxY,
		},
		Cols:                payload.Cols,
		Rows:                payload.Rows,
		InterpolationRadius: payload.InterpolationRadius,
		Cutoff:              payload.Cutoff,
		Anchors:             make(map[string]Point, len(payload.Anchors)),
		Thresholds:          DefaultBandThresholds(),
		GapThreshold:        -80,
		PlacementCount:      payload.PlacementCount,
	}

	if sc.InterpolationRadius <= 0 {
		sc.InterpolationRadius = 5
	}
	if sc.Cutoff <= 0 {
		sc.Cutoff = 30
	}
	if sc.PlacementCount <= 0 {
		sc.PlacementCount = 2
	}
	if payload.GapThreshold != nil {
		sc.GapThreshold = *payload.GapThreshold
	}

	if len(payload.BandCuts) > 0 {
		if len(payload.BandCuts) != 4 {
			return nil, fmt.Errorf("LoadSurveyScenario: need exactly 4 band cuts, got %d", len(payload.BandCuts))
		}
		for i := 1; i < 4; i++ {
			if payload.BandCuts[i] <= payload.BandCuts[i-1] {
				return nil, fmt.Errorf("LoadSurveyScenario: band cuts must be strictly ascending")
			}
		}
		copy(sc.Thresholds.Cuts[:], payload.BandCuts)
	}

	for id, pos := range payload.Anchors {
		if id == "" {
			return nil, fmt.Errorf("LoadSurveyScenario: anchor with empty id")
		}
		p := Point{X: pos.X, Y: pos.Y}
		if !sc.Extent.Contains(p) {
			return nil, fmt.Errorf("LoadSurveyScenario: anchor %q at %+v lies outside the extent", id, p)
		}
		sc.Anchors[id] = p
	}

	for _, c := range payload.Candidates {
		if c.ID == "" {
			return nil, fmt.Errorf("LoadSurveyScenario: candidate with empty id")
		}
		feasible := true
		if c.Feasible != nil {
			feasible = *c.Feasible
		}
		sc.Candidates = append(sc.Candidates, model.CandidateSite{
			ID:       c.ID,
			Position: model.Position{X: c.Position.X, Y: c.Position.Y},
			Feasible: feasible,
		})
	}

	return sc, nil
}
