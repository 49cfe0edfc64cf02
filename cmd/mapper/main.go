package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/signalsfoundry/coverage-mapper/core"
	"github.com/signalsfoundry/coverage-mapper/internal/engine"
	"github.com/signalsfoundry/coverage-mapper/internal/logging"
	"github.com/signalsfoundry/coverage-mapper/model"
)

// recordedSample mirrors the wire shape agents publish, so a recorded
// walk can be replayed from a file.
type recordedSample struct {
	SourceID  string          `json:"sourceId"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	Value     float64         `json:"value"`
	Position  *model.Position `json:"position,omitempty"`
}

func main() {
	scenarioPath := flag.String("scenario", "configs/survey_scenario.json", "path to the survey scenario JSON")
	samplesPath := flag.String("samples", "", "path to a recorded samples JSON file (array of samples)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	f, err := os.Open(*scenarioPath)
	if err != nil {
		fatalf("open survey scenario %q: %v", *scenarioPath, err)
	}
	scenario, err := core.LoadSurveyScenario(f)
	f.Close()
	if err != nil {
		fatalf("parse survey scenario: %v", err)
	}

	eng := engine.New(scenario, log)

	accepted, dropped := replaySamples(ctx, eng, *samplesPath)
	fmt.Printf("Replayed samples: %d accepted, %d dropped\n", accepted, dropped)

	if err := eng.Recompute(ctx); err != nil {
		fatalf("recompute: %v", err)
	}

	printReport(eng, scenario)
}

func replaySamples(ctx context.Context, eng *engine.MappingEngine, path string) (accepted, dropped int) {
	if path == "" {
		return 0, 0
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fatalf("read samples %q: %v", path, err)
	}
	var recorded []recordedSample
	if err := json.Unmarshal(data, &recorded); err != nil {
		fatalf("parse samples %q: %v", path, err)
	}

	for _, rs := range recorded {
		kind, ok := model.ParseSampleKind(rs.Kind)
		if !ok {
			fmt.Fprintf(os.Stderr, "warning: skipping sample with unknown kind %q\n", rs.Kind)
			continue
		}
		sample := model.Sample{
			SourceID:  rs.SourceID,
			Timestamp: rs.Timestamp,
			Kind:      kind,
			Value:     rs.Value,
			Position:  rs.Position,
		}
		if eng.ObserveSample(ctx, sample) {
			accepted++
		} else {
			dropped++
		}
	}
	return accepted, dropped
}

func printReport(eng *engine.MappingEngine, scenario *core.SurveyScenario) {
	snap := eng.Snapshot()
	if snap == nil {
		fatalf("no snapshot produced")
	}

	fmt.Printf("\nSurvey %gx%g m, %dx%d grid\n",
		scenario.Extent.Width(), scenario.Extent.Height(), scenario.Cols, scenario.Rows)

	fmt.Println("\nSources:")
	for _, h := range eng.SourceHealth() {
		if h.Missing {
			fmt.Printf("  %-16s no usable reading\n", h.SourceID)
			continue
		}
		flag := ""
		if h.Strength < scenario.GapThreshold {
			flag = "  WEAK"
		}
		fmt.Printf("  %-16s %6.1f dBm  confidence %.2f%s\n", h.SourceID, h.Strength, h.Confidence, flag)
	}

	fmt.Println("\nBand distribution:")
	counts := map[core.Band]int{}
	data := 0
	for i, has := range snap.Bands.HasData {
		if !has {
			continue
		}
		counts[snap.Bands.Bands[i]]++
		data++
	}
	for band := core.BandVeryPoor; band <= core.BandExcellent; band++ {
		if data == 0 {
			break
		}
		n := counts[band]
		fmt.Printf("  %-10s %4d cells (%.0f%%)\n", band, n, 100*float64(n)/float64(data))
	}
	noData := len(snap.Bands.HasData) - data
	if noData > 0 {
		fmt.Printf("  %-10s %4d cells\n", "no data", noData)
	}

	fmt.Printf("\nCoverage gaps below %.0f dBm: %d cells\n", scenario.GapThreshold, len(snap.Gaps))

	if len(snap.Placement.Recommendations) > 0 {
		fmt.Println("\nRecommended extender sites:")
		for i, rec := range snap.Placement.Recommendations {
			fmt.Printf("  %d. %s at (%.1f, %.1f)  +%.1f dB\n",
				i+1, rec.Site.ID, rec.Site.Position.X, rec.Site.Position.Y, rec.ExpectedImprovement)
		}
		fmt.Printf("  worst gap cell after placement: %.1f dBm\n", snap.Placement.FinalMinStrength)
	} else if len(snap.Gaps) > 0 {
		fmt.Println("\nNo candidate site improves the coverage gaps.")
	}
	if snap.Placement.Exhausted {
		fmt.Println("  (placement stopped early: no further candidate helps)")
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
