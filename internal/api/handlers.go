package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/signalsfoundry/coverage-mapper/internal/engine"
	"github.com/signalsfoundry/coverage-mapper/internal/logging"
	"github.com/signalsfoundry/coverage-mapper/model"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type sampleRequest struct {
	SourceID  string          `json:"sourceId"`
	Timestamp time.Time       `json:"timestamp"`
	Kind      string          `json:"kind"`
	Value     float64         `json:"value"`
	Position  *model.Position `json:"position,omitempty"`
}

type samplesResponse struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

type positionResponse struct {
	Position   model.Position `json:"position"`
	Confidence float64        `json:"confidence"`
}

type heatmapResponse struct {
	Generation  uint64    `json:"generation"`
	GeneratedAt time.Time `json:"generatedAt"`
	MinX        float64   `json:"minX"`
	MinY        float64   `json:"minY"`
	MaxX        float64   `json:"maxX"`
	MaxY        float64   `json:"maxY"`
	Cols        int       `json:"cols"`
	Rows        int       `json:"rows"`
	// Strengths and Confidences are row-major, rows*cols long. Cells
	// outside every anchor's reach carry the no-data strength value.
	Strengths   []float64 `json:"strengths"`
	Confidences []float64 `json:"confidences"`
}

type bandCellJSON struct {
	Col  int    `json:"col"`
	Row  int    `json:"row"`
	Band string `json:"band"`
}

type contourJSON struct {
	FromX float64 `json:"fromX"`
	FromY float64 `json:"fromY"`
	ToX   float64 `json:"toX"`
	ToY   float64 `json:"toY"`
	Lower string  `json:"lower"`
	Upper string  `json:"upper"`
}

type bandsResponse struct {
	Generation uint64         `json:"generation"`
	Cells      []bandCellJSON `json:"cells"`
	Contours   []contourJSON  `json:"contours"`
}

type gapJSON struct {
	Col        int            `json:"col"`
	Row        int            `json:"row"`
	Center     model.Position `json:"center"`
	Strength   float64        `json:"strength"`
	Confidence float64        `json:"confidence"`
}

type gapsResponse struct {
	Generation uint64    `json:"generation"`
	Threshold  float64   `json:"threshold"`
	Gaps       []gapJSON `json:"gaps"`
}

type recommendationsResponse struct {
	Generation       uint64                          `json:"generation"`
	Recommendations  []model.PlacementRecommendation `json:"recommendations"`
	Exhausted        bool                            `json:"exhausted"`
	FinalMinStrength float64                         `json:"finalMinStrength"`
}

type sourceHealthJSON struct {
	SourceID   string     `json:"sourceId"`
	Strength   *float64   `json:"strength,omitempty"`
	Confidence float64    `json:"confidence"`
	LastSeen   *time.Time `json:"lastSeen,omitempty"`
}

type statusResponse struct {
	Generation        uint64             `json:"generation"`
	GeneratedAt       *time.Time         `json:"generatedAt,omitempty"`
	ActiveSession     string             `json:"activeSession,omitempty"`
	CalibrationPoints int                `json:"calibrationPoints"`
	Sources           []sourceHealthJSON `json:"sources"`
}

type calibrationStartRequest struct {
	SessionID string `json:"sessionId"`
}

type calibrationStartResponse struct {
	SessionID string `json:"sessionId"`
}

type calibrationPointRequest struct {
	Position model.Position `json:"position"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ts": time.Now().UTC()})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Sources: []sourceHealthJSON{}}

	if snap := s.engine.Snapshot(); snap != nil {
		resp.Generation = snap.Generation
		at := snap.GeneratedAt
		resp.GeneratedAt = &at
	}
	resp.ActiveSession, resp.CalibrationPoints = s.engine.CalibrationStatus()

	for _, h := range s.engine.SourceHealth() {
		entry := sourceHealthJSON{SourceID: h.SourceID}
		if !h.Missing {
			strength := h.Strength
			entry.Strength = &strength
			entry.Confidence = h.Confidence
		}
		if !h.LastSeen.IsZero() {
			seen := h.LastSeen
			entry.LastSeen = &seen
		}
		resp.Sources = append(resp.Sources, entry)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) position(w http.ResponseWriter, r *http.Request) {
	est, err := s.engine.Position(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !est.OK {
		s.writeError(w, r, errNoEstimate)
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{
		Position:   est.Position,
		Confidence: est.Confidence,
	})
}

func (s *Server) heatmap(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	if snap == nil {
		s.writeError(w, r, errNoSnapshot)
		return
	}

	grid := snap.Heatmap
	resp := heatmapResponse{
		Generation:  snap.Generation,
		GeneratedAt: snap.GeneratedAt,
		MinX:        grid.Extent.MinX,
		MinY:        grid.Extent.MinY,
		MaxX:        grid.Extent.MaxX,
		MaxY:        grid.Extent.MaxY,
		Cols:        grid.Cols,
		Rows:        grid.Rows,
		Strengths:   make([]float64, len(grid.Cells)),
		Confidences: make([]float64, len(grid.Cells)),
	}
	for i, cell := range grid.Cells {
		resp.Strengths[i] = cell.Strength
		resp.Confidences[i] = cell.Confidence
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) bands(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	if snap == nil {
		s.writeError(w, r, errNoSnapshot)
		return
	}

	resp := bandsResponse{
		Generation: snap.Generation,
		Cells:      []bandCellJSON{},
		Contours:   []contourJSON{},
	}
	bands := snap.Bands
	for row := 0; row < bands.Rows; row++ {
		for col := 0; col < bands.Cols; col++ {
			i := row*bands.Cols + col
			if !bands.HasData[i] {
				continue
			}
			resp.Cells = append(resp.Cells, bandCellJSON{
				Col:  col,
				Row:  row,
				Band: bands.Bands[i].String(),
			})
		}
	}
	for _, seg := range snap.Contours {
		resp.Contours = append(resp.Contours, contourJSON{
			FromX: seg.From.X,
			FromY: seg.From.Y,
			ToX:   seg.To.X,
			ToY:   seg.To.Y,
			Lower: seg.Lower.String(),
			Upper: seg.Upper.String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) gaps(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	if snap == nil {
		s.writeError(w, r, errNoSnapshot)
		return
	}

	resp := gapsResponse{
		Generation: snap.Generation,
		Threshold:  s.engine.GapThreshold(),
		Gaps:       []gapJSON{},
	}
	for _, g := range snap.Gaps {
		resp.Gaps = append(resp.Gaps, gapJSON{
			Col:        g.Col,
			Row:        g.Row,
			Center:     g.Center.Position(),
			Strength:   g.Strength,
			Confidence: g.Confidence,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recommendations(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	if snap == nil {
		s.writeError(w, r, errNoSnapshot)
		return
	}

	recs := snap.Placement.Recommendations
	if recs == nil {
		recs = []model.PlacementRecommendation{}
	}
	writeJSON(w, http.StatusOK, recommendationsResponse{
		Generation:       snap.Generation,
		Recommendations:  recs,
		Exhausted:        snap.Placement.Exhausted,
		FinalMinStrength: snap.Placement.FinalMinStrength,
	})
}

func (s *Server) postSamples(w http.ResponseWriter, r *http.Request) {
	ctx, reqLog := logging.WithRequestLogger(r.Context(), s.log)

	var reqs []sampleRequest
	if err := decodeBody(w, r, &reqs); err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := samplesResponse{}
	for _, sr := range reqs {
		sample, err := sampleFromRequest(sr)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if s.engine.ObserveSample(ctx, sample) {
			resp.Accepted++
		} else {
			resp.Dropped++
		}
	}

	reqLog.Debug(ctx, "sample batch ingested",
		logging.Int("accepted", resp.Accepted),
		logging.Int("dropped", resp.Dropped),
	)
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) postRecompute(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Recompute(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	snap := s.engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"generation":  snap.Generation,
		"generatedAt": snap.GeneratedAt,
	})
}

func (s *Server) calibrationStart(w http.ResponseWriter, r *http.Request) {
	var req calibrationStartRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		s.writeError(w, r, err)
		return
	}

	if err := s.engine.ApplyCalibration(r.Context(), model.StartSession{SessionID: req.SessionID}); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, _ := s.engine.CalibrationStatus()
	writeJSON(w, http.StatusCreated, calibrationStartResponse{SessionID: session})
}

func (s *Server) calibrationPoint(w http.ResponseWriter, r *http.Request) {
	var req calibrationPointRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.engine.ApplyCalibration(r.Context(), model.AddPoint{Position: req.Position}); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"recorded": true})
}

func (s *Server) calibrationComplete(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.ApplyCalibration(r.Context(), model.CompleteSession{}); err != nil {
		s.writeError(w, r, err)
		return
	}
	_, points := s.engine.CalibrationStatus()
	writeJSON(w, http.StatusOK, map[string]any{"points": points})
}

var (
	errNoSnapshot  = errors.New("no coverage snapshot available yet")
	errNoEstimate  = errors.New("no position estimate available")
	errEmptyBody   = errors.New("empty request body")
	errBadKind     = errors.New("unknown sample kind")
	errNoSource    = errors.New("sample is missing a source ID")
	errNoTimestamp = errors.New("sample is missing a timestamp")
)

func sampleFromRequest(sr sampleRequest) (model.Sample, error) {
	if sr.SourceID == "" {
		return model.Sample{}, errNoSource
	}
	if sr.Timestamp.IsZero() {
		return model.Sample{}, errNoTimestamp
	}
	kind, ok := model.ParseSampleKind(sr.Kind)
	if !ok {
		return model.Sample{}, errBadKind
	}
	return model.Sample{
		SourceID:  sr.SourceID,
		Timestamp: sr.Timestamp,
		Kind:      kind,
		Value:     sr.Value,
		Position:  sr.Position,
	}, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, engine.ErrSessionOpen), errors.Is(err, engine.ErrSessionClosed):
		status = http.StatusConflict
	case errors.Is(err, engine.ErrNoCalibration), errors.Is(err, errNoSnapshot), errors.Is(err, errNoEstimate):
		status = http.StatusNotFound
	}

	ctx, reqLog := logging.WithRequestLogger(r.Context(), s.log)
	reqLog.Warn(ctx, "request failed",
		logging.String("path", r.URL.Path),
		logging.Int("status", status),
		logging.Err(err),
	)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
