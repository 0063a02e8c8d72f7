package dashboard

import (
	"context"
	_ "embed"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tigerroll/gridcast/internal/config"
	"github.com/tigerroll/gridcast/internal/domain/entity"
	"github.com/tigerroll/gridcast/internal/featurestore"
	"github.com/tigerroll/gridcast/internal/frame"
	"github.com/tigerroll/gridcast/internal/hindcast"
	"github.com/tigerroll/gridcast/internal/metrics"
	"github.com/tigerroll/gridcast/internal/support/logger"
)

//go:embed index.html
var indexHTML []byte

// Server serves the dashboard UI, its JSON API and the metrics endpoint.
type Server struct {
	cfg      *config.Settings
	store    *featurestore.Store
	recorder *metrics.Recorder
	srv      *http.Server
}

// NewServer builds the dashboard server on the configured listen address.
func NewServer(cfg *config.Settings, store *featurestore.Store, recorder *metrics.Recorder) *Server {
	s := &Server{cfg: cfg, store: store, recorder: recorder}
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/areas", s.handleAreas)
	mux.HandleFunc("/api/sources", s.handleSources)
	mux.HandleFunc("/api/series", s.handleSeries)
	mux.Handle("/metrics", promhttp.HandlerFor(recorder.Registry(), promhttp.HandlerOpts{}))
	s.srv = &http.Server{
		Addr:              cfg.Dashboard.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	logger.Infof("Dashboard listening on %s", s.srv.Addr)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Dashboard server stopped: %v", err)
		}
	}()
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

type areaPayload struct {
	Code      string  `json:"code"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (s *Server) handleAreas(w http.ResponseWriter, r *http.Request) {
	areas := make([]areaPayload, 0, len(s.cfg.Areas))
	for _, a := range s.cfg.Areas {
		areas = append(areas, areaPayload{Code: a.Code, Latitude: a.Latitude, Longitude: a.Longitude})
	}
	writeJSON(w, areas)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, entity.Sources)
}

// seriesPayload is one plotted line: parallel timestamp and value arrays.
// Values a series does not cover are null, rendered as gaps.
type seriesPayload struct {
	Times  []string   `json:"times"`
	Values []*float64 `json:"values"`
}

type windowPayload struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type seriesResponse struct {
	Area      string         `json:"area"`
	Source    string         `json:"source"`
	Bounds    *windowPayload `json:"bounds"`
	Window    *windowPayload `json:"window"`
	Confirmed seriesPayload  `json:"confirmed"`
	Projected seriesPayload  `json:"projected"`
	Actual    seriesPayload  `json:"actual"`
	Predicted seriesPayload  `json:"predicted"`
}

// handleSeries builds the plotted view of one (area, source, window)
// selection: a confirmed/projected stitched line for continuity and an
// actual/predicted overlay for hindcast comparison. The requested window is
// re-clamped to the data bounds on every call.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	sel := Selection{
		Area:   r.URL.Query().Get("area"),
		Source: r.URL.Query().Get("source"),
		Start:  parseInstant(r.URL.Query().Get("start")),
		End:    parseInstant(r.URL.Query().Get("end")),
	}
	codes := make([]string, len(s.cfg.Areas))
	for i, a := range s.cfg.Areas {
		codes[i] = a.Code
	}
	// Area and source must be resolved before any read; the window is clamped
	// afterwards once the data bounds are known.
	sel = sel.Normalize(codes, time.Time{}, time.Time{})

	ctx := r.Context()
	actualSeries, err := s.actualSeries(ctx, sel.Area, sel.Source)
	if err != nil {
		serverError(w, "failed to read actual generation", err)
		return
	}
	predSeries, err := s.predictedSeries(ctx, sel.Area, sel.Source)
	if err != nil {
		serverError(w, "failed to read predictions", err)
		return
	}

	resp := seriesResponse{Area: sel.Area, Source: sel.Source}
	min, max, ok := unionBounds(actualSeries, predSeries)
	if !ok {
		writeJSON(w, resp)
		return
	}
	sel = sel.Normalize(codes, min, max)
	resp.Bounds = &windowPayload{Start: formatInstant(min), End: formatInstant(max)}
	resp.Window = &windowPayload{Start: formatInstant(sel.Start), End: formatInstant(sel.End)}

	actualWin := frame.FilterWindow(actualSeries, sel.Start, sel.End)
	predWin := frame.FilterWindow(predSeries, sel.Start, sel.End)

	confirmed, projected := frame.Stitch(actualWin, "value", predWin, "value")
	resp.Confirmed = payloadFrom(confirmed, "value")
	resp.Projected = payloadFrom(projected, "value")

	overlay := frame.OuterJoin([]string{"actual", "predicted"}, []*frame.Frame{actualWin, predWin}, "value")
	resp.Actual = payloadFrom(overlay, "actual")
	resp.Predicted = payloadFrom(overlay, "predicted")
	writeJSON(w, resp)
}

// actualSeries reads the stored generation of one area as a single-column
// "value" frame of the chosen source.
func (s *Server) actualSeries(ctx context.Context, area, source string) (*frame.Frame, error) {
	records, err := s.store.ReadGeneration(ctx, area, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	raw := frame.SortDedup(entity.GenerationFrame(records))
	return singleColumn(raw, source), nil
}

// predictedSeries reads the stored predictions of one area and source keeping
// the freshest lead time per target hour, as a single-column "value" frame.
func (s *Server) predictedSeries(ctx context.Context, area, source string) (*frame.Frame, error) {
	records, err := s.store.ReadPredictions(ctx, area, source, 0, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	freshest := make(map[time.Time]entity.PredictionRecord, len(records))
	for _, rec := range records {
		ts := rec.Timestamp.UTC()
		if prev, ok := freshest[ts]; !ok || rec.HoursBeforeForecast < prev.HoursBeforeForecast {
			freshest[ts] = rec
		}
	}
	kept := make([]entity.PredictionRecord, 0, len(freshest))
	for _, rec := range freshest {
		kept = append(kept, rec)
	}
	raw := frame.SortDedup(entity.PredictionFrame(kept))
	return singleColumn(raw, hindcast.ColPredictedEnergy), nil
}

// singleColumn projects one column of f into a frame whose column is named
// "value". Rows missing the column produce an empty frame.
func singleColumn(f *frame.Frame, col string) *frame.Frame {
	vals, ok := f.Column(col)
	if !ok {
		return frame.New(nil)
	}
	out := frame.New(f.Times())
	out.SetColumn("value", vals)
	return out
}

func unionBounds(frames ...*frame.Frame) (min, max time.Time, ok bool) {
	for _, f := range frames {
		fMin, fMax, fOK := frame.Bounds(f)
		if !fOK {
			continue
		}
		if !ok || fMin.Before(min) {
			min = fMin
		}
		if !ok || fMax.After(max) {
			max = fMax
		}
		ok = true
	}
	return min, max, ok
}

func payloadFrom(f *frame.Frame, col string) seriesPayload {
	out := seriesPayload{Times: []string{}, Values: []*float64{}}
	vals, ok := f.Column(col)
	if !ok {
		return out
	}
	for i, t := range f.Times() {
		out.Times = append(out.Times, formatInstant(t))
		if math.IsNaN(vals[i]) {
			out.Values = append(out.Values, nil)
		} else {
			v := vals[i]
			out.Values = append(out.Values, &v)
		}
	}
	return out
}

func parseInstant(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func formatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Dashboard: failed to encode response: %v", err)
	}
}

func serverError(w http.ResponseWriter, message string, err error) {
	logger.Errorf("Dashboard: %s: %v", message, err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
