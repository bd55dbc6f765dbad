package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/gosight/logflow/internal/analytics"
	"github.com/gosight/logflow/internal/event"
	"github.com/gosight/logflow/internal/insights"
	"github.com/gosight/logflow/internal/report"
	"github.com/gosight/logflow/internal/tracker"
)

const maxBodyBytes = 1 << 20

type EventRequest struct {
	Type        string         `json:"type"`
	ElementID   string         `json:"element_id"`
	ElementName string         `json:"element_name"`
	Path        string         `json:"path"`
	Metadata    map[string]any `json:"metadata"`
}

// EventBatchRequest accepts either a single event at the top level or a
// batch under "events".
type EventBatchRequest struct {
	EventRequest
	Events []EventRequest `json:"events"`
}

type EventResponse struct {
	Success       bool     `json:"success"`
	AcceptedCount int      `json:"accepted_count"`
	RejectedCount int      `json:"rejected_count"`
	Errors        []string `json:"errors,omitempty"`
}

func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	// Read body
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	// Parse request
	var req EventBatchRequest
	if err := event.DecodeJSON(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	events := req.Events
	if len(events) == 0 {
		if req.Type == "" {
			http.Error(w, "No events", http.StatusBadRequest)
			return
		}
		events = []EventRequest{req.EventRequest}
	}

	userAgent := r.Header.Get("User-Agent")
	ip := clientIP(r)

	accepted := 0
	rejected := 0
	var errs []string

	for i, e := range events {
		hit, err := toHit(e)
		if err != nil {
			rejected++
			errs = append(errs, fmt.Sprintf("event %d: %v", i, err))
			continue
		}
		hit.Metadata = s.enricher.Enrich(hit.Metadata, userAgent, ip)
		s.tracker.Record(r.Context(), hit)
		accepted++
	}

	writeJSON(w, http.StatusAccepted, EventResponse{
		Success:       rejected == 0,
		AcceptedCount: accepted,
		RejectedCount: rejected,
		Errors:        errs,
	})
}

func toHit(e EventRequest) (tracker.Hit, error) {
	typ := event.Type(e.Type)
	if !typ.Valid() {
		return tracker.Hit{}, fmt.Errorf("unknown event type %q", e.Type)
	}
	id := e.ElementID
	if id == "" && typ == event.TypePageView {
		id = e.Path
	}
	if id == "" {
		return tracker.Hit{}, errors.New("element_id is required")
	}
	name := e.ElementName
	if name == "" {
		name = id
	}
	return tracker.Hit{
		Type:        typ,
		ElementID:   id,
		ElementName: name,
		Metadata:    e.Metadata,
		Path:        e.Path,
	}, nil
}

func (s *Server) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	events := s.tracker.Events()
	total := len(events)
	if limit > 0 && total > limit {
		events = events[total-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "total": total})
}

type userRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) HandleSetUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}
	s.tracker.SetUserID(req.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user_id": req.UserID})
}

func (s *Server) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	s.tracker.StartSession(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"session": s.tracker.CurrentSession()})
}

func (s *Server) HandleEndSession(w http.ResponseWriter, r *http.Request) {
	s.tracker.EndSession(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) HandleCurrentSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"session": s.tracker.CurrentSession()})
}

func (s *Server) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sessions": s.tracker.Sessions()})
}

func (s *Server) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.dashboard == nil {
		writeJSON(w, http.StatusOK, analytics.Summarize(s.tracker.Snapshot(), s.now(), s.loc))
		return
	}
	if s.dashboard.Recomputes() == 0 {
		writeJSON(w, http.StatusOK, s.dashboard.Refresh())
		return
	}
	writeJSON(w, http.StatusOK, s.dashboard.Latest())
}

func (s *Server) HandleTop(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r, "n", 5)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"top": analytics.TopN(s.tracker.Events(), n)})
}

func (s *Server) HandleBreakdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"types": analytics.TypeBreakdown(s.tracker.Events())})
}

func (s *Server) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	events := s.tracker.Events()
	var buckets []analytics.Bucket
	switch rng := r.URL.Query().Get("range"); rng {
	case "", "24h":
		buckets = analytics.Hourly(events, s.now(), s.loc)
	case "7d":
		buckets = analytics.Daily(events, s.now(), s.loc)
	default:
		http.Error(w, fmt.Sprintf("unknown range %q", rng), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"buckets": buckets})
}

type funnelRequest struct {
	Steps []string `json:"steps"`
}

func (s *Server) HandleFunnel(w http.ResponseWriter, r *http.Request) {
	var req funnelRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if len(req.Steps) == 0 {
		http.Error(w, "steps are required", http.StatusBadRequest)
		return
	}
	steps := analytics.Funnel(s.tracker.Snapshot().AllSessions(), req.Steps)
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

func (s *Server) HandleInsights(w http.ResponseWriter, r *http.Request) {
	found := s.insights.Detect(s.tracker.Events(), s.now().UnixMilli())
	if kind := r.URL.Query().Get("kind"); kind != "" {
		filtered := []insights.Insight{}
		for _, in := range found {
			if string(in.Kind) == kind {
				filtered = append(filtered, in)
			}
		}
		found = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"insights": found,
		"counts":   insights.Count(found),
	})
}

type reportRequest struct {
	TimeRange string `json:"time_range"`
}

func (s *Server) HandleReport(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
	}
	if req.TimeRange == "" {
		req.TimeRange = s.timeRange
	}

	res, err := report.Generate(r.Context(), s.generator, report.NewRequest(s.tracker.Snapshot(), req.TimeRange), s.reportTimeout)
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate report")
		status := http.StatusBadGateway
		if errors.Is(err, report.ErrTimeout) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, map[string]any{"error": "Failed to generate report"})
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(res.Body)
}

func (s *Server) HandleClear(w http.ResponseWriter, r *http.Request) {
	s.tracker.ClearData(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
