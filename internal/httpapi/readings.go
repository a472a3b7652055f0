package httpapi

import (
	"net/http"
	"strings"

	"sensor-service/internal/apperr"
	"sensor-service/internal/ratelimit"
	"sensor-service/internal/telemetry"
)

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var body ingestRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}
	ip := strings.TrimSpace(body.IPAddress)
	if ip == "" {
		ip = ratelimit.KeyByIP(r)
	}

	ctx, cancel := s.queryContext(r)
	defer cancel()
	rd, err := s.telemetry.Ingest(ctx, telemetry.IngestRequest{
		MACAddress:  body.MACAddress,
		Temperature: body.Temperature,
		Humidity:    body.Humidity,
		Pressure:    body.Pressure,
		IPAddress:   ip,
		Source:      "http",
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	dto := toReadingDTO(*rd)
	dto.ID = 0
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": dto})
}

// handleSeries serves the dashboard buckets keyed by device id.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.queryContext(r)
	defer cancel()
	res, err := s.telemetry.Series(ctx, r.URL.Query().Get("mac_address"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": toResultDTO(res)})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := s.queryContext(r)
	defer cancel()
	latest, err := s.telemetry.LatestTwo(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]latestDTO, 0, len(latest))
	for _, l := range latest {
		out = append(out, toLatestDTO(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": out})
}

func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseBounds(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := s.queryContext(r)
	defer cancel()
	iv, rows, err := s.telemetry.RangeQuery(ctx, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"time_interval": intervalDTO{
			Start: iv.Start.Format(telemetry.TimeLayout),
			End:   iv.End.Format(telemetry.TimeLayout),
		},
		"data": toReadingDTOs(rows),
	})
}

func (s *Server) handleLastSeven(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if id == nil {
		writeError(w, r, apperr.Validation("id is required").WithField("parameter", "id"))
		return
	}
	start, end, err := parseBounds(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := s.queryContext(r)
	defer cancel()
	rows, err := s.telemetry.LastSeven(ctx, *id, start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": toReadingDTOs(rows)})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	metrics, err := telemetry.ParseMetricFilter(r.URL.Query().Get("data"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := s.queryContext(r)
	defer cancel()
	chart, err := s.telemetry.Chart(ctx, id, metrics)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": toChartDTO(chart)})
}
