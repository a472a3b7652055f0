package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sensor-service/internal/accounts"
	"sensor-service/internal/apperr"
	"sensor-service/internal/observability"
	"sensor-service/internal/ratelimit"
	"sensor-service/internal/telemetry"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type Options struct {
	// QueryTimeout bounds the store work of one request. Zero means 5s.
	QueryTimeout       time.Duration
	Tracer             oteltrace.Tracer
	PromHandler        http.Handler
	Limiter            *ratelimit.RateLimiter
	CORSAllowedOrigins []string
}

type Server struct {
	telemetry *telemetry.Service
	accounts  *accounts.Service
	opts      Options
}

func New(tel *telemetry.Service, acc *accounts.Service, opts Options) *Server {
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}
	if opts.PromHandler == nil {
		opts.PromHandler = promhttp.Handler()
	}
	if len(opts.CORSAllowedOrigins) == 0 {
		opts.CORSAllowedOrigins = []string{"*"}
	}
	return &Server{telemetry: tel, accounts: acc, opts: opts}
}

func (s *Server) Handler() http.Handler {
	r := s.router()

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.opts.PromHandler)

	r.With(s.opts.Limiter.Middleware(ratelimit.KeyByIP)).Post("/post/data", s.handleIngest)
	r.Get("/get/data", s.handleSeries)
	r.Get("/get/data/latest", s.handleLatest)
	r.Get("/get/device/latest", s.handleLatest)
	r.Get("/get/data/intervall", s.handleInterval)
	r.Get("/get/device/intervall", s.handleInterval)
	r.Get("/get/data/latesthistory", s.handleLastSeven)
	r.Get("/get/chart/quellechart", s.handleChart)

	r.Get("/get/user", s.handleUsersList)
	r.Post("/post/user", s.handleUsersCreate)
	r.Get("/get/device", s.handleDevices)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		slog.Warn("route not found", "method", r.Method, "path", r.URL.Path)
		writeJSON(w, http.StatusNotFound, errorBody{Message: "not found", Code: "not_found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Message: "method " + r.Method + " not allowed", Code: "method_not_allowed"})
	})
	return r
}

// router carries the middleware stack. Recoverer sits inside the
// observability middleware so a panic still ends its span and is counted.
func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(observability.Middleware(s.opts.Tracer))
	r.Use(middleware.Recoverer)
	r.Use(correlationID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Correlation-ID"},
		MaxAge:         300,
	}))
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "status": "ok"})
}

// queryContext bounds the store calls of one request.
func (s *Server) queryContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.opts.QueryTimeout)
}

func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corrID := strings.TrimSpace(r.Header.Get("X-Correlation-ID"))
		if corrID == "" {
			corrID = uuid.NewString()
		}
		w.Header().Set("X-Correlation-ID", corrID)
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	ErrorID string `json:"error_id,omitempty"`
	// Fields carries per-error details such as the rejected parameter.
	Fields map[string]any `json:"details,omitempty"`
}

// writeJSON encodes v before writing the status, so an unencodable body
// becomes a 500 envelope instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	buf, err := json.Marshal(v)
	if err != nil {
		errID := uuid.NewString()
		slog.Error("response encode failed", "error_id", errID, "error", err)
		buf, _ = json.Marshal(errorBody{Message: "internal error", Code: apperr.KindInternal.String(), ErrorID: errID})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(buf, '\n'))
}

// writeError maps err onto its status. Internal causes are logged under a
// fresh error id and never echoed to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal("unexpected error", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		ae = apperr.Internal("query timeout", err)
	}

	body := errorBody{Message: ae.Message, Code: ae.Kind.String(), Fields: ae.Fields}
	if ae.Kind == apperr.KindInternal {
		body.ErrorID = uuid.NewString()
		body.Message = "internal error"
		body.Fields = nil
		slog.Error("request failed",
			"error_id", body.ErrorID,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
	}
	writeJSON(w, ae.Kind.Status(), body)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return apperr.Validation("request body is required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("invalid JSON body")
	}
	return nil
}

// parseIDParam reads an optional positive integer query parameter.
func parseIDParam(r *http.Request, name string) (*uint, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || n == 0 {
		return nil, apperr.InvalidArgument("invalid " + name + " " + strconv.Quote(raw) + ": use a positive integer").
			WithField("parameter", name).
			WithField("value", raw)
	}
	id := uint(n)
	return &id, nil
}

// parseBounds reads the optional start and end query parameters.
func parseBounds(r *http.Request) (start, end *time.Time, err error) {
	q := r.URL.Query()
	if start, err = telemetry.ParseBound("start", q.Get("start")); err != nil {
		return nil, nil, err
	}
	if end, err = telemetry.ParseBound("end", q.Get("end")); err != nil {
		return nil, nil, err
	}
	return start, end, nil
}
