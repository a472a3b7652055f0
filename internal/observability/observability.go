package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_service_requests_total",
			Help: "Total requests by route, method and status.",
		},
		[]string{"route", "method", "status"},
	)
	ReadingsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sensor_service_readings_ingested_total",
			Help: "Readings stored, by ingest source.",
		},
		[]string{"source"},
	)
	DevicesProvisioned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sensor_service_devices_provisioned_total",
			Help: "Devices auto-created on first contact from an unknown MAC address.",
		},
	)
)

func init() {
	prometheus.MustRegister(RequestCounter, ReadingsIngested, DevicesProvisioned)
}

// Instruments are no-ops until Setup binds them to its meter provider.
var (
	queryDuration metric.Float64Histogram = noop.Float64Histogram{}
	bucketCount   metric.Int64Histogram   = noop.Int64Histogram{}
)

func newInstruments(meter metric.Meter) (metric.Float64Histogram, metric.Int64Histogram, error) {
	qd, err := meter.Float64Histogram(
		"sensor_service.query.duration",
		metric.WithDescription("Duration of store-backed telemetry queries."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("query duration histogram: %w", err)
	}
	bc, err := meter.Int64Histogram(
		"sensor_service.aggregate.buckets",
		metric.WithDescription("Buckets produced per aggregation."),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("bucket count histogram: %w", err)
	}
	return qd, bc, nil
}

// ObserveQuery records the duration of a telemetry operation started at start.
func ObserveQuery(ctx context.Context, op string, start time.Time) {
	queryDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("op", op)))
}

// ObserveBuckets records how many buckets one aggregation produced.
func ObserveBuckets(ctx context.Context, op string, n int) {
	bucketCount.Record(ctx, int64(n), metric.WithAttributes(attribute.String("op", op)))
}

type Options struct {
	ServiceName string
	// OTLPEndpoint enables span export when set, e.g. http://otel-collector:4318.
	OTLPEndpoint string
	// Registry defaults to the prometheus default registerer/gatherer.
	Registry *prometheus.Registry
}

type Telemetry struct {
	Tracer      oteltrace.Tracer
	PromHandler http.Handler

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	name := strings.TrimSpace(opts.ServiceName)
	if name == "" {
		name = "sensor-service"
	}
	res := resource.NewSchemaless(attribute.String("service.name", name))

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if opts.Registry != nil {
		registerer, gatherer = opts.Registry, opts.Registry
	}

	promExporter, err := otelprom.New(otelprom.WithRegisterer(registerer))
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter), sdkmetric.WithResource(res))
	qd, bc, err := newInstruments(mp.Meter(name))
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(mp)
	queryDuration, bucketCount = qd, bc

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if endpoint := strings.TrimSpace(opts.OTLPEndpoint); endpoint != "" {
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, err
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
		slog.Info("otlp trace export enabled", "endpoint", endpoint)
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	return &Telemetry{
		Tracer:      tp.Tracer(name),
		PromHandler: promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		tp:          tp,
		mp:          mp,
	}, nil
}

func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	return errors.Join(t.tp.Shutdown(ctx), t.mp.Shutdown(ctx))
}

// Middleware counts requests per route pattern and wraps each in a span.
func Middleware(tracer oteltrace.Tracer) func(http.Handler) http.Handler {
	if tracer == nil {
		tracer = otel.Tracer("sensor-service")
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path)
			span.SetAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			)
			next.ServeHTTP(rw, r.WithContext(ctx))

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			span.SetName(r.Method + " " + route)
			span.SetAttributes(attribute.Int("http.response.status_code", rw.status))
			if rw.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.status))
			}
			span.End()
			RequestCounter.WithLabelValues(route, r.Method, strconv.Itoa(rw.status)).Inc()
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
