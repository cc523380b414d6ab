package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aklnz/realtime-transit-engine/internal/config"
	"github.com/aklnz/realtime-transit-engine/internal/godmode"
	"github.com/aklnz/realtime-transit-engine/internal/kvstore"
	"github.com/aklnz/realtime-transit-engine/internal/metrics"
)

// Server is the HTTP surface of the engine: the two feed ingress bridges
// (R9K SOAP, Dilax APC), the detector/info/god-mode operator endpoints, and
// the health/metrics endpoints every deployment needs.
type Server struct {
	http   *http.Server
	log    zerolog.Logger
	health *HealthHandler
}

// ServerOptions wires every collaborator a route needs; narrow interfaces
// throughout so tests can substitute fakes without touching this file.
type ServerOptions struct {
	Config    *config.Config
	Store     kvstore.Store
	MQTT      MQTTStatus
	Publisher Publisher

	Detector   DetectionRunner
	Info       VehicleInfoReader
	GodMode    *godmode.Registry
	EngineStat metrics.EngineStats

	Version   string
	StartTime time.Time
	Log       zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	if opts.Config.MetricsEnabled {
		r.Use(metrics.InstrumentHandler)
	}
	r.Use(ResponseTimeout(opts.Config.WriteTimeout))
	r.Use(MaxBodySize(1 << 20))

	health := NewHealthHandler(opts.Store, opts.MQTT, opts.Version, opts.StartTime)
	r.Get("/healthz", health.ServeHTTP)

	if opts.Config.MetricsEnabled {
		collector := metrics.NewCollector(opts.EngineStat)
		prometheus.MustRegister(collector)
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	r.Post("/inbound/xml", NewSOAPHandler(opts.Publisher).ServeHTTP)
	r.Post("/api/apc", NewDilaxHandler(opts.Publisher).ServeHTTP)

	r.Get("/jobs/detector", NewDetectorHandler(opts.Detector).ServeHTTP)
	r.Get("/info/{vehicle_id}", NewInfoHandler(opts.Info).ServeHTTP)

	godModeHandler := NewGodModeHandler(opts.GodMode)
	r.Get("/god-mode/set-trip/{vehicle_id}/{trip_id}", godModeHandler.SetTrip)
	r.Get("/god-mode/reset/{vehicle_id}", godModeHandler.Reset)
	r.Get("/god-mode/describe", godModeHandler.Describe)

	srv := &http.Server{
		Addr:         opts.Config.HTTPAddr,
		Handler:      r,
		ReadTimeout:  opts.Config.ReadTimeout,
		WriteTimeout: opts.Config.WriteTimeout,
		IdleTimeout:  opts.Config.IdleTimeout,
	}

	return &Server{http: srv, log: opts.Log, health: health}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
