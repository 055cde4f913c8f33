package handler

import (
	"log/slog"
	"net/http"
)

type Routes struct {
	HTTP    *HTTPHandler
	WS      *WSHandler
	Health  *HealthHandler
	Metrics http.Handler
	// Limit wraps the intake endpoint; nil disables rate limiting.
	Limit func(http.Handler) http.Handler
}

func NewMux(rt Routes, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	intake := http.Handler(http.HandlerFunc(rt.HTTP.CreateJourney))
	if rt.Limit != nil {
		intake = rt.Limit(intake)
	}
	mux.Handle("POST /v1/journeys", intake)
	mux.Handle("GET /v1/journeys/{id}", GzipMiddleware(http.HandlerFunc(rt.HTTP.GetJourney)))
	mux.Handle("GET /v1/journeys/{id}/partial", GzipMiddleware(http.HandlerFunc(rt.HTTP.GetPartial)))
	mux.HandleFunc("GET /v1/providers", rt.HTTP.ListProviders)
	if rt.WS != nil {
		mux.HandleFunc("GET /v1/journeys/{id}/ws", rt.WS.ServeWS)
	}

	mux.HandleFunc("GET /healthz", rt.Health.Healthz)
	mux.HandleFunc("GET /readyz", rt.Health.Readyz)
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	return LoggingMiddleware(logger)(CORSMiddleware(mux))
}
