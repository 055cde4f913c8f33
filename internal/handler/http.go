package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bonvoyage/internal/broker"
	"bonvoyage/internal/dispatch"
	"bonvoyage/internal/domain"
)

const maxRequestBody = 64 << 10

type dispatcher interface {
	Dispatch(ctx context.Context, req domain.Request) (string, error)
	Providers() []string
}

type resultReader interface {
	Final(ctx context.Context, requestID string) (broker.FinalResult, error)
	Partial(ctx context.Context, requestID string) (broker.PartialResult, error)
}

type HTTPHandler struct {
	dispatcher dispatcher
	results    resultReader
	logger     *slog.Logger
}

func NewHTTPHandler(d dispatcher, results resultReader, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		dispatcher: d,
		results:    results,
		logger:     logger.With("component", "http"),
	}
}

// JourneyRequest is the intake body. Points are "lat,lon" strings.
type JourneyRequest struct {
	Origin          string `json:"origin"`
	Destination     string `json:"destination"`
	StartTime       int64  `json:"start_time"`
	Passengers      int    `json:"passenger_count"`
	OriginName      string `json:"origin_name,omitempty"`
	DestinationName string `json:"destination_name,omitempty"`
}

func (r JourneyRequest) toDomain() (domain.Request, error) {
	origin, err := parsePoint(r.Origin, "origin")
	if err != nil {
		return domain.Request{}, err
	}
	destination, err := parsePoint(r.Destination, "destination")
	if err != nil {
		return domain.Request{}, err
	}
	passengers := r.Passengers
	if passengers == 0 {
		passengers = 1
	}
	return domain.Request{
		Origin:          origin,
		Destination:     destination,
		StartTime:       r.StartTime,
		Passengers:      passengers,
		OriginName:      r.OriginName,
		DestinationName: r.DestinationName,
	}, nil
}

func parsePoint(s, field string) (domain.Point, error) {
	p, err := domain.ParsePoint(s)
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return nil, &domain.ValidationError{Field: field, Value: ve.Value, Message: ve.Message}
	}
	return p, err
}

type DispatchResponse struct {
	RequestID string `json:"request_id"`
}

type PendingResponse struct {
	Status string `json:"status"`
}

type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

func (h *HTTPHandler) CreateJourney(w http.ResponseWriter, r *http.Request) {
	var body JourneyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req, err := body.toDomain()
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.dispatcher.Dispatch(r.Context(), req)
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		respondError(w, http.StatusBadRequest, ve.Error())
		return
	case errors.Is(err, dispatch.ErrDispatchUnavailable):
		h.logger.Error("dispatch failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "journey search unavailable")
		return
	case err != nil:
		h.logger.Error("dispatch failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Location", "/v1/journeys/"+id)
	respondJSON(w, http.StatusAccepted, DispatchResponse{RequestID: id})
}

func (h *HTTPHandler) GetJourney(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := h.results.Final(r.Context(), id)
	switch {
	case errors.Is(err, broker.ErrPending):
		respondJSON(w, http.StatusAccepted, PendingResponse{Status: "pending"})
	case errors.Is(err, broker.ErrTimedOut):
		respondError(w, http.StatusGatewayTimeout, "timed out")
	case errors.Is(err, broker.ErrUnknownRequest):
		respondError(w, http.StatusNotFound, "request not found")
	case err != nil:
		h.logger.Error("read final results failed", "request_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	default:
		respondJSON(w, http.StatusOK, res)
	}
}

func (h *HTTPHandler) GetPartial(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	res, err := h.results.Partial(r.Context(), id)
	switch {
	case errors.Is(err, broker.ErrUnknownRequest):
		respondError(w, http.StatusNotFound, "request not found")
	case err != nil:
		h.logger.Error("read partial results failed", "request_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	default:
		respondJSON(w, http.StatusOK, res)
	}
}

func (h *HTTPHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ProvidersResponse{Providers: h.dispatcher.Providers()})
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
