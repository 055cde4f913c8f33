package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bonvoyage/internal/domain"
	"bonvoyage/internal/store"
)

var (
	ErrPending        = errors.New("results not ready yet")
	ErrTimedOut       = errors.New("results timed out")
	ErrUnknownRequest = errors.New("unknown request")
)

type resultStore interface {
	ReadAll(ctx context.Context, requestID string) ([]domain.Entry, error)
	ReadFinal(ctx context.Context, requestID string) ([]domain.Journey, error)
	GetRequestContext(ctx context.Context, requestID string) (domain.RequestContext, error)
}

type FinalResult struct {
	RequestID string           `json:"request_id"`
	Params    domain.Request   `json:"params"`
	Journeys  []domain.Journey `json:"journeys"`
}

type PartialResult struct {
	RequestID string         `json:"request_id"`
	Params    domain.Request `json:"params"`
	Partial   []domain.Entry `json:"partial"`
	Complete  bool           `json:"complete"`
}

// Results reads what has been stored for a request. A missing final result
// is pending until timeout has elapsed since dispatch.
type Results struct {
	store   resultStore
	timeout time.Duration
	now     func() time.Time
}

func NewResults(store resultStore, timeout time.Duration) *Results {
	return &Results{
		store:   store,
		timeout: timeout,
		now:     time.Now,
	}
}

func (r *Results) Final(ctx context.Context, requestID string) (FinalResult, error) {
	rc, err := r.requestContext(ctx, requestID)
	if err != nil {
		return FinalResult{}, err
	}

	journeys, err := r.store.ReadFinal(ctx, requestID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if r.now().Sub(rc.CreatedAt) >= r.timeout {
			return FinalResult{}, ErrTimedOut
		}
		return FinalResult{}, ErrPending
	case err != nil:
		return FinalResult{}, fmt.Errorf("read final results: %w", err)
	}

	return FinalResult{
		RequestID: requestID,
		Params:    rc.Request,
		Journeys:  journeys,
	}, nil
}

// Partial returns the provider entries received so far.
func (r *Results) Partial(ctx context.Context, requestID string) (PartialResult, error) {
	rc, err := r.requestContext(ctx, requestID)
	if err != nil {
		return PartialResult{}, err
	}

	entries, err := r.store.ReadAll(ctx, requestID)
	if err != nil {
		return PartialResult{}, fmt.Errorf("read partial results: %w", err)
	}
	if entries == nil {
		entries = []domain.Entry{}
	}

	complete := true
	if _, err := r.store.ReadFinal(ctx, requestID); errors.Is(err, store.ErrNotFound) {
		complete = false
	} else if err != nil {
		return PartialResult{}, fmt.Errorf("read final results: %w", err)
	}

	return PartialResult{
		RequestID: requestID,
		Params:    rc.Request,
		Partial:   entries,
		Complete:  complete,
	}, nil
}

func (r *Results) requestContext(ctx context.Context, requestID string) (domain.RequestContext, error) {
	rc, err := r.store.GetRequestContext(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.RequestContext{}, ErrUnknownRequest
	}
	if err != nil {
		return domain.RequestContext{}, fmt.Errorf("get request context: %w", err)
	}
	return rc, nil
}
