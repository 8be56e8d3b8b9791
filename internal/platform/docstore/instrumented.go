package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"ttrpg-tracker/internal/platform/metrics"
)

type instrumented struct {
	next Store
}

// Instrument wraps a Store so every call is counted and timed.
func Instrument(next Store) Store {
	return instrumented{next: next}
}

func observe(op string, start time.Time, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	case errors.Is(err, ErrLimitReached):
		result = "limit"
	default:
		result = "error"
	}
	metrics.StoreOperations.WithLabelValues(op, result).Inc()
	metrics.StoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s instrumented) List(ctx context.Context, col Path) (docs []Document, err error) {
	defer func(start time.Time) { observe("list", start, err) }(time.Now())
	return s.next.List(ctx, col)
}

func (s instrumented) Get(ctx context.Context, col Path, id uuid.UUID) (doc Document, err error) {
	defer func(start time.Time) { observe("get", start, err) }(time.Now())
	return s.next.Get(ctx, col, id)
}

func (s instrumented) Count(ctx context.Context, col Path) (n int, err error) {
	defer func(start time.Time) { observe("count", start, err) }(time.Now())
	return s.next.Count(ctx, col)
}

func (s instrumented) Add(ctx context.Context, col Path, data any) (doc Document, err error) {
	defer func(start time.Time) { observe("add", start, err) }(time.Now())
	return s.next.Add(ctx, col, data)
}

func (s instrumented) AddIfBelow(ctx context.Context, col Path, max int, data any) (doc Document, err error) {
	defer func(start time.Time) { observe("add_if_below", start, err) }(time.Now())
	return s.next.AddIfBelow(ctx, col, max, data)
}

func (s instrumented) Update(ctx context.Context, col Path, id uuid.UUID, patch map[string]any) (doc Document, err error) {
	defer func(start time.Time) { observe("update", start, err) }(time.Now())
	return s.next.Update(ctx, col, id, patch)
}

func (s instrumented) Delete(ctx context.Context, col Path, id uuid.UUID) (err error) {
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())
	return s.next.Delete(ctx, col, id)
}

func (s instrumented) DeleteAll(ctx context.Context, col Path) (err error) {
	defer func(start time.Time) { observe("delete_all", start, err) }(time.Now())
	return s.next.DeleteAll(ctx, col)
}
