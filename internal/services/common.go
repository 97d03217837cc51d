package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"ecocycle/internal/domain"
	"ecocycle/internal/events"
	"ecocycle/internal/repos"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

var tracer = otel.Tracer("ecocycle/services")

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan closes span; only unexpected failures mark it as errored.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.SetAttributes(attribute.String("error.kind", string(domain.KindOf(err))))
		if domain.KindOf(err) == domain.KindInternal {
			span.RecordError(err)
			span.SetStatus(codes.Error, "internal")
		}
	}
	span.End()
}

// lookup turns a missing row into NotFound and wraps anything else.
func lookup(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Errf(domain.KindNotFound, "%s %s not found", what, id)
	}
	return fmt.Errorf("load %s %s: %w", what, id, err)
}

func newID() string { return uuid.NewString() }

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}

// pageBounds slices an in-memory result the way OFFSET/LIMIT would.
func pageBounds(page, limit, total int) (start, end int) {
	start = (page - 1) * limit
	if start > total {
		start = total
	}
	end = start + limit
	if end > total {
		end = total
	}
	return start, end
}

func clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now()
	}
	return now()
}

// publish never fails the operation: the unit of work has already committed.
func publish(ctx context.Context, pub events.Publisher, logger *zap.Logger, e events.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, e); err != nil && logger != nil {
		logger.Warn("event publish failed",
			zap.String("event_type", e.Type),
			zap.String("aggregate_id", e.AggregateID),
			zap.Error(err))
	}
}

// creditPoints is the only way points are earned: the cached balance and the
// ledger entry move together inside the caller's transaction.
func creditPoints(ctx context.Context, tx *repos.Store, userID string, points int64, desc, ref, now string) error {
	if points < 0 {
		return fmt.Errorf("credit of negative points %d", points)
	}
	ok, err := tx.Users.AddPoints(ctx, userID, points)
	if err != nil {
		return fmt.Errorf("add points: %w", err)
	}
	if !ok {
		return fmt.Errorf("add points: user %s missing", userID)
	}
	return tx.Points.Append(ctx, &domain.PointsEntry{
		ID:          newID(),
		UserID:      userID,
		Points:      points,
		Type:        domain.PointsEarned,
		Description: desc,
		ReferenceID: ref,
		CreatedAt:   now,
	})
}
