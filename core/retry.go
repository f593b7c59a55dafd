package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/avast/retry-go"
	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// MaxAttempts is how many times a call is tried before giving up with
// ErrConnectionExhausted.
const MaxAttempts = 5

// IsTransient reports whether err is a connection level failure worth
// retrying: network errors, timeouts, a disconnected client, write concern
// failures and anything marked with Transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errs.IsTransient(err) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, mongo.ErrClientDisconnected) ||
		mongo.IsNetworkError(err) ||
		mongo.IsTimeout(err) {
		return true
	}

	var we mongo.WriteException
	if errors.As(err, &we) && we.WriteConcernError != nil {
		return true
	}
	var bwe mongo.BulkWriteException
	if errors.As(err, &bwe) && bwe.WriteConcernError != nil {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorLabel("RetryableWriteError") {
		return true
	}
	return false
}

func (m *Model[T]) retryable(err error) bool {
	if IsTransient(err) {
		return true
	}
	return m.conf.transient != nil && m.conf.transient(err)
}

// do runs fn, retrying transient failures up to MaxAttempts times.
// After every failed attempt the connection is re-established, so fn must
// fetch its collection handle through m.coll on each call. Errors that are
// not transient are returned unchanged after the first attempt.
func (m *Model[T]) do(ctx context.Context, verb string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ctx, span := m.tracer.Start(ctx, "mongodoc."+verb,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "mongodb"),
			attribute.String("db.collection", m.schema.Collection),
			attribute.String("db.operation", verb),
		))
	defer span.End()

	opID := xid.New().String()
	attempts := 0

	err := retry.Do(
		func() error {
			attempts++
			m.log.Debug("dispatch",
				zap.String("op", opID),
				zap.String("verb", verb),
				zap.Int("attempt", attempts))
			return fn(ctx)
		},
		retry.Context(ctx),
		retry.Attempts(MaxAttempts),
		retry.Delay(m.conf.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && m.retryable(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			m.retryCount.Add(ctx, 1)
			m.log.Warn("transient failure, reconnecting",
				zap.String("op", opID),
				zap.String("verb", verb),
				zap.Uint("attempt", n+1),
				zap.Error(err))

			if rerr := m.conn.Reconnect(ctx); rerr != nil {
				m.log.Error("reconnect failed",
					zap.String("op", opID),
					zap.Error(rerr))
			}
		}),
	)

	span.SetAttributes(attribute.Int("mongodoc.attempts", attempts))

	if err == nil {
		return nil
	}

	if ctx.Err() == nil && m.retryable(err) {
		m.exhaustedCount.Add(ctx, 1)
		m.log.Error("giving up",
			zap.String("op", opID),
			zap.String("verb", verb),
			zap.Int("attempts", attempts),
			zap.Error(err))

		err = &Error{
			Kind: ErrConnectionExhausted,
			Msg:  fmt.Sprintf("%s failed after %d attempts", verb, attempts),
			Err:  err,
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
