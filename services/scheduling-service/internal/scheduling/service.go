// Package scheduling owns the booking lifecycle, the off-hour cascade and the provider
// directory. Every exported operation takes the authenticated actor and returns either a
// result or an *Error.
package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/clinicsched/libs/otel"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// EventSink receives domain events inside the transaction that produced them.
type EventSink interface {
	Append(ctx context.Context, evt outbox.Event) error
}

type Service struct {
	store   storage.Store
	checker *availability.Checker
	events  EventSink
	logger  *slog.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Service)

// WithClock overrides time.Now, used for the not-in-the-past rule and slot listings.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store storage.Store, events EventSink, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:   store,
		checker: availability.NewChecker(store),
		events:  events,
		logger:  logger,
		tracer:  otelx.Tracer("scheduling"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) start(ctx context.Context, op string, actor model.Actor, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("actor.id", actor.ID),
		attribute.String("actor.role", string(actor.Role)),
	)
	return s.tracer.Start(ctx, "scheduling."+op, trace.WithAttributes(attrs...))
}

// end closes span; only storage failures mark it as errored.
func end(span trace.Span, err error) {
	if err == nil {
		span.End()
		return
	}
	kind := KindOf(err)
	span.SetAttributes(attribute.String("error.kind", string(kind)))
	if kind == KindStorage {
		otelx.EndSpan(span, err)
		return
	}
	span.End()
}

// fail passes typed errors through. Anything else is a storage failure: it is logged with
// the given context and wrapped.
func (s *Service) fail(ctx context.Context, op string, actor model.Actor, err error, attrs ...any) error {
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	args := append([]any{"op", op, "actor_id", actor.ID, "actor_role", string(actor.Role), "err", err}, attrs...)
	s.logger.ErrorContext(ctx, "storage failure", args...)
	return &Error{Kind: KindStorage, Message: "storage failure", Err: err}
}

func (s *Service) emitBooking(ctx context.Context, topic string, b model.Booking, actor model.Actor, reason, offHourID string) error {
	evt, err := outbox.BookingEvent(topic, b, actor.ID, reason, offHourID)
	if err != nil {
		return err
	}
	return s.events.Append(ctx, evt)
}

func checkActor(actor model.Actor) error {
	if actor.ID == "" {
		return forbiddenf("missing actor")
	}
	switch actor.Role {
	case model.RoleUser, model.RoleDentist, model.RoleAdmin:
		return nil
	default:
		// Callers normalise roles with model.ParseRole; anything else is not a known role.
		return forbiddenf("unknown role %q", actor.Role)
	}
}

// SyncActor mirrors the authenticated account so it can be referenced as a patient or owner.
func (s *Service) SyncActor(ctx context.Context, actor model.Actor) (model.User, error) {
	if err := checkActor(actor); err != nil {
		return model.User{}, err
	}
	u, err := s.store.UpsertUser(ctx, model.User{ID: actor.ID, Role: actor.Role})
	if err != nil {
		return model.User{}, s.fail(ctx, "SyncActor", actor, err)
	}
	return u, nil
}
