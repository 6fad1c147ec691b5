package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/policy"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

type CreateOffHourInput struct {
	// OwnerID defaults to the actor and is ignored when IsForAllDentist is set.
	OwnerID         string
	IsForAllDentist bool
	Start           time.Time
	End             time.Time
	Description     string
}

type OffHourPatch struct {
	Start           *time.Time
	End             *time.Time
	Description     *string
	IsForAllDentist *bool
}

func (p OffHourPatch) empty() bool {
	return p.Start == nil && p.End == nil && p.Description == nil && p.IsForAllDentist == nil
}

type ListOffHoursInput struct {
	OwnerID string
	Limit   int
}

// CreateOffHour stores a blackout and cancels every reservation it covers.
func (s *Service) CreateOffHour(ctx context.Context, actor model.Actor, in CreateOffHourInput) (out model.OffHour, err error) {
	ctx, span := s.start(ctx, "CreateOffHour", actor, attribute.Bool("off_hour.global", in.IsForAllDentist))
	defer func() { end(span, err) }()

	if err := checkActor(actor); err != nil {
		return model.OffHour{}, err
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return model.OffHour{}, validationf("startDate and endDate are required")
	}
	start, stop := in.Start.UTC(), in.End.UTC()
	if start.After(stop) {
		return model.OffHour{}, validationf("startDate must not be after endDate")
	}
	if start.Before(s.now()) {
		return model.OffHour{}, validationf("startDate must not be in the past")
	}

	owner := in.OwnerID
	if in.IsForAllDentist {
		owner = ""
	} else if owner == "" {
		owner = actor.ID
	}
	if !policy.Allowed(actor.Role, policy.Relation{IsOwner: owner != "" && owner == actor.ID}, policy.ManageOffHour) {
		if in.IsForAllDentist {
			return model.OffHour{}, forbiddenf("only an admin may create a clinic-wide off-hour")
		}
		return model.OffHour{}, forbiddenf("not allowed to create off-hours for user %s", owner)
	}
	if owner != "" {
		if _, err := s.store.FindUser(ctx, owner); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return model.OffHour{}, notFoundf("user %s not found", owner)
			}
			return model.OffHour{}, s.fail(ctx, "CreateOffHour", actor, err, "owner_id", owner)
		}
	}

	err = s.store.InTx(ctx, func(ctx context.Context) error {
		out, err = s.store.InsertOffHour(ctx, model.OffHour{
			ID:              uuid.NewString(),
			OwnerID:         owner,
			Start:           start,
			End:             stop,
			Description:     in.Description,
			IsForAllDentist: in.IsForAllDentist,
		})
		if err != nil {
			return err
		}
		cancelled, err := s.cascade(ctx, actor, out)
		if err != nil {
			return err
		}
		evt, err := outbox.OffHourEvent(out, actor.ID, cancelled)
		if err != nil {
			return err
		}
		return s.events.Append(ctx, evt)
	})
	if err != nil {
		return model.OffHour{}, s.fail(ctx, "CreateOffHour", actor, err, "owner_id", owner, "start", start, "end", stop)
	}
	return out, nil
}

// cascade cancels the reservations o covers and returns how many it transitioned.
// An off-hour whose owner has no provider record covers nothing.
func (s *Service) cascade(ctx context.Context, actor model.Actor, o model.OffHour) (int, error) {
	scope := storage.CancelScope{From: o.Start, To: o.End}
	scopeName := "global"
	if !o.IsForAllDentist {
		provider, err := s.store.FindProviderByUser(ctx, o.OwnerID)
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.InfoContext(ctx, "off-hour cascade skipped", "off_hour_id", o.ID, "owner_id", o.OwnerID, "reason", "owner has no provider record")
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		scope.ProviderID = provider.ID
		scopeName = provider.ID
	}

	matched, cancelled, err := s.store.CancelBookings(ctx, scope)
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "off-hour cascade",
		"off_hour_id", o.ID, "scope", scopeName, "start", o.Start, "end", o.End,
		"matched", matched, "cancelled", len(cancelled), "actor_id", actor.ID)

	for _, b := range cancelled {
		if err := s.emitBooking(ctx, outbox.TopicBookingCancelled, b, actor, outbox.ReasonOffHour, o.ID); err != nil {
			return 0, err
		}
	}
	return len(cancelled), nil
}

// authorizeOffHour allows admins on any off-hour and dentists on their own. Clinic-wide
// off-hours have no owner, so only admins pass.
func authorizeOffHour(actor model.Actor, o model.OffHour) error {
	rel := policy.Relation{IsOwner: !o.IsForAllDentist && o.OwnerID == actor.ID}
	if !policy.Allowed(actor.Role, rel, policy.ManageOffHour) {
		return forbiddenf("user %s may not manage off-hour %s", actor.ID, o.ID)
	}
	return nil
}

func (s *Service) findOffHour(ctx context.Context, id string) (model.OffHour, error) {
	o, err := s.store.FindOffHour(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.OffHour{}, notFoundf("off-hour %s not found", id)
	}
	return o, err
}

// UpdateOffHour applies patch and re-runs the cascade over the resulting range. Bookings
// cancelled under the old range stay cancelled.
func (s *Service) UpdateOffHour(ctx context.Context, actor model.Actor, id string, patch OffHourPatch) (out model.OffHour, err error) {
	ctx, span := s.start(ctx, "UpdateOffHour", actor, attribute.String("off_hour.id", id))
	defer func() { end(span, err) }()

	if err := checkActor(actor); err != nil {
		return model.OffHour{}, err
	}
	if patch.empty() {
		return model.OffHour{}, validationf("nothing to update")
	}

	err = s.store.InTx(ctx, func(ctx context.Context) error {
		current, err := s.findOffHour(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeOffHour(actor, current); err != nil {
			return err
		}

		sp := storage.OffHourPatch{Start: patch.Start, End: patch.End, Description: patch.Description}
		start, stop := current.Start, current.End
		if patch.Start != nil {
			start = patch.Start.UTC()
			sp.Start = &start
		}
		if patch.End != nil {
			stop = patch.End.UTC()
			sp.End = &stop
		}
		if start.After(stop) {
			return validationf("startDate must not be after endDate")
		}
		if patch.IsForAllDentist != nil && *patch.IsForAllDentist != current.IsForAllDentist {
			if actor.Role != model.RoleAdmin {
				return forbiddenf("only an admin may change the clinic-wide flag")
			}
			sp.IsForAllDentist = patch.IsForAllDentist
			owner := ""
			if !*patch.IsForAllDentist {
				// A scoped off-hour needs an owner; the admin takes it over.
				owner = actor.ID
			}
			sp.OwnerID = &owner
		}

		out, err = s.store.UpdateOffHour(ctx, id, sp)
		if err != nil {
			return err
		}
		_, err = s.cascade(ctx, actor, out)
		return err
	})
	if err != nil {
		return model.OffHour{}, s.fail(ctx, "UpdateOffHour", actor, err, "off_hour_id", id)
	}
	s.logger.InfoContext(ctx, "off-hour updated", "off_hour_id", out.ID, "start", out.Start, "end", out.End, "actor_id", actor.ID)
	return out, nil
}

// DeleteOffHour removes the blackout. Bookings it cancelled are not restored.
func (s *Service) DeleteOffHour(ctx context.Context, actor model.Actor, id string) (err error) {
	ctx, span := s.start(ctx, "DeleteOffHour", actor, attribute.String("off_hour.id", id))
	defer func() { end(span, err) }()

	if err := checkActor(actor); err != nil {
		return err
	}
	err = s.store.InTx(ctx, func(ctx context.Context) error {
		current, err := s.findOffHour(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeOffHour(actor, current); err != nil {
			return err
		}
		if err := s.store.DeleteOffHour(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return notFoundf("off-hour %s not found", id)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, "DeleteOffHour", actor, err, "off_hour_id", id)
	}
	s.logger.InfoContext(ctx, "off-hour deleted", "off_hour_id", id, "actor_id", actor.ID)
	return nil
}

func (s *Service) GetOffHour(ctx context.Context, actor model.Actor, id string) (out model.OffHour, err error) {
	ctx, span := s.start(ctx, "GetOffHour", actor, attribute.String("off_hour.id", id))
	defer func() { end(span, err) }()

	if err := checkActor(actor); err != nil {
		return model.OffHour{}, err
	}
	out, err = s.findOffHour(ctx, id)
	if err != nil {
		return model.OffHour{}, s.fail(ctx, "GetOffHour", actor, err, "off_hour_id", id)
	}
	return out, nil
}

func (s *Service) ListOffHours(ctx context.Context, actor model.Actor, in ListOffHoursInput) (out []model.OffHour, err error) {
	ctx, span := s.start(ctx, "ListOffHours", actor)
	defer func() { end(span, err) }()

	if err := checkActor(actor); err != nil {
		return nil, err
	}
	out, err = s.store.FindOffHours(ctx, storage.OffHourFilter{OwnerID: in.OwnerID, Limit: storage.ClampLimit(in.Limit)})
	if err != nil {
		return nil, s.fail(ctx, "ListOffHours", actor, err)
	}
	return out, nil
}
