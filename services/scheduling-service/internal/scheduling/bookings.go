package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/policy"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

type CreateBookingInput struct {
	ProviderID string
	// PatientID defaults to the actor. Only dentists and admins may name someone else.
	PatientID     string
	ApptAt        time.Time
	IsUnavailable bool
}

// BookingPatch changes an existing booking; nil fields are left alone.
type BookingPatch struct {
	ApptAt        *time.Time
	IsUnavailable *bool
	Status        *model.Status
}

func (p BookingPatch) empty() bool {
	return p.ApptAt == nil && p.IsUnavailable == nil && p.Status == nil
}

type ListBookingsInput struct {
	ProviderID string
	Limit      int
}

func (s *Service) CreateBooking(ctx context.Context, actor model.Actor, in CreateBookingInput) (out model.Booking, err error) {
	ctx, span := s.start(ctx, "CreateBooking", actor,
		attribute.String("provider.id", in.ProviderID),
		attribute.Bool("booking.is_unavailable", in.IsUnavailable))
	defer func() { end(span, err) }()

	if err := checkActor(actor); err != nil {
		return model.Booking{}, err
	}
	if in.ProviderID == "" {
		return model.Booking{}, validationf("provider is required")
	}
	if in.ApptAt.IsZero() {
		return model.Booking{}, validationf("apptDateAndTime is required")
	}
	at := in.ApptAt.UTC()
	logAttrs := []any{"provider_id", in.ProviderID, "instant", at}

	provider, err := s.store.FindProvider(ctx, in.ProviderID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Booking{}, validationf("provider %s does not exist", in.ProviderID)
	}
	if err != nil {
		return model.Booking{}, s.fail(ctx, "CreateBooking", actor, err, logAttrs...)
	}

	patientID := in.PatientID
	if patientID == "" || in.IsUnavailable {
		patientID = actor.ID
	}
	rel := policy.Relation{IsOwner: patientID == actor.ID, IsProviderOfRecord: provider.UserID == actor.ID}
	action := policy.CreateReservation
	if in.IsUnavailable {
		action = policy.CreateMarker
	}
	if !policy.Allowed(actor.Role, rel, action) {
		if in.IsUnavailable {
			return model.Booking{}, forbiddenf("only the provider or an admin may mark a slot unavailable")
		}
		return model.Booking{}, forbiddenf("not allowed to book for user %s at provider %s", patientID, provider.ID)
	}

	if _, err := s.store.FindUser(ctx, patientID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return model.Booking{}, notFoundf("patient %s not found", patientID)
		}
		return model.Booking{}, s.fail(ctx, "CreateBooking", actor, err, logAttrs...)
	}

	err = s.store.InTx(ctx, func(ctx context.Context) error {
		if in.IsUnavailable {
			out, err = s.insertMarker(ctx, actor, provider, at)
		} else {
			out, err = s.insertReservation(ctx, actor, provider, patientID, at)
		}
		return err
	})
	if err != nil {
		return model.Booking{}, s.fail(ctx, "CreateBooking", actor, err, logAttrs...)
	}

	s.logger.InfoContext(ctx, "booking created",
		"booking_id", out.ID, "provider_id", out.ProviderID, "patient_id", out.PatientID,
		"instant", out.ApptAt, "is_unavailable", out.IsUnavailable, "actor_id", actor.ID)
	return out, nil
}

func (s *Service) insertReservation(ctx context.Context, actor model.Actor, provider model.Provider, patientID string, at time.Time) (model.Booking, error) {
	// Dentists and admins booking on someone's behalf are exempt from the one-active-booking rule.
	if actor.Role == model.RoleUser {
		if err := s.store.LockPatient(ctx, patientID); err != nil {
			return model.Booking{}, err
		}
		reservation := false
		active, err := s.store.FindBookings(ctx, storage.BookingFilter{
			PatientID:     patientID,
			Status:        model.StatusBooked,
			IsUnavailable: &reservation,
			Limit:         1,
		})
		if err != nil {
			return model.Booking{}, err
		}
		if len(active) > 0 {
			return model.Booking{}, conflictf("user %s already holds an active booking", patientID)
		}
	}

	res, err := s.checker.IsSlotAvailable(ctx, provider, at)
	if err != nil {
		return model.Booking{}, err
	}
	if !res.Available {
		return model.Booking{}, slotConflict(res)
	}

	return s.insert(ctx, actor, model.Booking{
		ID:         uuid.NewString(),
		ProviderID: provider.ID,
		PatientID:  patientID,
		ApptAt:     at,
		Status:     model.StatusBooked,
	})
}

func (s *Service) insertMarker(ctx context.Context, actor model.Actor, provider model.Provider, at time.Time) (model.Booking, error) {
	res, err := s.checker.IsSlotAvailable(ctx, provider, at)
	if err != nil {
		return model.Booking{}, err
	}
	if res.Conflict != nil {
		if res.Conflict.IsUnavailable {
			return model.Booking{}, conflictf("slot is already marked unavailable")
		}
		if err := s.displace(ctx, actor, provider.ID, at, ""); err != nil {
			return model.Booking{}, err
		}
	}

	return s.insert(ctx, actor, model.Booking{
		ID:            uuid.NewString(),
		ProviderID:    provider.ID,
		PatientID:     actor.ID,
		ApptAt:        at,
		IsUnavailable: true,
		Status:        model.StatusBooked,
	})
}

func (s *Service) insert(ctx context.Context, actor model.Actor, b model.Booking) (model.Booking, error) {
	out, err := s.store.InsertBooking(ctx, b)
	if errors.Is(err, storage.ErrDuplicate) {
		return model.Booking{}, conflictf("slot was booked concurrently")
	}
	if errors.Is(err, storage.ErrNotFound) {
		return model.Booking{}, notFoundf("provider %s or patient %s no longer exists", b.ProviderID, b.PatientID)
	}
	if err != nil {
		return model.Booking{}, err
	}
	if err := s.emitBooking(ctx, outbox.TopicBookingCreated, out, actor, "", ""); err != nil {
		return model.Booking{}, err
	}
	return out, nil
}

func slotConflict(res availability.Result) error {
	switch {
	case res.Conflict != nil && res.Conflict.IsUnavailable:
		return conflictf("slot is marked unavailable by the provider")
	case res.Conflict != nil:
		return conflictf("slot is already booked")
	case res.OffHour != nil:
		return conflictf("slot falls within off-hour %s", res.OffHour.ID)
	default:
		return conflictf("slot is unavailable")
	}
}

// displace cancels every active reservation of providerID at the instant, other than
// excludeID, to make room for an unavailable marker.
func (s *Service) displace(ctx context.Context, actor model.Actor, providerID string, at time.Time, excludeID string) error {
	matched, cancelled, err := s.store.CancelBookings(ctx, storage.CancelScope{
		ProviderID: providerID,
		From:       at,
		To:         at,
		ExcludeID:  excludeID,
	})
	if err != nil {
		return err
	}
	if matched > 0 {
		s.logger.InfoContext(ctx, "bookings displaced",
			"provider_id", providerID, "instant", at,
			"matched", matched, "cancelled", len(cancelled), "actor_id", actor.ID)
	}
	for _, b := range cancelled {
		if err := s.emitBooking(ctx, outbox.TopicBookingCancelled, b, actor, outbox.ReasonDisplaced, ""); err != nil {
			return err
		}
	}
	return nil
}

// access loads a booking with its provider and checks the actor may touch it.
func (s *Service) access(ctx context.Context, actor model.Actor, id string) (model.Booking, model.Provider, error) {
	if err := checkActor(actor); err != nil {
		return model.Booking{}, model.Provider{}, err
	}
	b, err := s.store.FindBooking(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Booking{}, model.Provider{}, notFoundf("booking %s not found", id)
	}
	if err != nil {
		return model.Booking{}, model.Provider{}, err
	}
	provider, err := s.store.FindProvider(ctx, b.ProviderID)
	if err != nil {
		return model.Booking{}, model.Provider{}, err
	}
	rel := policy.Relation{IsOwner: b.PatientID == actor.ID, IsProviderOfRecord: provider.UserID == actor.ID}
	if !policy.Allowed(actor.Role, rel, policy.AccessBooking) {
		return model.Booking{}, model.Provider{}, forbiddenf("user %s may not access booking %s", actor.ID, id)
	}
	return b, provider, nil
}

func (s *Service) GetBooking(ctx context.Context, actor model.Actor, id string) (out model.Booking, err error) {
	ctx, span := s.start(ctx, "GetBooking", actor, attribute.String("booking.id", id))
	defer func() { end(span, err) }()

	out, _, err = s.access(ctx, actor, id)
	if err != nil {
		return model.Booking{}, s.fail(ctx, "GetBooking", actor, err, "booking_id", id)
	}
	return out, nil
}

// ListBookings scopes by role: users see their own bookings, dentists those of their
// provider record, admins everything or one provider.
func (s *Service) ListBookings(ctx context.Context, actor model.Actor, in ListBookingsInput) (out []model.Booking, err error) {
	ctx, span := s.start(ctx, "ListBookings", actor, attribute.String("provider.id", in.ProviderID))
	defer func() { end(span, err) }()

	if err := checkActor(actor); err != nil {
		return nil, err
	}
	f := storage.BookingFilter{ProviderID: in.ProviderID, Limit: storage.ClampLimit(in.Limit)}
	switch actor.Role {
	case model.RoleUser:
		f.PatientID = actor.ID
	case model.RoleDentist:
		own, err := s.store.FindProviderByUser(ctx, actor.ID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			f.PatientID = actor.ID
		case err != nil:
			return nil, s.fail(ctx, "ListBookings", actor, err)
		case in.ProviderID != "" && in.ProviderID != own.ID:
			return nil, forbiddenf("dentists may only list bookings of their own practice")
		default:
			f.ProviderID = own.ID
		}
	}

	out, err = s.store.FindBookings(ctx, f)
	if err != nil {
		return nil, s.fail(ctx, "ListBookings", actor, err, "provider_id", in.ProviderID)
	}
	return out, nil
}

func (s *Service) UpdateBooking(ctx context.Context, actor model.Actor, id string, patch BookingPatch) (out model.Booking, err error) {
	ctx, span := s.start(ctx, "UpdateBooking", actor, attribute.String("booking.id", id))
	defer func() { end(span, err) }()

	if patch.empty() {
		return model.Booking{}, validationf("nothing to update")
	}
	if patch.Status != nil {
		st, err := model.ParseStatus(string(*patch.Status))
		if err != nil {
			return model.Booking{}, validationf("%v", err)
		}
		patch.Status = &st
	}
	if patch.ApptAt != nil {
		if patch.ApptAt.IsZero() {
			return model.Booking{}, validationf("apptDateAndTime must be a valid instant")
		}
		t := patch.ApptAt.UTC()
		patch.ApptAt = &t
	}

	err = s.store.InTx(ctx, func(ctx context.Context) error {
		out, err = s.update(ctx, actor, id, patch)
		return err
	})
	if err != nil {
		return model.Booking{}, s.fail(ctx, "UpdateBooking", actor, err, "booking_id", id)
	}
	return out, nil
}

func (s *Service) update(ctx context.Context, actor model.Actor, id string, patch BookingPatch) (model.Booking, error) {
	current, provider, err := s.access(ctx, actor, id)
	if err != nil {
		return model.Booking{}, err
	}

	next := current
	if patch.ApptAt != nil {
		next.ApptAt = *patch.ApptAt
	}
	if patch.IsUnavailable != nil {
		next.IsUnavailable = *patch.IsUnavailable
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}

	if current.Status == model.StatusCancel {
		unchanged := next.Status == current.Status &&
			next.IsUnavailable == current.IsUnavailable &&
			next.ApptAt.Equal(current.ApptAt)
		if unchanged {
			// Cancelling a cancelled booking is a no-op.
			return current, nil
		}
		return model.Booking{}, validationf("booking %s is cancelled and can no longer change", id)
	}

	if next.IsUnavailable != current.IsUnavailable {
		rel := policy.Relation{IsOwner: current.PatientID == actor.ID, IsProviderOfRecord: provider.UserID == actor.ID}
		if !policy.Allowed(actor.Role, rel, policy.MarkUnavailable) {
			return model.Booking{}, forbiddenf("only the provider or an admin may change isUnavailable")
		}
	}

	moved := !next.ApptAt.Equal(current.ApptAt)
	if next.Active() {
		if next.IsUnavailable {
			// A marker never shares its slot with another marker; reservations there are displaced.
			blocked := true
			others, err := s.store.FindBookings(ctx, storage.BookingFilter{
				ProviderID:    provider.ID,
				At:            &next.ApptAt,
				Status:        model.StatusBooked,
				IsUnavailable: &blocked,
				ExcludeID:     current.ID,
				Limit:         1,
			})
			if err != nil {
				return model.Booking{}, err
			}
			if len(others) > 0 {
				return model.Booking{}, conflictf("slot is already marked unavailable")
			}
			if err := s.displace(ctx, actor, provider.ID, next.ApptAt, current.ID); err != nil {
				return model.Booking{}, err
			}
		} else if moved {
			res, err := s.checker.IsSlotAvailableExcluding(ctx, provider, next.ApptAt, current.ID)
			if err != nil {
				return model.Booking{}, err
			}
			if !res.Available {
				return model.Booking{}, slotConflict(res)
			}
		}
	}

	updated, err := s.store.UpdateBooking(ctx, id, storage.BookingPatch{
		ApptAt:        patch.ApptAt,
		IsUnavailable: patch.IsUnavailable,
		Status:        patch.Status,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return model.Booking{}, conflictf("slot was booked concurrently")
	}
	if err != nil {
		return model.Booking{}, err
	}

	if updated.Status == model.StatusCancel {
		if err := s.emitBooking(ctx, outbox.TopicBookingCancelled, updated, actor, outbox.ReasonRequested, ""); err != nil {
			return model.Booking{}, err
		}
	}
	s.logger.InfoContext(ctx, "booking updated",
		"booking_id", updated.ID, "provider_id", updated.ProviderID, "instant", updated.ApptAt,
		"status", updated.Status, "is_unavailable", updated.IsUnavailable, "actor_id", actor.ID)
	return updated, nil
}

// DeleteBooking hard-deletes a booking without cascading.
func (s *Service) DeleteBooking(ctx context.Context, actor model.Actor, id string) (err error) {
	ctx, span := s.start(ctx, "DeleteBooking", actor, attribute.String("booking.id", id))
	defer func() { end(span, err) }()

	var deleted model.Booking
	err = s.store.InTx(ctx, func(ctx context.Context) error {
		b, _, err := s.access(ctx, actor, id)
		if err != nil {
			return err
		}
		if err := s.store.DeleteBooking(ctx, id); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return notFoundf("booking %s not found", id)
			}
			return err
		}
		deleted = b
		return s.emitBooking(ctx, outbox.TopicBookingDeleted, b, actor, "", "")
	})
	if err != nil {
		return s.fail(ctx, "DeleteBooking", actor, err, "booking_id", id)
	}
	s.logger.InfoContext(ctx, "booking deleted",
		"booking_id", id, "provider_id", deleted.ProviderID, "instant", deleted.ApptAt, "actor_id", actor.ID)
	return nil
}
