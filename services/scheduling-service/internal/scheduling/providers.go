package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/policy"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
)

type CreateProviderInput struct {
	UserID            string
	YearsOfExperience int
	AreaOfExpertise   []string
}

type FreeSlotsInput struct {
	From time.Time
	To   time.Time
	Step time.Duration
}

const (
	minSlotStep   = 5 * time.Minute
	maxSlotWindow = 31 * 24 * time.Hour
)

func (s *Service) CreateProvider(ctx context.Context, actor model.Actor, in CreateProviderInput) (out model.Provider, err error) {
	ctx, span := s.start(ctx, "CreateProvider", actor, attribute.String("user.id", in.UserID))
	defer func() { end(span, err) }()

	if err := checkActor(actor); err != nil {
		return model.Provider{}, err
	}
	if !policy.Allowed(actor.Role, policy.Relation{}, policy.ManageProviders) {
		return model.Provider{}, forbiddenf("only an admin may create providers")
	}
	if in.UserID == "" {
		return model.Provider{}, validationf("user is required")
	}
	if in.YearsOfExperience < 0 {
		return model.Provider{}, validationf("yearsOfExperience must not be negative")
	}
	areas, err := model.ParseSpecialties(in.AreaOfExpertise)
	if err != nil {
		return model.Provider{}, validationf("%v", err)
	}

	user, err := s.store.FindUser(ctx, in.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Provider{}, notFoundf("user %s not found", in.UserID)
	}
	if err != nil {
		return model.Provider{}, s.fail(ctx, "CreateProvider", actor, err, "user_id", in.UserID)
	}
	if user.Role != model.RoleDentist {
		return model.Provider{}, validationf("user %s must have the dentist role", in.UserID)
	}

	out, err = s.store.InsertProvider(ctx, model.Provider{
		ID:                uuid.NewString(),
		UserID:            in.UserID,
		YearsOfExperience: in.YearsOfExperience,
		AreaOfExpertise:   areas,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		return model.Provider{}, conflictf("user %s already has a provider record", in.UserID)
	}
	if err != nil {
		return model.Provider{}, s.fail(ctx, "CreateProvider", actor, err, "user_id", in.UserID)
	}
	s.logger.InfoContext(ctx, "provider created", "provider_id", out.ID, "user_id", out.UserID, "actor_id", actor.ID)
	return out, nil
}

func (s *Service) findProvider(ctx context.Context, id string) (model.Provider, error) {
	p, err := s.store.FindProvider(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Provider{}, notFoundf("provider %s not found", id)
	}
	return p, err
}

func (s *Service) GetProvider(ctx context.Context, actor model.Actor, id string) (out model.Provider, err error) {
	ctx, span := s.start(ctx, "GetProvider", actor, attribute.String("provider.id", id))
	defer func() { end(span, err) }()

	out, err = s.findProvider(ctx, id)
	if err != nil {
		return model.Provider{}, s.fail(ctx, "GetProvider", actor, err, "provider_id", id)
	}
	return out, nil
}

func (s *Service) ListProviders(ctx context.Context, actor model.Actor, limit int) (out []model.Provider, err error) {
	ctx, span := s.start(ctx, "ListProviders", actor)
	defer func() { end(span, err) }()

	out, err = s.store.ListProviders(ctx, limit)
	if err != nil {
		return nil, s.fail(ctx, "ListProviders", actor, err)
	}
	return out, nil
}

// DeleteProvider removes the provider and every booking it holds in one transaction.
func (s *Service) DeleteProvider(ctx context.Context, actor model.Actor, id string) (err error) {
	ctx, span := s.start(ctx, "DeleteProvider", actor, attribute.String("provider.id", id))
	defer func() { end(span, err) }()

	if err := checkActor(actor); err != nil {
		return err
	}
	if !policy.Allowed(actor.Role, policy.Relation{}, policy.ManageProviders) {
		return forbiddenf("only an admin may delete providers")
	}

	var removed int64
	err = s.store.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.findProvider(ctx, id); err != nil {
			return err
		}
		n, err := s.store.DeleteBookingsByProvider(ctx, id)
		if err != nil {
			return err
		}
		removed = n
		return s.store.DeleteProvider(ctx, id)
	})
	if err != nil {
		return s.fail(ctx, "DeleteProvider", actor, err, "provider_id", id)
	}
	s.logger.InfoContext(ctx, "provider deleted", "provider_id", id, "bookings_deleted", removed, "actor_id", actor.ID)
	return nil
}

// FreeSlots lists bookable instants of a provider inside a window of at most 31 days.
func (s *Service) FreeSlots(ctx context.Context, actor model.Actor, providerID string, in FreeSlotsInput) (out []time.Time, err error) {
	ctx, span := s.start(ctx, "FreeSlots", actor, attribute.String("provider.id", providerID))
	defer func() { end(span, err) }()

	if in.From.IsZero() || in.To.IsZero() {
		return nil, validationf("from and to are required")
	}
	from, to := in.From.UTC(), in.To.UTC()
	if to.Before(from) {
		return nil, validationf("from must not be after to")
	}
	if to.Sub(from) > maxSlotWindow {
		return nil, validationf("window must not exceed 31 days")
	}
	if in.Step < minSlotStep {
		return nil, validationf("step must be at least %s", minSlotStep)
	}

	provider, err := s.findProvider(ctx, providerID)
	if err != nil {
		return nil, s.fail(ctx, "FreeSlots", actor, err, "provider_id", providerID)
	}
	out, err = s.checker.FreeSlots(ctx, provider, from, to, in.Step, s.now())
	if err != nil {
		return nil, s.fail(ctx, "FreeSlots", actor, err, "provider_id", providerID)
	}
	return out, nil
}
