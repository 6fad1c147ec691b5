package scheduling

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
)

var (
	now  = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	slot = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	admin    = model.Actor{ID: "admin", Role: model.RoleAdmin}
	dentistX = model.Actor{ID: "dx", Role: model.RoleDentist}
	dentistY = model.Actor{ID: "dy", Role: model.RoleDentist}
	patientA = model.Actor{ID: "pa", Role: model.RoleUser}
	patientB = model.Actor{ID: "pb", Role: model.RoleUser}
)

type fixture struct {
	t      *testing.T
	store  *storage.Memory
	events *outbox.Recorder
	svc    *Service
	x, y   model.Provider
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemory()
	events := outbox.NewRecorder(logger)
	f := &fixture{
		t:      t,
		store:  store,
		events: events,
		svc:    NewService(store, events, logger, WithClock(func() time.Time { return now })),
	}

	for _, a := range []model.Actor{admin, dentistX, dentistY, patientA, patientB} {
		if _, err := f.svc.SyncActor(ctx, a); err != nil {
			t.Fatalf("SyncActor %s: %v", a.ID, err)
		}
	}
	var err error
	f.x, err = f.svc.CreateProvider(ctx, admin, CreateProviderInput{UserID: "dx", YearsOfExperience: 5, AreaOfExpertise: []string{"Orthodontics"}})
	if err != nil {
		t.Fatalf("CreateProvider x: %v", err)
	}
	f.y, err = f.svc.CreateProvider(ctx, admin, CreateProviderInput{UserID: "dy", YearsOfExperience: 2, AreaOfExpertise: []string{"Endodontics"}})
	if err != nil {
		t.Fatalf("CreateProvider y: %v", err)
	}
	return f
}

func (f *fixture) book(actor model.Actor, provider model.Provider, at time.Time) model.Booking {
	f.t.Helper()
	b, err := f.svc.CreateBooking(context.Background(), actor, CreateBookingInput{ProviderID: provider.ID, ApptAt: at})
	if err != nil {
		f.t.Fatalf("CreateBooking(%s, %s, %s): %v", actor.ID, provider.ID, at.Format(time.RFC3339), err)
	}
	return b
}

func (f *fixture) booking(id string) model.Booking {
	f.t.Helper()
	b, err := f.store.FindBooking(context.Background(), id)
	if err != nil {
		f.t.Fatalf("FindBooking %s: %v", id, err)
	}
	return b
}

// activeAt counts Booked records at (provider, instant).
func (f *fixture) activeAt(provider model.Provider, at time.Time) []model.Booking {
	f.t.Helper()
	out, err := f.store.FindBookings(context.Background(), storage.BookingFilter{
		ProviderID: provider.ID, At: &at, Status: model.StatusBooked,
	})
	if err != nil {
		f.t.Fatal(err)
	}
	return out
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}

func ptr[T any](v T) *T { return &v }
