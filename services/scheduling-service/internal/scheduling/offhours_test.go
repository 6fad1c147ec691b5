package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
)

func TestGlobalOffHourCancelsEveryCoveredReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	day := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	inX := f.book(patientA, f.x, day.Add(9*time.Hour))
	inY, err := f.svc.CreateBooking(ctx, admin, CreateBookingInput{ProviderID: f.y.ID, PatientID: "pb", ApptAt: day.Add(15 * time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	nextDay, err := f.svc.CreateBooking(ctx, admin, CreateBookingInput{ProviderID: f.y.ID, PatientID: "pa", ApptAt: day.Add(33 * time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	marker, err := f.svc.CreateBooking(ctx, dentistX, CreateBookingInput{ProviderID: f.x.ID, ApptAt: day.Add(12 * time.Hour), IsUnavailable: true})
	if err != nil {
		t.Fatal(err)
	}

	o, err := f.svc.CreateOffHour(ctx, admin, CreateOffHourInput{
		IsForAllDentist: true,
		OwnerID:         "dx",
		Start:           day,
		End:             day.Add(23*time.Hour + 59*time.Minute),
		Description:     "clinic closed",
	})
	if err != nil {
		t.Fatalf("CreateOffHour: %v", err)
	}
	if o.OwnerID != "" || !o.IsForAllDentist {
		t.Fatalf("global off-hour should have no owner, got %+v", o)
	}

	for _, id := range []string{inX.ID, inY.ID} {
		if st := f.booking(id).Status; st != model.StatusCancel {
			t.Fatalf("booking %s status = %s, want Cancel", id, st)
		}
	}
	if st := f.booking(nextDay.ID).Status; st != model.StatusBooked {
		t.Fatalf("booking outside the range was cancelled")
	}
	if st := f.booking(marker.ID).Status; st != model.StatusBooked {
		t.Fatalf("unavailable marker was cancelled")
	}

	cancelled := 0
	for _, e := range f.events.Events() {
		if e.EventType == outbox.TopicBookingCancelled {
			cancelled++
		}
	}
	if cancelled != 2 {
		t.Fatalf("cancellation events = %d, want 2", cancelled)
	}
	if n := f.events.Count(outbox.TopicOffHourCreated); n != 1 {
		t.Fatalf("off-hour events = %d, want 1", n)
	}

	// Nothing in the range can be booked afterwards.
	_, err = f.svc.CreateBooking(ctx, patientA, CreateBookingInput{ProviderID: f.x.ID, ApptAt: day.Add(9 * time.Hour)})
	wantKind(t, err, KindConflict)
}

func TestScopedOffHourOnlyTouchesOwnersProvider(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	atX := f.book(patientA, f.x, slot)
	atY := f.book(patientB, f.y, slot)

	if _, err := f.svc.CreateOffHour(ctx, dentistX, CreateOffHourInput{Start: slot, End: slot}); err != nil {
		t.Fatalf("CreateOffHour: %v", err)
	}
	if st := f.booking(atX.ID).Status; st != model.StatusCancel {
		t.Fatalf("covered booking status = %s, want Cancel", st)
	}
	if st := f.booking(atY.ID).Status; st != model.StatusBooked {
		t.Fatalf("other provider's booking status = %s, want Booked", st)
	}
}

func TestOffHourForOwnerWithoutProviderCancelsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	solo := model.Actor{ID: "dz", Role: model.RoleDentist}
	if _, err := f.svc.SyncActor(ctx, solo); err != nil {
		t.Fatal(err)
	}
	b := f.book(patientA, f.x, slot)

	if _, err := f.svc.CreateOffHour(ctx, solo, CreateOffHourInput{Start: slot, End: slot}); err != nil {
		t.Fatalf("CreateOffHour: %v", err)
	}
	if st := f.booking(b.ID).Status; st != model.StatusBooked {
		t.Fatalf("booking status = %s, want Booked", st)
	}
}

func TestCreateOffHourValidationAndAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		actor model.Actor
		in    CreateOffHourInput
		kind  Kind
	}{
		{"start after end", dentistX, CreateOffHourInput{Start: slot.Add(time.Hour), End: slot}, KindValidation},
		{"start in the past", dentistX, CreateOffHourInput{Start: now.Add(-time.Minute), End: slot}, KindValidation},
		{"missing range", dentistX, CreateOffHourInput{}, KindValidation},
		{"users cannot create off-hours", patientA, CreateOffHourInput{Start: slot, End: slot}, KindAuthorization},
		{"dentists cannot create global off-hours", dentistX, CreateOffHourInput{IsForAllDentist: true, Start: slot, End: slot}, KindAuthorization},
		{"dentists cannot create for others", dentistX, CreateOffHourInput{OwnerID: "dy", Start: slot, End: slot}, KindAuthorization},
		{"admin for unknown owner", admin, CreateOffHourInput{OwnerID: "ghost", Start: slot, End: slot}, KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateOffHour(ctx, tc.actor, tc.in)
			wantKind(t, err, tc.kind)
		})
	}

	// Start equal to end is a single-instant blackout.
	if _, err := f.svc.CreateOffHour(ctx, admin, CreateOffHourInput{OwnerID: "dy", Start: slot, End: slot}); err != nil {
		t.Fatalf("admin for dy: %v", err)
	}
}

func TestUpdateOffHourRecascadesAndDeleteDoesNotRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	start := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	later := f.book(patientA, f.x, start.Add(24*time.Hour))

	o, err := f.svc.CreateOffHour(ctx, dentistX, CreateOffHourInput{Start: start, End: start.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	if st := f.booking(later.ID).Status; st != model.StatusBooked {
		t.Fatalf("booking outside the range was cancelled")
	}

	_, err = f.svc.UpdateOffHour(ctx, dentistY, o.ID, OffHourPatch{End: ptr(start.Add(48 * time.Hour))})
	wantKind(t, err, KindAuthorization)
	_, err = f.svc.UpdateOffHour(ctx, dentistX, o.ID, OffHourPatch{End: ptr(start.Add(-time.Hour))})
	wantKind(t, err, KindValidation)
	_, err = f.svc.UpdateOffHour(ctx, dentistX, o.ID, OffHourPatch{IsForAllDentist: ptr(true)})
	wantKind(t, err, KindAuthorization)

	updated, err := f.svc.UpdateOffHour(ctx, dentistX, o.ID, OffHourPatch{End: ptr(start.Add(48 * time.Hour)), Description: ptr("conference")})
	if err != nil {
		t.Fatalf("UpdateOffHour: %v", err)
	}
	if updated.Description != "conference" || !updated.End.Equal(start.Add(48*time.Hour)) {
		t.Fatalf("unexpected off-hour %+v", updated)
	}
	if st := f.booking(later.ID).Status; st != model.StatusCancel {
		t.Fatalf("booking newly covered by the update status = %s, want Cancel", st)
	}

	wantKind(t, f.svc.DeleteOffHour(ctx, patientA, o.ID), KindAuthorization)
	if err := f.svc.DeleteOffHour(ctx, dentistX, o.ID); err != nil {
		t.Fatalf("DeleteOffHour: %v", err)
	}
	if st := f.booking(later.ID).Status; st != model.StatusCancel {
		t.Fatalf("deleting the off-hour restored a booking")
	}
	_, err = f.svc.GetOffHour(ctx, dentistX, o.ID)
	wantKind(t, err, KindNotFound)
	wantKind(t, f.svc.DeleteOffHour(ctx, dentistX, o.ID), KindNotFound)
}

func TestAdminTogglesGlobalFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o, err := f.svc.CreateOffHour(ctx, admin, CreateOffHourInput{IsForAllDentist: true, Start: slot, End: slot.Add(time.Hour)})
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.UpdateOffHour(ctx, dentistX, o.ID, OffHourPatch{Description: ptr("mine now")})
	wantKind(t, err, KindAuthorization)

	scoped, err := f.svc.UpdateOffHour(ctx, admin, o.ID, OffHourPatch{IsForAllDentist: ptr(false)})
	if err != nil {
		t.Fatalf("UpdateOffHour: %v", err)
	}
	if scoped.IsForAllDentist || scoped.OwnerID != "admin" {
		t.Fatalf("unexpected off-hour %+v", scoped)
	}
}

func TestListOffHours(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, a := range []model.Actor{dentistX, dentistY} {
		if _, err := f.svc.CreateOffHour(ctx, a, CreateOffHourInput{Start: slot, End: slot.Add(time.Hour)}); err != nil {
			t.Fatal(err)
		}
	}
	all, err := f.svc.ListOffHours(ctx, patientA, ListOffHoursInput{})
	if err != nil || len(all) != 2 {
		t.Fatalf("ListOffHours = %d, %v", len(all), err)
	}
	mine, err := f.svc.ListOffHours(ctx, dentistX, ListOffHoursInput{OwnerID: "dx"})
	if err != nil || len(mine) != 1 || mine[0].OwnerID != "dx" {
		t.Fatalf("ListOffHours(dx) = %+v, %v", mine, err)
	}
}
