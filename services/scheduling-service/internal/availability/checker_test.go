package availability

import (
	"context"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
)

var at = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*storage.Memory, model.Provider, model.Provider) {
	t.Helper()
	ctx := context.Background()
	m := storage.NewMemory()
	for _, u := range []model.User{
		{ID: "dx", Role: model.RoleDentist},
		{ID: "dy", Role: model.RoleDentist},
		{ID: "pa", Role: model.RoleUser},
	} {
		if _, err := m.UpsertUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}
	x, err := m.InsertProvider(ctx, model.Provider{ID: "px", UserID: "dx", AreaOfExpertise: []model.Specialty{model.GeneralDentistry}})
	if err != nil {
		t.Fatal(err)
	}
	y, err := m.InsertProvider(ctx, model.Provider{ID: "py", UserID: "dy", AreaOfExpertise: []model.Specialty{model.GeneralDentistry}})
	if err != nil {
		t.Fatal(err)
	}
	return m, x, y
}

func TestIsSlotAvailable(t *testing.T) {
	ctx := context.Background()

	t.Run("empty slot", func(t *testing.T) {
		m, x, _ := setup(t)
		res, err := NewChecker(m).IsSlotAvailable(ctx, x, at)
		if err != nil || !res.Available || res.Conflict != nil || res.OffHour != nil {
			t.Fatalf("unexpected result %+v %v", res, err)
		}
	})

	t.Run("booked reservation blocks", func(t *testing.T) {
		m, x, y := setup(t)
		if _, err := m.InsertBooking(ctx, model.Booking{ID: "b1", ProviderID: x.ID, PatientID: "pa", ApptAt: at, Status: model.StatusBooked}); err != nil {
			t.Fatal(err)
		}
		res, _ := NewChecker(m).IsSlotAvailable(ctx, x, at)
		if res.Available || res.Conflict == nil || res.Conflict.ID != "b1" {
			t.Fatalf("expected conflict with b1, got %+v", res)
		}
		other, _ := NewChecker(m).IsSlotAvailable(ctx, y, at)
		if !other.Available {
			t.Fatal("another provider's slot should stay available")
		}
		excluding, _ := NewChecker(m).IsSlotAvailableExcluding(ctx, x, at, "b1")
		if !excluding.Available {
			t.Fatal("excluding the occupant should free the slot")
		}
	})

	t.Run("unavailable marker blocks", func(t *testing.T) {
		m, x, _ := setup(t)
		if _, err := m.InsertBooking(ctx, model.Booking{ID: "mk", ProviderID: x.ID, PatientID: "dx", ApptAt: at, Status: model.StatusBooked, IsUnavailable: true}); err != nil {
			t.Fatal(err)
		}
		res, _ := NewChecker(m).IsSlotAvailable(ctx, x, at)
		if res.Available || res.Conflict == nil || !res.Conflict.IsUnavailable {
			t.Fatalf("expected marker conflict, got %+v", res)
		}
	})

	t.Run("cancelled booking does not block", func(t *testing.T) {
		m, x, _ := setup(t)
		if _, err := m.InsertBooking(ctx, model.Booking{ID: "c", ProviderID: x.ID, PatientID: "pa", ApptAt: at, Status: model.StatusCancel}); err != nil {
			t.Fatal(err)
		}
		res, _ := NewChecker(m).IsSlotAvailable(ctx, x, at)
		if !res.Available {
			t.Fatalf("cancelled booking should not block, got %+v", res)
		}
	})

	t.Run("own and global off-hours block", func(t *testing.T) {
		m, x, y := setup(t)
		if _, err := m.InsertOffHour(ctx, model.OffHour{ID: "o1", OwnerID: "dx", Start: at, End: at.Add(time.Hour)}); err != nil {
			t.Fatal(err)
		}
		res, _ := NewChecker(m).IsSlotAvailable(ctx, x, at)
		if res.Available || res.OffHour == nil || res.OffHour.ID != "o1" {
			t.Fatalf("expected own off-hour to block, got %+v", res)
		}
		if res, _ := NewChecker(m).IsSlotAvailable(ctx, y, at); !res.Available {
			t.Fatal("provider-scoped off-hour must not block other providers")
		}

		if _, err := m.InsertOffHour(ctx, model.OffHour{ID: "g", IsForAllDentist: true, Start: at.Add(-time.Hour), End: at}); err != nil {
			t.Fatal(err)
		}
		if res, _ := NewChecker(m).IsSlotAvailable(ctx, y, at); res.Available || res.OffHour.ID != "g" {
			t.Fatalf("global off-hour ending at the instant should block, got %+v", res)
		}
	})
}

func TestFreeSlots(t *testing.T) {
	ctx := context.Background()
	m, x, _ := setup(t)
	if _, err := m.InsertBooking(ctx, model.Booking{ID: "b1", ProviderID: x.ID, PatientID: "pa", ApptAt: at, Status: model.StatusBooked}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.InsertOffHour(ctx, model.OffHour{ID: "o", OwnerID: "dx", Start: at.Add(time.Hour), End: at.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	slots, err := NewChecker(m).FreeSlots(ctx, x, at.Add(-time.Hour), at.Add(2*time.Hour), time.Hour, at.Add(-2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	// 09:00 free, 10:00 booked, 11:00 off, 12:00 free.
	if len(slots) != 2 || !slots[0].Equal(at.Add(-time.Hour)) || !slots[1].Equal(at.Add(2*time.Hour)) {
		t.Fatalf("unexpected slots %v", slots)
	}
}
