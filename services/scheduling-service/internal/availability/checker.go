// Package availability decides whether a (provider, instant) slot can take a new booking.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
)

// Store is the read side of the entity store the checker needs.
type Store interface {
	FindBookings(ctx context.Context, f storage.BookingFilter) ([]model.Booking, error)
	FindOffHours(ctx context.Context, f storage.OffHourFilter) ([]model.OffHour, error)
}

// Result explains a decision. When the slot is unavailable, Conflict holds the active booking
// occupying it and/or OffHour the blackout covering it.
type Result struct {
	Available bool
	Conflict  *model.Booking
	OffHour   *model.OffHour
}

type Checker struct {
	store Store
}

func NewChecker(store Store) *Checker {
	return &Checker{store: store}
}

// IsSlotAvailable has no side effects; it does not guard against a concurrent insert, the
// storage uniqueness rule does.
func (c *Checker) IsSlotAvailable(ctx context.Context, provider model.Provider, at time.Time) (Result, error) {
	return c.check(ctx, provider, at, "")
}

// IsSlotAvailableExcluding ignores the booking excludeID, for moving an existing booking.
func (c *Checker) IsSlotAvailableExcluding(ctx context.Context, provider model.Provider, at time.Time, excludeID string) (Result, error) {
	return c.check(ctx, provider, at, excludeID)
}

func (c *Checker) check(ctx context.Context, provider model.Provider, at time.Time, excludeID string) (Result, error) {
	res := Result{Available: true}

	occupied, err := c.store.FindBookings(ctx, storage.BookingFilter{
		ProviderID: provider.ID,
		At:         &at,
		Status:     model.StatusBooked,
		ExcludeID:  excludeID,
		Limit:      1,
	})
	if err != nil {
		return Result{}, fmt.Errorf("find bookings at slot: %w", err)
	}
	if len(occupied) > 0 {
		res.Available = false
		res.Conflict = &occupied[0]
	}

	covering, err := c.store.FindOffHours(ctx, storage.OffHourFilter{
		ProviderUserID: provider.UserID,
		Covering:       &at,
		Limit:          1,
	})
	if err != nil {
		return Result{}, fmt.Errorf("find covering off-hours: %w", err)
	}
	if len(covering) > 0 {
		res.Available = false
		res.OffHour = &covering[0]
	}
	return res, nil
}

// FreeSlots lists the bookable instants for provider in [from, to], stepping by step and
// skipping instants before now.
func (c *Checker) FreeSlots(ctx context.Context, provider model.Provider, from, to time.Time, step time.Duration, now time.Time) ([]time.Time, error) {
	if step <= 0 || to.Before(from) {
		return nil, nil
	}
	booked, err := c.store.FindBookings(ctx, storage.BookingFilter{
		ProviderID: provider.ID,
		From:       &from,
		To:         &to,
		Status:     model.StatusBooked,
	})
	if err != nil {
		return nil, fmt.Errorf("find bookings in window: %w", err)
	}
	offHours, err := c.store.FindOffHours(ctx, storage.OffHourFilter{
		ProviderUserID: provider.UserID,
		From:           &from,
		To:             &to,
	})
	if err != nil {
		return nil, fmt.Errorf("find off-hours in window: %w", err)
	}

	taken := make([]time.Time, 0, len(booked))
	for _, b := range booked {
		taken = append(taken, b.ApptAt)
	}
	return OpenSlots(from, to, step, taken, offHours, now), nil
}
