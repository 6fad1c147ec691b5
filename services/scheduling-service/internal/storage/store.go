// Package storage is the entity store behind the scheduling core: users, providers, bookings
// and off-hours, plus the transaction and locking hooks the core needs to keep its invariants.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

var (
	// ErrNotFound is returned by point lookups and single-record mutations when no row matches.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate is returned when a write violates a uniqueness constraint, most importantly
	// the one active booking per (provider, instant) rule.
	ErrDuplicate = errors.New("storage: duplicate")
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ClampLimit maps non-positive limits to DefaultLimit and caps at MaxLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// BookingFilter selects bookings; zero fields do not constrain.
type BookingFilter struct {
	ProviderID    string
	PatientID     string
	At            *time.Time // exact instant
	From, To      *time.Time // closed range on the appointment instant
	Status        model.Status
	IsUnavailable *bool
	ExcludeID     string
	Limit         int // 0 means no limit
}

type BookingPatch struct {
	ApptAt        *time.Time
	IsUnavailable *bool
	Status        *model.Status
}

// CancelScope selects the active reservations (Booked, not unavailable) a cascade cancels.
// An empty ProviderID means every provider.
type CancelScope struct {
	ProviderID string
	From, To   time.Time // closed range
	ExcludeID  string
}

// OffHourFilter selects off-hours; zero fields do not constrain.
type OffHourFilter struct {
	OwnerID string
	// ProviderUserID restricts to off-hours owned by that user or flagged for every provider.
	ProviderUserID string
	Covering       *time.Time
	From, To       *time.Time // off-hour overlaps [From, To]
	Limit          int
}

type OffHourPatch struct {
	Start           *time.Time
	End             *time.Time
	Description     *string
	IsForAllDentist *bool
	OwnerID         *string
}

type Tx interface {
	// InTx runs fn in a transaction; nested calls join the outer one.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockPatient serialises booking decisions for one patient until the surrounding
	// transaction ends. It must be called inside InTx.
	LockPatient(ctx context.Context, patientID string) error
}

type Directory interface {
	// UpsertUser mirrors an account issued by the auth service.
	UpsertUser(ctx context.Context, u model.User) (model.User, error)
	FindUser(ctx context.Context, id string) (model.User, error)
	FindProvider(ctx context.Context, id string) (model.Provider, error)
	FindProviderByUser(ctx context.Context, userID string) (model.Provider, error)
	ListProviders(ctx context.Context, limit int) ([]model.Provider, error)
	InsertProvider(ctx context.Context, p model.Provider) (model.Provider, error)
	DeleteProvider(ctx context.Context, id string) error
}

type Bookings interface {
	FindBooking(ctx context.Context, id string) (model.Booking, error)
	FindBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error)
	InsertBooking(ctx context.Context, b model.Booking) (model.Booking, error)
	UpdateBooking(ctx context.Context, id string, p BookingPatch) (model.Booking, error)
	DeleteBooking(ctx context.Context, id string) error
	DeleteBookingsByProvider(ctx context.Context, providerID string) (int64, error)
	// CancelBookings transitions every reservation in scope to Cancel. It returns how many
	// rows matched and the bookings it actually transitioned.
	CancelBookings(ctx context.Context, scope CancelScope) (matched int, cancelled []model.Booking, err error)
}

type OffHours interface {
	FindOffHour(ctx context.Context, id string) (model.OffHour, error)
	FindOffHours(ctx context.Context, f OffHourFilter) ([]model.OffHour, error)
	InsertOffHour(ctx context.Context, o model.OffHour) (model.OffHour, error)
	UpdateOffHour(ctx context.Context, id string, p OffHourPatch) (model.OffHour, error)
	DeleteOffHour(ctx context.Context, id string) error
}

type Store interface {
	Tx
	Directory
	Bookings
	OffHours
}
