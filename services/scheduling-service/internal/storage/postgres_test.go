package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

func TestMapErr(t *testing.T) {
	if mapErr(nil) != nil {
		t.Fatal("nil should stay nil")
	}
	if !errors.Is(mapErr(pgx.ErrNoRows), ErrNotFound) {
		t.Fatal("no rows should map to ErrNotFound")
	}
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "bookings_active_slot_uq"})
	if !errors.Is(mapErr(unique), ErrDuplicate) {
		t.Fatal("unique violation should map to ErrDuplicate")
	}
	missingRef := &pgconn.PgError{Code: "23503", ConstraintName: "bookings_patient_id_fkey"}
	if !errors.Is(mapErr(missingRef), ErrNotFound) {
		t.Fatal("foreign key violation should map to ErrNotFound")
	}
	other := &pgconn.PgError{Code: "40001"}
	if err := mapErr(other); errors.Is(err, ErrDuplicate) || errors.Is(err, ErrNotFound) {
		t.Fatalf("unexpected mapping for %v", err)
	}
}

func TestBookingWhere(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	unavailable := false
	w := bookingWhere(BookingFilter{
		ProviderID:    "p1",
		At:            &at,
		Status:        model.StatusBooked,
		IsUnavailable: &unavailable,
		ExcludeID:     "b1",
	})

	want := " WHERE provider_id = $1 AND appt_at = $2 AND status = $3 AND is_unavailable = $4 AND id <> $5"
	if got := w.String(); got != want {
		t.Fatalf("where = %q\nwant    %q", got, want)
	}
	if len(w.args) != 5 || w.args[2] != "Booked" {
		t.Fatalf("unexpected args %v", w.args)
	}
	if (&where{}).String() != "" {
		t.Fatal("empty filter should produce no WHERE")
	}
}
