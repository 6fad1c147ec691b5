package model

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleUser    Role = "user"
	RoleDentist Role = "dentist"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleUser, RoleDentist, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Privileged roles may book on behalf of patients and are exempt from the one-active-booking rule.
func (r Role) Privileged() bool {
	return r == RoleDentist || r == RoleAdmin
}

type Status string

const (
	StatusBooked Status = "Booked"
	StatusCancel Status = "Cancel"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.TrimSpace(s)); st {
	case StatusBooked, StatusCancel:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role Role
}

type User struct {
	ID        string
	Role      Role
	CreatedAt time.Time
}

type Provider struct {
	ID                string
	UserID            string
	YearsOfExperience int
	AreaOfExpertise   []Specialty
	CreatedAt         time.Time
}

type Booking struct {
	ID            string
	ProviderID    string
	PatientID     string
	ApptAt        time.Time
	IsUnavailable bool
	Status        Status
	CreatedAt     time.Time
}

// Active bookings occupy their slot.
func (b Booking) Active() bool {
	return b.Status == StatusBooked
}

// Reservation is an active patient booking as opposed to a provider-blocked marker.
func (b Booking) Reservation() bool {
	return b.Active() && !b.IsUnavailable
}

type OffHour struct {
	ID              string
	OwnerID         string // empty when IsForAllDentist
	Start           time.Time
	End             time.Time
	Description     string
	IsForAllDentist bool
	CreatedAt       time.Time
}

// Covers reports whether t lies in the closed range [Start, End].
func (o OffHour) Covers(t time.Time) bool {
	return !t.Before(o.Start) && !t.After(o.End)
}

// AppliesTo reports whether the off-hour blocks the provider owned by providerUserID.
func (o OffHour) AppliesTo(providerUserID string) bool {
	return o.IsForAllDentist || (o.OwnerID != "" && o.OwnerID == providerUserID)
}
