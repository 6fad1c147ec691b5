// Package policy is the authorization table shared by the booking and off-hour managers.
// It performs no I/O; callers resolve ownership before asking.
package policy

import "github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"

type Action int

const (
	// CreateReservation books a patient slot.
	CreateReservation Action = iota
	// CreateMarker blocks a slot with an unavailable marker.
	CreateMarker
	// AccessBooking covers reading, updating and deleting an existing booking.
	AccessBooking
	// MarkUnavailable flips isUnavailable on an existing booking, in either direction.
	MarkUnavailable
	// ManageOffHour covers creating, updating and deleting off-hours.
	ManageOffHour
	// ManageProviders covers creating and deleting provider records.
	ManageProviders
)

func (a Action) String() string {
	switch a {
	case CreateReservation:
		return "create_reservation"
	case CreateMarker:
		return "create_marker"
	case AccessBooking:
		return "access_booking"
	case MarkUnavailable:
		return "mark_unavailable"
	case ManageOffHour:
		return "manage_off_hour"
	case ManageProviders:
		return "manage_providers"
	default:
		return "unknown"
	}
}

// Relation describes how the actor relates to the record being acted on.
//
// IsOwner: the actor is the booking's patient, or the off-hour's owner.
// IsProviderOfRecord: the actor is the user behind the booking's provider.
type Relation struct {
	IsOwner            bool
	IsProviderOfRecord bool
}

// Allowed reports whether role may perform action given rel.
func Allowed(role model.Role, rel Relation, action Action) bool {
	if role == model.RoleAdmin {
		return true
	}
	switch action {
	case CreateReservation, AccessBooking:
		switch role {
		case model.RoleUser:
			return rel.IsOwner
		case model.RoleDentist:
			return rel.IsOwner || rel.IsProviderOfRecord
		}
	case CreateMarker, MarkUnavailable:
		return role == model.RoleDentist && rel.IsProviderOfRecord
	case ManageOffHour:
		return role == model.RoleDentist && rel.IsOwner
	}
	return false
}
