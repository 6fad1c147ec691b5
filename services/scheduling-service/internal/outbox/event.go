package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

// Topics double as event types: one event kind per topic.
const (
	TopicBookingCreated   = "scheduling.booking.created.v1"
	TopicBookingCancelled = "scheduling.booking.cancelled.v1"
	TopicBookingDeleted   = "scheduling.booking.deleted.v1"
	TopicOffHourCreated   = "scheduling.offhour.created.v1"
)

// Cancellation reasons carried on booking.cancelled events.
const (
	ReasonRequested = "requested"
	ReasonDisplaced = "displaced"
	ReasonOffHour   = "off_hour"
)

// Event is the envelope written to the outbox table.
type Event struct {
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type bookingPayload struct {
	BookingID     string    `json:"booking_id"`
	ProviderID    string    `json:"provider_id"`
	PatientID     string    `json:"patient_id"`
	ApptAt        time.Time `json:"appt_at"`
	IsUnavailable bool      `json:"is_unavailable"`
	Status        string    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	OffHourID     string    `json:"off_hour_id,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// BookingEvent builds a booking event. reason and offHourID are only set on cancellations.
func BookingEvent(topic string, b model.Booking, actorID, reason, offHourID string) (Event, error) {
	payload, err := json.Marshal(bookingPayload{
		BookingID:     b.ID,
		ProviderID:    b.ProviderID,
		PatientID:     b.PatientID,
		ApptAt:        b.ApptAt.UTC(),
		IsUnavailable: b.IsUnavailable,
		Status:        string(b.Status),
		Reason:        reason,
		OffHourID:     offHourID,
		ActorID:       actorID,
		OccurredAt:    time.Now().UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:       uuid.NewString(),
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     topic,
		Payload:       payload,
	}, nil
}

type offHourPayload struct {
	OffHourID       string    `json:"off_hour_id"`
	OwnerID         string    `json:"owner_id,omitempty"`
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	IsForAllDentist bool      `json:"is_for_all_dentist"`
	Cancelled       int       `json:"cancelled"`
	ActorID         string    `json:"actor_id,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func OffHourEvent(o model.OffHour, actorID string, cancelled int) (Event, error) {
	payload, err := json.Marshal(offHourPayload{
		OffHourID:       o.ID,
		OwnerID:         o.OwnerID,
		Start:           o.Start.UTC(),
		End:             o.End.UTC(),
		IsForAllDentist: o.IsForAllDentist,
		Cancelled:       cancelled,
		ActorID:         actorID,
		OccurredAt:      time.Now().UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		EventID:       uuid.NewString(),
		AggregateType: "off_hour",
		AggregateID:   o.ID,
		EventType:     TopicOffHourCreated,
		Payload:       payload,
	}, nil
}
