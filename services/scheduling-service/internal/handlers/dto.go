package handlers

import (
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

type bookingResponse struct {
	ID            string    `json:"id"`
	Provider      string    `json:"provider"`
	Patient       string    `json:"patient"`
	ApptAt        time.Time `json:"apptDateAndTime"`
	IsUnavailable bool      `json:"isUnavailable"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

func toBooking(b model.Booking) bookingResponse {
	return bookingResponse{
		ID:            b.ID,
		Provider:      b.ProviderID,
		Patient:       b.PatientID,
		ApptAt:        b.ApptAt.UTC(),
		IsUnavailable: b.IsUnavailable,
		Status:        string(b.Status),
		CreatedAt:     b.CreatedAt.UTC(),
	}
}

type createBookingRequest struct {
	ApptAt        time.Time `json:"apptDateAndTime"`
	IsUnavailable bool      `json:"isUnavailable"`
	Patient       string    `json:"patient"`
}

type updateBookingRequest struct {
	ApptAt        *time.Time `json:"apptDateAndTime"`
	IsUnavailable *bool      `json:"isUnavailable"`
	Status        *string    `json:"status"`
}

type offHourResponse struct {
	ID              string    `json:"id"`
	Owner           string    `json:"owner,omitempty"`
	Start           time.Time `json:"startDate"`
	End             time.Time `json:"endDate"`
	Description     string    `json:"description"`
	IsForAllDentist bool      `json:"isForAllDentist"`
	CreatedAt       time.Time `json:"createdAt"`
}

func toOffHour(o model.OffHour) offHourResponse {
	return offHourResponse{
		ID:              o.ID,
		Owner:           o.OwnerID,
		Start:           o.Start.UTC(),
		End:             o.End.UTC(),
		Description:     o.Description,
		IsForAllDentist: o.IsForAllDentist,
		CreatedAt:       o.CreatedAt.UTC(),
	}
}

type createOffHourRequest struct {
	Owner           string    `json:"owner"`
	Start           time.Time `json:"startDate"`
	End             time.Time `json:"endDate"`
	Description     string    `json:"description"`
	IsForAllDentist bool      `json:"isForAllDentist"`
}

type updateOffHourRequest struct {
	Start           *time.Time `json:"startDate"`
	End             *time.Time `json:"endDate"`
	Description     *string    `json:"description"`
	IsForAllDentist *bool      `json:"isForAllDentist"`
}

type providerResponse struct {
	ID                string    `json:"id"`
	User              string    `json:"user"`
	YearsOfExperience int       `json:"yearsOfExperience"`
	AreaOfExpertise   []string  `json:"areaOfExpertise"`
	CreatedAt         time.Time `json:"createdAt"`
}

func toProvider(p model.Provider) providerResponse {
	areas := make([]string, 0, len(p.AreaOfExpertise))
	for _, a := range p.AreaOfExpertise {
		areas = append(areas, string(a))
	}
	return providerResponse{
		ID:                p.ID,
		User:              p.UserID,
		YearsOfExperience: p.YearsOfExperience,
		AreaOfExpertise:   areas,
		CreatedAt:         p.CreatedAt.UTC(),
	}
}

type createProviderRequest struct {
	User              string   `json:"user"`
	YearsOfExperience int      `json:"yearsOfExperience"`
	AreaOfExpertise   []string `json:"areaOfExpertise"`
}

type slotsResponse struct {
	Provider string      `json:"provider"`
	Step     string      `json:"step"`
	Slots    []time.Time `json:"slots"`
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, fn(v))
	}
	return out
}
