package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/scheduling"
)

func (h *Handler) createBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	b, err := h.svc.CreateBooking(r.Context(), actorFrom(r.Context()), scheduling.CreateBookingInput{
		ProviderID:    r.PathValue("id"),
		PatientID:     req.Patient,
		ApptAt:        req.ApptAt,
		IsUnavailable: req.IsUnavailable,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toBooking(b))
}

func (h *Handler) listBookings(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		badRequest(w, "limit must be a non-negative integer")
		return
	}
	out, err := h.svc.ListBookings(r.Context(), actorFrom(r.Context()), scheduling.ListBookingsInput{
		ProviderID: r.URL.Query().Get("provider"),
		Limit:      limit,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(out, toBooking))
}

func (h *Handler) getBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBooking(r.Context(), actorFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBooking(b))
}

func (h *Handler) updateBooking(w http.ResponseWriter, r *http.Request) {
	var req updateBookingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	patch := scheduling.BookingPatch{ApptAt: req.ApptAt, IsUnavailable: req.IsUnavailable}
	if req.Status != nil {
		st := model.Status(*req.Status)
		patch.Status = &st
	}
	b, err := h.svc.UpdateBooking(r.Context(), actorFrom(r.Context()), r.PathValue("id"), patch)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toBooking(b))
}

func (h *Handler) deleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteBooking(r.Context(), actorFrom(r.Context()), r.PathValue("id")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusNoContent, nil)
}
