package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/scheduling"
)

func (h *Handler) createOffHour(w http.ResponseWriter, r *http.Request) {
	var req createOffHourRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	o, err := h.svc.CreateOffHour(r.Context(), actorFrom(r.Context()), scheduling.CreateOffHourInput{
		OwnerID:         req.Owner,
		IsForAllDentist: req.IsForAllDentist,
		Start:           req.Start,
		End:             req.End,
		Description:     req.Description,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toOffHour(o))
}

func (h *Handler) listOffHours(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		badRequest(w, "limit must be a non-negative integer")
		return
	}
	out, err := h.svc.ListOffHours(r.Context(), actorFrom(r.Context()), scheduling.ListOffHoursInput{
		OwnerID: r.URL.Query().Get("owner"),
		Limit:   limit,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(out, toOffHour))
}

func (h *Handler) getOffHour(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.GetOffHour(r.Context(), actorFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOffHour(o))
}

func (h *Handler) updateOffHour(w http.ResponseWriter, r *http.Request) {
	var req updateOffHourRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	o, err := h.svc.UpdateOffHour(r.Context(), actorFrom(r.Context()), r.PathValue("id"), scheduling.OffHourPatch{
		Start:           req.Start,
		End:             req.End,
		Description:     req.Description,
		IsForAllDentist: req.IsForAllDentist,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toOffHour(o))
}

func (h *Handler) deleteOffHour(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteOffHour(r.Context(), actorFrom(r.Context()), r.PathValue("id")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusNoContent, nil)
}
