package handlers

import (
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/scheduling"
)

const defaultSlotStep = 30 * time.Minute

func (h *Handler) createProvider(w http.ResponseWriter, r *http.Request) {
	var req createProviderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	p, err := h.svc.CreateProvider(r.Context(), actorFrom(r.Context()), scheduling.CreateProviderInput{
		UserID:            req.User,
		YearsOfExperience: req.YearsOfExperience,
		AreaOfExpertise:   req.AreaOfExpertise,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toProvider(p))
}

func (h *Handler) listProviders(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(r)
	if !ok {
		badRequest(w, "limit must be a non-negative integer")
		return
	}
	out, err := h.svc.ListProviders(r.Context(), actorFrom(r.Context()), limit)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, mapSlice(out, toProvider))
}

func (h *Handler) getProvider(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetProvider(r.Context(), actorFrom(r.Context()), r.PathValue("id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toProvider(p))
}

func (h *Handler) deleteProvider(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteProvider(r.Context(), actorFrom(r.Context()), r.PathValue("id")); err != nil {
		h.writeErr(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusNoContent, nil)
}

// freeSlots serves ?from=&to= (RFC 3339) and an optional ?step= duration such as 15m.
func (h *Handler) freeSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(time.RFC3339, q.Get("from"))
	if err != nil {
		badRequest(w, "from must be an RFC 3339 instant")
		return
	}
	to, err := time.Parse(time.RFC3339, q.Get("to"))
	if err != nil {
		badRequest(w, "to must be an RFC 3339 instant")
		return
	}
	step := defaultSlotStep
	if raw := q.Get("step"); raw != "" {
		if step, err = time.ParseDuration(raw); err != nil {
			badRequest(w, "step must be a duration such as 30m")
			return
		}
	}

	id := r.PathValue("id")
	slots, err := h.svc.FreeSlots(r.Context(), actorFrom(r.Context()), id, scheduling.FreeSlotsInput{From: from, To: to, Step: step})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	if slots == nil {
		slots = []time.Time{}
	}
	httpx.WriteJSON(w, http.StatusOK, slotsResponse{Provider: id, Step: step.String(), Slots: slots})
}
