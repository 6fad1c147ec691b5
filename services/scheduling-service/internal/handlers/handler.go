// Package handlers exposes the scheduling operations as a JSON HTTP API.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/clinicsched/libs/auth"
	"github.com/md-rashed-zaman/clinicsched/libs/httpx"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/scheduling"
)

type Handler struct {
	svc      *scheduling.Service
	verifier *auth.Verifier
	logger   *slog.Logger
}

func New(svc *scheduling.Service, verifier *auth.Verifier, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, verifier: verifier, logger: logger}
}

// Register mounts the API on mux. Every route requires a bearer token.
func (h *Handler) Register(mux *http.ServeMux) {
	route := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, h.requireAuth(fn))
	}

	route("POST /api/v1/providers", h.createProvider)
	route("GET /api/v1/providers", h.listProviders)
	route("GET /api/v1/providers/{id}", h.getProvider)
	route("DELETE /api/v1/providers/{id}", h.deleteProvider)
	route("GET /api/v1/providers/{id}/slots", h.freeSlots)

	route("POST /api/v1/providers/{id}/bookings", h.createBooking)
	route("GET /api/v1/bookings", h.listBookings)
	route("GET /api/v1/bookings/{id}", h.getBooking)
	route("PATCH /api/v1/bookings/{id}", h.updateBooking)
	route("DELETE /api/v1/bookings/{id}", h.deleteBooking)

	route("POST /api/v1/offhours", h.createOffHour)
	route("GET /api/v1/offhours", h.listOffHours)
	route("GET /api/v1/offhours/{id}", h.getOffHour)
	route("PATCH /api/v1/offhours/{id}", h.updateOffHour)
	route("DELETE /api/v1/offhours/{id}", h.deleteOffHour)
}

type actorKey struct{}

func actorFrom(ctx context.Context) model.Actor {
	a, _ := ctx.Value(actorKey{}).(model.Actor)
	return a
}

// requireAuth verifies the bearer token, mirrors the caller into the user directory and
// stores the actor on the request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "missing or invalid Authorization header")
			return
		}
		claims, err := h.verifier.Verify(token)
		if err != nil {
			httpx.Logger(r.Context(), h.logger).DebugContext(r.Context(), "token rejected", "err", err)
			httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}
		role, err := model.ParseRole(claims.Role)
		if err != nil {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", "invalid token role")
			return
		}

		actor := model.Actor{ID: claims.Subject, Role: role}
		if _, err := h.svc.SyncActor(r.Context(), actor); err != nil {
			h.writeErr(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func statusFor(kind scheduling.Kind) int {
	switch kind {
	case scheduling.KindValidation:
		return http.StatusBadRequest
	case scheduling.KindAuthorization:
		return http.StatusForbidden
	case scheduling.KindNotFound:
		return http.StatusNotFound
	case scheduling.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, httpx.ErrBadBody) {
		httpx.WriteError(w, http.StatusBadRequest, string(scheduling.KindValidation), err.Error())
		return
	}
	kind := scheduling.KindOf(err)
	if kind == scheduling.KindStorage {
		httpx.Logger(r.Context(), h.logger).ErrorContext(r.Context(), "request failed",
			"method", r.Method, "path", r.URL.Path, "err", err)
	}
	httpx.WriteError(w, statusFor(kind), string(kind), scheduling.MessageOf(err))
}

func badRequest(w http.ResponseWriter, message string) {
	httpx.WriteError(w, http.StatusBadRequest, string(scheduling.KindValidation), message)
}

// queryLimit reads ?limit=; the storage layer clamps it.
func queryLimit(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
