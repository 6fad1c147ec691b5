package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/auth"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/storage"
)

const secret = "test-secret"

var now = time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)

type env struct {
	t        *testing.T
	mux      *http.ServeMux
	svc      *scheduling.Service
	provider string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := scheduling.NewService(storage.NewMemory(), outbox.NewRecorder(nil), logger,
		scheduling.WithClock(func() time.Time { return now }))
	mux := http.NewServeMux()
	New(svc, auth.NewVerifier(secret, nil), logger).Register(mux)

	ctx := context.Background()
	admin := model.Actor{ID: "admin", Role: model.RoleAdmin}
	for _, a := range []model.Actor{admin, {ID: "dx", Role: model.RoleDentist}} {
		if _, err := svc.SyncActor(ctx, a); err != nil {
			t.Fatal(err)
		}
	}
	p, err := svc.CreateProvider(ctx, admin, scheduling.CreateProviderInput{UserID: "dx", AreaOfExpertise: []string{"Orthodontics"}})
	if err != nil {
		t.Fatal(err)
	}
	return &env{t: t, mux: mux, svc: svc, provider: p.ID}
}

func token(t *testing.T, sub, role string) string {
	t.Helper()
	tok, err := auth.SignHS256(auth.NewClaims(sub, role, time.Hour), secret)
	if err != nil {
		t.Fatalf("SignHS256: %v", err)
	}
	return tok
}

type reply struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e *env) do(method, path, tok string, body any) (int, reply) {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			e.t.Fatal(err)
		}
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	rw := httptest.NewRecorder()
	e.mux.ServeHTTP(rw, req)

	var out reply
	if rw.Body.Len() > 0 {
		if err := json.Unmarshal(rw.Body.Bytes(), &out); err != nil {
			e.t.Fatalf("decode %s %s response %q: %v", method, path, rw.Body.String(), err)
		}
	}
	return rw.Code, out
}

func TestRequiresBearerToken(t *testing.T) {
	e := newEnv(t)

	code, out := e.do(http.MethodGet, "/api/v1/bookings", "", nil)
	if code != http.StatusUnauthorized || out.Error == nil || out.Error.Kind != "unauthenticated" {
		t.Fatalf("expected 401 envelope, got %d %+v", code, out.Error)
	}
	if code, _ := e.do(http.MethodGet, "/api/v1/bookings", "garbage", nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", code)
	}
	if code, _ := e.do(http.MethodGet, "/api/v1/bookings", token(t, "pa", "superuser"), nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown role, got %d", code)
	}
}

func TestBookingFlow(t *testing.T) {
	e := newEnv(t)
	pa := token(t, "pa", "user")
	pb := token(t, "pb", "user")
	dx := token(t, "dx", "dentist")
	at := "2025-03-01T10:00:00Z"
	path := "/api/v1/providers/" + e.provider + "/bookings"

	code, out := e.do(http.MethodPost, path, pa, map[string]any{"apptDateAndTime": at})
	if code != http.StatusCreated {
		t.Fatalf("create: %d %+v", code, out.Error)
	}
	var created bookingResponse
	if err := json.Unmarshal(out.Data, &created); err != nil {
		t.Fatal(err)
	}
	if created.Patient != "pa" || created.Status != "Booked" || created.Provider != e.provider {
		t.Fatalf("unexpected booking %+v", created)
	}

	code, out = e.do(http.MethodPost, path, pb, map[string]any{"apptDateAndTime": at})
	if code != http.StatusConflict || out.Error.Kind != "conflict" {
		t.Fatalf("double booking: %d %+v", code, out.Error)
	}

	code, _ = e.do(http.MethodGet, "/api/v1/bookings/"+created.ID, pb, nil)
	if code != http.StatusForbidden {
		t.Fatalf("foreign read: %d", code)
	}

	code, out = e.do(http.MethodPost, path, dx, map[string]any{"apptDateAndTime": at, "isUnavailable": true})
	if code != http.StatusCreated {
		t.Fatalf("marker: %d %+v", code, out.Error)
	}

	code, out = e.do(http.MethodGet, "/api/v1/bookings/"+created.ID, pa, nil)
	if code != http.StatusOK {
		t.Fatalf("get: %d", code)
	}
	var displaced bookingResponse
	if err := json.Unmarshal(out.Data, &displaced); err != nil {
		t.Fatal(err)
	}
	if displaced.Status != "Cancel" {
		t.Fatalf("displaced status = %s", displaced.Status)
	}

	code, out = e.do(http.MethodPatch, "/api/v1/bookings/"+created.ID, pa, map[string]any{"status": "Booked"})
	if code != http.StatusBadRequest || out.Error.Kind != "validation" {
		t.Fatalf("reopen cancelled: %d %+v", code, out.Error)
	}

	code, out = e.do(http.MethodGet, "/api/v1/bookings", dx, nil)
	if code != http.StatusOK {
		t.Fatalf("list: %d", code)
	}
	var list []bookingResponse
	if err := json.Unmarshal(out.Data, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("provider listing = %d, want 2", len(list))
	}

	if code, _ := e.do(http.MethodDelete, "/api/v1/bookings/"+created.ID, pa, nil); code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}
	if code, _ := e.do(http.MethodGet, "/api/v1/bookings/"+created.ID, pa, nil); code != http.StatusNotFound {
		t.Fatalf("get deleted: %d", code)
	}
}

func TestBadBodies(t *testing.T) {
	e := newEnv(t)
	pa := token(t, "pa", "user")
	path := "/api/v1/providers/" + e.provider + "/bookings"

	code, out := e.do(http.MethodPost, path, pa, map[string]any{"apptDateAndTime": "tomorrow"})
	if code != http.StatusBadRequest || out.Error.Kind != "validation" {
		t.Fatalf("bad instant: %d %+v", code, out.Error)
	}
	code, _ = e.do(http.MethodPost, path, pa, map[string]any{"apptDateAndTime": "2025-03-01T10:00:00Z", "extra": 1})
	if code != http.StatusBadRequest {
		t.Fatalf("unknown field: %d", code)
	}
	code, _ = e.do(http.MethodPost, "/api/v1/providers/missing/bookings", pa, map[string]any{"apptDateAndTime": "2025-03-01T10:00:00Z"})
	if code != http.StatusBadRequest {
		t.Fatalf("unknown provider: %d", code)
	}
	code, _ = e.do(http.MethodGet, "/api/v1/bookings?limit=-3", pa, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("negative limit: %d", code)
	}
}

func TestOffHourAndSlots(t *testing.T) {
	e := newEnv(t)
	dx := token(t, "dx", "dentist")
	pa := token(t, "pa", "user")

	code, out := e.do(http.MethodPost, "/api/v1/offhours", pa, map[string]any{
		"startDate": "2025-03-01T11:00:00Z", "endDate": "2025-03-01T11:00:00Z",
	})
	if code != http.StatusForbidden {
		t.Fatalf("user off-hour: %d %+v", code, out.Error)
	}

	code, out = e.do(http.MethodPost, "/api/v1/offhours", dx, map[string]any{
		"startDate": "2025-03-01T11:00:00Z", "endDate": "2025-03-01T11:00:00Z", "description": "lunch",
	})
	if code != http.StatusCreated {
		t.Fatalf("create off-hour: %d %+v", code, out.Error)
	}
	var o offHourResponse
	if err := json.Unmarshal(out.Data, &o); err != nil {
		t.Fatal(err)
	}
	if o.Owner != "dx" || o.Description != "lunch" {
		t.Fatalf("unexpected off-hour %+v", o)
	}

	code, out = e.do(http.MethodGet, "/api/v1/providers/"+e.provider+"/slots?from=2025-03-01T10:00:00Z&to=2025-03-01T12:00:00Z&step=1h", pa, nil)
	if code != http.StatusOK {
		t.Fatalf("slots: %d %+v", code, out.Error)
	}
	var slots slotsResponse
	if err := json.Unmarshal(out.Data, &slots); err != nil {
		t.Fatal(err)
	}
	if len(slots.Slots) != 2 || slots.Step != "1h0m0s" {
		t.Fatalf("unexpected slots %+v", slots)
	}

	code, _ = e.do(http.MethodGet, "/api/v1/providers/"+e.provider+"/slots?from=bad&to=2025-03-01T12:00:00Z", pa, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("bad from: %d", code)
	}

	code, out = e.do(http.MethodPatch, "/api/v1/offhours/"+o.ID, dx, map[string]any{"description": "long lunch"})
	if code != http.StatusOK {
		t.Fatalf("update off-hour: %d %+v", code, out.Error)
	}
	if code, _ := e.do(http.MethodDelete, "/api/v1/offhours/"+o.ID, dx, nil); code != http.StatusNoContent {
		t.Fatalf("delete off-hour: %d", code)
	}
	if code, _ := e.do(http.MethodGet, "/api/v1/offhours/"+o.ID, dx, nil); code != http.StatusNotFound {
		t.Fatalf("get deleted off-hour: %d", code)
	}
}

func TestProviderRoutes(t *testing.T) {
	e := newEnv(t)
	admin := token(t, "admin", "admin")
	dx := token(t, "dx", "dentist")

	code, _ := e.do(http.MethodPost, "/api/v1/providers", dx, map[string]any{"user": "dx", "areaOfExpertise": []string{"Orthodontics"}})
	if code != http.StatusForbidden {
		t.Fatalf("dentist creates provider: %d", code)
	}
	code, out := e.do(http.MethodPost, "/api/v1/providers", admin, map[string]any{"user": "dx", "areaOfExpertise": []string{"Orthodontics"}})
	if code != http.StatusConflict {
		t.Fatalf("duplicate provider: %d %+v", code, out.Error)
	}

	code, out = e.do(http.MethodGet, "/api/v1/providers/"+e.provider, dx, nil)
	if code != http.StatusOK {
		t.Fatalf("get provider: %d", code)
	}
	var p providerResponse
	if err := json.Unmarshal(out.Data, &p); err != nil {
		t.Fatal(err)
	}
	if p.User != "dx" || len(p.AreaOfExpertise) != 1 || p.AreaOfExpertise[0] != "Orthodontics" {
		t.Fatalf("unexpected provider %+v", p)
	}

	if code, _ := e.do(http.MethodDelete, "/api/v1/providers/"+e.provider, admin, nil); code != http.StatusNoContent {
		t.Fatalf("delete provider: %d", code)
	}
	code, out = e.do(http.MethodGet, "/api/v1/providers", admin, nil)
	if code != http.StatusOK || string(out.Data) != "[]" {
		t.Fatalf("list providers after delete: %d %s", code, out.Data)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[scheduling.Kind]int{
		scheduling.KindValidation:    http.StatusBadRequest,
		scheduling.KindAuthorization: http.StatusForbidden,
		scheduling.KindNotFound:      http.StatusNotFound,
		scheduling.KindConflict:      http.StatusConflict,
		scheduling.KindStorage:       http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}
