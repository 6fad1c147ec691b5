package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

// Memory is a process-local Store used for tests and `serve --in-memory`. It enforces the
// same uniqueness rules as the database schema. Top-level transactions and writes made
// outside a transaction are serialised by txMu, so undoing a failed InTx never overwrites
// another caller's writes.
type Memory struct {
	txMu sync.Mutex

	mu        sync.Mutex
	users     map[string]model.User
	providers map[string]model.Provider
	bookings  map[string]model.Booking
	offHours  map[string]model.OffHour
}

func NewMemory() *Memory {
	return &Memory{
		users:     map[string]model.User{},
		providers: map[string]model.Provider{},
		bookings:  map[string]model.Booking{},
		offHours:  map[string]model.OffHour{},
	}
}

type memTx struct {
	undo []func()
}

type memTxKey struct{}

func txOf(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txOf(ctx) != nil {
		return fn(ctx)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memTx{}
	err := fn(context.WithValue(ctx, memTxKey{}, tx))
	if err != nil {
		m.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		m.mu.Unlock()
	}
	return err
}

// LockPatient only checks that ctx is transactional: holding txMu already excludes every
// other transaction, whatever patient it touches.
func (m *Memory) LockPatient(ctx context.Context, _ string) error {
	if txOf(ctx) == nil {
		return errors.New("storage: LockPatient called outside a transaction")
	}
	return nil
}

// writing takes txMu for a write made outside any transaction and returns its release.
func (m *Memory) writing(ctx context.Context) func() {
	if txOf(ctx) != nil {
		return func() {}
	}
	m.txMu.Lock()
	return m.txMu.Unlock
}

// record registers an undo step on the surrounding transaction; m.mu must be held.
func (m *Memory) record(ctx context.Context, undo func()) {
	if tx := txOf(ctx); tx != nil {
		tx.undo = append(tx.undo, undo)
	}
}

func restore[T any](set map[string]T, id string, prev T, existed bool) func() {
	return func() {
		if existed {
			set[id] = prev
		} else {
			delete(set, id)
		}
	}
}

func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func (m *Memory) UpsertUser(ctx context.Context, u model.User) (model.User, error) {
	defer m.writing(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, existed := m.users[u.ID]
	if existed {
		u.CreatedAt = prev.CreatedAt
	} else {
		u.CreatedAt = normalize(time.Now())
	}
	m.users[u.ID] = u
	m.record(ctx, restore(m.users, u.ID, prev, existed))
	return u, nil
}

func (m *Memory) FindUser(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) FindProvider(_ context.Context, id string) (model.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.providers[id]
	if !ok {
		return model.Provider{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) FindProviderByUser(_ context.Context, userID string) (model.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.providers {
		if p.UserID == userID {
			return p, nil
		}
	}
	return model.Provider{}, ErrNotFound
}

func (m *Memory) ListProviders(_ context.Context, limit int) ([]model.Provider, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Provider, 0, len(m.providers))
	for _, p := range m.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if n := ClampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *Memory) InsertProvider(ctx context.Context, p model.Provider) (model.Provider, error) {
	defer m.writing(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[p.UserID]; !ok {
		return model.Provider{}, fmt.Errorf("%w: provider user %s", ErrNotFound, p.UserID)
	}
	for _, existing := range m.providers {
		if existing.ID == p.ID || existing.UserID == p.UserID {
			return model.Provider{}, fmt.Errorf("%w: provider for user %s", ErrDuplicate, p.UserID)
		}
	}
	p.CreatedAt = normalize(time.Now())
	p.AreaOfExpertise = slices.Clone(p.AreaOfExpertise)
	m.providers[p.ID] = p
	m.record(ctx, restore(m.providers, p.ID, model.Provider{}, false))
	return p, nil
}

func (m *Memory) DeleteProvider(ctx context.Context, id string) error {
	defer m.writing(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.providers[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.providers, id)
	m.record(ctx, restore(m.providers, id, prev, true))
	for bid, b := range m.bookings {
		if b.ProviderID == id {
			delete(m.bookings, bid)
			m.record(ctx, restore(m.bookings, bid, b, true))
		}
	}
	return nil
}

func (m *Memory) FindBooking(_ context.Context, id string) (model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, ErrNotFound
	}
	return b, nil
}

func matchBooking(b model.Booking, f BookingFilter) bool {
	switch {
	case f.ProviderID != "" && b.ProviderID != f.ProviderID:
		return false
	case f.PatientID != "" && b.PatientID != f.PatientID:
		return false
	case f.At != nil && !b.ApptAt.Equal(normalize(*f.At)):
		return false
	case f.From != nil && b.ApptAt.Before(normalize(*f.From)):
		return false
	case f.To != nil && b.ApptAt.After(normalize(*f.To)):
		return false
	case f.Status != "" && b.Status != f.Status:
		return false
	case f.IsUnavailable != nil && b.IsUnavailable != *f.IsUnavailable:
		return false
	case f.ExcludeID != "" && b.ID == f.ExcludeID:
		return false
	}
	return true
}

func sortBookings(out []model.Booking) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ApptAt.Equal(out[j].ApptAt) {
			return out[i].ApptAt.Before(out[j].ApptAt)
		}
		return out[i].ID < out[j].ID
	})
}

func (m *Memory) FindBookings(_ context.Context, f BookingFilter) ([]model.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Booking
	for _, b := range m.bookings {
		if matchBooking(b, f) {
			out = append(out, b)
		}
	}
	sortBookings(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// slotTaken mirrors the partial unique index on (provider_id, appt_at) WHERE status = 'Booked'.
func (m *Memory) slotTaken(b model.Booking) bool {
	if b.Status != model.StatusBooked {
		return false
	}
	for _, other := range m.bookings {
		if other.ID != b.ID && other.Status == model.StatusBooked &&
			other.ProviderID == b.ProviderID && other.ApptAt.Equal(b.ApptAt) {
			return true
		}
	}
	return false
}

func (m *Memory) InsertBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	defer m.writing(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; ok {
		return model.Booking{}, fmt.Errorf("%w: booking %s", ErrDuplicate, b.ID)
	}
	if _, ok := m.providers[b.ProviderID]; !ok {
		return model.Booking{}, fmt.Errorf("%w: provider %s", ErrNotFound, b.ProviderID)
	}
	if _, ok := m.users[b.PatientID]; !ok {
		return model.Booking{}, fmt.Errorf("%w: patient %s", ErrNotFound, b.PatientID)
	}
	b.ApptAt = normalize(b.ApptAt)
	if b.Status == "" {
		b.Status = model.StatusBooked
	}
	if m.slotTaken(b) {
		return model.Booking{}, fmt.Errorf("%w: slot %s at %s", ErrDuplicate, b.ProviderID, b.ApptAt.Format(time.RFC3339))
	}
	b.CreatedAt = normalize(time.Now())
	m.bookings[b.ID] = b
	m.record(ctx, restore(m.bookings, b.ID, model.Booking{}, false))
	return b, nil
}

func (m *Memory) UpdateBooking(ctx context.Context, id string, p BookingPatch) (model.Booking, error) {
	defer m.writing(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.bookings[id]
	if !ok {
		return model.Booking{}, ErrNotFound
	}
	next := prev
	if p.ApptAt != nil {
		next.ApptAt = normalize(*p.ApptAt)
	}
	if p.IsUnavailable != nil {
		next.IsUnavailable = *p.IsUnavailable
	}
	if p.Status != nil {
		if *p.Status != model.StatusBooked && *p.Status != model.StatusCancel {
			return model.Booking{}, fmt.Errorf("storage: invalid booking status %q", *p.Status)
		}
		next.Status = *p.Status
	}
	if m.slotTaken(next) {
		return model.Booking{}, fmt.Errorf("%w: slot %s at %s", ErrDuplicate, next.ProviderID, next.ApptAt.Format(time.RFC3339))
	}
	m.bookings[id] = next
	m.record(ctx, restore(m.bookings, id, prev, true))
	return next, nil
}

func (m *Memory) DeleteBooking(ctx context.Context, id string) error {
	defer m.writing(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.bookings[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.bookings, id)
	m.record(ctx, restore(m.bookings, id, prev, true))
	return nil
}

func (m *Memory) DeleteBookingsByProvider(ctx context.Context, providerID string) (int64, error) {
	defer m.writing(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, b := range m.bookings {
		if b.ProviderID == providerID {
			delete(m.bookings, id)
			m.record(ctx, restore(m.bookings, id, b, true))
			n++
		}
	}
	return n, nil
}

func (m *Memory) CancelBookings(ctx context.Context, scope CancelScope) (int, []model.Booking, error) {
	defer m.writing(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	from, to := scope.From, scope.To
	f := BookingFilter{ProviderID: scope.ProviderID, From: &from, To: &to, ExcludeID: scope.ExcludeID}
	var cancelled []model.Booking
	for id, b := range m.bookings {
		if !b.Reservation() || !matchBooking(b, f) {
			continue
		}
		next := b
		next.Status = model.StatusCancel
		m.bookings[id] = next
		m.record(ctx, restore(m.bookings, id, b, true))
		cancelled = append(cancelled, next)
	}
	sortBookings(cancelled)
	return len(cancelled), cancelled, nil
}

func (m *Memory) FindOffHour(_ context.Context, id string) (model.OffHour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.offHours[id]
	if !ok {
		return model.OffHour{}, ErrNotFound
	}
	return o, nil
}

func matchOffHour(o model.OffHour, f OffHourFilter) bool {
	switch {
	case f.OwnerID != "" && o.OwnerID != f.OwnerID:
		return false
	case f.ProviderUserID != "" && !o.AppliesTo(f.ProviderUserID):
		return false
	case f.Covering != nil && !o.Covers(normalize(*f.Covering)):
		return false
	case f.From != nil && o.End.Before(normalize(*f.From)):
		return false
	case f.To != nil && o.Start.After(normalize(*f.To)):
		return false
	}
	return true
}

func (m *Memory) FindOffHours(_ context.Context, f OffHourFilter) ([]model.OffHour, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.OffHour
	for _, o := range m.offHours {
		if matchOffHour(o, f) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func checkOffHour(o model.OffHour) error {
	if o.Start.After(o.End) {
		return errors.New("storage: off-hour start after end")
	}
	if !o.IsForAllDentist && o.OwnerID == "" {
		return errors.New("storage: off-hour needs an owner unless global")
	}
	return nil
}

func (m *Memory) InsertOffHour(ctx context.Context, o model.OffHour) (model.OffHour, error) {
	defer m.writing(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.offHours[o.ID]; ok {
		return model.OffHour{}, fmt.Errorf("%w: off-hour %s", ErrDuplicate, o.ID)
	}
	o.Start, o.End = normalize(o.Start), normalize(o.End)
	if err := checkOffHour(o); err != nil {
		return model.OffHour{}, err
	}
	o.CreatedAt = normalize(time.Now())
	m.offHours[o.ID] = o
	m.record(ctx, restore(m.offHours, o.ID, model.OffHour{}, false))
	return o, nil
}

func (m *Memory) UpdateOffHour(ctx context.Context, id string, p OffHourPatch) (model.OffHour, error) {
	defer m.writing(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.offHours[id]
	if !ok {
		return model.OffHour{}, ErrNotFound
	}
	next := prev
	if p.Start != nil {
		next.Start = normalize(*p.Start)
	}
	if p.End != nil {
		next.End = normalize(*p.End)
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.IsForAllDentist != nil {
		next.IsForAllDentist = *p.IsForAllDentist
	}
	if p.OwnerID != nil {
		next.OwnerID = *p.OwnerID
	}
	if err := checkOffHour(next); err != nil {
		return model.OffHour{}, err
	}
	m.offHours[id] = next
	m.record(ctx, restore(m.offHours, id, prev, true))
	return next, nil
}

func (m *Memory) DeleteOffHour(ctx context.Context, id string) error {
	defer m.writing(ctx)()
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.offHours[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.offHours, id)
	m.record(ctx, restore(m.offHours, id, prev, true))
	return nil
}

var _ Store = (*Memory)(nil)
