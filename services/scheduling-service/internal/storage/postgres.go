package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicsched/libs/db"
	"github.com/md-rashed-zaman/clinicsched/services/scheduling-service/internal/model"
)

// Postgres implements Store on a pgx pool. Every method runs on the transaction carried by
// ctx when there is one.
type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.pool.InTx(ctx, fn)
}

func (s *Postgres) LockPatient(ctx context.Context, patientID string) error {
	if !db.InTransaction(ctx) {
		return errors.New("storage: LockPatient called outside a transaction")
	}
	_, err := s.pool.Conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "patient:"+patientID)
	return err
}

// mapErr translates driver errors into the storage contract errors.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNoRows(err):
		return ErrNotFound
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	case db.IsForeignKeyViolation(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	default:
		return err
	}
}

func (s *Postgres) UpsertUser(ctx context.Context, u model.User) (model.User, error) {
	var role string
	err := s.pool.Conn(ctx).QueryRow(ctx, `
		INSERT INTO users (id, role)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role
		RETURNING id, role, created_at
	`, u.ID, string(u.Role)).Scan(&u.ID, &role, &u.CreatedAt)
	if err != nil {
		return model.User{}, mapErr(err)
	}
	u.Role = model.Role(role)
	return u, nil
}

func (s *Postgres) FindUser(ctx context.Context, id string) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := s.pool.Conn(ctx).QueryRow(ctx, `
		SELECT id, role, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &role, &u.CreatedAt)
	if err != nil {
		return model.User{}, mapErr(err)
	}
	u.Role = model.Role(role)
	return u, nil
}

const providerColumns = `id, user_id, years_of_experience, area_of_expertise, created_at`

func scanProvider(row pgx.Row) (model.Provider, error) {
	var (
		p     model.Provider
		areas []string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.YearsOfExperience, &areas, &p.CreatedAt); err != nil {
		return model.Provider{}, err
	}
	p.AreaOfExpertise = make([]model.Specialty, len(areas))
	for i, a := range areas {
		p.AreaOfExpertise[i] = model.Specialty(a)
	}
	return p, nil
}

func (s *Postgres) FindProvider(ctx context.Context, id string) (model.Provider, error) {
	p, err := scanProvider(s.pool.Conn(ctx).QueryRow(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE id = $1`, id))
	return p, mapErr(err)
}

func (s *Postgres) FindProviderByUser(ctx context.Context, userID string) (model.Provider, error) {
	p, err := scanProvider(s.pool.Conn(ctx).QueryRow(ctx,
		`SELECT `+providerColumns+` FROM providers WHERE user_id = $1`, userID))
	return p, mapErr(err)
}

func (s *Postgres) ListProviders(ctx context.Context, limit int) ([]model.Provider, error) {
	rows, err := s.pool.Conn(ctx).Query(ctx,
		`SELECT `+providerColumns+` FROM providers ORDER BY created_at, id LIMIT $1`, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) InsertProvider(ctx context.Context, p model.Provider) (model.Provider, error) {
	areas := make([]string, len(p.AreaOfExpertise))
	for i, a := range p.AreaOfExpertise {
		areas[i] = string(a)
	}
	out, err := scanProvider(s.pool.Conn(ctx).QueryRow(ctx, `
		INSERT INTO providers (id, user_id, years_of_experience, area_of_expertise)
		VALUES ($1, $2, $3, $4)
		RETURNING `+providerColumns,
		p.ID, p.UserID, p.YearsOfExperience, areas))
	return out, mapErr(err)
}

func (s *Postgres) DeleteProvider(ctx context.Context, id string) error {
	tag, err := s.pool.Conn(ctx).Exec(ctx, `DELETE FROM providers WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const bookingColumns = `id, provider_id, patient_id, appt_at, is_unavailable, status, created_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var (
		b      model.Booking
		status string
	)
	if err := row.Scan(&b.ID, &b.ProviderID, &b.PatientID, &b.ApptAt, &b.IsUnavailable, &status, &b.CreatedAt); err != nil {
		return model.Booking{}, err
	}
	b.Status = model.Status(status)
	b.ApptAt = b.ApptAt.UTC()
	return b, nil
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	defer rows.Close()
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Postgres) FindBooking(ctx context.Context, id string) (model.Booking, error) {
	b, err := scanBooking(s.pool.Conn(ctx).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	return b, mapErr(err)
}

// where accumulates AND-ed predicates with positional arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", fmt.Sprintf("$%d", len(w.args))))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func bookingWhere(f BookingFilter) *where {
	w := &where{}
	if f.ProviderID != "" {
		w.add("provider_id = ?", f.ProviderID)
	}
	if f.PatientID != "" {
		w.add("patient_id = ?", f.PatientID)
	}
	if f.At != nil {
		w.add("appt_at = ?", *f.At)
	}
	if f.From != nil {
		w.add("appt_at >= ?", *f.From)
	}
	if f.To != nil {
		w.add("appt_at <= ?", *f.To)
	}
	if f.Status != "" {
		w.add("status = ?", string(f.Status))
	}
	if f.IsUnavailable != nil {
		w.add("is_unavailable = ?", *f.IsUnavailable)
	}
	if f.ExcludeID != "" {
		w.add("id <> ?", f.ExcludeID)
	}
	return w
}

func (s *Postgres) FindBookings(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	w := bookingWhere(f)
	sql := `SELECT ` + bookingColumns + ` FROM bookings` + w.String() + ` ORDER BY appt_at, id`
	if f.Limit > 0 {
		w.args = append(w.args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(w.args))
	}
	rows, err := s.pool.Conn(ctx).Query(ctx, sql, w.args...)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func (s *Postgres) InsertBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	out, err := scanBooking(s.pool.Conn(ctx).QueryRow(ctx, `
		INSERT INTO bookings (id, provider_id, patient_id, appt_at, is_unavailable, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+bookingColumns,
		b.ID, b.ProviderID, b.PatientID, b.ApptAt, b.IsUnavailable, string(b.Status)))
	return out, mapErr(err)
}

func (s *Postgres) UpdateBooking(ctx context.Context, id string, p BookingPatch) (model.Booking, error) {
	var status *string
	if p.Status != nil {
		st := string(*p.Status)
		status = &st
	}
	out, err := scanBooking(s.pool.Conn(ctx).QueryRow(ctx, `
		UPDATE bookings
		SET appt_at = COALESCE($2::timestamptz, appt_at),
			is_unavailable = COALESCE($3::boolean, is_unavailable),
			status = COALESCE($4::text, status)
		WHERE id = $1
		RETURNING `+bookingColumns,
		id, p.ApptAt, p.IsUnavailable, status))
	return out, mapErr(err)
}

func (s *Postgres) DeleteBooking(ctx context.Context, id string) error {
	tag, err := s.pool.Conn(ctx).Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) DeleteBookingsByProvider(ctx context.Context, providerID string) (int64, error) {
	tag, err := s.pool.Conn(ctx).Exec(ctx, `DELETE FROM bookings WHERE provider_id = $1`, providerID)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) CancelBookings(ctx context.Context, scope CancelScope) (int, []model.Booking, error) {
	var (
		matched   int
		cancelled []model.Booking
	)
	err := s.pool.InTx(ctx, func(ctx context.Context) error {
		from, to := scope.From, scope.To
		reservation := false
		w := bookingWhere(BookingFilter{
			ProviderID:    scope.ProviderID,
			From:          &from,
			To:            &to,
			Status:        model.StatusBooked,
			IsUnavailable: &reservation,
			ExcludeID:     scope.ExcludeID,
		})
		rows, err := s.pool.Conn(ctx).Query(ctx, `SELECT id FROM bookings`+w.String()+` FOR UPDATE`, w.args...)
		if err != nil {
			return err
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		matched = len(ids)
		if matched == 0 {
			return nil
		}

		rows, err = s.pool.Conn(ctx).Query(ctx, `
			UPDATE bookings
			SET status = 'Cancel'
			WHERE id = ANY($1) AND status = 'Booked' AND NOT is_unavailable
			RETURNING `+bookingColumns, ids)
		if err != nil {
			return err
		}
		cancelled, err = collectBookings(rows)
		return err
	})
	if err != nil {
		return 0, nil, mapErr(err)
	}
	return matched, cancelled, nil
}

const offHourColumns = `id, COALESCE(owner_id, ''), start_at, end_at, description, is_for_all_dentist, created_at`

func scanOffHour(row pgx.Row) (model.OffHour, error) {
	var o model.OffHour
	if err := row.Scan(&o.ID, &o.OwnerID, &o.Start, &o.End, &o.Description, &o.IsForAllDentist, &o.CreatedAt); err != nil {
		return model.OffHour{}, err
	}
	o.Start, o.End = o.Start.UTC(), o.End.UTC()
	return o, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Postgres) FindOffHour(ctx context.Context, id string) (model.OffHour, error) {
	o, err := scanOffHour(s.pool.Conn(ctx).QueryRow(ctx,
		`SELECT `+offHourColumns+` FROM off_hours WHERE id = $1`, id))
	return o, mapErr(err)
}

func (s *Postgres) FindOffHours(ctx context.Context, f OffHourFilter) ([]model.OffHour, error) {
	w := &where{}
	if f.OwnerID != "" {
		w.add("owner_id = ?", f.OwnerID)
	}
	if f.ProviderUserID != "" {
		w.add("(is_for_all_dentist OR owner_id = ?)", f.ProviderUserID)
	}
	if f.Covering != nil {
		w.add("start_at <= ?", *f.Covering)
		w.add("end_at >= ?", *f.Covering)
	}
	if f.From != nil {
		w.add("end_at >= ?", *f.From)
	}
	if f.To != nil {
		w.add("start_at <= ?", *f.To)
	}
	sql := `SELECT ` + offHourColumns + ` FROM off_hours` + w.String() + ` ORDER BY start_at, id`
	if f.Limit > 0 {
		w.args = append(w.args, f.Limit)
		sql += fmt.Sprintf(" LIMIT $%d", len(w.args))
	}

	rows, err := s.pool.Conn(ctx).Query(ctx, sql, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OffHour
	for rows.Next() {
		o, err := scanOffHour(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Postgres) InsertOffHour(ctx context.Context, o model.OffHour) (model.OffHour, error) {
	out, err := scanOffHour(s.pool.Conn(ctx).QueryRow(ctx, `
		INSERT INTO off_hours (id, owner_id, start_at, end_at, description, is_for_all_dentist)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+offHourColumns,
		o.ID, nullable(o.OwnerID), o.Start, o.End, o.Description, o.IsForAllDentist))
	return out, mapErr(err)
}

func (s *Postgres) UpdateOffHour(ctx context.Context, id string, p OffHourPatch) (model.OffHour, error) {
	var (
		setOwner bool
		owner    *string
	)
	if p.OwnerID != nil {
		setOwner = true
		owner = nullable(*p.OwnerID)
	}
	out, err := scanOffHour(s.pool.Conn(ctx).QueryRow(ctx, `
		UPDATE off_hours
		SET start_at = COALESCE($2::timestamptz, start_at),
			end_at = COALESCE($3::timestamptz, end_at),
			description = COALESCE($4::text, description),
			is_for_all_dentist = COALESCE($5::boolean, is_for_all_dentist),
			owner_id = CASE WHEN $6::boolean THEN $7::text ELSE owner_id END
		WHERE id = $1
		RETURNING `+offHourColumns,
		id, p.Start, p.End, p.Description, p.IsForAllDentist, setOwner, owner))
	return out, mapErr(err)
}

func (s *Postgres) DeleteOffHour(ctx context.Context, id string) error {
	tag, err := s.pool.Conn(ctx).Exec(ctx, `DELETE FROM off_hours WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*Postgres)(nil)

