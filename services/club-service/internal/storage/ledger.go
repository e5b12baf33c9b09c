package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/avolkov/clubdesk/libs/db"
	"github.com/avolkov/clubdesk/services/club-service/internal/availability"
	"github.com/avolkov/clubdesk/services/club-service/internal/booking"
	"github.com/avolkov/clubdesk/services/club-service/internal/model"
	"github.com/avolkov/clubdesk/services/club-service/internal/outbox"
)

// Ledger is the Postgres implementation of booking.Ledger. Bookings carry an
// exclusion constraint on (computer_id, tstzrange(start_time, end_time)), so
// even if the in-transaction overlap re-check were ever bypassed the database
// itself refuses a double-booking.
type Ledger struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewLedger(pool *db.Pool, outboxRepo *outbox.Repository) *Ledger {
	return &Ledger{pool: pool, outbox: outboxRepo}
}

var _ booking.Ledger = (*Ledger)(nil)

func (l *Ledger) GetComputer(ctx context.Context, id string) (model.Computer, error) {
	var c model.Computer
	err := l.pool.QueryRow(ctx, `
		SELECT id::text, name, specs, is_active, created_at
		FROM computers
		WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.Specs, &c.Active, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Computer{}, model.ErrUnknownComputer
		}
		return model.Computer{}, err
	}
	return c, nil
}

func (l *Ledger) ListActiveComputers(ctx context.Context) ([]model.Computer, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT id::text, name, specs, is_active, created_at
		FROM computers
		WHERE is_active
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Computer
	for rows.Next() {
		var c model.Computer
		if err := rows.Scan(&c.ID, &c.Name, &c.Specs, &c.Active, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (l *Ledger) ListBookingIntervals(ctx context.Context, computerID string) ([]availability.Interval, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM bookings
		WHERE computer_id = $1
		ORDER BY start_time
	`, computerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.Interval
	for rows.Next() {
		var ivl availability.Interval
		if err := rows.Scan(&ivl.Start, &ivl.End); err != nil {
			return nil, err
		}
		out = append(out, ivl)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Insert commits one booking. The overlap re-check, the customer upsert and
// the insert run in a single transaction; the computer row is locked first so
// concurrent requests for the same machine serialize on the check-then-insert
// step.
func (l *Ledger) Insert(ctx context.Context, req booking.CreateRequest) (model.Booking, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var computerName string
	var active bool
	err = tx.QueryRow(ctx, `
		SELECT name, is_active
		FROM computers
		WHERE id = $1
		FOR UPDATE
	`, req.ComputerID).Scan(&computerName, &active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Booking{}, model.ErrUnknownComputer
		}
		return model.Booking{}, err
	}
	if !active {
		return model.Booking{}, model.ErrUnknownComputer
	}

	var overlapping int
	err = tx.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings
		WHERE computer_id = $1
			AND start_time < $3
			AND end_time > $2
	`, req.ComputerID, req.Interval.Start, req.Interval.End).Scan(&overlapping)
	if err != nil {
		return model.Booking{}, err
	}
	if overlapping > 0 {
		return model.Booking{}, model.ErrSlotUnavailable
	}

	customerID, err := upsertCustomer(ctx, tx, req.Contact)
	if err != nil {
		return model.Booking{}, err
	}

	b := model.Booking{
		ID:           uuid.NewString(),
		CustomerID:   customerID,
		ComputerID:   req.ComputerID,
		StartTime:    req.Interval.Start,
		EndTime:      req.Interval.End,
		ComputerName: computerName,
		CustomerName: req.Contact.Name,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO bookings (id, customer_id, computer_id, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, b.ID, b.CustomerID, b.ComputerID, b.StartTime, b.EndTime).Scan(&b.CreatedAt)
	if err != nil {
		if isExclusionConflict(err) {
			return model.Booking{}, model.ErrSlotUnavailable
		}
		return model.Booking{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"booking_id":  b.ID,
		"computer_id": b.ComputerID,
		"customer_id": b.CustomerID,
		"start_time":  b.StartTime.Format(time.RFC3339),
		"end_time":    b.EndTime.Format(time.RFC3339),
	})
	if err != nil {
		return model.Booking{}, err
	}
	if err := l.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     outbox.EventBookingCreated,
		Payload:       payload,
	}); err != nil {
		return model.Booking{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}
	return b, nil
}

// upsertCustomer finds or creates a customer by contact channel inside the
// booking transaction, so two first-time bookings from the same contact
// cannot create duplicate rows.
func upsertCustomer(ctx context.Context, tx pgx.Tx, contact model.Contact) (string, error) {
	var column string
	switch contact.Channel {
	case model.ContactPhone:
		column = "phone"
	case model.ContactTelegram:
		column = "telegram_id"
	default:
		return "", errors.New("storage: unsupported contact channel " + string(contact.Channel))
	}

	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO customers (id, name, `+column+`)
		VALUES ($1, $2, $3)
		ON CONFLICT (`+column+`) DO UPDATE
		SET name = COALESCE(NULLIF(EXCLUDED.name, ''), customers.name)
		RETURNING id::text
	`, uuid.NewString(), contact.Name, contact.Value).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (l *Ledger) ListBookings(ctx context.Context, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	return l.queryBookings(ctx, `
		SELECT b.id::text, b.customer_id::text, b.computer_id::text, b.start_time, b.end_time, b.created_at,
			c.name, u.name
		FROM bookings b
		JOIN computers c ON c.id = b.computer_id
		JOIN customers u ON u.id = b.customer_id
		ORDER BY b.start_time DESC
		LIMIT $1
	`, limit)
}

func (l *Ledger) ListBookingsByContact(ctx context.Context, contact model.Contact) ([]model.Booking, error) {
	var column string
	switch contact.Channel {
	case model.ContactPhone:
		column = "phone"
	case model.ContactTelegram:
		column = "telegram_id"
	default:
		return nil, errors.New("storage: unsupported contact channel " + string(contact.Channel))
	}
	return l.queryBookings(ctx, `
		SELECT b.id::text, b.customer_id::text, b.computer_id::text, b.start_time, b.end_time, b.created_at,
			c.name, u.name
		FROM bookings b
		JOIN computers c ON c.id = b.computer_id
		JOIN customers u ON u.id = b.customer_id
		WHERE u.`+column+` = $1
		ORDER BY b.start_time
	`, contact.Value)
}

func (l *Ledger) queryBookings(ctx context.Context, sql string, args ...any) ([]model.Booking, error) {
	rows, err := l.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		var b model.Booking
		if err := rows.Scan(&b.ID, &b.CustomerID, &b.ComputerID, &b.StartTime, &b.EndTime, &b.CreatedAt,
			&b.ComputerName, &b.CustomerName); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// DeleteBooking removes a booking and records the cancellation event in the
// same transaction. Administrative only; the engine enforces the actor check.
func (l *Ledger) DeleteBooking(ctx context.Context, id string) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var b model.Booking
	err = tx.QueryRow(ctx, `
		DELETE FROM bookings
		WHERE id = $1
		RETURNING id::text, customer_id::text, computer_id::text, start_time, end_time
	`, id).Scan(&b.ID, &b.CustomerID, &b.ComputerID, &b.StartTime, &b.EndTime)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrUnknownBooking
		}
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"booking_id":  b.ID,
		"computer_id": b.ComputerID,
		"customer_id": b.CustomerID,
		"start_time":  b.StartTime.Format(time.RFC3339),
		"end_time":    b.EndTime.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	if err := l.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     outbox.EventBookingCancelled,
		Payload:       payload,
	}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (l *Ledger) AddComputer(ctx context.Context, name, specs string) (model.Computer, error) {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return model.Computer{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c := model.Computer{ID: uuid.NewString(), Name: name, Specs: specs, Active: true}
	err = tx.QueryRow(ctx, `
		INSERT INTO computers (id, name, specs)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, c.ID, c.Name, c.Specs).Scan(&c.CreatedAt)
	if err != nil {
		return model.Computer{}, err
	}

	payload, err := json.Marshal(map[string]any{
		"computer_id": c.ID,
		"name":        c.Name,
		"specs":       c.Specs,
	})
	if err != nil {
		return model.Computer{}, err
	}
	if err := l.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "computer",
		AggregateID:   c.ID,
		EventType:     outbox.EventComputerAdded,
		Payload:       payload,
	}); err != nil {
		return model.Computer{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Computer{}, err
	}
	return c, nil
}

func (l *Ledger) SetComputerActive(ctx context.Context, id string, active bool) error {
	tag, err := l.pool.Exec(ctx, `
		UPDATE computers
		SET is_active = $2
		WHERE id = $1
	`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUnknownComputer
	}
	return nil
}

func isExclusionConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
