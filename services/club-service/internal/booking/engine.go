package booking

import (
	"context"
	"log/slog"
	"time"

	"github.com/avolkov/clubdesk/services/club-service/internal/availability"
	"github.com/avolkov/clubdesk/services/club-service/internal/model"
)

// Engine guards every booking creation path. It holds no state of its own:
// reads go through the Ledger and "now" is always an explicit parameter so
// tests can pin the clock.
type Engine struct {
	ledger Ledger
	logger *slog.Logger
}

func NewEngine(ledger Ledger, logger *slog.Logger) *Engine {
	return &Engine{ledger: ledger, logger: logger}
}

// IsAvailable reports whether the computer is free for the whole interval.
// A computer with zero bookings is always free. Unknown or deactivated
// computers yield model.ErrUnknownComputer.
func (e *Engine) IsAvailable(ctx context.Context, computerID string, ivl availability.Interval) (bool, error) {
	if err := ivl.Validate(); err != nil {
		return false, err
	}
	comp, err := e.ledger.GetComputer(ctx, computerID)
	if err != nil {
		return false, err
	}
	if !comp.Active {
		return false, model.ErrUnknownComputer
	}
	busy, err := e.ledger.ListBookingIntervals(ctx, computerID)
	if err != nil {
		return false, err
	}
	return !availability.OverlapsAny(ivl, busy), nil
}

// AvailableComputers returns every active computer free for the interval, in
// creation order so results are reproducible.
func (e *Engine) AvailableComputers(ctx context.Context, ivl availability.Interval) ([]model.Computer, error) {
	if err := ivl.Validate(); err != nil {
		return nil, err
	}
	computers, err := e.ledger.ListActiveComputers(ctx)
	if err != nil {
		return nil, err
	}
	free := make([]model.Computer, 0, len(computers))
	for _, comp := range computers {
		busy, err := e.ledger.ListBookingIntervals(ctx, comp.ID)
		if err != nil {
			return nil, err
		}
		if !availability.OverlapsAny(ivl, busy) {
			free = append(free, comp)
		}
	}
	return free, nil
}

// CreateBooking validates the request and commits it through the ledger's
// atomic guarded insert. Every precondition is re-checked here and the
// overlap check re-runs inside the ledger transaction: an earlier
// availability probe proves nothing once time has passed or a concurrent
// booking has landed.
func (e *Engine) CreateBooking(ctx context.Context, req CreateRequest, now time.Time) (model.Booking, error) {
	if err := req.Interval.Validate(); err != nil {
		return model.Booking{}, err
	}
	if req.Interval.Start.Before(now) {
		return model.Booking{}, model.ErrPastStartTime
	}

	b, err := e.ledger.Insert(ctx, req)
	if err != nil {
		if model.IsRejection(err) {
			e.logger.Info("booking rejected",
				"computer_id", req.ComputerID,
				"start", req.Interval.Start,
				"reason", err.Error(),
			)
		}
		return model.Booking{}, err
	}
	e.logger.Info("booking confirmed",
		"booking_id", b.ID,
		"computer_id", b.ComputerID,
		"start", b.StartTime,
		"end", b.EndTime,
	)
	return b, nil
}

// StartTimes enumerates chat-bookable start times for a calendar day.
func (e *Engine) StartTimes(hours availability.ClubHours, date, now time.Time) []time.Time {
	return availability.StartTimes(hours, date, now)
}

// ListActiveComputers exposes the floor listing to adapters.
func (e *Engine) ListActiveComputers(ctx context.Context) ([]model.Computer, error) {
	return e.ledger.ListActiveComputers(ctx)
}

// BookingsForContact lists a customer's bookings, soonest first.
func (e *Engine) BookingsForContact(ctx context.Context, contact model.Contact) ([]model.Booking, error) {
	return e.ledger.ListBookingsByContact(ctx, contact)
}

// Administrative operations. The caller supplies an explicit Actor; a
// non-admin actor is rejected before any ledger access.

func (e *Engine) DeleteBooking(ctx context.Context, actor model.Actor, id string) error {
	if !actor.Admin {
		return model.ErrForbidden
	}
	if err := e.ledger.DeleteBooking(ctx, id); err != nil {
		return err
	}
	e.logger.Info("booking deleted", "booking_id", id, "by", actor.CustomerID)
	return nil
}

func (e *Engine) AddComputer(ctx context.Context, actor model.Actor, name, specs string) (model.Computer, error) {
	if !actor.Admin {
		return model.Computer{}, model.ErrForbidden
	}
	return e.ledger.AddComputer(ctx, name, specs)
}

func (e *Engine) SetComputerActive(ctx context.Context, actor model.Actor, id string, active bool) error {
	if !actor.Admin {
		return model.ErrForbidden
	}
	return e.ledger.SetComputerActive(ctx, id, active)
}

func (e *Engine) ListBookings(ctx context.Context, actor model.Actor, limit int) ([]model.Booking, error) {
	if !actor.Admin {
		return nil, model.ErrForbidden
	}
	return e.ledger.ListBookings(ctx, limit)
}
