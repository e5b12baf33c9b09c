package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avolkov/clubdesk/services/club-service/internal/availability"
	"github.com/avolkov/clubdesk/services/club-service/internal/booking"
	"github.com/avolkov/clubdesk/services/club-service/internal/model"
)

// TimeLayout is the wire format for booking times: the HTML
// datetime-local format, parsed in the venue's timezone.
const TimeLayout = "2006-01-02T15:04"

const dateLayout = "2006-01-02"

type PublicHandler struct {
	engine *booking.Engine
	logger *slog.Logger
	loc    *time.Location
	hours  availability.ClubHours
}

func NewPublicHandler(engine *booking.Engine, logger *slog.Logger, loc *time.Location, hours availability.ClubHours) *PublicHandler {
	return &PublicHandler{engine: engine, logger: logger, loc: loc, hours: hours}
}

type computerItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Specs string `json:"specs"`
}

type availabilityRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type bookRequest struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	ComputerID string `json:"computer_id"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
}

type bookingItem struct {
	BookingID    string `json:"booking_id"`
	ComputerID   string `json:"computer_id"`
	ComputerName string `json:"computer_name,omitempty"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	CreatedAt    string `json:"created_at"`
}

// Computers lists the active floor, creation order.
func (h *PublicHandler) Computers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	computers, err := h.engine.ListActiveComputers(r.Context())
	if err != nil {
		http.Error(w, "failed to list computers", http.StatusInternalServerError)
		return
	}
	items := make([]computerItem, 0, len(computers))
	for _, c := range computers {
		items = append(items, computerItem{ID: c.ID, Name: c.Name, Specs: c.Specs})
	}
	writeJSON(w, http.StatusOK, items)
}

// Availability returns the active computers free for the requested interval.
func (h *PublicHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req availabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	ivl, ok := h.parseInterval(w, req.StartTime, req.EndTime)
	if !ok {
		return
	}
	if ivl.Start.Before(time.Now().In(h.loc)) {
		writeBookingError(w, model.ErrPastStartTime)
		return
	}

	free, err := h.engine.AvailableComputers(r.Context(), ivl)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	items := make([]computerItem, 0, len(free))
	for _, c := range free {
		items = append(items, computerItem{ID: c.ID, Name: c.Name, Specs: c.Specs})
	}
	writeJSON(w, http.StatusOK, map[string]any{"available_computers": items})
}

// Slots enumerates candidate start times for a calendar day, mirroring what
// the chat picker offers.
func (h *PublicHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	if dateStr == "" {
		http.Error(w, "date is required", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation(dateLayout, dateStr, h.loc)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}

	starts := h.engine.StartTimes(h.hours, date, time.Now().In(h.loc))
	out := make([]string, 0, len(starts))
	for _, s := range starts {
		out = append(out, s.Format("15:04"))
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": dateStr, "start_times": out})
}

// Book is the guarded creation path for the web adapter. The engine
// re-validates everything; this handler only translates the form payload.
func (h *PublicHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req bookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.ComputerID = strings.TrimSpace(req.ComputerID)
	if req.Phone == "" || req.ComputerID == "" {
		http.Error(w, "phone and computer_id required", http.StatusBadRequest)
		return
	}
	ivl, ok := h.parseInterval(w, req.StartTime, req.EndTime)
	if !ok {
		return
	}

	b, err := h.engine.CreateBooking(r.Context(), booking.CreateRequest{
		Contact:    model.Contact{Channel: model.ContactPhone, Value: req.Phone, Name: req.Name},
		ComputerID: req.ComputerID,
		Interval:   ivl,
	}, time.Now().In(h.loc))
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.bookingItem(b))
}

// MyBookings lists a customer's bookings by phone number, soonest first.
func (h *PublicHandler) MyBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	phone := strings.TrimSpace(r.URL.Query().Get("phone"))
	if phone == "" {
		http.Error(w, "phone is required", http.StatusBadRequest)
		return
	}
	bookings, err := h.engine.BookingsForContact(r.Context(), model.Contact{
		Channel: model.ContactPhone,
		Value:   phone,
	})
	if err != nil {
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}
	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, h.bookingItem(b))
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *PublicHandler) parseInterval(w http.ResponseWriter, startStr, endStr string) (availability.Interval, bool) {
	start, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(startStr), h.loc)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return availability.Interval{}, false
	}
	end, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(endStr), h.loc)
	if err != nil {
		http.Error(w, "invalid end_time", http.StatusBadRequest)
		return availability.Interval{}, false
	}
	return availability.Interval{Start: start, End: end}, true
}

func (h *PublicHandler) bookingItem(b model.Booking) bookingItem {
	return bookingItem{
		BookingID:    b.ID,
		ComputerID:   b.ComputerID,
		ComputerName: b.ComputerName,
		StartTime:    b.StartTime.In(h.loc).Format(TimeLayout),
		EndTime:      b.EndTime.In(h.loc).Format(TimeLayout),
		CreatedAt:    b.CreatedAt.In(h.loc).Format(time.RFC3339),
	}
}

// writeBookingError maps each rejection reason to its own status and message
// so callers can show an actionable response; nothing is collapsed into a
// generic failure.
func writeBookingError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, model.ErrInvalidInterval):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrPastStartTime):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, model.ErrUnknownComputer):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, model.ErrUnknownBooking):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, model.ErrSlotUnavailable):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, model.ErrForbidden):
		status, msg = http.StatusForbidden, err.Error()
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
