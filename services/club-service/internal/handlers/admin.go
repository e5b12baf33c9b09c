package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/avolkov/clubdesk/services/club-service/internal/booking"
	"github.com/avolkov/clubdesk/services/club-service/internal/model"
	"github.com/avolkov/clubdesk/services/club-service/internal/sessions"
	"github.com/avolkov/clubdesk/services/club-service/internal/storage"
)

const SessionCookie = "club_session"

// Accounts is the slice of the storage ledger the admin handler needs:
// credential lookup at login and customer reload per request.
type Accounts interface {
	GetAdminByName(ctx context.Context, name string) (storage.AdminAccount, error)
	GetCustomer(ctx context.Context, id string) (model.Customer, error)
}

// SessionStore issues and resolves opaque session tokens. Lookup failures for
// missing or expired tokens are sessions.ErrNoSession.
type SessionStore interface {
	Create(ctx context.Context, customerID string) (string, error)
	Get(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

type AdminHandler struct {
	engine   *booking.Engine
	accounts Accounts
	sessions SessionStore
	logger   *slog.Logger
	loc      *time.Location
}

func NewAdminHandler(engine *booking.Engine, accounts Accounts, store SessionStore, logger *slog.Logger, loc *time.Location) *AdminHandler {
	return &AdminHandler{engine: engine, accounts: accounts, sessions: store, logger: logger, loc: loc}
}

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type addComputerRequest struct {
	Name  string `json:"name"`
	Specs string `json:"specs"`
}

type setActiveRequest struct {
	ComputerID string `json:"computer_id"`
	Active     bool   `json:"active"`
}

type deleteBookingRequest struct {
	BookingID string `json:"booking_id"`
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Password == "" {
		http.Error(w, "name and password required", http.StatusBadRequest)
		return
	}

	account, err := h.accounts.GetAdminByName(r.Context(), req.Name)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		http.Error(w, "failed to look up account", http.StatusInternalServerError)
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := h.sessions.Create(r.Context(), account.ID)
	if err != nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	h.logger.Info("admin logged in", "customer_id", account.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		_ = h.sessions.Delete(r.Context(), cookie.Value)
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.WriteHeader(http.StatusNoContent)
}

// actor resolves the session cookie into an explicit authorization context.
// The customer row is reloaded every time; revoking admin takes effect on the
// next request, not at the next login.
func (h *AdminHandler) actor(r *http.Request) (model.Actor, error) {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return model.Actor{}, sessions.ErrNoSession
	}
	customerID, err := h.sessions.Get(r.Context(), cookie.Value)
	if err != nil {
		return model.Actor{}, err
	}
	customer, err := h.accounts.GetCustomer(r.Context(), customerID)
	if err != nil {
		return model.Actor{}, err
	}
	return model.Actor{CustomerID: customer.ID, Admin: customer.Admin}, nil
}

func (h *AdminHandler) requireActor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, err := h.actor(r)
	if err != nil {
		if errors.Is(err, sessions.ErrNoSession) {
			http.Error(w, "login required", http.StatusUnauthorized)
			return model.Actor{}, false
		}
		http.Error(w, "failed to resolve session", http.StatusInternalServerError)
		return model.Actor{}, false
	}
	return actor, true
}

func (h *AdminHandler) AddComputer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req addComputerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	c, err := h.engine.AddComputer(r.Context(), actor, req.Name, strings.TrimSpace(req.Specs))
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, computerItem{ID: c.ID, Name: c.Name, Specs: c.Specs})
}

func (h *AdminHandler) SetComputerActive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req setActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.ComputerID) == "" {
		http.Error(w, "computer_id required", http.StatusBadRequest)
		return
	}

	if err := h.engine.SetComputerActive(r.Context(), actor, req.ComputerID, req.Active); err != nil {
		writeBookingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req deleteBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.BookingID) == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}

	if err := h.engine.DeleteBooking(r.Context(), actor, req.BookingID); err != nil {
		writeBookingError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}

	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	bookings, err := h.engine.ListBookings(r.Context(), actor, limit)
	if err != nil {
		writeBookingError(w, err)
		return
	}

	type adminBookingItem struct {
		bookingItem
		CustomerName string `json:"customer_name,omitempty"`
	}
	items := make([]adminBookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, adminBookingItem{
			bookingItem: bookingItem{
				BookingID:    b.ID,
				ComputerID:   b.ComputerID,
				ComputerName: b.ComputerName,
				StartTime:    b.StartTime.In(h.loc).Format(TimeLayout),
				EndTime:      b.EndTime.In(h.loc).Format(TimeLayout),
				CreatedAt:    b.CreatedAt.In(h.loc).Format(time.RFC3339),
			},
			CustomerName: b.CustomerName,
		})
	}
	writeJSON(w, http.StatusOK, items)
}
