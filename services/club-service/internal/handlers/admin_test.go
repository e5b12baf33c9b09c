package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/avolkov/clubdesk/services/club-service/internal/booking"
	"github.com/avolkov/clubdesk/services/club-service/internal/model"
	"github.com/avolkov/clubdesk/services/club-service/internal/sessions"
	"github.com/avolkov/clubdesk/services/club-service/internal/storage"
)

type fakeAccounts struct {
	admins    map[string]storage.AdminAccount // by name
	customers map[string]model.Customer       // by id
}

func (f *fakeAccounts) GetAdminByName(_ context.Context, name string) (storage.AdminAccount, error) {
	a, ok := f.admins[name]
	if !ok {
		return storage.AdminAccount{}, pgx.ErrNoRows
	}
	return a, nil
}

func (f *fakeAccounts) GetCustomer(_ context.Context, id string) (model.Customer, error) {
	c, ok := f.customers[id]
	if !ok {
		return model.Customer{}, pgx.ErrNoRows
	}
	return c, nil
}

type fakeSessions struct {
	tokens map[string]string // token -> customer id
	seq    int
}

func (f *fakeSessions) Create(_ context.Context, customerID string) (string, error) {
	if f.tokens == nil {
		f.tokens = make(map[string]string)
	}
	f.seq++
	token := fmt.Sprintf("tok-%d", f.seq)
	f.tokens[token] = customerID
	return token, nil
}

func (f *fakeSessions) Get(_ context.Context, token string) (string, error) {
	id, ok := f.tokens[token]
	if !ok {
		return "", sessions.ErrNoSession
	}
	return id, nil
}

func (f *fakeSessions) Delete(_ context.Context, token string) error {
	delete(f.tokens, token)
	return nil
}

func newAdminFixture(t *testing.T) (*AdminHandler, *fakeAccounts, *fakeSessions, *memLedger) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("swordfish"), bcrypt.MinCost)
	require.NoError(t, err)

	accounts := &fakeAccounts{
		admins: map[string]storage.AdminAccount{
			"boss": {
				Customer:     model.Customer{ID: "a1", Name: "boss", Admin: true},
				PasswordHash: string(hash),
			},
		},
		customers: map[string]model.Customer{
			"a1": {ID: "a1", Name: "boss", Admin: true},
		},
	}
	store := &fakeSessions{}
	ledger := &memLedger{}
	engine := booking.NewEngine(ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := NewAdminHandler(engine, accounts, store, slog.New(slog.NewTextHandler(io.Discard, nil)), time.UTC)
	return h, accounts, store, ledger
}

func login(t *testing.T, h *AdminHandler, name, password string) *httptest.ResponseRecorder {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"password":%q}`, name, password)
	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/login", strings.NewReader(body)))
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h, _, store, _ := newAdminFixture(t)

	rec := login(t, h, "boss", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = login(t, h, "nobody", "swordfish")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, store.tokens, "failed logins must not create sessions")
}

func TestLoginIssuesCookieAndAdminCallSucceeds(t *testing.T) {
	h, _, store, _ := newAdminFixture(t)

	rec := login(t, h, "boss", "swordfish")
	require.Equal(t, http.StatusNoContent, rec.Code)
	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "a1", store.tokens[cookie.Value])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/computers/add",
		strings.NewReader(`{"name":"PC-9","specs":"Ryzen 7, 16GB"}`))
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	h.AddComputer(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "PC-9")
}

func TestAdminCallWithoutSessionIs401(t *testing.T) {
	h, _, _, _ := newAdminFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/computers/add",
		strings.NewReader(`{"name":"PC-9"}`))
	rec := httptest.NewRecorder()
	h.AddComputer(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/computers/add",
		strings.NewReader(`{"name":"PC-9"}`))
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "stale-token"})
	rec = httptest.NewRecorder()
	h.AddComputer(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// Revoking the admin flag takes effect on the next request even though the
// session token is still live: the actor is rebuilt from the customer row
// every time.
func TestRevokedAdminIs403(t *testing.T) {
	h, accounts, _, _ := newAdminFixture(t)

	rec := login(t, h, "boss", "swordfish")
	require.Equal(t, http.StatusNoContent, rec.Code)
	cookie := sessionCookie(t, rec)

	accounts.customers["a1"] = model.Customer{ID: "a1", Name: "boss", Admin: false}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/computers/add",
		strings.NewReader(`{"name":"PC-9"}`))
	req.AddCookie(cookie)
	rec2 := httptest.NewRecorder()
	h.AddComputer(rec2, req)
	assert.Equal(t, http.StatusForbidden, rec2.Code)
}

func TestLogoutDeletesSession(t *testing.T) {
	h, _, store, _ := newAdminFixture(t)

	rec := login(t, h, "boss", "swordfish")
	require.Equal(t, http.StatusNoContent, rec.Code)
	cookie := sessionCookie(t, rec)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/logout", nil)
	req.AddCookie(cookie)
	rec2 := httptest.NewRecorder()
	h.Logout(rec2, req)

	assert.Equal(t, http.StatusNoContent, rec2.Code)
	assert.Empty(t, store.tokens)
}
