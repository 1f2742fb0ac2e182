package httpx

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/ledger-console/internal/domain/access"
	domainauth "github.com/target/ledger-console/internal/domain/auth"
	apperrors "github.com/target/ledger-console/internal/errors"
	"github.com/target/ledger-console/internal/service"
)

func TestLoginPage_Renders(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)

	resp := b.get("/login?next=%2Freports")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	html := body(t, resp)
	assert.Contains(t, html, `name="email"`)
	assert.Contains(t, html, `name="next" value="/reports"`)
	assert.NotContains(t, html, "Administration", "no menu before sign-in")
}

func TestLoginSubmit_EmptyFieldsNeverReachBackend(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)

	resp := b.post("/login", url.Values{"email": {"  "}, "password": {""}}, true)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	html := body(t, resp)
	assert.Contains(t, html, "Email is required.")
	assert.Contains(t, html, "Password is required.")
	assert.NotContains(t, html, "<html", "htmx posts get the form fragment")
	assert.Zero(t, h.backend.Calls("Login"))
}

// A wrong password leaves the console signed out with
// an inline error and no redirect.
func TestLoginSubmit_InvalidCredentials(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)

	resp := b.post("/login", url.Values{"email": {"ana@x.com"}, "password": {"wrong"}}, true)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Hx-Redirect"))
	html := body(t, resp)
	assert.Contains(t, html, "Invalid email or password.")
	assert.Contains(t, html, `value="ana@x.com"`, "email is kept")

	snap := b.console().Session.Snapshot()
	assert.Equal(t, domainauth.StatusUnauthenticated, snap.Status)
	assert.Equal(t, "Invalid email or password.", snap.Error)
}

func TestLoginSubmit_NetworkFailure(t *testing.T) {
	h := newHarness(t)
	h.backend.LoginFunc = func(context.Context, string, string) (domainauth.Credentials, error) {
		return domainauth.Credentials{}, apperrors.Network(context.DeadlineExceeded)
	}
	b := h.newBrowser(t)

	resp := b.post("/login", url.Values{"email": {"ana@x.com"}, "password": {testPassword}}, false)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, body(t, resp), "<html", "plain posts get the full page")
}

func TestLoginSubmit_RedirectsToNext(t *testing.T) {
	tests := []struct {
		name string
		next string
		want string
	}{
		{name: "local path", next: "/reports/monthly", want: "/reports/monthly"},
		{name: "no next", next: "", want: "/"},
		{name: "absolute url", next: "https://evil.example/x", want: "/"},
		{name: "scheme relative", next: "//evil.example", want: "/"},
		{name: "login page", next: "/login?next=/x", want: "/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			b := h.newBrowser(t)

			form := url.Values{"email": {"bob@x.com"}, "password": {testPassword}, "next": {tt.next}}
			resp := b.post("/login", form, false)
			require.Equal(t, http.StatusSeeOther, resp.StatusCode)
			assert.Equal(t, tt.want, resp.Header.Get("Location"))
		})
	}
}

func TestLoginSubmit_HTMXUsesHXRedirect(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)

	resp := b.post("/login", url.Values{"email": {"bob@x.com"}, "password": {testPassword}}, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Hx-Redirect"))
}

func TestLoginPage_AuthenticatedGoesOn(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)
	b.signIn("bob@x.com")

	resp := b.get("/login?next=%2Fbanks")
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/banks", resp.Header.Get("Location"))
}

func TestLoginSubmit_RequiresCSRFToken(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)
	b.csrfToken()

	form := url.Values{"email": {"bob@x.com"}, "password": {testPassword}}
	resp, err := b.client.PostForm(h.server.URL+"/login", form)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Zero(t, h.backend.Calls("Login"))
}

// The pending message is shown and the status poll
// delivers exactly one redirect to /login once five seconds have passed.
func TestRegister_PendingApprovalRedirectsOnce(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)

	resp := b.get("/register")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	form := url.Values{
		"name":             {"Ana"},
		"email":            {"ana@x.com"},
		"password":         {"secret1"},
		"confirm_password": {"secret1"},
	}
	resp = b.post("/register", form, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	html := body(t, resp)
	assert.Contains(t, html, "Awaiting approval")
	assert.Contains(t, html, `hx-get="/register/status"`)
	assert.Equal(t, 1, h.clock.Pending())

	resp = b.get("/register/status", htmxHeader)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Hx-Redirect"))

	h.clock.Advance(5 * time.Second)

	resp = b.get("/register/status", htmxHeader)
	assert.Equal(t, "/login", resp.Header.Get("Hx-Redirect"))

	resp = b.get("/register/status", htmxHeader)
	assert.Equal(t, StatusStopPolling, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Hx-Redirect"), "delivered once")
	assert.Equal(t, domainauth.StatusUnauthenticated, b.console().Session.Snapshot().Status)
}

func TestRegister_PendingResubmitShowsMessage(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)
	b.get("/register")

	form := url.Values{"name": {"Ana"}, "email": {"ana@x.com"}, "password": {"secret1"}, "confirm_password": {"secret1"}}
	b.post("/register", form, true)
	resp := b.post("/register", form, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body(t, resp), "Awaiting approval")
	assert.Equal(t, 1, h.backend.Calls("Register"))
	assert.Equal(t, 1, h.clock.Pending())
}

// An approved registration authenticates and
// redirects to the landing path at once.
func TestRegister_ApprovedRedirectsImmediately(t *testing.T) {
	h := newHarness(t)
	h.backend.RegisterFunc = func(_ context.Context, in domainauth.RegisterInput) (domainauth.RegistrationResult, error) {
		user := domainauth.User{ID: "3", Name: in.Name, Email: in.Email}
		return domainauth.NewApproved(domainauth.Approved{Credentials: h.creds(user)}), nil
	}
	b := h.newBrowser(t)
	b.get("/register")

	form := url.Values{"name": {"Bob"}, "email": {"bob@x.com"}, "password": {"secret1"}, "confirm_password": {"secret1"}}
	resp := b.post("/register", form, false)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Zero(t, h.clock.Pending())

	snap := b.console().Session.Snapshot()
	assert.Equal(t, domainauth.StatusAuthenticated, snap.Status)
	assert.Equal(t, "bob@x.com", snap.User.Email)
}

func TestRegister_PasswordMismatchNeverReachesBackend(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)
	b.get("/register")

	form := url.Values{"name": {"Ana"}, "email": {"ana@x.com"}, "password": {"secret1"}, "confirm_password": {"secret2"}}
	resp := b.post("/register", form, true)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	html := body(t, resp)
	assert.Contains(t, html, "Passwords do not match.")
	assert.Contains(t, html, `value="Ana"`)
	assert.NotContains(t, html, "secret1", "passwords are never echoed")
	assert.Zero(t, h.backend.Calls("Register"))
}

func TestRegister_BackendFieldError(t *testing.T) {
	h := newHarness(t)
	h.backend.RegisterFunc = func(context.Context, domainauth.RegisterInput) (domainauth.RegistrationResult, error) {
		return domainauth.RegistrationResult{}, apperrors.ValidationField("email", "Email already registered.")
	}
	b := h.newBrowser(t)
	b.get("/register")

	form := url.Values{"name": {"Ana"}, "email": {"ana@x.com"}, "password": {"secret1"}, "confirm_password": {"secret1"}}
	resp := b.post("/register", form, true)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body(t, resp), "Email already registered.")

	flow, ok := b.console().Registration()
	require.True(t, ok)
	assert.Equal(t, service.FlowIdle, flow.View().State, "form stays submittable")
}

func TestRegister_NavigatingAwayCancelsRedirect(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)
	b.get("/register")

	form := url.Values{"name": {"Ana"}, "email": {"ana@x.com"}, "password": {"secret1"}, "confirm_password": {"secret1"}}
	b.post("/register", form, true)
	require.Equal(t, 1, h.clock.Pending())

	b.get("/transactions")
	assert.Zero(t, h.clock.Pending(), "leaving the page tears the flow down")

	h.clock.Advance(10 * time.Second)
	resp := b.get("/register/status", htmxHeader)
	assert.Equal(t, StatusStopPolling, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Hx-Redirect"))
}

func TestRegister_DismissCancelsRedirect(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)
	b.get("/register")

	form := url.Values{"name": {"Ana"}, "email": {"ana@x.com"}, "password": {"secret1"}, "confirm_password": {"secret1"}}
	b.post("/register", form, true)
	require.Equal(t, 1, h.clock.Pending())

	resp := b.post("/register/dismiss", nil, false)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Zero(t, h.clock.Pending())

	resp = b.post("/register/dismiss", nil, false)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "dismiss is idempotent")
}

func TestLogout_IsIdempotent(t *testing.T) {
	h := newHarness(t)
	b := h.newBrowser(t)
	b.signIn("bob@x.com")
	consoleID := b.console().ID

	resp := b.post("/logout", nil, false)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.Equal(t, domainauth.StatusUnauthenticated, b.console().Session.Snapshot().Status)
	_, err := h.tokens.Load(context.Background(), consoleID)
	require.Error(t, err, "persisted token is deleted")

	resp = b.post("/logout", nil, true)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get("Hx-Redirect"))
	assert.Equal(t, 1, h.backend.Calls("Revoke"))
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: apperrors.InvalidCredentials(""), want: http.StatusUnauthorized},
		{err: apperrors.SessionExpired(nil), want: http.StatusUnauthorized},
		{err: apperrors.Validation("bad"), want: http.StatusUnprocessableEntity},
		{err: apperrors.Network(nil), want: http.StatusBadGateway},
		{err: service.ErrSubmissionInFlight, want: http.StatusConflict},
		{err: service.ErrSuperseded, want: http.StatusConflict},
		{err: apperrors.Internalf("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusForError(tt.err), tt.err.Error())
	}
}

func TestNextTarget(t *testing.T) {
	h := &AuthHandlers{Paths: withDefaultPaths(access.Paths{})}
	assert.Equal(t, "/", h.nextTarget(""))
	assert.Equal(t, "/banks?page=2", h.nextTarget("/banks?page=2"))
	assert.Equal(t, "/", h.nextTarget("/register"))
	assert.Equal(t, "/", h.nextTarget("/login"))
	assert.Equal(t, "/", h.nextTarget(`/\evil.example`))
	assert.Equal(t, "/loginx", h.nextTarget("/loginx"))
}
