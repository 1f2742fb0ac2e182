package authapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/target/ledger-console/internal/domain/auth"
	apperrors "github.com/target/ledger-console/internal/errors"
)

var clientNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/api", Now: func() time.Time { return clientNow }})
	require.NoError(t, err)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestClient_LoginSuccess(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/login", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"email": "ana@x.com", "password": "pw"}, body)

		writeJSON(t, w, http.StatusOK, map[string]any{
			"token":      "tok-1",
			"expires_in": 3600,
			"user":       map[string]any{"id": 7, "name": "Ana", "email": "ana@x.com", "is_admin": true},
		})
	})

	creds, err := c.Login(context.Background(), "ana@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", creds.Token)
	assert.Equal(t, "7", creds.User.ID)
	assert.True(t, creds.User.IsAdmin)
	assert.Equal(t, clientNow.Add(time.Hour), creds.ExpiresAt)
}

func TestClient_LoginResolvesMissingUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/login":
			writeJSON(t, w, http.StatusOK, map[string]any{"token": "tok-2"})
		case "/api/me":
			assert.Equal(t, "Bearer tok-2", r.Header.Get("Authorization"))
			writeJSON(t, w, http.StatusOK, map[string]any{"user": map[string]any{"id": "u2", "email": "bob@x.com"}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	creds, err := c.Login(context.Background(), "bob@x.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u2", creds.User.ID)
	assert.False(t, creds.User.IsAdmin)
}

func TestClient_LoginErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		check  func(error) bool
		msg    string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: map[string]string{"message": "Bad password"}, check: apperrors.IsInvalidCredentials, msg: "Bad password"},
		{name: "forbidden default message", status: http.StatusForbidden, body: map[string]string{}, check: apperrors.IsInvalidCredentials, msg: "Invalid email or password."},
		{name: "server error", status: http.StatusBadGateway, body: map[string]string{}, check: apperrors.IsNetwork},
		{name: "rate limited", status: http.StatusTooManyRequests, body: map[string]string{}, check: apperrors.IsNetwork},
		{name: "unprocessable", status: http.StatusUnprocessableEntity, body: map[string]string{"error": "Email is required"}, check: apperrors.IsInvalidCredentials, msg: "Email is required"},
		{name: "wrong route", status: http.StatusNotFound, body: map[string]string{}, check: apperrors.IsNetwork},
		{name: "method not allowed", status: http.StatusMethodNotAllowed, body: map[string]string{}, check: apperrors.IsNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(t, w, tt.status, tt.body)
			})
			_, err := c.Login(context.Background(), "ana@x.com", "pw")
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
			if tt.msg != "" {
				assert.Equal(t, tt.msg, apperrors.UserMessage(err))
			}
		})
	}
}

func TestClient_TransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Login(context.Background(), "ana@x.com", "pw")
	assert.True(t, apperrors.IsNetwork(err))
}

func TestClient_Register(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     any
		outcome  domainauth.Outcome
		message  string
		redirect string
	}{
		{
			name:    "accepted is pending",
			status:  http.StatusAccepted,
			body:    map[string]any{"message": "Aguarde aprovação"},
			outcome: domainauth.OutcomePendingApproval,
			message: "Aguarde aprovação",
		},
		{
			name:    "pending status",
			status:  http.StatusOK,
			body:    map[string]any{"status": "pending", "message": "Wait"},
			outcome: domainauth.OutcomePendingApproval,
			message: "Wait",
		},
		{
			name:   "approved",
			status: http.StatusCreated,
			body: map[string]any{
				"token":       "tok-3",
				"redirect_to": "/reports",
				"user":        map[string]any{"id": "u3", "email": "c@x.com"},
			},
			outcome:  domainauth.OutcomeApproved,
			redirect: "/reports",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/register", r.URL.Path)
				var in domainauth.RegisterInput
				require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
				assert.Equal(t, "Carol", in.Name)
				writeJSON(t, w, tt.status, tt.body)
			})

			res, err := c.Register(context.Background(), domainauth.RegisterInput{Name: "Carol", Email: "c@x.com", Password: "secret1"})
			require.NoError(t, err)
			require.NoError(t, res.Validate())
			assert.Equal(t, tt.outcome, res.Outcome())
			if p, ok := res.Pending(); ok {
				assert.Equal(t, tt.message, p.Message)
			}
			if a, ok := res.Approved(); ok {
				assert.Equal(t, tt.redirect, a.RedirectTarget)
				assert.Equal(t, "tok-3", a.Credentials.Token)
			}
		})
	}
}

func TestClient_RegisterAcceptedWithoutBody(t *testing.T) {
	for _, raw := range []string{"", "  \n", "queued"} {
		c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusAccepted)
			_, _ = w.Write([]byte(raw))
		})

		res, err := c.Register(context.Background(), domainauth.RegisterInput{Name: "Carol", Email: "c@x.com", Password: "secret1"})
		require.NoError(t, err, "body %q", raw)
		assert.Equal(t, domainauth.OutcomePendingApproval, res.Outcome())
		p, ok := res.Pending()
		require.True(t, ok)
		assert.Equal(t, domainauth.DefaultPendingMessage, p.Message)
	}
}

func TestClient_RegisterEmptyOKIsPending(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	res, err := c.Register(context.Background(), domainauth.RegisterInput{Name: "Carol", Email: "c@x.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, domainauth.OutcomePendingApproval, res.Outcome())
}

func TestClient_RegisterValidationError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusConflict, map[string]string{"message": "Email already registered.", "field": "email"})
	})

	_, err := c.Register(context.Background(), domainauth.RegisterInput{Name: "Carol", Email: "c@x.com", Password: "secret1"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "email", apperrors.GetField(err))
	assert.Equal(t, "Email already registered.", apperrors.UserMessage(err))
}

func TestClient_ResolveToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			writeJSON(t, w, http.StatusOK, map[string]any{"id": "u1", "name": "Ana", "email": "ana@x.com"})
		case "Bearer stale":
			writeJSON(t, w, http.StatusUnauthorized, map[string]any{})
		default:
			writeJSON(t, w, http.StatusServiceUnavailable, map[string]any{})
		}
	})
	ctx := context.Background()

	u, err := c.ResolveToken(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "Ana", u.Name)

	_, err = c.ResolveToken(ctx, "stale")
	assert.True(t, apperrors.IsSessionExpired(err))

	_, err = c.ResolveToken(ctx, "flaky")
	assert.True(t, apperrors.IsNetwork(err))

	_, err = c.ResolveToken(ctx, "")
	assert.True(t, apperrors.IsSessionExpired(err))
}

func TestClient_ResolveTokenSharesConcurrentCalls(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		<-release
		writeJSON(t, w, http.StatusOK, map[string]any{"id": "u1"})
	})

	const callers = 5
	var started, done sync.WaitGroup
	started.Add(callers)
	done.Add(callers)
	for range callers {
		go func() {
			defer done.Done()
			started.Done()
			u, err := c.ResolveToken(context.Background(), "shared")
			assert.NoError(t, err)
			assert.Equal(t, "u1", u.ID)
		}()
	}
	started.Wait()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	done.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_Revoke(t *testing.T) {
	var got string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/logout", r.URL.Path)
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	})
	require.NoError(t, c.Revoke(context.Background(), "tok-9"))
	assert.Equal(t, "Bearer tok-9", got)
}

func TestNewClient_RejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://x", "http://", "::"} {
		_, err := NewClient(Config{BaseURL: raw})
		assert.Error(t, err, raw)
	}
}
