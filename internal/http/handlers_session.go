package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domainauth "github.com/target/ledger-console/internal/domain/auth"
)

// DefaultHeartbeat keeps idle session streams open through proxies.
const DefaultHeartbeat = 25 * time.Second

// SessionView is the JSON projection of a session snapshot.
type SessionView struct {
	Status   domainauth.Status `json:"status"`
	User     *domainauth.User  `json:"user,omitempty"`
	InFlight bool              `json:"in_flight"`
	Error    string            `json:"error,omitempty"`
	Version  uint64            `json:"version"`
}

// NewSessionView projects snap. The user's profile stays server side.
func NewSessionView(snap domainauth.Snapshot) SessionView {
	v := SessionView{
		Status:   snap.Status,
		InFlight: snap.InFlight,
		Error:    snap.Error,
		Version:  snap.Version,
	}
	if snap.User != nil {
		u := *snap.User
		u.Profile = nil
		v.User = &u
	}
	return v
}

// SessionHandlers exposes the console session to scripts.
type SessionHandlers struct {
	Heartbeat time.Duration
	// Draining ends open streams when closed, so server shutdown is not
	// held up by clients that never disconnect.
	Draining <-chan struct{}
	Logger   *slog.Logger
}

func (h *SessionHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// Session serves GET /session.
func (h *SessionHandlers) Session(w http.ResponseWriter, r *http.Request) {
	c, ok := ConsoleFromContext(r.Context())
	if !ok {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: "console_unavailable",
			Err:     errors.New("console unavailable"),
		})
		return
	}
	WriteJSON(w, http.StatusOK, NewSessionView(c.Session.Snapshot()))
}

// Events serves GET /session/events, a server-sent event stream carrying a
// "session" event with the current snapshot and another on every change.
// Open pages reload on a status change so guards run again.
func (h *SessionHandlers) Events(w http.ResponseWriter, r *http.Request) {
	c, ok := ConsoleFromContext(r.Context())
	if !ok {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}
	rc := http.NewResponseController(w)

	// Only the newest snapshot matters; a slow reader skips intermediate ones.
	updates := make(chan domainauth.Snapshot, 1)
	unsubscribe := c.Session.Subscribe(func(snap domainauth.Snapshot) {
		for {
			select {
			case updates <- snap:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	last := c.Session.Snapshot()
	if err := writeSessionEvent(w, rc, last); err != nil {
		return
	}

	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.Draining:
			return
		case snap := <-updates:
			if snap.Version <= last.Version {
				continue
			}
			last = snap
			if err := writeSessionEvent(w, rc, snap); err != nil {
				h.logger().DebugContext(r.Context(), "session stream closed", "error", err)
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeSessionEvent(w http.ResponseWriter, rc *http.ResponseController, snap domainauth.Snapshot) error {
	payload, err := json.Marshal(NewSessionView(snap))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "id: %d\nevent: session\ndata: %s\n\n", snap.Version, payload); err != nil {
		return err
	}
	return rc.Flush()
}
