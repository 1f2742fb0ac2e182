package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNavigate(t *testing.T) {
	plain := httptest.NewRequest(http.MethodPost, "/login", nil)
	rec := httptest.NewRecorder()
	Navigate(rec, plain, "/banks")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/banks", rec.Header().Get("Location"))

	hx := httptest.NewRequest(http.MethodPost, "/login", nil)
	hx.Header.Set("HX-Request", "true")
	rec = httptest.NewRecorder()
	Navigate(rec, hx, "/banks")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "/banks", rec.Header().Get("Hx-Redirect"))
	assert.Empty(t, rec.Header().Get("Location"))
}

func TestWantsPartial(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.False(t, WantsPartial(req))

	req.Header.Set("Hx-Request", "true")
	assert.True(t, WantsPartial(req))

	req.Header.Set("Hx-History-Restore-Request", "true")
	assert.False(t, WantsPartial(req), "history restores need the layout")
}
