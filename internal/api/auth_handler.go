package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const (
	stateCookie    = "bulksub_oauth_state"
	stateCookieTTL = 10 * time.Minute
)

// AuthStatus сообщает, есть ли сохранённый OAuth токен.
// GET /api/v1/auth/status
func (h *Handler) AuthStatus(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		Success(w, AuthStatusResponse{})
		return
	}

	ok, err := h.auth.Authenticated(r.Context())
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, AuthStatusResponse{Configured: true, Authenticated: ok})
}

// AuthRedirect перенаправляет на страницу согласия Google.
// GET /auth
func (h *Handler) AuthRedirect(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		Unavailable(w, "oauth client is not configured")
		return
	}

	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.auth.AuthCodeURL(state), http.StatusFound)
}

// OAuthCallback обменивает код авторизации на токен и сохраняет его.
// GET /oauth2callback?code=...&state=...
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	if h.auth == nil {
		Unavailable(w, "oauth client is not configured")
		return
	}

	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		BadRequest(w, "authorization denied: "+e)
		return
	}

	code := q.Get("code")
	if code == "" {
		BadRequest(w, "missing code")
		return
	}

	cookie, err := r.Cookie(stateCookie)
	if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		BadRequest(w, "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/", MaxAge: -1})

	if _, err := h.auth.Exchange(r.Context(), code); err != nil {
		h.logger.Error("oauth exchange failed", "error", err)
		Error(w, http.StatusBadGateway, ErrCodeUnavailable, "token exchange failed")
		return
	}

	h.logger.Info("oauth token stored")
	http.Redirect(w, r, "/?auth=ok", http.StatusFound)
}
