package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/dorholt/larder/internal/auth"
	"github.com/dorholt/larder/internal/store"
)

// SessionCookie is the name of the signed session cookie.
const SessionCookie = "larder_session"

// RequireAuth verifies the session cookie and installs the authenticated
// principal on the request context. A missing, malformed, or expired token
// yields 401, as does a token whose user no longer exists or is archived.
// Stale cookies are cleared. The user is loaded fresh on every request so
// an archived account loses access immediately.
func RequireAuth(tokens *auth.Tokens, users *store.UserStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				unauthorized(w)
				return
			}

			userID, remember, err := tokens.Verify(cookie.Value)
			if err != nil {
				ClearSessionCookie(w)
				unauthorized(w)
				return
			}

			user, err := users.GetByID(userID)
			if err != nil || user == nil || user.Archived {
				ClearSessionCookie(w)
				unauthorized(w)
				return
			}

			p := auth.Principal{
				UserID:   user.ID,
				Username: user.Username,
				Role:     user.Role,
				Remember: remember,
			}
			if user.HouseholdID != nil {
				p.HouseholdID = *user.HouseholdID
			}

			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// SetSessionCookie writes the session cookie. A non-remembered session is a
// browser-session cookie; a remembered one persists for the token lifetime.
func SetSessionCookie(w http.ResponseWriter, token string, remember bool) {
	c := &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	if remember {
		c.MaxAge = int(auth.TokenTTL.Seconds())
	}
	http.SetCookie(w, c)
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"kind":  "authentication",
		"error": "not authenticated",
	})
}
