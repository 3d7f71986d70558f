package handler

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/codeboard/internal/i18n"
	"github.com/pavelanni/codeboard/internal/model"
)

// requireAdmin is middleware that checks HTTP basic auth against the
// configured bcrypt hash. Without a hash the admin routes are open.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.config.AdminPasswordHash == "" {
			next.ServeHTTP(w, r.WithContext(model.ContextWithAdmin(r.Context(), h.config.AdminUser)))
			return
		}

		user, password, ok := r.BasicAuth()
		if !ok || !h.checkAdmin(user, password) {
			if ok {
				slog.Warn("admin login failed", "user", user, "remote", r.RemoteAddr)
			}
			w.Header().Set("WWW-Authenticate", `Basic realm="codeboard admin", charset="UTF-8"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": appI18n.T(r.Context(), "Unauthorized")})
			return
		}

		next.ServeHTTP(w, r.WithContext(model.ContextWithAdmin(r.Context(), user)))
	})
}

func (h *Handler) checkAdmin(user, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.config.AdminUser)) == 1
	err := bcrypt.CompareHashAndPassword([]byte(h.config.AdminPasswordHash), []byte(password))
	return userOK && err == nil
}
