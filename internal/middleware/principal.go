package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/homebase-app/homebase/internal/ctxkeys"
)

// PrincipalHeader carries the id of the user or circle a request acts for.
// Authentication happens upstream (gateway or session layer); this service
// only scopes by the id it is handed.
const PrincipalHeader = "X-Principal-ID"

// Principal adds the caller's principal id to the context if present.
func Principal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(PrincipalHeader))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(ctxkeys.WithPrincipal(r.Context(), id)))
	})
}

// RequirePrincipal rejects requests without a principal id.
func RequirePrincipal(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ctxkeys.Principal(r.Context()) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing "+PrincipalHeader+" header")
			return
		}
		next(w, r)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
