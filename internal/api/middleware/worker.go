package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/phrazzld/pagescan/internal/api/shared"
	"github.com/phrazzld/pagescan/internal/platform/workerclient"
)

// WorkerSecret admits only requests carrying the shared worker secret.
// An empty secret rejects everything.
func WorkerSecret(secret string) func(http.Handler) http.Handler {
	want := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(workerclient.SecretHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid worker credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
