package auth

import (
	"net/http"
	"strings"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RequireTenant resolves the bearer token into the acting tenant and stores
// it in the request context. Requests without a valid session get 401; the
// engines behind this middleware only ever see the explicit tenant.
func RequireTenant(service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tenant, err := service.Resolve(r.Context(), bearerToken(r))
			if err != nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing or expired session")
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithTenant(r.Context(), tenant)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, found := strings.CutPrefix(header, "Bearer "); found {
		return token
	}
	return ""
}
