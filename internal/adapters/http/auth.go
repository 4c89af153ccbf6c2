package httpadapter

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/kirillkom/hybrid-retrieval/internal/observability/logging"
)

const tenantHeader = "X-Tenant-ID"

type tenantContextKey struct{}

// tenantFromContext returns the tenant resolved for the request. Blank
// tenants are rejected by the use cases, not here.
func tenantFromContext(ctx context.Context) string {
	tenantID, _ := ctx.Value(tenantContextKey{}).(string)
	return tenantID
}

// authMiddleware checks the optional bearer key and resolves the tenant.
// Health and metrics endpoints stay open.
func (rt *Router) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requiresTenant(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		if rt.apiKey != "" && !isAuthorizedBearerHeader(r.Header.Get("Authorization"), rt.apiKey) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", RequestID: logging.RequestID(r.Context())})
			return
		}

		tenantID := strings.TrimSpace(r.Header.Get(tenantHeader))
		ctx := context.WithValue(r.Context(), tenantContextKey{}, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requiresTenant(path string) bool {
	return strings.HasPrefix(path, "/v1/")
}

func isAuthorizedBearerHeader(headerValue, expectedToken string) bool {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" || expectedToken == "" {
		return false
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) == 1
}
