package middleware

import (
	"net/http"

	"storefront/internal/domain"

	"go.uber.org/zap"
)

// RequireAdmin lets only admin callers through
func RequireAdmin(logger *zap.Logger) func(http.Handler) http.Handler {
	return RequireRole(logger, domain.RoleAdmin)
}

// RequireRole lets through callers holding one of the roles. It must run
// after AuthMiddleware.
func RequireRole(logger *zap.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, _ := GetUserRole(r.Context())
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}

			userID, _ := GetUserID(r.Context())
			logger.Warn("Forbidden",
				zap.String("user_id", userID.String()),
				zap.String("role", role),
				zap.Strings("allowed_roles", roles),
				zap.String("path", r.URL.Path),
			)
			RespondWithError(w, http.StatusForbidden, "insufficient permissions")
		})
	}
}
