package middleware

import (
	"net/http"
	"strings"

	"github.com/drims/drims-backend/internal/identity/jwt"
	"github.com/drims/drims-backend/pkg/actor"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/httputil"
	"github.com/drims/drims-backend/pkg/logger"
)

// Authenticator validates JWT tokens and adds user context
type Authenticator struct {
	jwtManager *jwt.Manager
	logger     *logger.Logger
}

// NewAuthenticator creates a new authenticator
func NewAuthenticator(jwtManager *jwt.Manager, log *logger.Logger) *Authenticator {
	return &Authenticator{
		jwtManager: jwtManager,
		logger:     log,
	}
}

// Middleware rejects requests without a valid bearer token and stamps
// the caller identity into the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.Error(w, errors.Unauthorized("missing authorization header"))
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.Error(w, errors.Unauthorized("invalid authorization header format"))
			return
		}

		claims, err := a.jwtManager.Validate(parts[1])
		if err != nil {
			a.logger.Debug().Err(err).Msg("token validation failed")
			httputil.Error(w, err)
			return
		}

		ctx := httputil.WithUserContext(r.Context(), claims.UserID, claims.UserName, claims.Role)
		ctx = actor.WithActor(ctx, &actor.Actor{
			ID:          claims.UserID,
			UserName:    claims.UserName,
			DisplayName: claims.DisplayName,
			RoleCode:    claims.Role,
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole allows only callers holding one of the given roles
func (a *Authenticator) RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			act := actor.FromContext(r.Context())
			if act == nil {
				httputil.Error(w, errors.Unauthorized("authentication required"))
				return
			}
			if _, ok := allowed[act.RoleCode]; !ok {
				httputil.Error(w, errors.Forbidden("insufficient role"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
