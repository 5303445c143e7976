package httpmw

import (
	"context"
	"net/http"
	"strings"

	"github.com/cwrk-planet/realtime-service/internal/domain"
	"github.com/cwrk-planet/realtime-service/pkg/logger"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

type Authenticator interface {
	Authenticate(credential string) (domain.Identity, error)
}

// AuthMiddleware требует Authorization: Bearer <token> (или гостевой токен)
// и кладёт identity в контекст.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if len(h) <= 7 || !strings.EqualFold(h[:7], "bearer ") {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			id, err := auth.Authenticate(strings.TrimSpace(h[7:]))
			if err != nil {
				logger.FromContext(r.Context()).Info("http auth rejected", "err", err)
				writeUnauthorized(w, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyIdentity, id)
			ctx = logger.WithContext(ctx, logger.FromContext(ctx).With("user", id.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromCtx(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(domain.Identity)
	return id, ok
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"` + msg + `"}}`))
}
