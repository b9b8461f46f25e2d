package httpx

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/shopcore/fulfillment/internal/identity"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Authenticate trusts the identity headers set by the auth layer in
// front of this service and rejects requests without them.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.Header.Get("X-User-Id")
		role, ok := identity.ParseRole(r.Header.Get("X-User-Role"))
		if ownerID == "" || !ok {
			writeJSON(w, http.StatusUnauthorized, errBody{Error: "missing or invalid identity"})
			return
		}
		ctx := identity.WithCaller(r.Context(), identity.Caller{Owner: ownerID, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
