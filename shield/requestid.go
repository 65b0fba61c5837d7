package shield

import (
	"net/http"

	"github.com/hazyhaar/praxis/idgen"
	"github.com/hazyhaar/praxis/kit"
)

// RequestID injects a request ID into the context and echoes it in the
// X-Request-ID response header. An inbound X-Request-ID is trusted if present
// so that IDs survive the reverse proxy.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = idgen.New()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := kit.WithRequestID(r.Context(), id)
		ctx = kit.WithRemoteAddr(ctx, r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
