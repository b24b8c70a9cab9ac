package middleware

import (
	"net/http"
	"time"

	"github.com/rpattn/entityhistory/internal/entityloader"
)

// DataLoaderMiddleware attaches a dataloader to the request context
func DataLoaderMiddleware(repo entityloader.EntityBatchReader, wait time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loader := entityloader.NewEntityLoader(repo, wait)
			ctx := entityloader.WithLoader(r.Context(), loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
