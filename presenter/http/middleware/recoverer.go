package middleware

import (
	"fmt"
	"net/http"

	"github.com/omni/transfer-indexer/presenter/http/render"
)

// Recoverer turns handler panics into 500 responses.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler { //nolint:errorlint
				panic(rec)
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("%v", rec)
			}
			render.Error(w, r, fmt.Errorf("recovered panic from the http handler: %w", err))
		}()
		next.ServeHTTP(w, r)
	})
}
