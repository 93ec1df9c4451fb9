package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/omni/transfer-indexer/presenter/http/render"
)

type ctxKey int

const (
	tokenCtxKey ctxKey = iota
)

// GetTokenMiddleware resolves the {token} url parameter into one of the tracked token addresses.
func GetTokenMiddleware(tokens []common.Address) func(http.Handler) http.Handler {
	tracked := make(map[common.Address]bool, len(tokens))
	for _, token := range tokens {
		tracked[token] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			param := chi.URLParam(r, "token")
			if !common.IsHexAddress(param) {
				render.JSON(w, r, http.StatusBadRequest, fmt.Sprintf("invalid token address %s", param))
				return
			}
			token := common.HexToAddress(param)
			if !tracked[token] {
				render.JSON(w, r, http.StatusNotFound, fmt.Sprintf("token %s is not tracked", param))
				return
			}

			ctx := context.WithValue(r.Context(), tokenCtxKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func Token(ctx context.Context) common.Address {
	if token, ok := ctx.Value(tokenCtxKey).(common.Address); ok {
		return token
	}
	return common.Address{}
}
