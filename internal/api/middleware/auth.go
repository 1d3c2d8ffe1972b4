package middleware

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"futuresbot/pkg/crypto"
	"futuresbot/pkg/utils"
)

// TokenAuth - middleware проверки токена оператора.
//
// Токен передается в заголовке Authorization: Bearer <token> или, для
// WebSocket из браузера, параметром access_token. В конфигурации
// хранится только bcrypt хеш. Проверенные токены кешируются
// по SHA-256, чтобы bcrypt не выполнялся на каждый запрос.
//
// Пустой hash отключает проверку (локальный запуск).
func TokenAuth(hash string) func(http.Handler) http.Handler {
	if hash == "" {
		utils.L().WithComponent("api").Warn("API token auth disabled: API_TOKEN_HASH is empty")
		return func(next http.Handler) http.Handler { return next }
	}

	var verified sync.Map // [32]byte -> struct{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="futuresbot"`)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			key := sha256.Sum256([]byte(token))
			if _, ok := verified.Load(key); !ok {
				if err := crypto.VerifyToken(token, hash); err != nil {
					w.Header().Set("WWW-Authenticate", `Bearer realm="futuresbot"`)
					writeError(w, http.StatusUnauthorized, "invalid token")
					return
				}
				verified.Store(key, struct{}{})
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return r.URL.Query().Get("access_token")
	}
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
