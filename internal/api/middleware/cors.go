package middleware

import (
	"net/http"
	"strings"
)

// defaultOrigins - dev-серверы панели
var defaultOrigins = []string{
	"http://localhost:3000",
	"http://127.0.0.1:3000",
	"http://localhost:5173",
	"http://127.0.0.1:5173",
}

// CORS - middleware Cross-Origin Resource Sharing.
//
// origins - список через запятую (CORS_ALLOWED_ORIGINS), добавляется к dev
// origins. Для разрешенных origin отдается конкретный origin с credentials,
// для запросов без Origin (curl) - "*", остальным заголовки не ставятся.
// Preflight OPTIONS отвечает 204.
func CORS(origins string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(defaultOrigins))
	for _, o := range defaultOrigins {
		allowed[o] = true
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed[o] = true
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case origin == "":
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case allowed[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Add("Vary", "Origin")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
