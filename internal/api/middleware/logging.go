package middleware

import (
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"

	"futuresbot/pkg/utils"
)

// responseWriter запоминает статус и размер ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logging - middleware логирования запросов.
//
// Каждому запросу присваивается X-Request-ID (ULID), если клиент его не
// передал. 5xx пишутся уровнем error, 4xx - warn, остальное - debug.
func Logging(next http.Handler) http.Handler {
	log := utils.L().WithComponent("api")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = ulid.Make().String()
		}
		w.Header().Set("X-Request-ID", reqID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		fields := []utils.Field{
			utils.RequestID(reqID),
			utils.String("method", r.Method),
			utils.String("path", r.URL.Path),
			utils.Int("status", wrapped.statusCode),
			utils.Int64("bytes", wrapped.written),
			utils.String("remote", r.RemoteAddr),
			utils.Elapsed(time.Since(start)),
		}
		switch {
		case wrapped.statusCode >= 500:
			log.Error("http request", fields...)
		case wrapped.statusCode >= 400:
			log.Warn("http request", fields...)
		default:
			log.Debug("http request", fields...)
		}
	})
}
