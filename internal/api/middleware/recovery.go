package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"futuresbot/pkg/utils"
)

// Recovery - перехват panic в handlers: лог со stack trace и 500 клиенту.
// Текст паники клиенту не отдается.
func Recovery(next http.Handler) http.Handler {
	log := utils.L().WithComponent("api")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic in handler",
					utils.String("path", r.URL.Path),
					utils.String("panic", fmt.Sprint(rec)),
					utils.String("stack", string(debug.Stack())),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
