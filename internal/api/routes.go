package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"futuresbot/internal/api/handlers"
	"futuresbot/internal/api/middleware"
	"futuresbot/internal/websocket"
)

// Dependencies содержит зависимости API
type Dependencies struct {
	Risk          handlers.RiskOperator
	Notifications handlers.NotificationReader
	Signals       handlers.SignalPoster
	Hub           *websocket.Hub

	// Символы, для которых принимаются сигналы
	Symbols []string

	// bcrypt хеш токена оператора; пусто - без аутентификации
	TokenHash   string
	CORSOrigins string

	// Запросов в секунду на IP; 0 - без ограничения
	RateLimit float64
	RateBurst float64
}

// SetupRoutes настраивает HTTP маршруты
//
// /api/v1/ (токен оператора, rate limit)
//
//	├── GET    /risk                  - состояние риска
//	├── POST   /risk/kill-switch      - включить kill switch
//	├── DELETE /risk/kill-switch      - выключить kill switch
//	├── GET    /positions             - позиции
//	├── POST   /positions             - ручное открытие
//	├── GET    /positions/{symbol}    - позиция
//	├── DELETE /positions/{symbol}    - ручное закрытие
//	├── GET    /trades                - журнал сделок
//	├── GET    /notifications         - журнал событий
//	└── POST   /signals               - сигнал для сканера
//
// /ws/stream (токен) - позиции, риск и события в реальном времени
// /health, /metrics - без аутентификации
//
// Порядок middleware: Recovery, Logging, CORS, затем RateLimit и TokenAuth
// для защищенных маршрутов.
func SetupRoutes(deps *Dependencies) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS(deps.CORSOrigins))

	// preflight отвечает CORS middleware, маршрут нужен только для совпадения
	router.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	auth := middleware.TokenAuth(deps.TokenHash)
	limit := middleware.RateLimit(deps.RateLimit, deps.RateBurst)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(mux.MiddlewareFunc(limit))
	api.Use(mux.MiddlewareFunc(auth))

	if deps.Risk != nil {
		riskHandler := handlers.NewRiskHandler(deps.Risk)
		api.HandleFunc("/risk", riskHandler.GetRisk).Methods(http.MethodGet)
		api.HandleFunc("/risk/kill-switch", riskHandler.ActivateKillSwitch).Methods(http.MethodPost)
		api.HandleFunc("/risk/kill-switch", riskHandler.DeactivateKillSwitch).Methods(http.MethodDelete)

		positionHandler := handlers.NewPositionHandler(deps.Risk)
		api.HandleFunc("/positions", positionHandler.GetPositions).Methods(http.MethodGet)
		api.HandleFunc("/positions", positionHandler.OpenPosition).Methods(http.MethodPost)
		api.HandleFunc("/positions/{symbol}", positionHandler.GetPosition).Methods(http.MethodGet)
		api.HandleFunc("/positions/{symbol}", positionHandler.ClosePosition).Methods(http.MethodDelete)
		api.HandleFunc("/trades", positionHandler.GetTrades).Methods(http.MethodGet)
	}

	if deps.Notifications != nil {
		notificationHandler := handlers.NewNotificationHandler(deps.Notifications)
		api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods(http.MethodGet)
	}

	if deps.Signals != nil {
		signalHandler := handlers.NewSignalHandler(deps.Signals, deps.Symbols)
		api.HandleFunc("/signals", signalHandler.PostSignal).Methods(http.MethodPost)
	}

	if deps.Hub != nil {
		router.Handle("/ws/stream", auth(http.HandlerFunc(deps.Hub.ServeWS))).Methods(http.MethodGet)
	}

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	return router
}
