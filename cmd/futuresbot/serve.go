package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"futuresbot/internal/api"
	"futuresbot/internal/api/handlers"
	"futuresbot/internal/bot"
	"futuresbot/internal/exchange"
	"futuresbot/internal/models"
	"futuresbot/internal/service"
	"futuresbot/internal/websocket"
	"futuresbot/pkg/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine and the operator API",
	Long: `Serve starts the position monitor, the market scanner and the HTTP API.

Signals for the scanner are posted to POST /api/v1/signals. With the paper
exchange the close price in the posted indicators becomes the mark price.

SIGINT or SIGTERM stops the scanner first, then the monitor, and saves
the risk state before exit.`,
	RunE: runServe,
}

// notificationBuffer - емкость канала уведомлений движка
const notificationBuffer = 256

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer log.Sync()

	// runCtx живет до остановки движка: циклы используют его для вызовов биржи
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	st, err := openStores(runCtx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()
	log.Info("storage ready", utils.String("driver", cfg.Database.Driver))

	gw, err := exchange.NewGateway(cfg.Bot.Exchange, cfg.Bot.PaperBalance)
	if err != nil {
		return err
	}

	board := service.NewSignalBoard(cfg.Bot.SignalTTL)
	var signals handlers.SignalPoster = board
	if paper, ok := gw.(*exchange.PaperGateway); ok {
		signals = paperFeed{SignalBoard: board, gw: paper}
	}

	notifs := make(chan *models.Notification, notificationBuffer)
	risk := bot.NewRiskEngine(cfg.Bot.Risk, notifs)
	ledger := bot.NewPositionLedger(risk, cfg.Bot.Position)

	engine := bot.NewEngine(
		exchange.WithRateLimit(gw, cfg.Bot.ExchangeRate, cfg.Bot.ExchangeBurst),
		board, risk, ledger, notifs, cfg.Bot.EngineConfig(),
	)
	engine.SetStateStore(st.state)

	hub := websocket.NewHub()
	hub.SetAllowedOrigins(cfg.Server.CORSOrigins)
	go hub.Run()
	engine.SetHub(hub)

	// nil репозитории не передаем в интерфейсы: typed nil не равен nil
	var notificationStore service.NotificationStore
	var tradeStore service.TradeStore
	if st.notifications != nil {
		notificationStore = st.notifications
	}
	if st.trades != nil {
		tradeStore = st.trades
		engine.SetJournal(st.trades)
	}

	notificationService := service.NewNotificationService(notificationStore, cfg.Notifications.Muted)
	notificationService.SetWebSocketHub(hub)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		notificationService.Run(runCtx, notifs)
	}()

	if cfg.Notifications.Retention > 0 && notificationStore != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runRetention(runCtx, notificationService, cfg.Notifications.Retention, log)
		}()
	}

	if err := engine.Start(runCtx); err != nil {
		cancelRun()
		wg.Wait()
		return fmt.Errorf("start engine: %w", err)
	}

	router := api.SetupRoutes(&api.Dependencies{
		Risk:          service.NewRiskService(engine, tradeStore),
		Notifications: notificationService,
		Signals:       signals,
		Hub:           hub,
		Symbols:       cfg.Bot.Symbols,
		TokenHash:     cfg.Security.APITokenHash,
		CORSOrigins:   cfg.Server.CORSOrigins,
		RateLimit:     cfg.Server.RateLimit,
		RateBurst:     cfg.Server.RateBurst,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("starting server", utils.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("shutting down", utils.String("signal", sig.String()))
	case runErr = <-serverErr:
		log.Error("server failed", utils.Err(runErr))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server shutdown", utils.Err(err))
	}

	// движок останавливается до отмены runCtx: Stop сохраняет состояние
	if err := engine.Stop(ctx); err != nil {
		log.Error("engine stop", utils.Err(err))
		if runErr == nil {
			runErr = err
		}
	}

	cancelRun()
	wg.Wait()
	hub.Stop()

	log.Info("server exited")
	return runErr
}

// runRetention раз в час удаляет старые уведомления
func runRetention(ctx context.Context, svc *service.NotificationService, maxAge time.Duration, log *utils.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		if _, err := svc.CleanupOlderThan(ctx, maxAge); err != nil && ctx.Err() == nil {
			log.Warn("notification cleanup failed", utils.Err(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
