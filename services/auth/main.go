// Микросервис авторизации: OTP по email и подписанные HMAC-сессии.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/friendforge/internal/config"
	"github.com/friendforge/internal/email"
	"github.com/friendforge/internal/handler"
	"github.com/friendforge/internal/logger"
	"github.com/friendforge/internal/middleware"
	"github.com/friendforge/internal/repository"
	"github.com/friendforge/internal/service"
	"github.com/friendforge/internal/storage"
	"github.com/friendforge/internal/storage/devstore"
	"github.com/friendforge/internal/startup"
)

func main() {
	logger.SetPrefix("auth")
	dev := flag.Bool("dev", false, "use in-memory store instead of Redis (no Redis required)")
	flag.Parse()

	logger.Info("starting auth service")
	cfg := config.Load()
	if cfg.SMTP.Username == "" || cfg.SMTP.Password == "" {
		logger.Info("SMTP не настроен (SMTP_USERNAME/SMTP_PASSWORD в .env). Письма с кодом отправляться не будут.")
	} else {
		logger.Infof("SMTP: %s (host %s:%d)", cfg.SMTP.Username, cfg.SMTP.Host, cfg.SMTP.Port)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second, "auth: ")
	defer pool.Close()

	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)

	var store storage.AuthStore
	if *dev {
		logger.Info("auth -dev: using DB for session_secret (сессии сохраняются после перезапуска)")
		store = devstore.New(sessionRepo)
	} else {
		redisClient := startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second, "auth: ")
		defer redisClient.Close()
		store = redisClient
	}
	mailer := email.NewSender(&cfg.SMTP)
	otpSvc := service.NewOTPAuthService(userRepo, sessionRepo, store, mailer)
	authH := handler.NewAuthHandler(otpSvc)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Session-Id", "X-Timestamp", "X-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Post("/api/auth/request-code", authH.RequestCode)
	r.Post("/api/auth/verify-code", authH.VerifyCode)
	r.With(middleware.InternalOnly).Post("/internal/validate", handler.ValidateSession(otpSvc))

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(sessionRepo, store))
		r.Get("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Write([]byte(`{"user_id":"` + middleware.GetUserID(r.Context()) + `"}`))
		})
		r.Post("/api/auth/logout", authH.LogoutSession)
		r.Delete("/api/auth/session", authH.LogoutSession)
		r.Delete("/api/auth/sessions", authH.LogoutAllSessions)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := os.Getenv("SERVER_ADDR")
	if addr == "" {
		addr = ":8081"
	}
	srv := &http.Server{Addr: addr, Handler: r, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}
	var srvWg sync.WaitGroup
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("auth server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("auth server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down auth server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("auth server shutdown: %v", err)
	}
	srvWg.Wait()
	logger.Info("auth server stopped")
}
