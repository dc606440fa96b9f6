// Package server is the composition root: it opens the store, builds the
// services and handlers, mounts the routes and runs the HTTP server until
// SIGINT or SIGTERM.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/chat-backend/internal/auth"
	"github.com/sakif/chat-backend/internal/config"
	"github.com/sakif/chat-backend/internal/handler"
	"github.com/sakif/chat-backend/internal/llm"
	"github.com/sakif/chat-backend/internal/middleware"
	"github.com/sakif/chat-backend/internal/repository"
	"github.com/sakif/chat-backend/internal/repository/jsonfile"
	sqliteRepo "github.com/sakif/chat-backend/internal/repository/sqlite"
	"github.com/sakif/chat-backend/internal/service"
)

// Server owns the store and the generator and closes both on shutdown.
type Server struct {
	router    *chi.Mux
	config    *config.Config
	logger    *slog.Logger
	store     repository.Store
	generator llm.Generator
}

// New wires every dependency. A corrupt JSON store surfaces as an error
// matching jsonfile.ErrCorrupt.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Storage.Driver, err)
	}

	generator, err := llm.New(context.Background(), cfg.LLM, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating text generator: %w", err)
	}

	s := &Server{
		router:    chi.NewRouter(),
		config:    cfg,
		logger:    logger,
		store:     store,
		generator: generator,
	}

	if err := s.setupRoutes(); err != nil {
		s.close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func openStore(cfg config.StorageConfig, logger *slog.Logger) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		if cfg.Path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		return sqliteRepo.New(cfg.Path)
	case config.DriverJSON, "":
		return jsonfile.Open(cfg.Path, jsonfile.Options{
			ResetOnCorrupt: cfg.ResetOnCorrupt,
			Logger:         logger,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes mounts:
//
//	GET  /                                 index page
//	GET  /static/*                         static files
//	GET  /api/health
//	POST /api/auth/{identify,register,login,logout}
//	GET  /auth/github/{login,callback}     only with GitHub credentials
//	GET  /api/me, /api/me/logins           authenticated
//	     /api/chats...                     authenticated
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	tokens, err := auth.NewTokenService(s.config.Auth.JWTSecret, s.config.Auth.TokenTTL)
	if err != nil {
		return err
	}
	if s.config.Auth.JWTSecretGenerated {
		s.logger.Warn("JWT_SECRET not set, using a random secret; sessions end on restart")
	}

	var github *auth.GitHubProvider
	if s.config.Auth.GitHubEnabled() {
		github = auth.NewGitHubProvider(
			s.config.Auth.GitHubClientID,
			s.config.Auth.GitHubClientSecret,
			s.config.Auth.GitHubCallbackURL,
		)
	}

	identity := service.NewIdentityService(s.store.Users(), s.store.Logins(), auth.NewPasswordService(), s.logger)
	conversations := service.NewConversationService(s.store.Chats(), s.store.Messages(), s.logger)
	assistant := service.NewAssistantService(conversations, s.generator, s.config.LLM.Timeout, s.logger)

	authHandler := handler.NewAuthHandler(identity, tokens, github, s.logger)
	chatHandler := handler.NewChatHandler(identity, conversations, assistant, s.logger)
	pageHandler := handler.NewPageHandler(s.config.StaticDir, s.config.ProjectName, s.config.Version, s.logger)

	fileServer := http.FileServer(http.Dir(s.config.StaticDir))
	s.router.Handle("/static/*", http.StripPrefix("/static/", fileServer))
	s.router.Get("/", pageHandler.HandleIndex)

	if github != nil {
		s.router.Get("/auth/github/login", authHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", authHandler.HandleGitHubCallback)
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", pageHandler.HandleHealth)

		r.Post("/auth/identify", authHandler.HandleIdentify)
		r.Post("/auth/register", authHandler.HandleRegister)
		r.Post("/auth/login", authHandler.HandleLogin)
		r.Post("/auth/logout", authHandler.HandleLogout)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))

			r.Get("/me", authHandler.HandleMe)
			r.Get("/me/logins", authHandler.HandleLoginHistory)

			r.Post("/chats", chatHandler.HandleCreate)
			r.Get("/chats", chatHandler.HandleList)
			r.Get("/chats/{chatID}", chatHandler.HandleGet)
			r.Get("/chats/{chatID}/messages", chatHandler.HandleMessages)
			r.Post("/chats/{chatID}/messages", chatHandler.HandleSend)
			r.Put("/chats/{chatID}/messages/last", chatHandler.HandleEditLast)
		})
	})

	return nil
}

// Start serves until a shutdown signal arrives, then drains in-flight
// requests and closes the store and generator.
func (s *Server) Start() error {
	defer s.close()

	srv := &http.Server{
		Addr:        s.config.Addr(),
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// replies wait for generation
		WriteTimeout: s.config.LLM.Timeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.String("addr", srv.Addr),
			slog.String("storage", s.config.Storage.Driver),
			slog.String("path", s.config.Storage.Path),
			slog.String("model", s.generator.Model()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

func (s *Server) close() {
	if err := s.generator.Close(); err != nil {
		s.logger.Warn("closing generator", slog.String("error", err.Error()))
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("closing store", slog.String("error", err.Error()))
	}
}
