// internal/server/server.go
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"nutricoach/internal/models"
	"nutricoach/pkg/logger"
)

// Gateway is the AI-backed part of the API.
type Gateway interface {
	AnalyzeMealImage(ctx context.Context, imageBase64, mimeType string) (*models.NutritionalInfo, error)
	GeneratePersonalizedPlan(ctx context.Context, metrics models.UserMetrics, goal string) (*models.PersonalizedPlan, error)
	GetHistory(ctx context.Context) (models.HistoryData, error)
	ClearHistory(ctx context.Context) error
}

type Sessions interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
	GoogleLogin(ctx context.Context) (*models.User, error)
	Logout(ctx context.Context) error
	Current() *models.User
}

type Options struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

type Server struct {
	server   *http.Server
	gateway  Gateway
	sessions Sessions
	tokens   *TokenIssuer
	logger   *logger.Logger
}

func NewServer(opts Options, gw Gateway, sessions Sessions, tokens *TokenIssuer, l *logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	s := &Server{
		gateway:  gw,
		sessions: sessions,
		tokens:   tokens,
		logger:   l.Named("http"),
	}

	s.server = &http.Server{
		Addr:         ":" + opts.Port,
		Handler:      s.routes(opts.AllowedOrigins),
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}
	return s
}

func (s *Server) routes(allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/google", s.handleGoogleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Post("/auth/logout", s.handleLogout)
			r.Get("/session", s.handleSession)
			r.Post("/meals/analyze", s.handleAnalyzeMeal)
			r.Post("/plans", s.handleGeneratePlan)
			r.Get("/history", s.handleGetHistory)
			r.Delete("/history", s.handleClearHistory)
		})
	})

	return r
}

func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	s.logger.Infow("Starting HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Infow("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Infow("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
