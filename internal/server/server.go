package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/mindvoyage/apiserver/config"
	"github.com/mindvoyage/apiserver/internal/archive"
	"github.com/mindvoyage/apiserver/internal/db"
	"github.com/mindvoyage/apiserver/internal/handlers"
	"github.com/mindvoyage/apiserver/internal/llm"
	"github.com/mindvoyage/apiserver/internal/mail"
	"github.com/mindvoyage/apiserver/internal/queue"
	"github.com/mindvoyage/apiserver/internal/services"
	"github.com/mindvoyage/apiserver/internal/store"
)

// systemSenderNickname is the seeded account that authors the welcome letter.
const systemSenderNickname = "anonymous_sailor"

// Server wraps the HTTP server and its owned resources.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	broker     queue.Broker
	log        zerolog.Logger
}

// New wires the full application: storage, services, mail, queue, archive
// and routes.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	userRepo := store.NewUserRepository(dbConn)
	attendanceRepo := store.NewAttendanceRepository(dbConn)
	codeRepo := store.NewEmailCodeRepository(dbConn)
	letterRepo := store.NewLetterRepository(dbConn)
	satisfactionRepo := store.NewSatisfactionRepository(dbConn)
	reportRepo := store.NewReportRepository(dbConn)

	templates := mail.NewTemplates()

	var broker queue.Broker
	var mailer services.Mailer
	switch cfg.Queue.Backend {
	case "rabbitmq":
		broker, err = queue.NewRabbitMQBroker(cfg.Queue.RabbitMQ)
	case "pubsub":
		broker, err = queue.NewPubSubBroker(ctx, cfg.Queue.PubSub)
	case "":
		mailer, err = mail.NewSMTPMailer(cfg.Mail)
	default:
		err = fmt.Errorf("unknown mail queue backend %q", cfg.Queue.Backend)
	}
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	if broker != nil {
		mailer = mail.NewQueuedMailer(broker, log)
	}

	var archiver services.ReportArchiver
	switch cfg.Archive.Backend {
	case "minio":
		objectStore, err := archive.NewMinioStore(cfg.Archive.Minio)
		if err != nil {
			_ = dbConn.Close()
			return nil, err
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			return nil, err
		}
		archiver = archive.NewReportArchive(objectStore)
	case "gcs":
		objectStore, err := archive.NewGCSStore(ctx, cfg.Archive.GCS)
		if err != nil {
			_ = dbConn.Close()
			return nil, err
		}
		if err := objectStore.EnsureBucket(ctx); err != nil {
			_ = dbConn.Close()
			return nil, err
		}
		archiver = archive.NewReportArchive(objectStore)
	case "":
		// Archiving disabled.
	default:
		_ = dbConn.Close()
		return nil, fmt.Errorf("unknown report archive backend %q", cfg.Archive.Backend)
	}

	var completer services.Completer
	if strings.TrimSpace(cfg.LLM.APIKey) != "" {
		client, err := llm.NewClient(cfg.LLM)
		if err != nil {
			_ = dbConn.Close()
			return nil, err
		}
		completer = client
	} else {
		log.Warn().Msg("OPENAI_API_KEY not set, report classification disabled")
	}

	systemUser, err := userRepo.GetByNickname(ctx, systemSenderNickname)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("load system sender (did migrations run?): %w", err)
	}

	notifyService := services.NewNotifyService(userRepo, mailer, templates, log)
	letterService := services.NewLetterService(letterRepo, notifyService, systemUser.ID, log)
	attendanceService := services.NewAttendanceService(attendanceRepo)
	authService := services.NewAuthService(
		userRepo,
		codeRepo,
		attendanceService,
		letterService,
		mailer,
		templates,
		cfg.Auth,
		cfg.AppBaseURL,
		log,
	)
	satisfactionService := services.NewSatisfactionService(satisfactionRepo, letterRepo)
	reportService := services.NewReportService(letterRepo, reportRepo, completer, archiver, log)

	requireAuth := handlers.RequireAuth(authService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authService)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, authService, requireAuth)
	})
	router.Route("/attendance", func(r chi.Router) {
		handlers.AttendanceRouter(r, attendanceService, requireAuth)
	})
	router.Route("/letters", func(r chi.Router) {
		handlers.LetterRouter(r, letterService, requireAuth)
	})
	router.Route("/report", func(r chi.Router) {
		handlers.ReportRouter(r, reportService, requireAuth)
	})
	router.Route("/satisfaction", func(r chi.Router) {
		handlers.SatisfactionRouter(r, satisfactionService, requireAuth)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		broker:     broker,
		log:        log,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	return s.httpServer.ListenAndServe()
}

// Shutdown closes the server and its owned resources.
func (s *Server) Shutdown() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	if s.broker != nil {
		_ = s.broker.Close()
	}
	return s.httpServer.Close()
}
