// Package api implements the identity server process.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apphttp "github.com/jobmesh/identity-middleware/pkg/app/http"
	"github.com/jobmesh/identity-middleware/pkg/auth"
	"github.com/jobmesh/identity-middleware/pkg/authenticator"
	"github.com/jobmesh/identity-middleware/pkg/binder"
	"github.com/jobmesh/identity-middleware/pkg/config"
	enrollservice "github.com/jobmesh/identity-middleware/pkg/enrollment/service"
	"github.com/jobmesh/identity-middleware/pkg/face"
	"github.com/jobmesh/identity-middleware/pkg/identitystore"
	"github.com/jobmesh/identity-middleware/pkg/ledger"
	"github.com/jobmesh/identity-middleware/pkg/pgutil"
	"github.com/jobmesh/identity-middleware/pkg/session"
	"github.com/jobmesh/identity-middleware/pkg/templatestore"
	verifyservice "github.com/jobmesh/identity-middleware/pkg/verification/service"
)

const defaultRequestTimeout = 60

// warmupRetryInterval bounds how often the server re-checks a face engine
// that was not ready at startup.
const warmupRetryInterval = 10 * time.Second

// Server holds cfg to init the identity server.
type Server struct {
	cfg *config.Config
}

// NewServer initializes a new identity server.
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("identity server config is nil")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting identity server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("Connected to database",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Database),
	)

	redisClient, err := session.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()
	sessions := session.NewRedisStore(redisClient, cfg.Session.TTL)

	templates, err := templatestore.NewFSStore(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("open template store: %w", err)
	}

	engine := face.NewRemoteEngine(cfg.Face, logger)
	extractor := face.NewExtractor(engine, logger)
	s.warmUpExtractor(ctx, extractor, logger)

	ledgerClient, err := ledger.NewClient(cfg.Ledger, logger)
	if err != nil {
		return fmt.Errorf("connect ledger: %w", err)
	}
	defer ledgerClient.Close()

	credentials, err := authenticator.NewManager(cfg.Authenticator, logger)
	if err != nil {
		return fmt.Errorf("create credential manager: %w", err)
	}

	identityStore := identitystore.NewStore(db)
	bnd := binder.New(ledgerClient, logger)
	tokens := auth.NewTokenIssuer(cfg.Auth)

	enrollmentService := enrollservice.NewService(
		sessions, extractor, credentials, bnd, templates, identityStore, logger)
	verificationService := verifyservice.NewService(
		sessions, extractor, credentials, bnd, templates, identityStore, tokens,
		cfg.Face.MatchThreshold, logger)

	router := s.setupRouter(
		enrollservice.NewLog(enrollmentService, logger),
		verifyservice.NewLog(verificationService, logger),
		extractor,
		logger,
	)

	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

// warmUpExtractor marks the extractor ready once the face engine reports
// healthy. A cold engine at startup is not fatal; captures fail with a
// retryable error until the background check succeeds.
func (s *Server) warmUpExtractor(ctx context.Context, extractor *face.Extractor, logger *zap.Logger) {
	if err := extractor.WarmUp(ctx); err == nil {
		return
	}

	logger.Warn("Face engine not ready at startup, retrying in background",
		zap.Duration("interval", warmupRetryInterval))

	go func() {
		ticker := time.NewTicker(warmupRetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := extractor.WarmUp(ctx); err == nil {
					return
				}
			}
		}
	}()
}

func (s *Server) setupRouter(
	enrollmentService enrollservice.Service,
	verificationService verifyservice.Service,
	extractor *face.Extractor,
	logger *zap.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Second * defaultRequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !extractor.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("face engine warming up"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		enrollservice.RegisterRoutes(r, enrollmentService, s.cfg.Storage.MaxUploadBytes, logger)
		verifyservice.RegisterRoutes(r, verificationService, s.cfg.Storage.MaxUploadBytes, logger)
	})

	return r
}
