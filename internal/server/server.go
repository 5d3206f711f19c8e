package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/boatfuel/fueltracker/config"
	"github.com/boatfuel/fueltracker/internal/db"
	"github.com/boatfuel/fueltracker/internal/events"
	"github.com/boatfuel/fueltracker/internal/handlers"
	"github.com/boatfuel/fueltracker/internal/logging"
	"github.com/boatfuel/fueltracker/internal/metrics"
	"github.com/boatfuel/fueltracker/internal/mq"
	"github.com/boatfuel/fueltracker/internal/resolver"
	"github.com/boatfuel/fueltracker/internal/services"
	"github.com/boatfuel/fueltracker/internal/session"
	"github.com/boatfuel/fueltracker/internal/storage"
	"github.com/boatfuel/fueltracker/internal/store"
	"github.com/boatfuel/fueltracker/internal/txn"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Server wraps the HTTP server, router and the backing connections.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	log        *log.Logger

	databases *resolver.Resolver[*sql.DB]
	broker    *mq.MQ
	objects   *storage.Storage
	redis     *redis.Client
}

// New wires configuration into services and routes. The database is
// resolved lazily: when no candidate is reachable at startup the server
// still starts and requests report the database as unavailable.
func New(ctx context.Context, cfg config.Config) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	s := &Server{log: logger}
	s.databases = resolver.New(db.Candidates(cfg.Database), db.Open, resolver.Options{
		Logger:    logger.WithField("component", "db"),
		Redact:    db.Redact,
		OnAttempt: m.ResolverAttempt,
	})
	if _, err := s.databases.Get(ctx); err != nil {
		logger.WithError(err).Warn("no database reachable at startup")
	} else if source, ok := s.databases.Source(); ok {
		logger.WithField("database", db.Redact(source)).Info("database connected")
	}
	runner := txn.NewRunner(s.databases, nil)

	fuelUpOpts := []services.FuelUpOption{
		services.WithFuelUpRecorder(m),
		services.WithFuelUpLogger(logger),
	}

	s.broker, err = mq.Open(ctx, cfg.MQ)
	switch {
	case errors.Is(err, mq.ErrDisabled):
		logger.Info("message broker disabled, fuel-up events are not published")
	case err != nil:
		s.close()
		return nil, fmt.Errorf("open message broker: %w", err)
	default:
		publisher := events.NewPublisher(s.broker, cfg.MQ.FuelUpTopic, m)
		fuelUpOpts = append(fuelUpOpts, services.WithFuelUpEvents(publisher))
	}

	s.objects, err = storage.Open(ctx, cfg.Storage)
	switch {
	case errors.Is(err, storage.ErrDisabled):
		logger.Info("object storage disabled, exports are unavailable")
	case err != nil:
		s.close()
		return nil, fmt.Errorf("open object storage: %w", err)
	default:
		fuelUpOpts = append(fuelUpOpts, services.WithExportStore(s.objects))
	}

	sessionStore, err := s.openSessionStore(ctx, cfg.Session)
	if err != nil {
		s.close()
		return nil, err
	}
	sessions := session.NewManager(sessionStore, cfg.Session.TTL, session.WithLogger(logger))

	fuelUpService := services.NewFuelUpService(runner, func(d txn.DBTX) services.FuelUpRepository {
		return store.NewFuelUpRepository(d)
	}, fuelUpOpts...)
	userService := services.NewUserService(runner, func(d txn.DBTX) services.UserRepository {
		return store.NewUserRepository(d)
	})

	auth := handlers.NewAuthHandler(userService, sessions, cfg.JWTSecret, cfg.TokenTTL, logger)
	fuelUps := handlers.NewFuelUpHandler(fuelUpService, logger)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		requestLogger(logger),
		m.Instrument,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", m.Handler())
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, auth)
	})
	router.Route("/fuelups", func(r chi.Router) {
		handlers.FuelUpRouter(r, fuelUps, auth.RequireSession)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

func (s *Server) openSessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, error) {
	if cfg.RedisAddr == "" {
		s.log.Info("using in-memory session store")
		return session.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	s.redis = client
	s.log.WithField("addr", cfg.RedisAddr).Info("using redis session store")
	return session.NewRedisStore(client, cfg.RedisPrefix), nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and then releases backing connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.close()
	return err
}

func (s *Server) close() {
	if s.broker != nil {
		if err := s.broker.Close(); err != nil {
			s.log.WithError(err).Warn("close message broker")
		}
	}
	if s.objects != nil {
		if err := s.objects.Close(); err != nil {
			s.log.WithError(err).Warn("close object storage")
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.WithError(err).Warn("close redis")
		}
	}
	if s.databases != nil {
		if conn, ok := s.databases.Invalidate(); ok && conn != nil {
			if err := conn.Close(); err != nil {
				s.log.WithError(err).Warn("close database")
			}
		}
	}
}

// requestLogger logs one line per request through logrus.
func requestLogger(logger log.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.WithFields(log.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"bytes":      ww.BytesWritten(),
				"duration":   time.Since(start).String(),
			}).Info("request")
		})
	}
}
