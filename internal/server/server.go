package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/Nzyazin/walletledger/internal/core/events"
	"github.com/Nzyazin/walletledger/internal/core/handler"
	"github.com/Nzyazin/walletledger/internal/core/idempotency"
	"github.com/Nzyazin/walletledger/internal/core/logger"
	middlWre "github.com/Nzyazin/walletledger/internal/core/middleware"
	"github.com/Nzyazin/walletledger/internal/core/repository"
	"github.com/Nzyazin/walletledger/internal/core/repository/memory"
	"github.com/Nzyazin/walletledger/internal/core/repository/postgres"
	"github.com/Nzyazin/walletledger/internal/core/usecase"
	"github.com/Nzyazin/walletledger/pkg/config"
	"github.com/Nzyazin/walletledger/pkg/postgresdb"
	"github.com/Nzyazin/walletledger/pkg/rabbitmq"
	"github.com/Nzyazin/walletledger/pkg/redisdb"
	"github.com/gorilla/mux"
	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	"github.com/slok/go-http-metrics/middleware/std"
)

type Server struct {
	router   *mux.Router
	log      logger.Logger
	registry *promclient.Registry

	mu         sync.Mutex
	httpServer *http.Server
	stopped    bool

	walletHandler      *handler.WalletHandler
	transactionHandler *handler.TransactionHandler

	db        *postgresdb.Database
	redis     *redis.Client
	publisher events.Publisher
}

func NewServer(ctx context.Context, cfg *config.AppConfig, log logger.Logger) (*Server, error) {
	server := &Server{
		log:      log,
		router:   mux.NewRouter(),
		registry: promclient.NewRegistry(),
	}
	server.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := server.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	idem, err := server.openIdempotencyStore(ctx, cfg)
	if err != nil {
		server.closeResources()
		return nil, err
	}

	server.publisher = rabbitmq.Connect(cfg.RabbitMQURL, log)

	ledger := usecase.NewLedgerUsecase(store, log,
		usecase.Config{
			MaxRetries:       cfg.Ledger.MaxRetries,
			RetryBackoff:     cfg.Ledger.RetryBackoff,
			OperationTimeout: cfg.Ledger.OperationTimeout,
		},
		usecase.WithIdempotencyStore(idem),
		usecase.WithPublisher(server.publisher),
		usecase.WithMetrics(usecase.NewMetrics(server.registry)),
	)
	server.walletHandler = handler.NewWalletHandler(ledger, log)
	server.transactionHandler = handler.NewTransactionHandler(ledger, log)

	server.router.Use(middlWre.RequestLogger(server.log))

	mw := middleware.New(middleware.Config{
		Recorder: prometheus.NewRecorder(prometheus.Config{Registry: server.registry}),
	})

	server.router.Use(func(next http.Handler) http.Handler {
		return std.Handler("", mw, next)
	})

	server.RegisterRoutes()

	return server, nil
}

func (s *Server) openStore(ctx context.Context, cfg *config.AppConfig) (repository.Store, error) {
	if cfg.StorageDriver == config.StorageMemory {
		s.log.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}

	cfgDB, err := config.LoadConfigDB()
	if err != nil {
		return nil, err
	}

	db, err := postgresdb.NewPostgresDB(*cfgDB, s.log)
	if err != nil {
		return nil, err
	}
	s.db = db

	if err := postgres.Migrate(ctx, db.DB); err != nil {
		s.closeResources()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return postgres.NewStore(db.DB, s.log), nil
}

func (s *Server) openIdempotencyStore(ctx context.Context, cfg *config.AppConfig) (idempotency.Store, error) {
	if cfg.RedisURL == "" {
		return idempotency.NewMemoryStore(cfg.IdempotencyTTL), nil
	}

	client, err := redisdb.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	s.redis = client
	s.log.Info("Idempotency keys stored in Redis")
	return idempotency.NewRedisStore(client, cfg.IdempotencyTTL), nil
}

func (s *Server) RegisterRoutes() {
	s.router.Use(
		middlWre.WithErrorHandler(s.log),
		middlWre.Recovery(s.log),
	)
	s.router.NotFoundHandler = middlWre.NotFoundHandler()
	s.router.MethodNotAllowedHandler = middlWre.MethodNotAllowedHandler()

	s.walletHandler.RegisterRoutes(s.router)
	s.transactionHandler.RegisterRoutes(s.router)

	s.router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.router.HandleFunc("/debug/pprof/", pprof.Index)
	s.router.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	s.router.HandleFunc("/debug/pprof/profile", pprof.Profile)
	s.router.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	s.router.HandleFunc("/debug/pprof/trace", pprof.Trace)
	s.router.PathPrefix("/debug/pprof/").HandlerFunc(pprof.Index)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var errs []error
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := errors.Join(errs...); err != nil {
		s.log.Error("Health check failed", logger.ErrorField("error", err))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) Run(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      12 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 60 * time.Second,
	}

	if err := s.setHTTPServer(srv); err != nil {
		return err
	}
	return srv.ListenAndServe()
}

// setHTTPServer records srv for Shutdown. A server started after Shutdown
// is refused.
func (s *Server) setHTTPServer(srv *http.Server) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return http.ErrServerClosed
	}
	s.httpServer = srv
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	var shutdownErr error

	s.mu.Lock()
	s.stopped = true
	httpServer := s.httpServer
	s.mu.Unlock()

	go func() {
		if httpServer != nil {
			err := httpServer.Shutdown(ctx)
			if err != nil {
				s.log.Error("failed to shutdown HTTP server", logger.ErrorField("error", err))
				shutdownErr = fmt.Errorf("HTTP server shutdown error: %w", err)
			}
		}

		if err := s.closeResources(); err != nil {
			shutdownErr = errors.Join(shutdownErr, err)
		}

		close(done)
	}()

	select {
	case <-done:
		return shutdownErr
	case <-ctx.Done():
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (s *Server) closeResources() error {
	var closeErr error

	if s.publisher != nil {
		s.publisher.Close()
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.log.Error("failed to close redis connection", logger.ErrorField("error", err))
			closeErr = errors.Join(closeErr, fmt.Errorf("redis shutdown error: %w", err))
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.log.Error("failed to close database connection", logger.ErrorField("error", err))
			closeErr = errors.Join(closeErr, fmt.Errorf("database shutdown error: %w", err))
		}
	}

	return closeErr
}

func (s *Server) RunTLS(addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       9 * time.Second,
		WriteTimeout:      9 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 6 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	if err := s.setHTTPServer(srv); err != nil {
		return err
	}
	return srv.ListenAndServeTLS(certFile, keyFile)
}
