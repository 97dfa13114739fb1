// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/networth-tracker/internal/logging"
	"github.com/networth-tracker/internal/models"
	"github.com/networth-tracker/internal/scheduler"
	"github.com/networth-tracker/internal/service"
	"github.com/networth-tracker/internal/types"
)

// Service interfaces for dependency injection and testing

// PortfolioServiceInterface defines the portfolio read operations
type PortfolioServiceInterface interface {
	ComputePortfolio(ctx context.Context) (*service.Portfolio, error)
	EthValueByAccount(ctx context.Context) ([]service.AccountTotal, error)
	NetworthTimeSeries(ctx context.Context) ([]*models.NetworthSnapshot, error)
}

// TokenServiceInterface defines the token registration operations
type TokenServiceInterface interface {
	Register(ctx context.Context, chainID types.ChainID, address string) (*models.Token, error)
	List(ctx context.Context) ([]*models.Token, error)
	Unregister(ctx context.Context, chainID types.ChainID, address string) error
}

// OffchainServiceInterface defines the off-chain entry operations
type OffchainServiceInterface interface {
	Set(ctx context.Context, entry *models.OffchainBalance) error
	List(ctx context.Context) ([]*models.OffchainBalance, error)
	Delete(ctx context.Context, id int64) error
}

// SchedulerInterface defines the task enqueueing operations
type SchedulerInterface interface {
	EnqueueAllChecks(ctx context.Context) (int, error)
	Counts(ctx context.Context) (scheduler.JobCounts, error)
}

// FiatFeedInterface quotes the fiat conversion rate
type FiatFeedInterface interface {
	Rate(ctx context.Context, currency string) (float64, error)
}

// ChainStore defines the chain configuration operations
type ChainStore interface {
	Create(ctx context.Context, chain *models.Chain) error
	List(ctx context.Context) ([]*models.Chain, error)
	Delete(ctx context.Context, id types.ChainID) error
}

// AccountStore defines the account operations
type AccountStore interface {
	Create(ctx context.Context, account *models.Account) error
	List(ctx context.Context) ([]*models.Account, error)
	Delete(ctx context.Context, id int64) error
}

// Server represents the HTTP API server.
type Server struct {
	router           *mux.Router
	httpServer       *http.Server
	portfolioService PortfolioServiceInterface
	tokenService     TokenServiceInterface
	offchainService  OffchainServiceInterface
	scheduler        SchedulerInterface
	fiatFeed         FiatFeedInterface
	chainRepo        ChainStore
	accountRepo      AccountStore
	fiatCurrency     string
	config           *ServerConfig
	logger           *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int
}

// ServerDeps bundles the server's collaborators
type ServerDeps struct {
	PortfolioService PortfolioServiceInterface
	TokenService     TokenServiceInterface
	OffchainService  OffchainServiceInterface
	Scheduler        SchedulerInterface
	FiatFeed         FiatFeedInterface
	ChainRepo        ChainStore
	AccountRepo      AccountStore
	FiatCurrency     string
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps *ServerDeps, logger *logging.Logger) *Server {
	s := &Server{
		router:           mux.NewRouter(),
		portfolioService: deps.PortfolioService,
		tokenService:     deps.TokenService,
		offchainService:  deps.OffchainService,
		scheduler:        deps.Scheduler,
		fiatFeed:         deps.FiatFeed,
		chainRepo:        deps.ChainRepo,
		accountRepo:      deps.AccountRepo,
		fiatCurrency:     deps.FiatCurrency,
		config:           config,
		logger:           logger.WithField("component", "api_server"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSec)

	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	// Portfolio endpoints
	api.HandleFunc("/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/balances", s.handleRefreshBalances).Methods("POST")
	api.HandleFunc("/balances/accounts", s.handleGetAccountTotals).Methods("GET")
	api.HandleFunc("/balances/networth", s.handleGetNetworth).Methods("GET")
	api.HandleFunc("/balances/offchain", s.handleListOffchain).Methods("GET")
	api.HandleFunc("/balances/offchain", s.handleSetOffchain).Methods("POST")
	api.HandleFunc("/balances/offchain/{id}", s.handleDeleteOffchain).Methods("DELETE")

	// Token endpoints
	api.HandleFunc("/tokens", s.handleListTokens).Methods("GET")
	api.HandleFunc("/tokens", s.handleRegisterToken).Methods("POST")
	api.HandleFunc("/tokens/{chainID}/{address}", s.handleUnregisterToken).Methods("DELETE")

	// Chain endpoints
	api.HandleFunc("/chains", s.handleListChains).Methods("GET")
	api.HandleFunc("/chains", s.handleCreateChain).Methods("POST")
	api.HandleFunc("/chains/{id}", s.handleDeleteChain).Methods("DELETE")

	// Account endpoints
	api.HandleFunc("/accounts", s.handleListAccounts).Methods("GET")
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods("POST")
	api.HandleFunc("/accounts/{id}", s.handleDeleteAccount).Methods("DELETE")

	// Rate and job inspection endpoints
	api.HandleFunc("/fiat", s.handleGetFiatRate).Methods("GET")
	api.HandleFunc("/jobs", s.handleGetJobCounts).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "networth-tracker",
	})
}

// Router exposes the configured router for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
