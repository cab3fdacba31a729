// Package app initializes and runs the bloglist service.
// It configures logging, storage, authentication, routing and the optional
// gRPC transport, and handles graceful shutdown.
package app

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/patric-chuzhbe/bloglist/internal/auth"
	"github.com/patric-chuzhbe/bloglist/internal/config"
	"github.com/patric-chuzhbe/bloglist/internal/db/jsondb"
	"github.com/patric-chuzhbe/bloglist/internal/db/memorystorage"
	"github.com/patric-chuzhbe/bloglist/internal/db/postgresdb"
	"github.com/patric-chuzhbe/bloglist/internal/grpcserver"
	"github.com/patric-chuzhbe/bloglist/internal/ipchecker"
	"github.com/patric-chuzhbe/bloglist/internal/logger"
	"github.com/patric-chuzhbe/bloglist/internal/metrics"
	"github.com/patric-chuzhbe/bloglist/internal/models"
	"github.com/patric-chuzhbe/bloglist/internal/refpruner"
	"github.com/patric-chuzhbe/bloglist/internal/router"
	"github.com/patric-chuzhbe/bloglist/internal/service"
	"github.com/patric-chuzhbe/bloglist/internal/user"
)

const shutdownTimeout = 10 * time.Second

type storage interface {
	BeginTransaction() (*sql.Tx, error)
	RollbackTransaction(transaction *sql.Tx) error
	CommitTransaction(transaction *sql.Tx) error

	CreateUser(ctx context.Context, usr *user.User, transaction *sql.Tx) (string, error)
	GetUserByID(ctx context.Context, userID string, transaction *sql.Tx) (*user.User, error)
	GetUserByUsername(ctx context.Context, username string) (*user.User, error)
	GetUsersByIDs(ctx context.Context, userIDs []string) (map[string]*user.User, error)
	ListUsers(ctx context.Context) ([]*user.User, error)
	AppendUserBlog(ctx context.Context, userID, blogID string, transaction *sql.Tx) error
	RemoveUserBlogs(ctx context.Context, userBlogs map[string][]string) error

	InsertBlog(ctx context.Context, blog *models.Blog, transaction *sql.Tx) (string, error)
	GetBlogByID(ctx context.Context, blogID string) (*models.Blog, error)
	ListBlogs(ctx context.Context) ([]*models.Blog, error)
	UpdateBlog(ctx context.Context, blogID string, update models.BlogUpdate) (bool, error)
	DeleteBlog(ctx context.Context, blogID string, transaction *sql.Tx) (bool, error)

	CountBlogs(ctx context.Context) (int64, error)
	CountUsers(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// App holds everything needed to serve the bloglist API.
type App struct {
	cfg         *config.Config
	db          storage
	pruner      *refpruner.Pruner
	stopPruner  context.CancelFunc
	httpHandler http.Handler
	grpcServer  *grpc.Server
	grpcLis     net.Listener
}

// New loads the configuration and assembles the application.
func New() (*App, error) {
	var err error
	app := &App{}

	app.cfg, err = config.New()
	if err != nil {
		return nil, err
	}

	err = logger.Init(app.cfg.LogLevel, app.cfg.LogFile)
	if err != nil {
		return nil, err
	}

	if app.cfg.SecretGenerated {
		logger.Log.Warnln("SECRET is not set, signing tokens with a random per-process key")
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	signingSecretKey, err := base64.URLEncoding.DecodeString(app.cfg.TokenSigningSecretKey)
	if err != nil {
		return nil, err
	}

	theAuth := auth.New(
		app.db,
		app.cfg.AuthCookieName,
		signingSecretKey,
		app.cfg.TokenTTL,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsManager := metrics.NewManager("bloglist", "", registry)

	serviceOptions := []service.Option{
		service.WithUpdateMode(app.cfg.UpdateMode),
		service.WithCreateConsistency(app.cfg.CreateConsistency),
		service.WithRecorder(metricsManager),
	}

	if app.cfg.PruneDanglingRefs {
		app.pruner = refpruner.New(
			app.db,
			app.cfg.PrunerChannelCapacity,
			app.cfg.PrunerFlushInterval,
		)
		prunerRunCtx, stopPruner := context.WithCancel(context.Background())
		app.stopPruner = stopPruner

		app.pruner.Run(prunerRunCtx)
		app.pruner.ListenErrors(func(err error) {
			logger.Log.Debugln("Error passed from the `app.pruner.ListenErrors()`:", zap.Error(err))
		})

		serviceOptions = append(serviceOptions, service.WithPruner(app.pruner))
	}

	svc := service.New(app.db, theAuth, serviceOptions...)

	ipChecker, err := ipchecker.New(app.cfg.TrustedSubnet)
	if err != nil {
		return nil, err
	}

	app.httpHandler = router.New(
		svc,
		theAuth,
		metricsManager,
		ipChecker,
		router.WithCORSOrigins(app.cfg.CORSOrigins),
	)

	if app.cfg.GRPCAddr != "" {
		app.grpcServer, app.grpcLis, err = grpcserver.NewGRPCServer(
			app.cfg.GRPCAddr,
			grpcserver.NewBlogHandler(svc),
			theAuth,
			app.db,
		)
		if err != nil {
			return nil, err
		}
	}

	return app, nil
}

// Run starts the HTTP server and, when configured, the gRPC server. It
// returns after a termination signal or a server failure, once every
// resource is released.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Log.Infoln("server running", "RunAddr", a.cfg.RunAddr)

	server := &http.Server{
		Addr:    a.cfg.RunAddr,
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 2)
	go func() {
		serverErrCh <- server.ListenAndServe()
	}()

	if a.grpcServer != nil {
		logger.Log.Infoln("gRPC server running", "GRPCAddr", a.grpcLis.Addr().String())
		go func() {
			serverErrCh <- a.grpcServer.Serve(a.grpcLis)
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Stopping servers and exiting...")
	case err := <-serverErrCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	return multierr.Append(runErr, a.shutdown(server))
}

func (a *App) shutdown(server *http.Server) error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var result error
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		result = multierr.Append(result, fmt.Errorf("server shutdown error: %w", err))
	}

	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}

	if a.pruner != nil {
		a.stopPruner()
		a.pruner.Wait()
	}

	return multierr.Append(result, a.db.Close())
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout,
			cfg.MigrationsDir,
		)

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}
