// Package server initializes and runs the QR login server: it opens the
// credential store, applies migrations, wires the services and serves the
// gRPC API and the browser login endpoint until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/atiera/qrlogin/internal/cryptox"
	"github.com/atiera/qrlogin/internal/logging"
	"github.com/atiera/qrlogin/internal/server/audit"
	"github.com/atiera/qrlogin/internal/server/auth"
	"github.com/atiera/qrlogin/internal/server/config"
	"github.com/atiera/qrlogin/internal/server/httpx"
	"github.com/atiera/qrlogin/internal/server/repositories/repomanager"
	"github.com/atiera/qrlogin/internal/server/services"

	gs "github.com/atiera/qrlogin/internal/server/grpc"
)

// runner is satisfied by the gRPC and HTTP servers.
type runner interface {
	Run(ctx context.Context) error
}

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	servers map[string]runner
}

// openStore is a seam for tests.
var openStore = repomanager.Open

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.NewJSON(os.Stdout, c.LogLevel)

	db, rm, err := openStore(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	app, err := wire(ctx, c, logger, db, rm)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return app, nil
}

func wire(ctx context.Context, c *config.Config, logger logging.Logger, db *sql.DB, rm repomanager.RepositoryManager) (*App, error) {

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	cipher, err := cryptox.NewTokenCipher(c.AppKey)
	if err != nil {
		return nil, fmt.Errorf("cipher init error: %w", err)
	}
	signingKey, err := auth.SigningKey(c.AppKey)
	if err != nil {
		return nil, fmt.Errorf("signing key error: %w", err)
	}

	sink, err := audit.New(ctx, c, db, rm)
	if err != nil {
		return nil, fmt.Errorf("audit sink error: %w", err)
	}

	codes := services.NewQRCodeService(db, rm, cipher, sink, logger, c)
	login := services.NewLoginService(codes, sink, logger, signingKey, c)

	h := httpx.NewHandler(login, logger, c.AppURL, c.SessionTokenValidityDuration)

	return &App{
		config: c,
		logger: logger,
		db:     db,
		servers: map[string]runner{
			"grpc": gs.NewGRPCServer(c.EndpointAddrGRPC, logger, codes, login, signingKey),
			"http": httpx.NewServer(c.EndpointAddrHTTP, httpx.NewServeMux(h), logger),
		},
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled, a signal arrives or one of the servers
// fails; a failing server stops the others.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	for name, s := range app.servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Run(ctx); err != nil {
				app.logger.Error(ctx, "server stopped", "server", name, "error", err)
				cancelFunc()
			}
		}()
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
