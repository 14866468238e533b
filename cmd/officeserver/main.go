// Package main provides the office server binary: authenticated WebSocket
// presence and movement relay, plus a loopback gRPC admin service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/office/internal/admin"
	"github.com/cory-johannsen/office/internal/auth"
	"github.com/cory-johannsen/office/internal/config"
	"github.com/cory-johannsen/office/internal/observability"
	"github.com/cory-johannsen/office/internal/officeserver"
	"github.com/cory-johannsen/office/internal/presence"
	"github.com/cory-johannsen/office/internal/rooms"
	"github.com/cory-johannsen/office/internal/server"
	"github.com/cory-johannsen/office/internal/transport/ws"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting office server",
		zap.String("http_addr", cfg.Server.Addr()),
		zap.String("ws_path", cfg.Server.WSPath),
	)

	denylist := auth.NewMemoryDenylist()
	authn, err := auth.NewAuthenticator(cfg.Auth,
		auth.WithDenylist(denylist),
		auth.WithLogger(logger.Named("auth")),
	)
	if err != nil {
		logger.Fatal("creating authenticator", zap.Error(err))
	}

	var catalog *rooms.Catalog
	if cfg.Rooms.CatalogPath != "" {
		catalog, err = rooms.LoadCatalog(cfg.Rooms.CatalogPath)
		if err != nil {
			logger.Fatal("loading cabin catalog", zap.Error(err))
		}
		logger.Info("cabin catalog loaded",
			zap.String("path", cfg.Rooms.CatalogPath),
			zap.Int("cabins", catalog.Len()),
		)
	}

	registry := presence.NewRegistry(cfg.WebSocket.SendBuffer)
	svc := officeserver.NewService(registry, rooms.NewManager(catalog), logger.Named("session"))

	acceptor := ws.NewAcceptor(cfg.WebSocket, authn, ws.SessionHandlerFunc(func(ctx context.Context, conn *ws.Conn) error {
		return svc.HandleSession(ctx, conn)
	}), logger.Named("ws"))

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.WSPath, acceptor)
	mux.Handle("/healthz", ws.HealthHandler(svc.Count))
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Wire lifecycle
	lifecycle := server.NewLifecycle(logger, server.WithStopTimeout(cfg.Server.ShutdownTimeout))

	lifecycle.Add("http", &server.FuncService{
		StartFn: func() error {
			lis, err := net.Listen("tcp", cfg.Server.Addr())
			if err != nil {
				return fmt.Errorf("listening on %s: %w", cfg.Server.Addr(), err)
			}
			logger.Info("http server listening", zap.String("addr", lis.Addr().String()))
			if err := httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
		StopFn: func() {
			acceptor.Stop()
			stopCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(stopCtx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
		},
	})

	if cfg.Admin.Enabled {
		grpcServer := admin.NewGRPCServer(svc, logger.Named("admin"),
			admin.WithRevoker(denylist, cfg.Auth.RevocationTTL),
		)
		lifecycle.Add("admin", &server.FuncService{
			StartFn: func() error {
				lis, err := net.Listen("tcp", cfg.Admin.Addr())
				if err != nil {
					return fmt.Errorf("listening on %s: %w", cfg.Admin.Addr(), err)
				}
				logger.Info("admin gRPC server listening", zap.String("addr", lis.Addr().String()))
				return grpcServer.Serve(lis)
			},
			StopFn: func() {
				grpcServer.GracefulStop()
			},
		})
	}

	logger.Info("office server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Bool("admin_enabled", cfg.Admin.Enabled),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
