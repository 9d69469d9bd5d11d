package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jengzang/routecast/internal/api"
	"github.com/jengzang/routecast/internal/broadcast"
	"github.com/jengzang/routecast/internal/config"
	"github.com/jengzang/routecast/internal/database"
	"github.com/jengzang/routecast/internal/handler"
	"github.com/jengzang/routecast/internal/middleware"
	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/render"
	"github.com/jengzang/routecast/internal/repository"
	"github.com/jengzang/routecast/internal/service"
)

var (
	issueRole = flag.String("token", "", "Print a signed token for role (gm or player) and exit")
	tokenTTL  = flag.Duration("token-ttl", 0, "Lifetime of the printed token, 0 for none")
)

func main() {
	flag.Parse()
	cfg := config.Load()

	if *issueRole != "" {
		token, err := middleware.IssueToken(cfg.JWTSecret, *issueRole, *issueRole, *tokenTTL)
		if err != nil {
			log.Fatal("Failed to sign token:", err)
		}
		fmt.Println(token)
		return
	}

	if err := database.Init(database.Config{Path: cfg.DBPath}); err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer database.Close()
	db := database.GetDB()
	tokens := repository.NewTokenRepository(db)
	tiles := repository.NewTileRepository(db)

	// The server is the authoritative viewer: it writes token moves.
	viewers := render.NewPool(render.Config{
		Screen:        models.Size{Width: float64(cfg.ScreenWidth), Height: float64(cfg.ScreenHeight)},
		AssetDir:      cfg.AssetDir,
		FontPath:      cfg.FontPath,
		FrameRate:     cfg.FrameRate,
		Authoritative: true,
		Tokens:        tokens,
	})
	defer viewers.Close()

	hub := broadcast.NewHub()
	defer hub.Close()
	coord := broadcast.NewCoordinator(hub, viewers)

	configService := service.NewConfigService(repository.NewConfigRepository(db))
	routeService := service.NewRouteService(service.RouteServiceConfig{
		Routes:      repository.NewRouteRepository(db),
		Tiles:       tiles,
		Config:      configService,
		Coordinator: coord,
		Viewers:     viewers,
		TileDir:     cfg.TileDir,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit, time.Minute)
	router := api.SetupRouter(cfg, api.Handlers{
		Routes:  handler.NewRouteHandler(routeService),
		Scenes:  handler.NewSceneHandler(service.NewSceneService(tokens, tiles)),
		Config:  handler.NewConfigHandler(configService),
		Viewer:  handler.NewViewerHandler(hub, viewers),
		Limiter: limiter,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go viewers.Run(ctx)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Prune()
			}
		}
	}()

	srv := &http.Server{Addr: cfg.Port, Handler: router}
	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown: %v", err)
		}
	}()

	log.Printf("Server starting on port %s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Failed to start server: %v", err)
		os.Exit(1)
	}
}
