package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ovalbet/bingo-engine/config"
	"github.com/ovalbet/bingo-engine/routes"
	"github.com/ovalbet/bingo-engine/services"
	"github.com/ovalbet/bingo-engine/utils/logger"
)

func main() {
	log := logger.Log

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	db, err := config.SetupDatabase(cfg)
	if err != nil {
		log.Fatalf("database setup failed: %v", err)
	}

	clock := quartz.NewReal()
	store := services.NewStore(db, cfg, clock)

	// Local mode settles in the database; external mode expects the
	// oracle and settlement clients of the deployment to be injected
	// here in place of the local ones.
	var oracle services.RandomnessOracle = services.NewLocalOracle()
	var settlement services.SettlementClient = services.NewLocalSettlement()
	if cfg.Mode == config.ModeExternal {
		log.Fatalf("external mode requires oracle and settlement clients; none are configured")
	}

	resolver := services.NewResolver(store, oracle, settlement, cfg, log)
	scheduler := services.NewScheduler(cfg, store, resolver, settlement, clock, log)
	recovery := services.NewRecovery(cfg, store, resolver, settlement, clock, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Recovery must finish before any lane starts, or lanes could
	// duplicate in-flight commitments.
	if err := recovery.Run(ctx); err != nil {
		log.Fatalf("recovery failed: %v", err)
	}

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		if err := scheduler.Run(ctx); err != nil {
			log.Errorw("scheduler stopped", "error", err)
		}
	}()

	router := setupRouter(store, scheduler, services.NewRoomWatch(scheduler, store, log))
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}

	go func() {
		log.Infof("bingo engine listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server shutdown failed", "error", err)
	}
	<-schedulerDone
	log.Info("stopped")
}

func setupRouter(store *services.Store, scheduler *services.Scheduler, watch *services.RoomWatch) *gin.Engine {
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.SetupRoutes(r, store, scheduler, watch)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now()})
	})
	return r
}
