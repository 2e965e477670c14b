package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"clarichat/internal/api"
	"clarichat/internal/auth"
	"clarichat/internal/config"
	"clarichat/internal/gateway"
	"clarichat/internal/redis"
	"clarichat/internal/service/chat"
	"clarichat/internal/storage"
)

func main() {
	cfgPath := os.Getenv("CLARICHAT_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	dbType := os.Getenv("CLARICHAT_DB")
	if dbType == "" {
		dbType = "sqlite3"
	}
	log.Printf("dbType: %s\n", dbType)
	db, err := storage.Open(dbType, cfg)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, dbType); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	// Redis backs list caching and token revocation; both degrade gracefully
	// when it is unavailable.
	rdb, err := redis.NewClient(cfg)
	if err != nil {
		log.Printf("redis unavailable, continuing without cache: %v", err)
		rdb = nil
	}
	defer rdb.Close()

	gw, err := gateway.NewService(context.Background(), cfg)
	if err != nil {
		log.Fatalf("init model gateway: %v", err)
	}

	chatService := chat.NewService(db, rdb, gw)
	var revocations auth.RevocationStore
	if rdb != nil {
		revocations = rdb
	}
	authService := auth.NewService(cfg.JWT.Secret, cfg.JWT.Expire, revocations)
	handlers := api.NewHandler(chatService, authService)

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(api.CORSMiddleware(cfg.Server.CORSOrigins))
	handlers.RegisterRoutes(router)

	addr := cfg.Server.Address
	if addr == "" {
		addr = ":8090"
	}
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}

	go func() {
		log.Printf("server listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
}
