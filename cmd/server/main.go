package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"visitor-relay/internal/app"
	"visitor-relay/internal/config"
	"visitor-relay/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Settings{
		UserAgent:   server.UserAgent,
		KafkaMirror: true,
		LogOutput:   os.Stderr,
	})
	if err != nil {
		log.Fatalf("app: %v", err)
	}

	srv := server.New(cfg.Addr(), a.Core(server.Options(time.Now())), a.Logger)
	a.Logger.Info("visitor relay listening", "addr", cfg.Addr())
	serveErr := server.Serve(ctx, srv, 10*time.Second)
	a.Logger.Info("shutting down visitor relay")

	closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if serveErr != nil {
		log.Fatalf("serve: %v", serveErr)
	}
	log.Println("visitor relay stopped")
}
