// Devserver runs the function handler behind a local HTTP listener for development.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"visitor-relay/internal/app"
	"visitor-relay/internal/config"
	"visitor-relay/internal/function"
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
		UserAgent: function.UserAgent,
		LogOutput: os.Stderr,
	})
	if err != nil {
		log.Fatalf("app: %v", err)
	}

	fn := function.New(a.Core(function.Options()), a.Forwarder, a.Logger)
	srv := &http.Server{
		Addr:              cfg.DevAddr(),
		Handler:           function.DevHandler(fn, a.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.Logger.Info("local dev server running", "addr", cfg.DevAddr())
	serveErr := server.Serve(ctx, srv, 5*time.Second)

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	if serveErr != nil {
		log.Fatalf("serve: %v", serveErr)
	}
}
