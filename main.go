// mediaforge/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"mediaforge/api"
	"mediaforge/broadcast"
	"mediaforge/config"
	"mediaforge/ffmpeg"
	"mediaforge/hwaccel"
	"mediaforge/task"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Probe hardware capabilities once; the snapshot is immutable
	// and injected everywhere it is needed.
	caps := hwaccel.Probe(ctx, hwaccel.Options{
		Enabled: cfg.HWDetect,
		FFBin:   cfg.FFBin,
		Timeout: cfg.HWProbeTimeout,
	})
	if caps.Available {
		log.Printf("Hardware acceleration available: %s", caps.Vendor)
	} else {
		log.Println("No hardware acceleration available, using software encoding")
	}

	// 3. Build the core: hub <- store <- runner <- manager
	hub := broadcast.NewHub()
	store := task.NewStore(hub)

	runner, err := ffmpeg.NewRunner(cfg, store)
	if err != nil {
		log.Fatalf("Failed to initialize ffmpeg runner: %v", err)
	}

	manager := task.NewManager(cfg, store, runner, caps)
	manager.Start(ctx)

	// 4. Set up router and server
	handler := api.NewHandler(manager, store, hub, runner, caps, cfg)
	router := api.SetupRouter(handler, cfg)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 5. Wait for interrupt signal for graceful shutdown
	<-ctx.Done()
	stop()
	log.Println("Shutting down gracefully, press Ctrl+C again to force")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	// Running encoder processes were killed via context cancellation;
	// wait for their supervisors to record terminal states.
	manager.Wait()
	log.Println("Server exiting")
}
