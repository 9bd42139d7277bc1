package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"threatfeed/api"
	"threatfeed/app"
	"threatfeed/config"
	"threatfeed/scheduler"
	"threatfeed/triggers"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}
	defer a.Close()

	server := api.NewServer(a.Orchestrator, a.Store, a.Dedup)
	server.Start(cfg.Port)
	log.Println("API endpoints available:")
	log.Println("  POST /api/fetch-news")
	log.Println("  POST /api/process-staging-articles")
	log.Println("  GET  /api/pipeline/status")
	log.Println("  GET  /api/articles")
	log.Println("  GET  /api/sources")
	log.Println("  GET  /api/health")
	log.Println("  POST /api/deduplication/check")

	var sched *scheduler.Scheduler
	if cfg.CronSchedule != "" {
		sched = scheduler.New(a.Orchestrator)
		if err := sched.Start(cfg.CronSchedule); err != nil {
			log.Fatalf("Failed to start cron: %v", err)
		}
	}

	var consumer *triggers.Consumer
	if len(cfg.Kafka.Brokers) > 0 {
		consumer, err = triggers.NewConsumer(triggers.ConsumerConfig{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
			Handler: triggers.NewHandler(a.Orchestrator),
		})
		if err != nil {
			log.Printf("Warning: failed to create Kafka consumer: %v", err)
		} else {
			consumer.Start(ctx)
		}
	}

	<-ctx.Done()
	log.Println("Shutting down...")

	if sched != nil {
		sched.Stop()
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Printf("Kafka consumer close error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
