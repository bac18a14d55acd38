package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yourusername/report-scheduler/pkg/api"
	"github.com/yourusername/report-scheduler/pkg/auth"
	"github.com/yourusername/report-scheduler/pkg/chat"
	"github.com/yourusername/report-scheduler/pkg/config"
	"github.com/yourusername/report-scheduler/pkg/cron"
	"github.com/yourusername/report-scheduler/pkg/delivery"
	"github.com/yourusername/report-scheduler/pkg/job"
	"github.com/yourusername/report-scheduler/pkg/mail"
	"github.com/yourusername/report-scheduler/pkg/queue"
	"github.com/yourusername/report-scheduler/pkg/render"
	"github.com/yourusername/report-scheduler/pkg/store"
	"github.com/yourusername/report-scheduler/pkg/urls"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("%v", err)
	}
}

func run(cfg *config.Config) error {
	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	resolver := urls.NewResolver(cfg.BaseURL, cfg.PublicBaseURL)
	sessions := auth.NewProvider(auth.NewLoginIssuer(cfg.BaseURL, cfg.ServiceSecret), cfg.ServiceIdentity)

	backend, err := render.NewBackend(cfg.Renderer, sessions, resolver.Welcome())
	if err != nil {
		return err
	}
	defer backend.Close()
	log.Printf("Using %s renderer backend", backend.Name())

	mailer := mail.NewMailer(cfg.SMTP, cfg.DryRun)

	var chatClient delivery.ChatUploader
	if cfg.Slack.Token != "" {
		slackClient, err := chat.NewClient(cfg.Slack)
		if err != nil {
			return err
		}
		chatClient = slackClient
	}

	dispatcher := delivery.NewDispatcher(mailer, chatClient, cfg.BCCAddress)
	runner := job.NewRunner(st, backend, dispatcher, sessions, resolver, cfg)

	jobQueue := queue.NewQueue(st, runner, cfg)
	jobQueue.Start()
	defer jobQueue.Stop()

	driver := cron.NewDriver(st, jobQueue, cfg)
	if err := driver.Start(); err != nil {
		return err
	}
	defer driver.Stop()

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewHandler(st, jobQueue, cfg.AllowedDomains),
	}
	go func() {
		log.Printf("Management API listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Management API stopped: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Printf("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Management API shutdown failed: %v", err)
	}

	return nil
}
