package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dashportal/internal/access"
	"dashportal/internal/auth"
	"dashportal/internal/config"
	"dashportal/internal/db"
	httpserver "dashportal/internal/http"
	"dashportal/internal/identity"
	"dashportal/internal/seed"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}
	log.Printf("Config: %s", cfg)

	gdb := db.Connect(cfg.DBDriver, cfg.DSN)
	if err := db.AutoMigrate(gdb); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sessions identity.SessionStore = &identity.DBSessionStore{DB: gdb}
	if cfg.RedisURL != "" {
		rs, err := identity.NewRedisSessionStoreFromURL(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		defer rs.Close()
		sessions = rs
		log.Println("✅ Session revocations stored in Redis")
	}

	var mailer identity.Mailer = identity.LogMailer{}
	if cfg.SMTP.Addr != "" {
		mailer = identity.SMTPMailer{
			Addr:     cfg.SMTP.Addr,
			User:     cfg.SMTP.User,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}
	} else {
		log.Println("⚠️ SMTP_ADDR not set, reset links are only logged")
	}

	engine := access.NewEngine(gdb, access.DefaultDashboard{
		Name:        cfg.DefaultDashboard.Name,
		URL:         cfg.DefaultDashboard.URL,
		Description: cfg.DefaultDashboard.Description,
	})
	gw := &identity.Gateway{
		DB:       gdb,
		Provider: identity.NewLocalProvider(gdb),
		Tokens:   auth.NewTokenManager(cfg.JWTSecret, cfg.SessionTTL, cfg.ResetTTL),
		Sessions: sessions,
		Mailer:   mailer,
		Defaults: engine,
		ResetURL: cfg.ResetURL,
	}

	if cfg.SeedAdminEmail != "" {
		if err := seed.FirstSetup(ctx, gw, engine, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
			log.Fatalf("❌ Seed failed: %v", err)
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.AppPort,
		Handler:      httpserver.NewRouter(httpserver.Deps{DB: gdb, Gateway: gw, Engine: engine}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down server...")
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Server listening on :%s\n", cfg.AppPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Printf("❌ Server error: %v", err)
		os.Exit(1)
	}
	log.Println("Server stopped")
}
