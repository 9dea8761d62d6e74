package main

import (
	"log/slog"
	"net/http"
	"time"

	"thinkora/internal/app"
	"thinkora/internal/config"
	"thinkora/internal/server"
	"thinkora/internal/usertoken"
	"thinkora/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		util.Fatal("failed to load config", "err", err)
	}
	accessTTL, err := config.ParseTTL(cfg.AccessTTL)
	if err != nil {
		util.Fatal("failed to parse access TTL", "err", err)
	}
	refreshTTL, err := config.ParseTTL(cfg.RefreshTTL)
	if err != nil {
		util.Fatal("failed to parse refresh TTL", "err", err)
	}
	leeway, err := config.ParseTTL(cfg.JWTLeeway)
	if err != nil {
		util.Fatal("failed to parse jwt leeway", "err", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	tokens, err := usertoken.NewManager(usertoken.Options{
		Secret:   cfg.JWTSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      accessTTL,
		Leeway:   leeway,
	})
	if err != nil {
		util.Fatal("failed to init token manager", "err", err)
	}

	appCore, err := app.New(app.Config{
		DatabaseURL:   cfg.DatabaseURL,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RefreshTTL:    refreshTTL,
		HistoryLimit:  cfg.ChatHistoryLimit,
		Tokens:        tokens,
	})
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	trusted, err := util.NewTrustedProxies(config.ParseTrustedProxies(cfg.TrustedProxies))
	if err != nil {
		util.Fatal("failed to parse trusted proxies", "err", err)
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		Tokens:                     tokens,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		RefreshRateLimitPerMinute:  cfg.RefreshRateLimitPerMinute,
		ChatRateLimitPerMinute:     cfg.ChatRateLimitPerMinute,
		SuperuserCreationKey:       cfg.SuperuserCreationKey,
		TrustedProxies:             trusted,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("thinkora server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
