// suggestd - the agrichat suggestion backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jeranaias/agrichat/internal/config"
	"github.com/jeranaias/agrichat/internal/server"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default ~/.agrichat/config.toml)")
	port := flag.Int("port", 0, "listen port (overrides config)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("suggestd %s (%s)\n", Version, GitCommit)
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("CONFIG_LOAD_FAILED | error=%v", err)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	srv := server.New(server.Options{
		RateLimit: cfg.Server.RateLimitPerMin,
		CacheTTL:  time.Duration(cfg.Server.CacheTTLMins) * time.Minute,
		GlobalRPS: cfg.Server.GlobalRPS,
	})
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("SERVER_START | addr=%s version=%s", httpSrv.Addr, Version)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("SERVER_FAILED | error=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Printf("SERVER_SHUTDOWN | draining connections")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Printf("SERVER_SHUTDOWN_FAILED | error=%v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
