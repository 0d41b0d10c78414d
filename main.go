/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amtp-protocol/schemaresolver/internal/config"
	"github.com/amtp-protocol/schemaresolver/internal/server"
)

const (
	healthCheckTimeout = 2 * time.Second
	shutdownTimeout    = 30 * time.Second
)

// healthURL is the /health endpoint of the locally configured listener
func healthURL(cfg *config.Config) string {
	host, port, err := net.SplitHostPort(cfg.Server.Address)
	if err != nil {
		host, port = cfg.Server.Address, ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	addr := host
	if port != "" {
		addr = net.JoinHostPort(host, port)
	}
	scheme := "http"
	if cfg.TLS.Enabled {
		scheme = "https"
	}
	return scheme + "://" + addr + "/health"
}

func runHealthCheck(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %d", resp.StatusCode)
	}
	return nil
}

// splitHealthCheck removes the -health-check flag from args, which are
// otherwise handed to the configuration loader
func splitHealthCheck(args []string) (bool, []string) {
	rest := make([]string, 0, len(args))
	found := false
	for _, arg := range args {
		if arg == "-health-check" || arg == "--health-check" {
			found = true
			continue
		}
		rest = append(rest, arg)
	}
	return found, rest
}

// serve runs srv until ctx is cancelled or the listener fails
func serve(ctx context.Context, srv *server.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed to start: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func main() {
	healthCheck, args := splitHealthCheck(os.Args[1:])

	cfg, err := config.LoadFromArgs(args)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if healthCheck {
		if err := runHealthCheck(context.Background(), healthURL(cfg)); err != nil {
			fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("Starting schema resolver on %s", cfg.Server.Address)
	if err := serve(ctx, srv); err != nil {
		stop()
		log.Fatal(err)
	}
	log.Println("Server exited")
}
