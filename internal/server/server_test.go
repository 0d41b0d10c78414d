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

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amtp-protocol/schemaresolver/internal/config"
	"github.com/amtp-protocol/schemaresolver/internal/types"
)

const (
	eventPath   = "com.acme/event/jsonschema/1-0-0"
	eventURI    = "iglu:" + eventPath
	eventSchema = `{
		"self": {"vendor": "com.acme", "name": "event", "format": "jsonschema", "version": "1-0-0"},
		"type": "object",
		"properties": {"x": {"type": "string"}},
		"required": ["x"]
	}`
)

// testConfig returns a minimal configuration backed by memory storage
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Address:        ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxRequestSize: 1 << 20,
		},
		Resolver: config.ResolverConfig{
			CacheTTL:  time.Minute,
			CacheSize: 100,
		},
		Storage: config.StorageConfig{Type: "memory"},
		Auth: config.AuthConfig{
			APIKeyHeader:      "apikey",
			AdminAPIKeyHeader: "X-Admin-Key",
		},
		Logging: config.LoggingConfig{
			Level:  "error",
			Format: "json",
		},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	server, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	t.Cleanup(func() {
		if server.storage != nil {
			server.storage.Close()
		}
	})
	return server
}

func doRequest(server *Server, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	server.GetRouter().ServeHTTP(w, req)
	return w
}

func publish(t *testing.T, server *Server, path, body string) {
	t.Helper()
	w := doRequest(server, "PUT", "/api/schemas/"+path, body, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Failed to publish %s: %d %s", path, w.Code, w.Body.String())
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp types.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode error response: %v (%s)", err, w.Body.String())
	}
	return resp.Error.Code
}

func TestNew_Success(t *testing.T) {
	cfg := testConfig()
	server := newTestServer(t, cfg)

	if server.config != cfg {
		t.Error("Expected server config to match input config")
	}
	if server.router == nil || server.httpServer == nil || server.manager == nil {
		t.Fatal("Expected router, HTTP server and manager to be initialized")
	}
	if server.httpServer.Addr != cfg.Server.Address {
		t.Errorf("Expected server address %s, got %s", cfg.Server.Address, server.httpServer.Addr)
	}
	if server.storage == nil {
		t.Error("Expected memory storage to be created")
	}
	if server.metrics != nil {
		t.Error("Expected metrics to be disabled by default")
	}

	names := make([]string, 0)
	for _, ref := range server.Manager().Resolver().Repositories() {
		names = append(names, ref.Config().Name)
	}
	if len(names) != 2 || names[1] != defaultStoreRepository {
		t.Errorf("Expected bootstrap and store repositories, got %v", names)
	}
}

func TestNew_StorageDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Type = "none"
	server := newTestServer(t, cfg)

	if server.storage != nil {
		t.Fatal("Expected storage to be disabled")
	}

	for _, tc := range []struct{ method, path string }{
		{"GET", "/api/schemas"},
		{"PUT", "/api/schemas/" + eventPath},
		{"DELETE", "/api/schemas/" + eventPath},
	} {
		w := doRequest(server, tc.method, tc.path, eventSchema, nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s %s: expected 503, got %d", tc.method, tc.path, w.Code)
		}
		if code := errorCode(t, w); code != "STORAGE_DISABLED" {
			t.Errorf("%s %s: expected STORAGE_DISABLED, got %s", tc.method, tc.path, code)
		}
	}
}

func TestNew_StoreRepositoryWithoutStorage(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.Type = "none"
	cfg.Resolver.Repositories = []config.RepositoryConfig{
		{Name: "store", Type: "store", VendorPrefixes: []string{"com.acme"}},
	}

	if _, err := New(cfg); err == nil {
		t.Error("Expected error for a store repository without storage")
	}
}

func TestCreateTLSConfig(t *testing.T) {
	tests := []struct {
		minVersion string
		want       uint16
	}{
		{"1.2", 0x0303},
		{"1.3", 0x0304},
		{"", 0x0304},
	}

	for _, tt := range tests {
		t.Run("min "+tt.minVersion, func(t *testing.T) {
			cfg := testConfig()
			cfg.TLS.MinVersion = tt.minVersion
			server := &Server{config: cfg}
			if got := server.createTLSConfig().MinVersion; got != tt.want {
				t.Errorf("MinVersion = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestHealthAndReady(t *testing.T) {
	server := newTestServer(t, testConfig())

	for _, path := range []string{"/health", "/ready"} {
		t.Run(path, func(t *testing.T) {
			w := doRequest(server, "GET", path, "", nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d", w.Code)
			}

			var resp types.HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if resp.Version != Version {
				t.Errorf("Expected version %s, got %s", Version, resp.Version)
			}
			if resp.Checks["storage"] == "" {
				t.Error("Expected a storage check")
			}
		})
	}
}

func TestMetricsEndpoints(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		server := newTestServer(t, testConfig())
		if w := doRequest(server, "GET", "/metrics", "", nil); w.Code != http.StatusNotFound {
			t.Errorf("Expected 404 without metrics, got %d", w.Code)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Metrics = &config.MetricsConfig{Enabled: true}
		server := newTestServer(t, cfg)

		// generate a lookup and a validation
		doRequest(server, "GET", "/api/schemas/"+eventPath, "", nil)

		w := doRequest(server, "GET", "/metrics", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		var snapshot map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &snapshot); err != nil {
			t.Fatalf("Invalid metrics JSON: %v", err)
		}
		if _, ok := snapshot["lookups"]; !ok {
			t.Error("Expected lookups section in metrics snapshot")
		}

		w = doRequest(server, "GET", "/metrics/prometheus", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		for _, name := range []string{
			"schema_resolver_lookups_total",
			"schema_resolver_cache_requests_total",
			"schema_resolver_http_requests_total",
			"schema_resolver_errors_total",
		} {
			if !strings.Contains(w.Body.String(), name) {
				t.Errorf("Expected %s in exposition output", name)
			}
		}
	})
}

func TestAdminAuthOnPublish(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "admin.keys")
	if err := os.WriteFile(keyFile, []byte("secret-admin\n"), 0600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}

	cfg := testConfig()
	cfg.Auth.AdminKeyFile = keyFile
	server := newTestServer(t, cfg)

	tests := []struct {
		name   string
		key    string
		status int
	}{
		{"missing key", "", http.StatusUnauthorized},
		{"wrong key", "nope", http.StatusForbidden},
		{"valid key", "secret-admin", http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.key != "" {
				headers["X-Admin-Key"] = tt.key
			}
			w := doRequest(server, "PUT", "/api/schemas/"+eventPath, eventSchema, headers)
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d (%s)", tt.status, w.Code, w.Body.String())
			}
		})
	}

	// reads stay open
	if w := doRequest(server, "GET", "/api/schemas/"+eventPath, "", nil); w.Code != http.StatusOK {
		t.Errorf("Expected schema to be readable without admin key, got %d", w.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "api.keys")
	if err := os.WriteFile(keyFile, []byte("client\n"), 0600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}

	cfg := testConfig()
	cfg.Auth.RequireAuth = true
	cfg.Auth.APIKeyFile = keyFile
	server := newTestServer(t, cfg)

	if w := doRequest(server, "GET", "/api/repositories", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}
	if w := doRequest(server, "GET", "/api/repositories", "", map[string]string{"apikey": "client"}); w.Code != http.StatusOK {
		t.Errorf("Expected 200 with key, got %d", w.Code)
	}
	if w := doRequest(server, "GET", "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("Expected health to stay open, got %d", w.Code)
	}
}

func TestRequestSizeLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Server.MaxRequestSize = 16
	server := newTestServer(t, cfg)

	w := doRequest(server, "POST", "/api/validate", `{"schema":"`+eventURI+`","data":{"x":"ok"}}`, nil)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", w.Code)
	}
}
