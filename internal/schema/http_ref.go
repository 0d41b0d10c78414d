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

package schema

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultReadTimeout    = 10 * time.Second

	// maxSchemaSize bounds the body accepted from a remote registry
	maxSchemaSize = 10 << 20
)

// HTTPRefConfig holds connection settings for a remote schema registry
type HTTPRefConfig struct {
	URI            string            `yaml:"uri" json:"uri"`
	APIKey         string            `yaml:"api_key" json:"apikey,omitempty"`
	ConnectTimeout time.Duration     `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout    time.Duration     `yaml:"read_timeout" json:"read_timeout"`
	Headers        map[string]string `yaml:"headers" json:"headers,omitempty"`
	TLS            TLSConfig         `yaml:"tls" json:"tls"`
}

// TLSConfig holds TLS settings for a remote registry
type TLSConfig struct {
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
	CAFile             string `yaml:"ca_file" json:"ca_file"`
}

// HTTPRef queries a remote registry at GET {uri}/{vendor}/{name}/{format}/{version}
type HTTPRef struct {
	config     RepositoryRefConfig
	baseURL    string
	apiKey     string
	headers    map[string]string
	httpClient *http.Client
}

// NewHTTPRef creates a repository backed by a remote registry
func NewHTTPRef(config RepositoryRefConfig, httpConfig HTTPRefConfig) (*HTTPRef, error) {
	if strings.TrimSpace(httpConfig.URI) == "" {
		return nil, fmt.Errorf("repository %q: registry uri cannot be empty", config.Name)
	}

	connectTimeout := httpConfig.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaultConnectTimeout
	}
	readTimeout := httpConfig.ReadTimeout
	if readTimeout == 0 {
		readTimeout = defaultReadTimeout
	}

	tlsConfig, err := buildTLSConfig(httpConfig.TLS)
	if err != nil {
		return nil, fmt.Errorf("repository %q: %w", config.Name, err)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		TLSClientConfig:       tlsConfig,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
	}

	return &HTTPRef{
		config:  config,
		baseURL: strings.TrimRight(httpConfig.URI, "/"),
		apiKey:  httpConfig.APIKey,
		headers: httpConfig.Headers,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   connectTimeout + readTimeout,
		},
	}, nil
}

func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, // #nosec G402 -- operator opt-in
	}
	if cfg.CAFile == "" {
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in CA file %s", cfg.CAFile)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

// Config returns the repository config
func (r *HTTPRef) Config() RepositoryRefConfig {
	return r.config
}

// ClassPriority returns HTTPClassPriority
func (r *HTTPRef) ClassPriority() int {
	return HTTPClassPriority
}

// LookupSchema fetches the schema for key from the registry
func (r *HTTPRef) LookupSchema(ctx context.Context, key SchemaKey) (json.RawMessage, error) {
	resp, err := r.makeRequest(ctx, http.MethodGet, "/"+key.ToPath())
	if err != nil {
		return nil, NewRegistryError(ConnectionFailed, "%v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSchemaSize))
	if err != nil {
		return nil, NewRegistryError(ConnectionFailed, "failed to read response body: %v", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if !gojson.Valid(body) {
			return nil, NewRegistryError(ParseFailure, "registry returned invalid JSON for %s", key)
		}
		return json.RawMessage(body), nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, NewRegistryError(ClientFailure, "client error %d: %s", resp.StatusCode, truncate(body))
	case resp.StatusCode >= 500:
		return nil, NewRegistryError(ServerFailure, "server error %d: %s", resp.StatusCode, truncate(body))
	default:
		return nil, NewRegistryError(ClientFailure, "unexpected status %d", resp.StatusCode)
	}
}

// makeRequest makes an HTTP request to the registry
func (r *HTTPRef) makeRequest(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	for key, value := range r.headers {
		req.Header.Set(key, value)
	}
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
	}

	return r.httpClient.Do(req)
}

func truncate(body []byte) string {
	const limit = 256
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
