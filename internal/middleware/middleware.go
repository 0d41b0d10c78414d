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

package middleware

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gojson "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/amtp-protocol/schemaresolver/internal/config"
	"github.com/amtp-protocol/schemaresolver/internal/errors"
	"github.com/amtp-protocol/schemaresolver/internal/metrics"
)

// RequestIDHeader carries the per-request correlation id
const RequestIDHeader = "X-Request-ID"

type accessLogEntry struct {
	Time      string `json:"time"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	Latency   string `json:"latency"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	RequestID string `json:"request_id,omitempty"`
}

// Logger creates a structured logging middleware
func Logger(cfg config.LoggingConfig) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		if cfg.Format == "json" {
			data, err := gojson.Marshal(accessLogEntry{
				Time:      param.TimeStamp.Format(time.RFC3339),
				Method:    param.Method,
				Path:      param.Path,
				Status:    param.StatusCode,
				Latency:   param.Latency.String(),
				IP:        param.ClientIP,
				UserAgent: param.Request.UserAgent(),
				RequestID: param.Request.Header.Get(RequestIDHeader),
			})
			if err == nil {
				return string(data) + "\n"
			}
		}

		// Default format
		return fmt.Sprintf("[%s] %s %s %d %s %s\n",
			param.TimeStamp.Format("2006/01/02 - 15:04:05"),
			param.Method,
			param.Path,
			param.StatusCode,
			param.Latency,
			param.ClientIP,
		)
	})
}

// RequestID adds a unique request ID to each request. Generated IDs are
// time-ordered UUIDv7 values.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				id = uuid.New()
			}
			requestID = id.String()
			c.Request.Header.Set(RequestIDHeader, requestID)
		}

		c.Header(RequestIDHeader, requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

// CORS adds CORS headers
func CORS(auth config.AuthConfig) gin.HandlerFunc {
	allowHeaders := []string{"Content-Type", "Authorization", RequestIDHeader}
	for _, h := range []string{auth.APIKeyHeader, auth.AdminAPIKeyHeader} {
		if h != "" {
			allowHeaders = append(allowHeaders, h)
		}
	}
	allowed := strings.Join(allowHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", allowed)
		c.Header("Access-Control-Expose-Headers", RequestIDHeader)
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// SecurityHeaders adds security-related headers
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// HSTS header for HTTPS
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// RequestSizeLimit limits the size of incoming requests
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxSize <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxSize {
			abortWithError(c, errors.Newf(errors.ErrPayloadTooLarge,
				"Request body too large. Maximum size is %d bytes", maxSize))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// Metrics records request counts and latency. The route template is used as
// the path label so that schema keys do not explode label cardinality.
func Metrics(provider metrics.MetricsProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		if provider == nil {
			c.Next()
			return
		}

		provider.IncHTTPRequestsInFlight()
		start := time.Now()
		c.Next()
		provider.DecHTTPRequestsInFlight()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		provider.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

// APIKeyAuth requires a key listed in the API key file on every request
// when authentication is enabled
func APIKeyAuth(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.RequireAuth {
			c.Next()
			return
		}

		key := c.GetHeader(cfg.APIKeyHeader)
		if key == "" {
			abortWithError(c, errors.New(errors.ErrUnauthorized, "API key required").
				WithDetails(map[string]interface{}{
					"required_header": cfg.APIKeyHeader,
				}))
			return
		}

		if !validateKey(key, cfg.APIKeyFile) {
			abortWithError(c, errors.New(errors.ErrUnauthorized, "Invalid API key"))
			return
		}

		c.Set("authenticated", true)
		c.Set("auth_method", "apikey")
		c.Next()
	}
}

// AdminAuth provides admin authentication middleware for administrative operations
func AdminAuth(cfg config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		// No admin key file means admin routes are open
		if cfg.AdminKeyFile == "" {
			c.Next()
			return
		}

		adminKey := c.GetHeader(cfg.AdminAPIKeyHeader)
		if adminKey == "" {
			abortWithError(c, errors.New(errors.ErrUnauthorized,
				"Admin API key required for administrative operations").
				WithDetails(map[string]interface{}{
					"required_header": cfg.AdminAPIKeyHeader,
					"endpoint":        c.Request.URL.Path,
				}))
			return
		}

		if !validateKey(adminKey, cfg.AdminKeyFile) {
			abortWithError(c, errors.New(errors.ErrForbidden, "Invalid admin API key").
				WithDetails(map[string]interface{}{
					"endpoint": c.Request.URL.Path,
				}))
			return
		}

		c.Set("admin_authenticated", true)
		c.Set("auth_method", "admin_key")
		c.Next()
	}
}

func abortWithError(c *gin.Context, apiErr *errors.APIError) {
	if requestID, ok := c.Get("request_id"); ok {
		if id, ok := requestID.(string); ok {
			apiErr = apiErr.WithRequestID(id)
		}
	}
	c.AbortWithStatusJSON(apiErr.HTTPStatus(), apiErr.ToErrorResponse())
}

// validateKey checks the provided key against a key file holding one key
// per line. Blank lines and lines starting with '#' are ignored.
func validateKey(providedKey, keyFile string) bool {
	if keyFile == "" {
		return false
	}
	data, err := os.ReadFile(filepath.Clean(keyFile))
	if err != nil {
		return false
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if subtle.ConstantTimeCompare([]byte(providedKey), []byte(line)) == 1 {
			return true
		}
	}

	return false
}
