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
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amtp-protocol/schemaresolver/internal/errors"
	"github.com/amtp-protocol/schemaresolver/internal/logging"
)

// respondWithError sends a standardized error response built from code
func (s *Server) respondWithError(c *gin.Context, code errors.ErrorCode, message string, details map[string]interface{}) {
	s.respondWithAPIError(c, errors.New(code, message).WithDetails(details))
}

// respondWithClientError maps an error from the schema package or storage
// onto the API error taxonomy and sends it
func (s *Server) respondWithClientError(c *gin.Context, err error) {
	s.respondWithAPIError(c, errors.FromClientError(err))
}

// respondWithAPIError sends an error response from an APIError
func (s *Server) respondWithAPIError(c *gin.Context, err *errors.APIError) {
	err = err.WithRequestID(c.GetString("request_id"))
	statusCode := err.HTTPStatus()

	logger := s.logger.WithContext(c.Request.Context()).WithFields(map[string]interface{}{
		"status_code": statusCode,
		"error_code":  err.Code,
		"method":      c.Request.Method,
		"path":        c.Request.URL.Path,
		"remote_addr": c.ClientIP(),
	})

	if statusCode >= 500 {
		logger.Error(err.Message, err.Cause)
	} else {
		logger.Warn(err.Message)
	}

	if s.metrics != nil {
		s.metrics.RecordError("server", string(err.Code))
	}

	c.JSON(statusCode, err.ToErrorResponse())
}

// withRequestLogging attaches the request ID to the request context and logs
// the completed request
func (s *Server) withRequestLogging(handler gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		if requestID := c.GetString("request_id"); requestID != "" {
			c.Request = c.Request.WithContext(logging.WithRequestID(c.Request.Context(), requestID))
		}

		handler(c)

		s.logger.WithContext(c.Request.Context()).LogRequest(
			c.Request.Method,
			c.Request.URL.Path,
			c.ClientIP(),
			c.Request.UserAgent(),
			c.Writer.Status(),
			time.Since(start),
		)
	}
}
