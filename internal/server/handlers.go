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
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gojson "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amtp-protocol/schemaresolver/internal/errors"
	"github.com/amtp-protocol/schemaresolver/internal/logging"
	"github.com/amtp-protocol/schemaresolver/internal/schema"
	"github.com/amtp-protocol/schemaresolver/internal/storage"
	"github.com/amtp-protocol/schemaresolver/internal/types"
)

// handleHealth handles health check requests (liveness probe)
func (s *Server) handleHealth(c *gin.Context) {
	healthy, checks := s.checkHealth()

	status, statusCode := "healthy", http.StatusOK
	if !healthy {
		status, statusCode = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(statusCode, types.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   Version,
		Checks:    checks,
	})
}

// handleReady handles readiness check requests (readiness probe)
func (s *Server) handleReady(c *gin.Context) {
	ready, checks := s.checkReadiness(c.Request.Context())

	status, statusCode := "ready", http.StatusOK
	if !ready {
		status, statusCode = "not_ready", http.StatusServiceUnavailable
	}

	c.JSON(statusCode, types.HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Version:   Version,
		Checks:    checks,
	})
}

// handleMetrics handles GET /metrics with a JSON snapshot
func (s *Server) handleMetrics(c *gin.Context) {
	data, err := s.simpleMetrics.ToJSON()
	if err != nil {
		s.respondWithAPIError(c, errors.NewInternalError("Failed to serialize metrics", err))
		return
	}

	c.Data(http.StatusOK, "application/json", data)
}

// handlePrometheus serves GET /metrics/prometheus in the exposition format
func (s *Server) handlePrometheus() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
}

// keyFromParams builds the schema key addressed by the route parameters
func keyFromParams(c *gin.Context) (schema.SchemaKey, error) {
	return schema.ParseSchemaKeyPath(strings.Join([]string{
		c.Param("vendor"),
		c.Param("name"),
		c.Param("format"),
		c.Param("version"),
	}, "/"))
}

// readBody reads the request body, reporting oversize payloads
func (s *Server) readBody(c *gin.Context) (json.RawMessage, bool) {
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			s.respondWithError(c, errors.ErrPayloadTooLarge, "Request body too large", map[string]interface{}{
				"limit": tooLarge.Limit,
			})
			return nil, false
		}
		s.respondWithError(c, errors.ErrInvalidRequestFormat, "Failed to read request body", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}
	return body, true
}

func queryBool(c *gin.Context, name string) (bool, error) {
	val := c.Query(name)
	if val == "" {
		return false, nil
	}
	return strconv.ParseBool(val)
}

// handleGetSchema handles GET /api/schemas/:vendor/:name/:format/:version.
// The response body is the bare schema so that another resolver can use
// this endpoint as an HTTP repository.
func (s *Server) handleGetSchema(c *gin.Context) {
	key, err := keyFromParams(c)
	if err != nil {
		s.respondWithClientError(c, err)
		return
	}

	body, err := s.manager.LookupSchema(c.Request.Context(), key)
	if err != nil {
		s.respondWithClientError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", body)
}

// handleGetHistory handles GET /api/schemas/:vendor/:name/:format/:version/history
func (s *Server) handleGetHistory(c *gin.Context) {
	key, err := keyFromParams(c)
	if err != nil {
		s.respondWithClientError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.LookupHistoryResponse{
		Schema:       key.ToURI(),
		Repositories: errors.HistoryToResponse(s.manager.Resolver().History(key)),
	})
}

// handleListRepositories handles GET /api/repositories in resolution order
// for keys that match no vendor prefix
func (s *Server) handleListRepositories(c *gin.Context) {
	stats := s.manager.GetStats()
	repos := make([]types.RepositoryStatus, 0, len(stats.Repositories))
	for _, r := range stats.Repositories {
		repos = append(repos, types.RepositoryStatus{
			Name:             r.Name,
			ClassPriority:    r.ClassPriority,
			InstancePriority: r.InstancePriority,
			VendorPrefixes:   r.VendorPrefixes,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"repositories": repos,
		"count":        len(repos),
	})
}

// handleListSchemas handles GET /api/schemas?vendor=
func (s *Server) handleListSchemas(c *gin.Context) {
	if !s.requireStorage(c) {
		return
	}

	stored, err := s.storage.ListSchemas(c.Request.Context(), c.Query("vendor"))
	if err != nil {
		s.respondWithAPIError(c, errors.Wrap(errors.ErrStorageFailed, "Failed to list schemas", err))
		return
	}

	infos := make([]types.SchemaInfo, 0, len(stored))
	for _, st := range stored {
		infos = append(infos, schemaInfo(st))
	}

	c.JSON(http.StatusOK, types.SchemaListResponse{
		Schemas: infos,
		Count:   len(infos),
	})
}

func schemaInfo(st *storage.StoredSchema) types.SchemaInfo {
	return types.SchemaInfo{
		URI:       st.Key.ToURI(),
		Vendor:    st.Key.Vendor,
		Name:      st.Key.Name,
		Format:    st.Key.Format,
		Version:   st.Key.Version.String(),
		Checksum:  st.Checksum,
		CreatedAt: st.CreatedAt,
	}
}

// selfDescription is the "self" block a self-describing schema carries
type selfDescription struct {
	Self *struct {
		Vendor  string `json:"vendor"`
		Name    string `json:"name"`
		Format  string `json:"format"`
		Version string `json:"version"`
	} `json:"self"`
}

// checkSelfDescription verifies that a "self" block, when present, names key
func checkSelfDescription(key schema.SchemaKey, body json.RawMessage) error {
	var desc selfDescription
	if err := gojson.Unmarshal(body, &desc); err != nil {
		return err
	}
	if desc.Self == nil {
		return nil
	}

	declared := strings.Join([]string{desc.Self.Vendor, desc.Self.Name, desc.Self.Format, desc.Self.Version}, "/")
	if declared != key.ToPath() {
		return stderrors.New("self description " + declared + " does not match " + key.ToPath())
	}
	return nil
}

// handlePublishSchema handles PUT /api/schemas/:vendor/:name/:format/:version
func (s *Server) handlePublishSchema(c *gin.Context) {
	if !s.requireStorage(c) {
		return
	}

	key, err := keyFromParams(c)
	if err != nil {
		s.respondWithClientError(c, err)
		return
	}

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	if err := checkSelfDescription(key, body); err != nil {
		s.respondWithError(c, errors.ErrInvalidSchema, "Schema document is invalid", map[string]interface{}{
			"schema": key.ToURI(),
			"error":  err.Error(),
		})
		return
	}

	if err := s.manager.CheckSchema(key, body); err != nil {
		details := map[string]interface{}{"schema": key.ToURI()}
		var valErr *schema.ValidationError
		if stderrors.As(err, &valErr) {
			details["violations"] = errors.ViolationsToResponse(valErr.Violations)
		} else {
			details["error"] = err.Error()
		}
		s.respondWithError(c, errors.ErrInvalidSchema, "Schema does not compile", details)
		return
	}

	ctx := logging.WithSchema(c.Request.Context(), key.ToURI())
	if err := s.storage.StoreSchema(ctx, key, body); err != nil {
		if stderrors.Is(err, schema.ErrSchemaExists) {
			s.respondWithClientError(c, err)
			return
		}
		s.respondWithAPIError(c, errors.Wrap(errors.ErrStorageFailed, "Failed to store schema", err))
		return
	}
	s.manager.Resolver().Invalidate(key)

	s.logger.WithContext(ctx).Info("Schema published")

	c.JSON(http.StatusCreated, types.PublishSchemaResponse{
		Schema: types.SchemaInfo{
			URI:       key.ToURI(),
			Vendor:    key.Vendor,
			Name:      key.Name,
			Format:    key.Format,
			Version:   key.Version.String(),
			CreatedAt: time.Now().UTC(),
		},
		Validated: true,
	})
}

// handleDeleteSchema handles DELETE /api/schemas/:vendor/:name/:format/:version
func (s *Server) handleDeleteSchema(c *gin.Context) {
	if !s.requireStorage(c) {
		return
	}

	key, err := keyFromParams(c)
	if err != nil {
		s.respondWithClientError(c, err)
		return
	}

	ctx := logging.WithSchema(c.Request.Context(), key.ToURI())
	if err := s.storage.DeleteSchema(ctx, key); err != nil {
		if stderrors.Is(err, schema.ErrSchemaNotFound) {
			s.respondWithClientError(c, err)
			return
		}
		s.respondWithAPIError(c, errors.Wrap(errors.ErrStorageFailed, "Failed to delete schema", err))
		return
	}
	s.manager.Resolver().Invalidate(key)

	s.logger.WithContext(ctx).Info("Schema deleted")
	c.Status(http.StatusNoContent)
}

// handleValidate handles POST /api/validate?data_only=
func (s *Server) handleValidate(c *gin.Context) {
	s.validate(c, nil)
}

// handleVerify handles POST /api/verify?criterion=&data_only=
func (s *Server) handleVerify(c *gin.Context) {
	raw := c.Query("criterion")
	if raw == "" {
		s.respondWithError(c, errors.ErrInvalidCriterion, "criterion query parameter is required", nil)
		return
	}

	criterion, err := schema.ParseSchemaCriterion(raw)
	if err != nil {
		s.respondWithError(c, errors.ErrInvalidCriterion, "Invalid schema criterion", map[string]interface{}{
			"criterion": raw,
			"error":     err.Error(),
		})
		return
	}

	s.validate(c, &criterion)
}

func (s *Server) validate(c *gin.Context, criterion *schema.SchemaCriterion) {
	dataOnly, err := queryBool(c, "data_only")
	if err != nil {
		s.respondWithError(c, errors.ErrInvalidRequestFormat, "data_only must be a boolean", nil)
		return
	}

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	report, err := s.manager.Validate(c.Request.Context(), schema.ValidateRequest{
		Instance:  body,
		Criterion: criterion,
		DataOnly:  dataOnly,
	})
	if err != nil {
		s.respondWithClientError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.ValidationResponse{
		Valid:          report.Valid,
		Schema:         report.Schema,
		Result:         report.Result,
		Bypassed:       report.Bypassed,
		BypassReason:   report.BypassReason,
		ProcessingTime: report.ProcessingTime.Milliseconds(),
		Timestamp:      report.Timestamp,
	})
}

// handleValidateInstance handles POST /api/validate/:vendor/:name/:format/:version
// for bare instances without an envelope
func (s *Server) handleValidateInstance(c *gin.Context) {
	start := time.Now()

	key, err := keyFromParams(c)
	if err != nil {
		s.respondWithClientError(c, err)
		return
	}

	body, ok := s.readBody(c)
	if !ok {
		return
	}

	if err := s.manager.Pipeline().ValidateInstance(c.Request.Context(), key, body); err != nil {
		s.respondWithClientError(c, err)
		return
	}

	c.JSON(http.StatusOK, types.ValidationResponse{
		Valid:          true,
		Schema:         key.ToURI(),
		Result:         body,
		ProcessingTime: time.Since(start).Milliseconds(),
		Timestamp:      time.Now().UTC(),
	})
}

// handleStats handles GET /api/stats
func (s *Server) handleStats(c *gin.Context) {
	response := gin.H{
		"resolver": s.manager.GetStats(),
	}

	if s.storage != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		stats, err := s.storage.GetStats(ctx)
		if err != nil {
			s.respondWithAPIError(c, errors.Wrap(errors.ErrStorageFailed, "Failed to read storage statistics", err))
			return
		}
		response["storage"] = stats
	}

	c.JSON(http.StatusOK, response)
}

// requireStorage responds with STORAGE_DISABLED when no storage is configured
func (s *Server) requireStorage(c *gin.Context) bool {
	if s.storage == nil {
		s.respondWithError(c, errors.ErrStorageDisabled, "Schema storage is disabled", nil)
		return false
	}
	return true
}
