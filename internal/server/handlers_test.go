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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/amtp-protocol/schemaresolver/internal/config"
	"github.com/amtp-protocol/schemaresolver/internal/types"
)

func TestSchemaLifecycle(t *testing.T) {
	server := newTestServer(t, testConfig())

	// absent before publishing
	w := doRequest(server, "GET", "/api/schemas/"+eventPath, "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 before publish, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "SCHEMA_NOT_FOUND" {
		t.Errorf("Expected SCHEMA_NOT_FOUND, got %s", code)
	}

	w = doRequest(server, "PUT", "/api/schemas/"+eventPath, eventSchema, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var published types.PublishSchemaResponse
	if err := json.Unmarshal(w.Body.Bytes(), &published); err != nil {
		t.Fatalf("Failed to decode publish response: %v", err)
	}
	if published.Schema.URI != eventURI {
		t.Errorf("Expected URI %s, got %s", eventURI, published.Schema.URI)
	}

	// the body served is the bare schema
	w = doRequest(server, "GET", "/api/schemas/"+eventPath, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 after publish, got %d", w.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to decode schema: %v", err)
	}
	if body["type"] != "object" {
		t.Errorf("Unexpected schema body: %s", w.Body.String())
	}

	// stored schemas are immutable
	w = doRequest(server, "PUT", "/api/schemas/"+eventPath, eventSchema, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 on republish, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "SCHEMA_EXISTS" {
		t.Errorf("Expected SCHEMA_EXISTS, got %s", code)
	}

	// listing by vendor
	w = doRequest(server, "GET", "/api/schemas?vendor=com.acme", "", nil)
	var list types.SchemaListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if list.Count != 1 || list.Schemas[0].Version != "1-0-0" || list.Schemas[0].Checksum == "" {
		t.Errorf("Unexpected list: %+v", list)
	}
	w = doRequest(server, "GET", "/api/schemas?vendor=org.other", "", nil)
	var empty types.SchemaListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &empty); err != nil {
		t.Fatalf("Failed to decode list: %v", err)
	}
	if empty.Count != 0 {
		t.Errorf("Expected empty list for other vendor, got %d", empty.Count)
	}

	// deletion also evicts the cached copy
	w = doRequest(server, "DELETE", "/api/schemas/"+eventPath, "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d", w.Code)
	}
	if w := doRequest(server, "GET", "/api/schemas/"+eventPath, "", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", w.Code)
	}
	if w := doRequest(server, "DELETE", "/api/schemas/"+eventPath, "", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", w.Code)
	}

	// a deleted key can be published again
	publish(t, server, eventPath, eventSchema)
}

func TestPublishSchema_Invalid(t *testing.T) {
	server := newTestServer(t, testConfig())

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed key", "com.acme/event/jsonschema/1-0", eventSchema, http.StatusBadRequest, "INVALID_SCHEMA_KEY"},
		{"zero model", "com.acme/event/jsonschema/0-0-0", eventSchema, http.StatusBadRequest, "INVALID_SCHEMA_KEY"},
		{"not JSON", eventPath, `{"type":`, http.StatusBadRequest, "INVALID_SCHEMA"},
		{"self mismatch", "com.acme/event/jsonschema/1-0-1", eventSchema, http.StatusBadRequest, "INVALID_SCHEMA"},
		{"does not compile", eventPath, `{"type": 5}`, http.StatusBadRequest, "INVALID_SCHEMA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(server, "PUT", "/api/schemas/"+tt.path, tt.body, nil)
			if w.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.code {
				t.Errorf("Expected %s, got %s", tt.code, code)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	server := newTestServer(t, testConfig())
	publish(t, server, eventPath, eventSchema)

	tests := []struct {
		name       string
		query      string
		body       string
		status     int
		code       string
		wantResult string
	}{
		{
			name:       "valid instance returns envelope",
			body:       `{"schema":"` + eventURI + `","data":{"x":"ok"}}`,
			status:     http.StatusOK,
			wantResult: `{"schema":"` + eventURI + `","data":{"x":"ok"}}`,
		},
		{
			name:       "data only returns data",
			query:      "?data_only=true",
			body:       `{"schema":"` + eventURI + `","data":{"x":"ok"}}`,
			status:     http.StatusOK,
			wantResult: `{"x":"ok"}`,
		},
		{
			name:   "type mismatch",
			body:   `{"schema":"` + eventURI + `","data":{"x":1}}`,
			status: http.StatusUnprocessableEntity,
			code:   "VALIDATION_FAILED",
		},
		{
			name:   "malformed envelope",
			body:   `{"data":{"x":"ok"}}`,
			status: http.StatusBadRequest,
			code:   "MALFORMED_ENVELOPE",
		},
		{
			name:   "invalid JSON",
			body:   `{"schema":`,
			status: http.StatusBadRequest,
			code:   "MALFORMED_ENVELOPE",
		},
		{
			name:   "unknown schema",
			body:   `{"schema":"iglu:com.acme/missing/jsonschema/1-0-0","data":{}}`,
			status: http.StatusNotFound,
			code:   "SCHEMA_NOT_FOUND",
		},
		{
			name:   "bad data_only flag",
			query:  "?data_only=maybe",
			body:   `{"schema":"` + eventURI + `","data":{"x":"ok"}}`,
			status: http.StatusBadRequest,
			code:   "INVALID_REQUEST_FORMAT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(server, "POST", "/api/validate"+tt.query, tt.body, nil)
			if w.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.code != "" {
				if code := errorCode(t, w); code != tt.code {
					t.Errorf("Expected %s, got %s", tt.code, code)
				}
				return
			}

			var resp types.ValidationResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if !resp.Valid || resp.Schema != eventURI {
				t.Errorf("Unexpected response: %+v", resp)
			}
			assertJSONEqual(t, resp.Result, tt.wantResult)
		})
	}
}

func TestValidate_ViolationDetails(t *testing.T) {
	server := newTestServer(t, testConfig())
	publish(t, server, eventPath, eventSchema)

	w := doRequest(server, "POST", "/api/validate", `{"schema":"`+eventURI+`","data":{"x":1}}`, nil)

	var resp struct {
		Error struct {
			Details struct {
				Schema     string            `json:"schema"`
				Violations []types.Violation `json:"violations"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Error.Details.Schema != eventURI {
		t.Errorf("Expected schema %s, got %s", eventURI, resp.Error.Details.Schema)
	}
	found := false
	for _, v := range resp.Error.Details.Violations {
		if v.InstanceLocation == "/x" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected a violation at /x, got %+v", resp.Error.Details.Violations)
	}
}

func TestValidate_Bypass(t *testing.T) {
	cfg := testConfig()
	cfg.Bypass = config.BypassConfig{Enabled: true, TrustedVendors: []string{"com.trusted"}}
	server := newTestServer(t, cfg)

	w := doRequest(server, "POST", "/api/validate?data_only=true",
		`{"schema":"iglu:com.trusted/thing/jsonschema/1-0-0","data":{"a":1}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected bypass to succeed, got %d: %s", w.Code, w.Body.String())
	}
	var resp types.ValidationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Valid || !resp.Bypassed || resp.BypassReason == "" {
		t.Errorf("Expected an unvalidated bypassed report, got %+v", resp)
	}
	assertJSONEqual(t, resp.Result, `{"a":1}`)

	w = doRequest(server, "POST", "/api/validate",
		`{"schema":"iglu:com.untrusted/thing/jsonschema/1-0-0","data":{}}`, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected untrusted vendor to fail, got %d", w.Code)
	}
}

func TestVerify(t *testing.T) {
	server := newTestServer(t, testConfig())
	publish(t, server, eventPath, eventSchema)

	instance := `{"schema":"` + eventURI + `","data":{"x":"ok"}}`

	tests := []struct {
		name   string
		query  string
		status int
		code   string
	}{
		{"matching criterion", "?criterion=iglu:com.acme/event/jsonschema/1-*-*", http.StatusOK, ""},
		{"exact criterion", "?criterion=iglu:com.acme/event/jsonschema/1-0-0&data_only=true", http.StatusOK, ""},
		{"different model", "?criterion=iglu:com.acme/event/jsonschema/2-*-*", http.StatusUnprocessableEntity, "CRITERION_MISMATCH"},
		{"different name", "?criterion=iglu:com.acme/other/jsonschema/1-*-*", http.StatusUnprocessableEntity, "CRITERION_MISMATCH"},
		{"missing criterion", "", http.StatusBadRequest, "INVALID_CRITERION"},
		{"malformed criterion", "?criterion=com.acme/event", http.StatusBadRequest, "INVALID_CRITERION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(server, "POST", "/api/verify"+tt.query, instance, nil)
			if w.Code != tt.status {
				t.Fatalf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			if tt.code != "" {
				if code := errorCode(t, w); code != tt.code {
					t.Errorf("Expected %s, got %s", tt.code, code)
				}
			}
		})
	}
}

func TestValidateInstance(t *testing.T) {
	server := newTestServer(t, testConfig())
	publish(t, server, eventPath, eventSchema)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"valid", eventPath, `{"x":"ok"}`, http.StatusOK},
		{"invalid", eventPath, `{}`, http.StatusUnprocessableEntity},
		{"unknown schema", "com.acme/missing/jsonschema/1-0-0", `{}`, http.StatusNotFound},
		{"bad key", "com.acme/event/jsonschema/one", `{}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(server, "POST", "/api/validate/"+tt.path, tt.body, nil)
			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestLookupHistory(t *testing.T) {
	server := newTestServer(t, testConfig())
	missing := "com.acme/missing/jsonschema/1-0-0"

	for i := 0; i < 2; i++ {
		doRequest(server, "GET", "/api/schemas/"+missing, "", nil)
	}

	w := doRequest(server, "GET", "/api/schemas/"+missing+"/history", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp types.LookupHistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}

	store, ok := resp.Repositories[defaultStoreRepository]
	if !ok {
		t.Fatalf("Expected history for %s, got %+v", defaultStoreRepository, resp.Repositories)
	}
	if store.Attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", store.Attempts)
	}
	if len(store.Errors) != 1 || store.Errors[0].Kind != "NotFound" {
		t.Errorf("Expected a single NotFound error, got %+v", store.Errors)
	}

	// a successful lookup clears the history
	publish(t, server, missing, `{"type":"object"}`)
	doRequest(server, "GET", "/api/schemas/"+missing, "", nil)
	w = doRequest(server, "GET", "/api/schemas/"+missing+"/history", "", nil)
	var cleared types.LookupHistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &cleared); err != nil {
		t.Fatalf("Failed to decode history: %v", err)
	}
	if len(cleared.Repositories) != 0 {
		t.Errorf("Expected history to be cleared, got %+v", cleared.Repositories)
	}
}

func TestListRepositoriesAndStats(t *testing.T) {
	server := newTestServer(t, testConfig())

	w := doRequest(server, "GET", "/api/repositories", "", nil)
	var repos struct {
		Repositories []types.RepositoryStatus `json:"repositories"`
		Count        int                      `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &repos); err != nil {
		t.Fatalf("Failed to decode repositories: %v", err)
	}
	if repos.Count != 2 {
		t.Fatalf("Expected 2 repositories, got %d", repos.Count)
	}
	if repos.Repositories[0].ClassPriority != 1 || repos.Repositories[1].ClassPriority != 50 {
		t.Errorf("Unexpected class priorities: %+v", repos.Repositories)
	}

	publish(t, server, eventPath, eventSchema)
	w = doRequest(server, "GET", "/api/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var stats struct {
		Storage struct {
			TotalSchemas int64 `json:"total_schemas"`
		} `json:"storage"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Failed to decode stats: %v", err)
	}
	if stats.Storage.TotalSchemas != 1 {
		t.Errorf("Expected 1 stored schema, got %d", stats.Storage.TotalSchemas)
	}
}

// An instance configured with another instance as its HTTP repository
// resolves through it.
func TestChainedResolvers(t *testing.T) {
	upstream := newTestServer(t, testConfig())
	publish(t, upstream, eventPath, eventSchema)

	ts := httptest.NewServer(upstream.GetRouter())
	defer ts.Close()

	cfg := testConfig()
	cfg.Storage.Type = "none"
	cfg.Resolver.Repositories = []config.RepositoryConfig{{
		Name:           "Upstream",
		Type:           "http",
		VendorPrefixes: []string{"com.acme"},
		URI:            ts.URL + "/api/schemas",
	}}
	downstream := newTestServer(t, cfg)

	w := doRequest(downstream, "POST", "/api/validate?data_only=true", `{"schema":"`+eventURI+`","data":{"x":"ok"}}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 through upstream, got %d: %s", w.Code, w.Body.String())
	}

	w = doRequest(downstream, "GET", "/api/schemas/com.acme/missing/jsonschema/1-0-0", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected upstream 404 to be reported as not found, got %d", w.Code)
	}

	ts.Close()
	w = doRequest(downstream, "GET", "/api/schemas/com.acme/other/jsonschema/1-0-0", "", nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("Expected 502 with upstream down, got %d", w.Code)
	}
	if code := errorCode(t, w); code != "RESOLUTION_FAILED" {
		t.Errorf("Expected RESOLUTION_FAILED, got %s", code)
	}
}

func TestResolverConfigFile(t *testing.T) {
	doc := `{
		"schema": "iglu:com.snowplowanalytics.iglu/resolver-config/jsonschema/1-0-3",
		"data": {
			"cacheSize": 10,
			"cacheTtl": 30,
			"repositories": [
				{"name": "Bundled", "priority": 0, "vendorPrefixes": ["com.snowplowanalytics"],
				 "connection": {"embedded": {"path": "/iglu-client-embedded"}}}
			]
		}
	}`
	path := filepath.Join(t.TempDir(), "resolver.json")
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatalf("Failed to write resolver config: %v", err)
	}

	cfg := testConfig()
	cfg.Resolver.ConfigFile = path
	server := newTestServer(t, cfg)

	names := make([]string, 0)
	for _, ref := range server.Manager().Resolver().Repositories() {
		names = append(names, ref.Config().Name)
	}
	if len(names) != 3 || names[1] != "Bundled" || names[2] != defaultStoreRepository {
		t.Errorf("Unexpected repositories %v", names)
	}

	if err := os.WriteFile(path, []byte(`{"schema":"iglu:com.acme/x/jsonschema/1-0-0","data":{}}`), 0600); err != nil {
		t.Fatalf("Failed to write resolver config: %v", err)
	}
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for a document that is not a resolver config")
	}
}

func TestRepositoryDescriptor(t *testing.T) {
	tests := []struct {
		name    string
		repo    config.RepositoryConfig
		wantErr bool
	}{
		{name: "embedded", repo: config.RepositoryConfig{Name: "e", Type: "embedded", Path: "/p"}},
		{name: "local", repo: config.RepositoryConfig{Name: "l", Type: "local", Dir: "/d"}},
		{name: "http", repo: config.RepositoryConfig{Name: "h", Type: "HTTP", URI: "http://x", APIKey: "k"}},
		{name: "store", repo: config.RepositoryConfig{Name: "s", Type: "store"}},
		{name: "unknown", repo: config.RepositoryConfig{Name: "u", Type: "ftp"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := repositoryDescriptor(tt.repo)
			if (err != nil) != tt.wantErr {
				t.Fatalf("repositoryDescriptor() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			c := d.Connection
			set := map[string]bool{
				"embedded": c.Embedded != nil,
				"local":    c.Local != nil,
				"http":     c.HTTP != nil,
				"store":    c.Store != nil,
			}
			for kind, present := range set {
				if present != (kind == tt.name) {
					t.Errorf("connection %s present = %v", kind, present)
				}
			}
			if c.HTTP != nil && (c.HTTP.URI != "http://x" || c.HTTP.APIKey != "k") {
				t.Errorf("Unexpected HTTP connection %+v", c.HTTP)
			}
		})
	}
}

func assertJSONEqual(t *testing.T, got json.RawMessage, want string) {
	t.Helper()
	var g, w interface{}
	if err := json.Unmarshal(got, &g); err != nil {
		t.Fatalf("Invalid JSON %s: %v", got, err)
	}
	if err := json.Unmarshal([]byte(want), &w); err != nil {
		t.Fatalf("Invalid JSON %s: %v", want, err)
	}
	gb, _ := json.Marshal(g)
	wb, _ := json.Marshal(w)
	if string(gb) != string(wb) {
		t.Errorf("JSON mismatch: got %s, want %s", gb, wb)
	}
}
