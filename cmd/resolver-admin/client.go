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
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/amtp-protocol/schemaresolver/internal/types"
)

// apiClient talks to a schema resolver server
type apiClient struct {
	baseURL  string
	apiKey   string
	adminKey string
	verbose  bool
	log      io.Writer
	http     *http.Client
}

// apiError is an error response returned by the server
type apiError struct {
	Status  int
	Code    string
	Message string
	Details map[string]interface{}
}

func (e *apiError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("API error (%d) %s: %s", e.Status, e.Code, e.Message)
}

func newAPIClient(baseURL string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     io.Discard,
		http:    &http.Client{Timeout: timeout},
	}
}

// do sends a request and returns the response body of a successful call.
// Admin requests carry the admin key.
func (c *apiClient) do(method, endpoint string, body []byte, admin bool) ([]byte, error) {
	url := c.baseURL + endpoint
	if c.verbose {
		fmt.Fprintf(c.log, "Making %s request to: %s\n", method, url)
	}

	var reqBody io.Reader
	if body != nil {
		reqBody = bytes.NewReader(body)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if admin {
		if c.adminKey == "" {
			return nil, fmt.Errorf("admin key is required for this command. Use --admin-key-file")
		}
		req.Header.Set("X-Admin-Key", c.adminKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if c.verbose {
		fmt.Fprintf(c.log, "Response status: %d\n", resp.StatusCode)
	}

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var errorResp types.ErrorResponse
		if gojson.Unmarshal(respBody, &errorResp) == nil && errorResp.Error.Code != "" {
			apiErr.Code = errorResp.Error.Code
			apiErr.Message = errorResp.Error.Message
			apiErr.Details = errorResp.Error.Details
		}
		return nil, apiErr
	}

	return respBody, nil
}
