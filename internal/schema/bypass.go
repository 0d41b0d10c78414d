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
	"errors"
	"strings"
)

// BypassConfig holds configuration for lenient pass-through of instances whose
// schema is genuinely absent.
type BypassConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	TrustedVendors []string `yaml:"trusted_vendors" json:"trusted_vendors"`
}

// BypassManager decides whether a failed validation may pass through
type BypassManager struct {
	config BypassConfig
}

// NewBypassManager creates a new bypass manager
func NewBypassManager(config BypassConfig) *BypassManager {
	return &BypassManager{
		config: config,
	}
}

// ShouldBypass reports whether err may be ignored for key. Only resolution
// failures where every repository reported NotFound qualify; infrastructure
// failures never do.
func (bm *BypassManager) ShouldBypass(key SchemaKey, err error) bool {
	if !bm.config.Enabled || err == nil {
		return false
	}

	var resErr *ResolutionError
	if !errors.As(err, &resErr) || !resErr.IsNotFound() {
		return false
	}

	return bm.isTrustedVendor(key.Vendor)
}

// isTrustedVendor checks vendor against the trusted prefixes. An empty list
// trusts every vendor.
func (bm *BypassManager) isTrustedVendor(vendor string) bool {
	if len(bm.config.TrustedVendors) == 0 {
		return true
	}
	for _, trusted := range bm.config.TrustedVendors {
		if strings.HasPrefix(vendor, trusted) {
			return true
		}
	}
	return false
}

// GetBypassInfo returns information about bypass configuration
func (bm *BypassManager) GetBypassInfo() *BypassInfo {
	return &BypassInfo{
		Enabled:        bm.config.Enabled,
		TrustedVendors: bm.config.TrustedVendors,
	}
}

// BypassInfo provides information about bypass configuration
type BypassInfo struct {
	Enabled        bool     `json:"enabled"`
	TrustedVendors []string `json:"trusted_vendors"`
}
