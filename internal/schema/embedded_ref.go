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
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path"
	"strings"

	gojson "github.com/goccy/go-json"
)

//go:embed resources
var bundled embed.FS

// Bootstrap repository settings
const (
	BootstrapRepositoryName = "Iglu Client Embedded"
	BootstrapPath           = "/iglu-client-embedded"
	BootstrapVendorPrefix   = "com.snowplowanalytics"
)

// EmbeddedRef serves schemas from a file system laid out as
// {path}/schemas/{vendor}/{name}/{format}/{version}.
type EmbeddedRef struct {
	config RepositoryRefConfig
	fsys   fs.FS
	path   string
}

// NewEmbeddedRef creates a repository over the schemas bundled in the binary
func NewEmbeddedRef(config RepositoryRefConfig, basePath string) *EmbeddedRef {
	sub, err := fs.Sub(bundled, "resources")
	if err != nil {
		panic("schema: bundled resources missing: " + err.Error())
	}
	return NewFSRef(config, sub, basePath)
}

// NewLocalRef creates a repository over a directory on disk
func NewLocalRef(config RepositoryRefConfig, dir, basePath string) *EmbeddedRef {
	return NewFSRef(config, os.DirFS(dir), basePath)
}

// NewFSRef creates a repository over an arbitrary file system
func NewFSRef(config RepositoryRefConfig, fsys fs.FS, basePath string) *EmbeddedRef {
	return &EmbeddedRef{
		config: config,
		fsys:   fsys,
		path:   strings.Trim(basePath, "/"),
	}
}

// BootstrapRef returns the repository holding the schemas the resolver
// itself depends on.
func BootstrapRef() *EmbeddedRef {
	return NewEmbeddedRef(RepositoryRefConfig{
		Name:             BootstrapRepositoryName,
		InstancePriority: 0,
		VendorPrefixes:   []string{BootstrapVendorPrefix},
	}, BootstrapPath)
}

// Config returns the repository config
func (r *EmbeddedRef) Config() RepositoryRefConfig {
	return r.config
}

// ClassPriority returns EmbeddedClassPriority
func (r *EmbeddedRef) ClassPriority() int {
	return EmbeddedClassPriority
}

// LookupSchema reads the schema resource for key
func (r *EmbeddedRef) LookupSchema(ctx context.Context, key SchemaKey) (json.RawMessage, error) {
	resource := path.Clean(ResourcePath(r.path, key))

	data, err := fs.ReadFile(r.fsys, resource)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, NewRegistryError(ClientFailure, "failed to read %s: %v", resource, err)
	}

	if !gojson.Valid(data) {
		return nil, NewRegistryError(ParseFailure, "resource %s is not valid JSON", resource)
	}

	return json.RawMessage(data), nil
}
