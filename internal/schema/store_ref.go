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
	"encoding/json"
	"errors"
	"net"

	gojson "github.com/goccy/go-json"
)

// StoreRef serves schemas persisted in a SchemaStore
type StoreRef struct {
	config RepositoryRefConfig
	store  SchemaStore
}

// NewStoreRef creates a repository backed by store
func NewStoreRef(config RepositoryRefConfig, store SchemaStore) *StoreRef {
	return &StoreRef{
		config: config,
		store:  store,
	}
}

// Config returns the repository config
func (r *StoreRef) Config() RepositoryRefConfig {
	return r.config
}

// ClassPriority returns StoreClassPriority
func (r *StoreRef) ClassPriority() int {
	return StoreClassPriority
}

// LookupSchema reads the schema for key from the store
func (r *StoreRef) LookupSchema(ctx context.Context, key SchemaKey) (json.RawMessage, error) {
	body, err := r.store.GetSchema(ctx, key)
	if err != nil {
		if errors.Is(err, ErrSchemaNotFound) {
			return nil, nil
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
			return nil, NewRegistryError(ConnectionFailed, "%v", err)
		}
		return nil, NewRegistryError(ServerFailure, "%v", err)
	}

	if !gojson.Valid(body) {
		return nil, NewRegistryError(ParseFailure, "stored schema %s is not valid JSON", key)
	}
	return body, nil
}
