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
	"fmt"
	"sort"
	"time"

	"github.com/amtp-protocol/schemaresolver/internal/logging"
)

// ResolverOptions configures a Resolver
type ResolverOptions struct {
	// CacheTTL bounds how long a resolved schema is served from memory. Zero
	// disables caching.
	CacheTTL time.Duration

	// CacheSize caps the number of cached schemas. Zero means unbounded.
	CacheSize int

	Logger   *logging.Logger
	Observer LookupObserver

	// Clock overrides time.Now
	Clock func() time.Time
}

// Resolver looks schemas up across an ordered set of repositories, caching
// hits and recording per-repository failures.
type Resolver struct {
	refs     []RepositoryRef
	cache    *schemaCache
	history  *historyStore
	logger   *logging.Logger
	observer LookupObserver
	now      func() time.Time
}

// NewResolver creates a resolver over refs. Repository names must be unique.
func NewResolver(refs []RepositoryRef, opts ResolverOptions) (*Resolver, error) {
	if opts.CacheTTL < 0 {
		return nil, fmt.Errorf("cache ttl cannot be negative")
	}
	if opts.CacheSize < 0 {
		return nil, fmt.Errorf("cache size cannot be negative")
	}

	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		name := ref.Config().Name
		if seen[name] {
			return nil, fmt.Errorf("duplicate repository name %q", name)
		}
		seen[name] = true
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	owned := make([]RepositoryRef, len(refs))
	copy(owned, refs)

	return &Resolver{
		refs:     owned,
		cache:    newSchemaCache(opts.CacheTTL, opts.CacheSize, now),
		history:  newHistoryStore(),
		logger:   logger.WithComponent("resolver"),
		observer: opts.Observer,
		now:      now,
	}, nil
}

// Repositories returns the repositories in registration order
func (r *Resolver) Repositories() []RepositoryRef {
	out := make([]RepositoryRef, len(r.refs))
	copy(out, r.refs)
	return out
}

// Prioritize returns the order in which repositories are consulted for key:
// by class priority, then vendor-matched ahead of unmatched, then by instance
// priority.
func (r *Resolver) Prioritize(key SchemaKey) []RepositoryRef {
	ordered := r.Repositories()
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.ClassPriority() != b.ClassPriority() {
			return a.ClassPriority() < b.ClassPriority()
		}
		am, bm := VendorMatched(a, key), VendorMatched(b, key)
		if am != bm {
			return am
		}
		return a.Config().InstancePriority < b.Config().InstancePriority
	})
	return ordered
}

// ResolveSchema returns the schema for key. Failures are always
// *ResolutionError.
func (r *Resolver) ResolveSchema(ctx context.Context, key SchemaKey) (json.RawMessage, error) {
	if schema, ok := r.cache.get(key); ok {
		r.observeCache(true)
		return schema, nil
	}
	r.observeCache(false)

	logger := r.logger.WithContext(ctx).WithField("schema", key.String())

	for _, ref := range r.Prioritize(key) {
		name := ref.Config().Name
		start := r.now()
		schema, err := ref.LookupSchema(ctx, key)
		elapsed := r.now().Sub(start)

		switch {
		case err != nil:
			regErr := asRegistryError(err)
			r.history.record(key, name, regErr, r.now())
			r.observeLookup(name, OutcomeFailed, elapsed)
			logger.LogLookup(name, OutcomeFailed, elapsed, &regErr)
		case schema == nil:
			r.history.record(key, name, RegistryError{Kind: NotFound}, r.now())
			r.observeLookup(name, OutcomeMissing, elapsed)
			logger.LogLookup(name, OutcomeMissing, elapsed, nil)
		default:
			r.cache.put(key, schema)
			r.history.clear(key)
			r.observeLookup(name, OutcomeFound, elapsed)
			logger.LogLookup(name, OutcomeFound, elapsed, nil)
			return schema, nil
		}
	}

	resErr := &ResolutionError{Key: key, History: r.history.snapshot(key)}
	logger.WithField("not_found", resErr.IsNotFound()).Warn("Schema resolution exhausted all repositories")
	return nil, resErr
}

// History returns a snapshot of the failures recorded for key
func (r *Resolver) History(key SchemaKey) map[string]LookupHistory {
	return r.history.snapshot(key)
}

// CacheStats returns statistics about the schema cache
func (r *Resolver) CacheStats() CacheStats {
	return r.cache.stats()
}

// Invalidate drops key from the cache
func (r *Resolver) Invalidate(key SchemaKey) {
	r.cache.invalidate(key)
}

func (r *Resolver) observeCache(hit bool) {
	if r.observer != nil {
		r.observer.ObserveCache(hit)
	}
}

func (r *Resolver) observeLookup(repository, outcome string, d time.Duration) {
	if r.observer != nil {
		r.observer.ObserveLookup(repository, outcome, d)
	}
}
