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
	"sync"
	"time"
)

// LookupHistory records failed lookups of one key against one repository
type LookupHistory struct {
	Errors      []RegistryError `json:"errors"`
	Attempts    int             `json:"attempts"`
	LastAttempt time.Time       `json:"last_attempt"`
}

// withFailure returns a copy of h with err added to the error set
func (h LookupHistory) withFailure(err RegistryError, at time.Time) LookupHistory {
	errs := make([]RegistryError, 0, len(h.Errors)+1)
	errs = append(errs, h.Errors...)

	seen := false
	for _, existing := range errs {
		if existing == err {
			seen = true
			break
		}
	}
	if !seen {
		errs = append(errs, err)
	}

	return LookupHistory{
		Errors:      errs,
		Attempts:    h.Attempts + 1,
		LastAttempt: at,
	}
}

// historyStore holds lookup histories keyed by schema key and repository name
type historyStore struct {
	mu      sync.Mutex
	entries map[SchemaKey]map[string]LookupHistory
}

func newHistoryStore() *historyStore {
	return &historyStore{
		entries: make(map[SchemaKey]map[string]LookupHistory),
	}
}

func (s *historyStore) record(key SchemaKey, repository string, err RegistryError, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byRepo, exists := s.entries[key]
	if !exists {
		byRepo = make(map[string]LookupHistory)
		s.entries[key] = byRepo
	}
	byRepo[repository] = byRepo[repository].withFailure(err, at)
}

func (s *historyStore) clear(key SchemaKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// snapshot returns a copy that later failures cannot modify
func (s *historyStore) snapshot(key SchemaKey) map[string]LookupHistory {
	s.mu.Lock()
	defer s.mu.Unlock()

	byRepo := s.entries[key]
	out := make(map[string]LookupHistory, len(byRepo))
	for name, h := range byRepo {
		errs := make([]RegistryError, len(h.Errors))
		copy(errs, h.Errors)
		out[name] = LookupHistory{Errors: errs, Attempts: h.Attempts, LastAttempt: h.LastAttempt}
	}
	return out
}
