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

package metrics

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	gojson "github.com/goccy/go-json"
)

// summary is a running aggregate of observed durations in seconds
type summary struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

func (s *summary) observe(v float64) {
	if s.Count == 0 || v < s.Min {
		s.Min = v
	}
	if s.Count == 0 || v > s.Max {
		s.Max = v
	}
	s.Count++
	s.Sum += v
}

// MarshalJSON adds the mean to the aggregate
func (s summary) MarshalJSON() ([]byte, error) {
	type plain summary
	avg := 0.0
	if s.Count > 0 {
		avg = s.Sum / float64(s.Count)
	}
	return gojson.Marshal(struct {
		plain
		Avg float64 `json:"avg"`
	}{plain(s), avg})
}

// series keys summaries by label set
type series map[string]*summary

func (s series) observe(key string, d time.Duration) {
	sum, ok := s[key]
	if !ok {
		sum = &summary{}
		s[key] = sum
	}
	sum.observe(d.Seconds())
}

func (s series) count(key string) int64 {
	if sum, ok := s[key]; ok {
		return sum.Count
	}
	return 0
}

func (s series) counts() map[string]int64 {
	out := make(map[string]int64, len(s))
	for k, sum := range s {
		out[k] = sum.Count
	}
	return out
}

func (s series) snapshot() map[string]summary {
	out := make(map[string]summary, len(s))
	for k, sum := range s {
		out[k] = *sum
	}
	return out
}

// SimpleMetrics keeps resolver metrics in memory for the JSON metrics
// endpoint when Prometheus is not in use
type SimpleMetrics struct {
	mu sync.RWMutex

	http        series
	lookups     series
	validations series
	errors      map[string]int64

	httpInFlight int64
	cacheHits    int64
	cacheMisses  int64

	startTime  time.Time
	lastUpdate time.Time
}

// NewSimpleMetrics creates an empty in-memory metrics set
func NewSimpleMetrics() *SimpleMetrics {
	now := time.Now()
	return &SimpleMetrics{
		http:        make(series),
		lookups:     make(series),
		validations: make(series),
		errors:      make(map[string]int64),
		startTime:   now,
		lastUpdate:  now,
	}
}

func (m *SimpleMetrics) record(s series, key string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.observe(key, d)
	m.lastUpdate = time.Now()
}

// RecordHTTPRequest records one served request
func (m *SimpleMetrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	m.record(m.http, method+":"+path+":"+strconv.Itoa(statusCode), duration)
}

func (m *SimpleMetrics) IncHTTPRequestsInFlight() {
	atomic.AddInt64(&m.httpInFlight, 1)
}

func (m *SimpleMetrics) DecHTTPRequestsInFlight() {
	atomic.AddInt64(&m.httpInFlight, -1)
}

// ObserveLookup records one repository lookup
func (m *SimpleMetrics) ObserveLookup(repository, outcome string, duration time.Duration) {
	m.record(m.lookups, repository+":"+outcome, duration)
}

// ObserveCache records a cache read
func (m *SimpleMetrics) ObserveCache(hit bool) {
	if hit {
		atomic.AddInt64(&m.cacheHits, 1)
	} else {
		atomic.AddInt64(&m.cacheMisses, 1)
	}
}

// ObserveValidation records one validation
func (m *SimpleMetrics) ObserveValidation(outcome string, duration time.Duration) {
	m.record(m.validations, outcome, duration)
}

// RecordError counts an error code raised by component
func (m *SimpleMetrics) RecordError(component, errorCode string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[component+":"+errorCode]++
	m.lastUpdate = time.Now()
}

// ToJSON exports a snapshot of all metrics
func (m *SimpleMetrics) ToJSON() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hits := atomic.LoadInt64(&m.cacheHits)
	misses := atomic.LoadInt64(&m.cacheMisses)
	hitRatio := 0.0
	if hits+misses > 0 {
		hitRatio = float64(hits) / float64(hits+misses)
	}

	return gojson.Marshal(map[string]interface{}{
		"timestamp":      m.lastUpdate.Unix(),
		"uptime_seconds": time.Since(m.startTime).Seconds(),
		"http": map[string]interface{}{
			"requests":  m.http.counts(),
			"durations": m.http.snapshot(),
			"in_flight": atomic.LoadInt64(&m.httpInFlight),
		},
		"lookups": map[string]interface{}{
			"total":     m.lookups.counts(),
			"durations": m.lookups.snapshot(),
		},
		"cache": map[string]interface{}{
			"hits":      hits,
			"misses":    misses,
			"hit_ratio": hitRatio,
		},
		"validations": map[string]interface{}{
			"total":     m.validations.counts(),
			"durations": m.validations.snapshot(),
		},
		"system": map[string]interface{}{
			"memory_usage_bytes": memStats.Alloc,
			"memory_total_bytes": memStats.TotalAlloc,
			"goroutines_active":  runtime.NumGoroutine(),
			"gc_cycles":          memStats.NumGC,
		},
		"errors": m.errors,
	})
}
