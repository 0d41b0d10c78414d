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
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var criterionRegex = regexp.MustCompile(`^iglu:([a-zA-Z0-9\-_.]+)/([a-zA-Z0-9\-_]+)/([a-zA-Z0-9\-_]+)/(\*|[0-9]+)-(\*|[0-9]+)-(\*|[0-9]+)$`)

// SchemaCriterion matches a family of schema keys. Nil version parts are wildcards.
type SchemaCriterion struct {
	Vendor   string
	Name     string
	Format   string
	Model    *int
	Revision *int
	Addition *int
}

// NewSchemaCriterion builds a criterion with the given model and wildcard
// revision and addition.
func NewSchemaCriterion(vendor, name, format string, model int) SchemaCriterion {
	return SchemaCriterion{Vendor: vendor, Name: name, Format: format, Model: &model}
}

// ParseSchemaCriterion parses iglu:vendor/name/format/M-R-A where any version
// part may be "*".
func ParseSchemaCriterion(s string) (SchemaCriterion, error) {
	matches := criterionRegex.FindStringSubmatch(s)
	if len(matches) != 7 {
		return SchemaCriterion{}, fmt.Errorf("invalid schema criterion %q (expected iglu:vendor/name/format/M-R-A with optional * parts)", s)
	}

	c := SchemaCriterion{Vendor: matches[1], Name: matches[2], Format: matches[3]}
	parts := []**int{&c.Model, &c.Revision, &c.Addition}
	for i, target := range parts {
		raw := matches[i+4]
		if raw == "*" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return SchemaCriterion{}, fmt.Errorf("invalid schema criterion %q: %w", s, err)
		}
		*target = &n
	}
	return c, nil
}

// Matches reports whether every present field equals the key's field
func (c SchemaCriterion) Matches(key SchemaKey) bool {
	if c.Vendor != key.Vendor || c.Name != key.Name || c.Format != key.Format {
		return false
	}
	if c.Model != nil && *c.Model != key.Version.Model {
		return false
	}
	if c.Revision != nil && *c.Revision != key.Version.Revision {
		return false
	}
	if c.Addition != nil && *c.Addition != key.Version.Addition {
		return false
	}
	return true
}

// String returns the criterion in its parseable form
func (c SchemaCriterion) String() string {
	part := func(p *int) string {
		if p == nil {
			return "*"
		}
		return strconv.Itoa(*p)
	}
	return URIPrefix + strings.Join([]string{c.Vendor, c.Name, c.Format,
		part(c.Model) + "-" + part(c.Revision) + "-" + part(c.Addition)}, "/")
}
