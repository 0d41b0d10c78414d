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
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// URIPrefix is the scheme carried by canonical schema URIs
const URIPrefix = "iglu:"

var (
	// ErrMalformedKey is returned when a string is not a valid schema key
	ErrMalformedKey = errors.New("malformed schema key")

	schemaKeyRegex = regexp.MustCompile(`^([a-zA-Z0-9\-_.]+)/([a-zA-Z0-9\-_]+)/([a-zA-Z0-9\-_]+)/([^/]+)$`)
	schemaVerRegex = regexp.MustCompile(`^([1-9][0-9]*)-(0|[1-9][0-9]*)-(0|[1-9][0-9]*)$`)
)

// SchemaVer is a model-revision-addition schema version
type SchemaVer struct {
	Model    int `json:"model"`
	Revision int `json:"revision"`
	Addition int `json:"addition"`
}

// ParseSchemaVer parses a version of the form MODEL-REVISION-ADDITION
func ParseSchemaVer(s string) (SchemaVer, error) {
	matches := schemaVerRegex.FindStringSubmatch(s)
	if len(matches) != 4 {
		return SchemaVer{}, fmt.Errorf("%w: invalid version %q (expected MODEL-REVISION-ADDITION)", ErrMalformedKey, s)
	}

	var parts [3]int
	for i := range parts {
		n, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return SchemaVer{}, fmt.Errorf("%w: invalid version %q: %v", ErrMalformedKey, s, err)
		}
		parts[i] = n
	}

	return SchemaVer{Model: parts[0], Revision: parts[1], Addition: parts[2]}, nil
}

// String returns the MODEL-REVISION-ADDITION form
func (v SchemaVer) String() string {
	return fmt.Sprintf("%d-%d-%d", v.Model, v.Revision, v.Addition)
}

// Compare orders versions lexicographically on (model, revision, addition)
func (v SchemaVer) Compare(other SchemaVer) int {
	switch {
	case v.Model != other.Model:
		return compareInt(v.Model, other.Model)
	case v.Revision != other.Revision:
		return compareInt(v.Revision, other.Revision)
	default:
		return compareInt(v.Addition, other.Addition)
	}
}

// CompatibleWith reports whether both versions share a model
func (v SchemaVer) CompatibleWith(other SchemaVer) bool {
	return v.Model == other.Model
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// SchemaKey identifies exactly one schema document
type SchemaKey struct {
	Vendor  string
	Name    string
	Format  string
	Version SchemaVer
}

// ParseSchemaKey parses a canonical schema URI such as
// iglu:com.acme/event/jsonschema/1-0-0
func ParseSchemaKey(uri string) (SchemaKey, error) {
	if !strings.HasPrefix(uri, URIPrefix) {
		return SchemaKey{}, fmt.Errorf("%w: %q does not start with %q", ErrMalformedKey, uri, URIPrefix)
	}
	return ParseSchemaKeyPath(strings.TrimPrefix(uri, URIPrefix))
}

// ParseSchemaKeyPath parses the prefix-less vendor/name/format/version form
func ParseSchemaKeyPath(path string) (SchemaKey, error) {
	if path == "" {
		return SchemaKey{}, fmt.Errorf("%w: empty key", ErrMalformedKey)
	}

	matches := schemaKeyRegex.FindStringSubmatch(path)
	if len(matches) != 5 {
		return SchemaKey{}, fmt.Errorf("%w: %q (expected vendor/name/format/version)", ErrMalformedKey, path)
	}

	version, err := ParseSchemaVer(matches[4])
	if err != nil {
		return SchemaKey{}, err
	}

	return SchemaKey{
		Vendor:  matches[1],
		Name:    matches[2],
		Format:  matches[3],
		Version: version,
	}, nil
}

// ToPath returns vendor/name/format/version
func (k SchemaKey) ToPath() string {
	return k.Vendor + "/" + k.Name + "/" + k.Format + "/" + k.Version.String()
}

// ToURI returns the canonical iglu: URI, the inverse of ParseSchemaKey
func (k SchemaKey) ToURI() string {
	return URIPrefix + k.ToPath()
}

// String returns the canonical URI
func (k SchemaKey) String() string {
	return k.ToURI()
}

// MarshalText encodes the key as its canonical URI
func (k SchemaKey) MarshalText() ([]byte, error) {
	return []byte(k.ToURI()), nil
}

// UnmarshalText decodes a canonical URI
func (k *SchemaKey) UnmarshalText(text []byte) error {
	parsed, err := ParseSchemaKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ResourcePath returns the location of a schema below a repository root
func ResourcePath(base string, key SchemaKey) string {
	base = strings.TrimSuffix(base, "/")
	if base == "" {
		return "schemas/" + key.ToPath()
	}
	return base + "/schemas/" + key.ToPath()
}
