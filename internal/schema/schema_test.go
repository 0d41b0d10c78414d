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
	"encoding/json"
	"errors"
	"testing"
)

func mustKey(t *testing.T, uri string) SchemaKey {
	t.Helper()
	key, err := ParseSchemaKey(uri)
	if err != nil {
		t.Fatalf("ParseSchemaKey(%q): %v", uri, err)
	}
	return key
}

func TestParseSchemaVer(t *testing.T) {
	tests := []struct {
		input   string
		want    SchemaVer
		wantErr bool
	}{
		{"1-0-0", SchemaVer{1, 0, 0}, false},
		{"2-10-3", SchemaVer{2, 10, 3}, false},
		{"0-1-0", SchemaVer{}, true},
		{"1-01-0", SchemaVer{}, true},
		{"1-0", SchemaVer{}, true},
		{"1-0-0-0", SchemaVer{}, true},
		{"a-b-c", SchemaVer{}, true},
		{"", SchemaVer{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSchemaVer(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedKey) {
					t.Errorf("expected ErrMalformedKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if got.String() != tt.input {
				t.Errorf("String() = %q, want %q", got.String(), tt.input)
			}
		})
	}
}

func TestSchemaVerCompare(t *testing.T) {
	tests := []struct {
		a, b SchemaVer
		want int
	}{
		{SchemaVer{1, 0, 0}, SchemaVer{1, 0, 0}, 0},
		{SchemaVer{1, 0, 0}, SchemaVer{2, 0, 0}, -1},
		{SchemaVer{1, 2, 0}, SchemaVer{1, 1, 9}, 1},
		{SchemaVer{1, 1, 1}, SchemaVer{1, 1, 2}, -1},
	}
	for _, tt := range tests {
		if got := tt.a.Compare(tt.b); got != tt.want {
			t.Errorf("%s.Compare(%s) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}

	if !(SchemaVer{1, 0, 0}).CompatibleWith(SchemaVer{1, 3, 2}) {
		t.Error("expected same model to be compatible")
	}
	if (SchemaVer{1, 0, 0}).CompatibleWith(SchemaVer{2, 0, 0}) {
		t.Error("expected different models to be incompatible")
	}
}

func TestParseSchemaKey(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    SchemaKey
		wantErr bool
	}{
		{
			name: "canonical",
			uri:  "iglu:com.acme/event/jsonschema/1-0-0",
			want: SchemaKey{Vendor: "com.acme", Name: "event", Format: "jsonschema", Version: SchemaVer{1, 0, 0}},
		},
		{
			name: "dashes and underscores",
			uri:  "iglu:com.acme-corp_x/link_click/json-schema/3-2-1",
			want: SchemaKey{Vendor: "com.acme-corp_x", Name: "link_click", Format: "json-schema", Version: SchemaVer{3, 2, 1}},
		},
		{name: "missing prefix", uri: "com.acme/event/jsonschema/1-0-0", wantErr: true},
		{name: "wrong prefix", uri: "http://com.acme/event/jsonschema/1-0-0", wantErr: true},
		{name: "too few parts", uri: "iglu:com.acme/event/1-0-0", wantErr: true},
		{name: "too many parts", uri: "iglu:com.acme/x/event/jsonschema/1-0-0", wantErr: true},
		{name: "bad version", uri: "iglu:com.acme/event/jsonschema/1-0", wantErr: true},
		{name: "dot in name", uri: "iglu:com.acme/ev.ent/jsonschema/1-0-0", wantErr: true},
		{name: "empty", uri: "iglu:", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchemaKey(tt.uri)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedKey) {
					t.Errorf("expected ErrMalformedKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if got.ToURI() != tt.uri {
				t.Errorf("ToURI() = %q, want %q", got.ToURI(), tt.uri)
			}
		})
	}
}

func TestSchemaKeyPath(t *testing.T) {
	key := mustKey(t, "iglu:com.acme/event/jsonschema/1-2-3")

	if key.ToPath() != "com.acme/event/jsonschema/1-2-3" {
		t.Errorf("unexpected path %q", key.ToPath())
	}

	parsed, err := ParseSchemaKeyPath(key.ToPath())
	if err != nil {
		t.Fatalf("ParseSchemaKeyPath: %v", err)
	}
	if parsed != key {
		t.Errorf("path round trip: got %+v, want %+v", parsed, key)
	}

	if _, err := ParseSchemaKeyPath(key.ToURI()); err == nil {
		t.Error("expected prefixed key to be rejected by ParseSchemaKeyPath")
	}
}

func TestSchemaKeyJSON(t *testing.T) {
	key := mustKey(t, "iglu:com.acme/event/jsonschema/1-0-0")

	data, err := json.Marshal(map[string]SchemaKey{"key": key})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"key":"iglu:com.acme/event/jsonschema/1-0-0"}` {
		t.Errorf("unexpected encoding %s", data)
	}

	var decoded map[string]SchemaKey
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["key"] != key {
		t.Errorf("got %+v, want %+v", decoded["key"], key)
	}

	var bad SchemaKey
	if err := json.Unmarshal([]byte(`"not-a-key"`), &bad); err == nil {
		t.Error("expected malformed key to fail decoding")
	}
}

func TestResourcePath(t *testing.T) {
	key := mustKey(t, "iglu:com.acme/event/jsonschema/1-0-0")

	tests := []struct {
		base string
		want string
	}{
		{"", "schemas/com.acme/event/jsonschema/1-0-0"},
		{"/iglu-client-embedded", "/iglu-client-embedded/schemas/com.acme/event/jsonschema/1-0-0"},
		{"http://registry/api/", "http://registry/api/schemas/com.acme/event/jsonschema/1-0-0"},
	}
	for _, tt := range tests {
		if got := ResourcePath(tt.base, key); got != tt.want {
			t.Errorf("ResourcePath(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
