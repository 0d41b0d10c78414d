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

func TestParseSelfDescribing(t *testing.T) {
	tests := []struct {
		name     string
		instance string
		wantKey  string
		wantData string
		wantErr  bool
	}{
		{
			name:     "object data",
			instance: `{"schema":"iglu:com.acme/event/jsonschema/1-0-0","data":{"x":1}}`,
			wantKey:  "iglu:com.acme/event/jsonschema/1-0-0",
			wantData: `{"x":1}`,
		},
		{
			name:     "scalar data",
			instance: `{"schema":"iglu:com.acme/count/jsonschema/2-1-0","data":42}`,
			wantKey:  "iglu:com.acme/count/jsonschema/2-1-0",
			wantData: `42`,
		},
		{name: "not an object", instance: `[1,2]`, wantErr: true},
		{name: "not json", instance: `{"schema"`, wantErr: true},
		{name: "missing schema", instance: `{"data":{}}`, wantErr: true},
		{name: "missing data", instance: `{"schema":"iglu:com.acme/event/jsonschema/1-0-0"}`, wantErr: true},
		{name: "malformed key", instance: `{"schema":"com.acme/event","data":{}}`, wantErr: true},
		{name: "schema not a string", instance: `{"schema":1,"data":{}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd, err := ParseSelfDescribing(json.RawMessage(tt.instance))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedEnvelope) {
					t.Errorf("expected ErrMalformedEnvelope, got %v", err)
				}
				var envErr *EnvelopeError
				if !errors.As(err, &envErr) {
					t.Errorf("expected *EnvelopeError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sd.Schema.ToURI() != tt.wantKey {
				t.Errorf("unexpected key %s", sd.Schema)
			}
			if string(sd.Data) != tt.wantData {
				t.Errorf("unexpected data %s", sd.Data)
			}
		})
	}
}

func TestEnvelopeErrorUnwrap(t *testing.T) {
	_, err := ParseSelfDescribing(json.RawMessage(`{"schema":"iglu:bad","data":{}}`))
	if !errors.Is(err, ErrMalformedKey) {
		t.Errorf("expected wrapped ErrMalformedKey, got %v", err)
	}
}

func TestSelfDescribingNormalize(t *testing.T) {
	sd := SelfDescribingData{
		Schema: mustKey(t, "iglu:com.acme/event/jsonschema/1-0-0"),
		Data:   json.RawMessage(`{"x":1}`),
	}
	out, err := sd.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	parsed, err := ParseSelfDescribing(out)
	if err != nil {
		t.Fatalf("ParseSelfDescribing: %v", err)
	}
	if parsed.Schema != sd.Schema || string(parsed.Data) != `{"x":1}` {
		t.Errorf("unexpected round trip %+v", parsed)
	}
}
