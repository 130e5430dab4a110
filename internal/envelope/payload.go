// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Wefix Contributors

package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
)

// Payload is the verified body of an envelope.
type Payload []byte

// schemaCache holds compiled schemas keyed by the request type.
var schemaCache sync.Map // map[reflect.Type]*jschema.Schema

// Decode validates the payload against the JSON Schema of dst's type and
// unmarshals it into dst. dst must be a non-nil pointer to a struct.
//
// Fields without omitempty are required, unknown fields are rejected, and
// jsonschema struct tags (e.g. minLength=1) add constraints.
func (p Payload) Decode(dst any) error {
	t := reflect.TypeOf(dst)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return oops.Code("PAYLOAD_DECODE_TARGET").
			With("type", fmt.Sprintf("%T", dst)).
			Errorf("decode target must be a pointer to a struct")
	}

	sch, err := compiledSchema(t.Elem())
	if err != nil {
		return err
	}

	inst, err := jschema.UnmarshalJSON(bytes.NewReader(p))
	if err != nil {
		return oops.Code(CodeMalformedPayload).
			With("operation", "parse payload").
			Wrap(err)
	}
	if err := sch.Validate(inst); err != nil {
		return oops.Code(CodeMalformedPayload).
			With("operation", "validate payload").
			With("type", t.Elem().Name()).
			Wrap(err)
	}

	if err := json.Unmarshal(p, dst); err != nil {
		return oops.Code(CodeMalformedPayload).
			With("operation", "unmarshal payload").
			Wrap(err)
	}
	return nil
}

// GenerateSchema reflects the JSON Schema for a request type.
func GenerateSchema(t reflect.Type) ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
		Anonymous:      true,
	}
	schema := r.ReflectFromType(t)

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, oops.Code("PAYLOAD_SCHEMA_FAILED").
			With("operation", "marshal schema").
			With("type", t.Name()).
			Wrap(err)
	}
	return data, nil
}

func compiledSchema(t reflect.Type) (*jschema.Schema, error) {
	if cached, ok := schemaCache.Load(t); ok {
		return cached.(*jschema.Schema), nil //nolint:forcetypeassert // only *jschema.Schema is stored
	}

	schemaBytes, err := GenerateSchema(t)
	if err != nil {
		return nil, err
	}

	schemaData, err := jschema.UnmarshalJSON(bytes.NewReader(schemaBytes))
	if err != nil {
		return nil, oops.Code("PAYLOAD_SCHEMA_FAILED").
			With("operation", "parse schema").
			With("type", t.Name()).
			Wrap(err)
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("payload.json", schemaData); err != nil {
		return nil, oops.Code("PAYLOAD_SCHEMA_FAILED").
			With("operation", "add schema resource").
			With("type", t.Name()).
			Wrap(err)
	}
	sch, err := c.Compile("payload.json")
	if err != nil {
		return nil, oops.Code("PAYLOAD_SCHEMA_FAILED").
			With("operation", "compile schema").
			With("type", t.Name()).
			Wrap(err)
	}

	actual, _ := schemaCache.LoadOrStore(t, sch)
	return actual.(*jschema.Schema), nil //nolint:forcetypeassert // only *jschema.Schema is stored
}
