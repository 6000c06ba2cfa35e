package validation

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"
)

func TestSchemaValidator_BuiltinSchemas(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)
	assert.Equal(t, []string{SchemaTrackInteraction, SchemaTrainRequest}, sv.GetAvailableSchemas())

	tests := []struct {
		name   string
		schema string
		body   string
		valid  bool
		field  string
	}{
		{name: "valid interaction", schema: SchemaTrackInteraction, body: `{"user_id":"u1","product_id":"p1","interaction_type":"view"}`, valid: true},
		{name: "interaction with session", schema: SchemaTrackInteraction, body: `{"user_id":"u1","product_id":"p1","interaction_type":"purchase","session_id":"s1"}`, valid: true},
		{name: "unknown interaction type", schema: SchemaTrackInteraction, body: `{"user_id":"u1","product_id":"p1","interaction_type":"like"}`, valid: false, field: "interaction_type"},
		{name: "missing product", schema: SchemaTrackInteraction, body: `{"user_id":"u1","interaction_type":"view"}`, valid: false, field: "(root)"},
		{name: "empty user", schema: SchemaTrackInteraction, body: `{"user_id":"","product_id":"p1","interaction_type":"view"}`, valid: false, field: "user_id"},
		{name: "force training", schema: SchemaTrainRequest, body: `{"force":true}`, valid: true},
		{name: "force as string", schema: SchemaTrainRequest, body: `{"force":"yes"}`, valid: false, field: "force"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sv.Validate(tt.schema, tt.body)
			assert.Equal(t, tt.valid, result.Valid)
			if !tt.valid {
				require.NotEmpty(t, result.Errors)
				assert.Equal(t, tt.field, result.Errors[0].Field)
				assert.Contains(t, result.Details(), "fieldErrors")
			}
		})
	}
}

func TestSchemaValidator_StructsAndUnknownSchema(t *testing.T) {
	sv, err := NewSchemaValidator()
	require.NoError(t, err)

	result := sv.Validate(SchemaTrainRequest, map[string]bool{"force": false})
	assert.True(t, result.Valid)
	assert.Nil(t, result.Details())

	result = sv.Validate("content-item", `{}`)
	assert.False(t, result.Valid)
	assert.Equal(t, "SCHEMA_NOT_FOUND", result.Errors[0].Code)
}

func TestSchemaValidator_LoadSchemaFromFS(t *testing.T) {
	sv := &SchemaValidator{schemas: map[string]*gojsonschema.Schema{}}
	fsys := fstest.MapFS{
		"custom/limit.json": {Data: []byte(`{"type":"integer","minimum":1}`)},
		"custom/README.md":  {Data: []byte("ignored")},
	}

	require.NoError(t, sv.LoadSchemaFromFS(fsys, "custom"))
	assert.True(t, sv.SchemaExists("limit"))
	assert.False(t, sv.SchemaExists("README"))
	assert.False(t, sv.Validate("limit", "0").Valid)

	broken := fstest.MapFS{"bad/broken.json": {Data: []byte(`{"type":`)}}
	assert.Error(t, sv.LoadSchemaFromFS(broken, "bad"))
}
