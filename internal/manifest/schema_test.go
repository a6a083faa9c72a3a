// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Loadstone Contributors

package manifest_test

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loadstone/loadstone/internal/manifest"
)

func TestGenerateSchema(t *testing.T) {
	data, err := manifest.GenerateSchema()
	require.NoError(t, err)

	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))

	assert.Equal(t, manifest.GetSchemaID(), schema["$id"])
	assert.Equal(t, "Loadstone Plugin Manifest", schema["title"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "id")
	assert.Contains(t, props, "version")
	assert.Contains(t, props, "abi-version")
	assert.Contains(t, props, "library")
}

func TestValidateSchema_Valid(t *testing.T) {
	manifest.ResetSchemaCache()
	err := manifest.ValidateSchema([]byte(validManifest()))
	assert.NoError(t, err)
}

func TestValidateSchema_MissingRequired(t *testing.T) {
	err := manifest.ValidateSchema([]byte("id: vendor.sample\n"))
	assert.Error(t, err)
}

func TestValidateSchema_WrongType(t *testing.T) {
	data := `
id: vendor.sample
version: 1.0.0
abi-version: "1.0.0"
library: sample
reentrant: "yes-please"
`
	err := manifest.ValidateSchema([]byte(data))
	assert.Error(t, err)
}

func TestValidateSchema_Empty(t *testing.T) {
	err := manifest.ValidateSchema(nil)
	assert.Error(t, err)
}

func TestFormatSchemaError(t *testing.T) {
	assert.Empty(t, manifest.FormatSchemaError(nil))

	err := manifest.ValidateSchema([]byte("id: 42\n"))
	require.Error(t, err)
	assert.NotContains(t, manifest.FormatSchemaError(err), "schema validation failed:")
}

func TestValidateSchema_ConcurrentFirstCompile(t *testing.T) {
	manifest.ResetSchemaCache()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, manifest.ValidateSchema([]byte(validManifest())))
		}()
	}
	wg.Wait()
}
