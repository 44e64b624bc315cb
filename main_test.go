package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olehluchkiv/gosignature/pkg/signature"
)

const shapesSchema = `
types:
  - name: geo.Shape
    abstract: true
    methods:
      - name: area
        visibility: public
        abstract: true
        returns: float
  - name: geo.Point
    final: true
    readonly: true
    constructor:
      parameters:
        - name: x
          type: int
          promoted: true
        - name: y
          type: int
          promoted: true
          default: 0
    properties:
      - name: x
        type: int
        visibility: public
        readonly: true
      - name: y
        type: int
        visibility: public
        readonly: true
`

// run executes the CLI with logging reduced to errors on stderr.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-file=", "--log-level=error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeSchema(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shapes.yaml")
	require.NoError(t, os.WriteFile(path, []byte(shapesSchema), 0o644))
	return path
}

func TestInspect_Packages(t *testing.T) {
	out, err := run(t, "inspect", "testdata/01_struct_basics", ".Order")
	require.NoError(t, err)

	assert.Contains(t, out, "example.com/testmod.Order [final]")
	assert.Contains(t, out, "Constructor:")
	assert.Contains(t, out, "public Placed(): time.Time")
}

func TestInspect_RequiresType(t *testing.T) {
	_, err := run(t, "inspect", "testdata/01_struct_basics")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one type")
}

func TestInspect_UnknownType(t *testing.T) {
	_, err := run(t, "inspect", "testdata/01_struct_basics", ".Nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, signature.ErrTypeNotFound)
}

func TestInspect_SchemaJSON(t *testing.T) {
	out, err := run(t, "inspect", "--schema", writeSchema(t), "--json", "geo.Point")
	require.NoError(t, err)

	var sig map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &sig))
	assert.Equal(t, "geo.Point", sig["objectName"])
	assert.Equal(t, true, sig["isReadOnly"])
	assert.Len(t, sig["constructorArguments"], 2)
}

func TestAbstract_Schema(t *testing.T) {
	out, err := run(t, "abstract", "--schema", writeSchema(t), "geo.Shape", "geo.Point")
	require.NoError(t, err)
	assert.Equal(t, "geo.Shape: true\ngeo.Point: false\n", out)
}

func TestTypes_Schema(t *testing.T) {
	out, err := run(t, "types", "--schema", writeSchema(t))
	require.NoError(t, err)
	assert.Equal(t, "geo.Point\ngeo.Shape\n", out)
}

func TestDiagram_OutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shapes.mmd")
	out, err := run(t, "diagram", "--schema", writeSchema(t), "-o", path, "geo.Shape", "geo.Point")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote diagram to "+path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	mermaid := string(data)
	assert.Contains(t, mermaid, "%%{init:")
	assert.Contains(t, mermaid, "classDiagram")
	assert.Contains(t, mermaid, "<<interface>>")
	assert.Contains(t, mermaid, "geo_Point")
}

func TestProviderFlagOverridesSchema(t *testing.T) {
	_, err := run(t, "types", "--schema", writeSchema(t), "--provider", "packages")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path or GitHub URL")
}

func TestInvalidConfig(t *testing.T) {
	_, err := run(t, "types", "--schema", writeSchema(t), "--untyped-properties", "maybe")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "untyped_properties")
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	schema := writeSchema(t)

	_, err := run(t, "inspect", "--schema", schema, "--redis-addr", mr.Addr(), "--cache-ttl", "1h", "geo.Point")
	require.NoError(t, err)
	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Regexp(t, `^gosignature:`, keys[0])

	out, err := run(t, "cache", "clear", "--redis-addr", mr.Addr())
	require.NoError(t, err)
	assert.Contains(t, out, "Cache cleared")
	assert.Empty(t, mr.Keys())
}

func TestCacheClear_NoStore(t *testing.T) {
	out, err := run(t, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "No shared cache available")
}
