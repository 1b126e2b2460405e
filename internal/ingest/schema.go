// Package ingest loads and validates roar-tracer's two JSON outputs
// against strict schemas, then dedupes and normalizes them into the
// shapes the rest of roar consumes (spec §4.5).
package ingest

import (
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/roar-ml/roar/internal/rerr"
)

// tracerSchemaJSON is the strict schema for the primary tracer log:
// opened_files[], read_files[], written_files[], processes[], start_time,
// end_time (spec §4.5).
const tracerSchemaJSON = `{
  "type": "object",
  "additionalProperties": true,
  "required": ["opened_files", "read_files", "written_files", "processes", "start_time", "end_time"],
  "properties": {
    "opened_files": {"type": "array", "items": {"type": "string"}},
    "read_files": {"type": "array", "items": {"type": "string"}},
    "written_files": {"type": "array", "items": {"type": "string"}},
    "processes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["pid", "parent_pid", "command"],
        "properties": {
          "pid": {"type": "integer"},
          "parent_pid": {"type": "integer"},
          "command": {"type": "array", "items": {"type": "string"}},
          "env": {"type": "object"}
        }
      }
    },
    "start_time": {"type": "number"},
    "end_time": {"type": "number"}
  }
}`

// sidecarSchemaJSON is the strict schema for the optional Python sidecar
// log (spec §4.5); the whole file being absent or unparseable is
// tolerated by the caller, not by this schema.
const sidecarSchemaJSON = `{
  "type": "object",
  "additionalProperties": true,
  "properties": {
    "modules_files": {"type": "array", "items": {"type": "string"}},
    "env_reads": {"type": "object"},
    "sys_prefix": {"type": "string"},
    "sys_base_prefix": {"type": "string"},
    "roar_inject_dir": {"type": "string"},
    "shared_libs": {"type": "array", "items": {"type": "string"}},
    "used_packages": {"type": "object"},
    "installed_packages": {"type": "object"}
  }
}`

func compileSchema(name, schemaJSON string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile(name)
}

var tracerSchema, sidecarSchema *jsonschema.Schema

func init() {
	var err error
	tracerSchema, err = compileSchema("tracer.json", tracerSchemaJSON)
	if err != nil {
		panic("ingest: invalid tracer schema: " + err.Error())
	}
	sidecarSchema, err = compileSchema("sidecar.json", sidecarSchemaJSON)
	if err != nil {
		panic("ingest: invalid sidecar schema: " + err.Error())
	}
}

func validateAgainst(schema *jsonschema.Schema, raw []byte) (any, error) {
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, rerr.Wrap(rerr.KindTracer, "decode JSON", err)
	}
	if err := schema.ValidateInterface(decoded); err != nil {
		return nil, rerr.Wrap(rerr.KindTracer, "schema validation failed", err)
	}
	return decoded, nil
}
