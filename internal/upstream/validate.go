package upstream

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*
var schemaFiles embed.FS

func loadSchema(name string) (compiled []byte, err error) {
	return schemaFiles.ReadFile("schemas/" + name)
}

var entrySchema *jsonschema.Schema

func init() {
	raw, err := loadSchema("upstream-entry.schema.json")
	if err != nil {
		panic(fmt.Sprintf("upstream: embedded schema missing: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("upstream-entry.schema.json", mustJSON(raw)); err != nil {
		panic(fmt.Sprintf("upstream: embedded schema invalid: %v", err))
	}
	entrySchema = c.MustCompile("upstream-entry.schema.json")
}

func mustJSON(raw []byte) interface{} {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		panic(err)
	}
	return v
}

// validateEntryJSON validates raw against the upstream-entry schema. It is
// used only as a parse-time gate in Registry.Load: a file that fails
// validation is logged and skipped at load time, not fatal.
func validateEntryJSON(raw []byte) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return entrySchema.Validate(v)
}
