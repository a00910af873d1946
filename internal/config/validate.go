package config

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*
var schemaFiles embed.FS

var configSchema *jsonschema.Schema

func init() {
	raw, err := schemaFiles.ReadFile("schemas/config.schema.json")
	if err != nil {
		panic(fmt.Sprintf("config: embedded schema missing: %v", err))
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		panic(fmt.Sprintf("config: embedded schema invalid JSON: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("config.schema.json", v); err != nil {
		panic(fmt.Sprintf("config: embedded schema invalid: %v", err))
	}
	configSchema = c.MustCompile("config.schema.json")
}

func validate(raw []byte) error {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	return configSchema.Validate(v)
}
