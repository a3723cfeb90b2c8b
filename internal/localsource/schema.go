package localsource

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentworkforce/botsync/internal/botsync"
)

const flowSchemaURL = "https://botsync.invalid/schemas/flow.json"

// Flows are otherwise free-form; only a usable name is required.
const flowSchemaJSON = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1}
	}
}`

var flowSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(flowSchemaJSON))
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(flowSchemaURL, doc); err != nil {
		return nil, err
	}
	return compiler.Compile(flowSchemaURL)
})

// decodeFlow validates data against the flow schema and parses it.
func decodeFlow(data []byte) (botsync.Flow, error) {
	schema, err := flowSchema()
	if err != nil {
		return nil, fmt.Errorf("compile flow schema: %w", err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(instance); err != nil {
		return nil, err
	}
	return botsync.ParseFlow(data)
}
