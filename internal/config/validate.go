package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed scenario.cue
var scenarioSchema []byte

// Schema returns the built-in CUE schema for scenario files.
func Schema() []byte {
	return append([]byte(nil), scenarioSchema...)
}

// ValidateSchema checks YAML scenario bytes against the built-in schema.
func ValidateSchema(data []byte) error {
	return ValidateWithSchema(data, scenarioSchema)
}

// ValidateWithCue validates a YAML scenario file using a CUE schema file.
// The schema must define #Scenario.
func ValidateWithCue(configFile, cueFile string) error {
	yamlBytes, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("cannot read YAML config: %w", err)
	}
	schemaBytes, err := os.ReadFile(cueFile)
	if err != nil {
		return fmt.Errorf("cannot read CUE schema: %w", err)
	}
	return ValidateWithSchema(yamlBytes, schemaBytes)
}

// ValidateWithSchema unifies the YAML document with #Scenario from schema
// and requires the result to be concrete.
func ValidateWithSchema(data, schema []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: cannot unmarshal YAML: %v", ErrInvalidScenario, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schemaVal := ctx.CompileBytes(schema, cue.Filename("scenario.cue"))
	if err := schemaVal.Err(); err != nil {
		return fmt.Errorf("compile CUE schema: %w", err)
	}
	def := schemaVal.LookupPath(cue.ParsePath("#Scenario"))
	if !def.Exists() {
		return fmt.Errorf("CUE schema does not define #Scenario")
	}

	final := def.Unify(ctx.Encode(doc))
	if err := final.Err(); err != nil {
		return fmt.Errorf("%w: schema unify failed: %v", ErrInvalidScenario, err)
	}
	if err := final.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: schema validation failed: %v", ErrInvalidScenario, err)
	}
	return nil
}
