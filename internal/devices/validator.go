package devices

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/KevinKickass/OpenBlenderCore/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/io-profile-v1.json
var ioProfileSchemaJSON string

type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	if err := compiler.AddResource("io-profile-v1.json",
		strings.NewReader(ioProfileSchemaJSON)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile("io-profile-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

func (v *Validator) ValidateProfile(data []byte) error {
	var profile interface{}
	if err := json.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := v.schema.Validate(profile); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}

// ValidateBindings checks that every binding names a register of the profile.
func (v *Validator) ValidateBindings(profile *types.IOProfile) error {
	names := make(map[string]bool, len(profile.Registers))
	for _, reg := range profile.Registers {
		if names[reg.Name] {
			return fmt.Errorf("duplicate register name: %s", reg.Name)
		}
		names[reg.Name] = true
	}

	for logical, name := range profile.Bindings {
		if !names[name] {
			return fmt.Errorf("binding %s refers to unknown register %s", logical, name)
		}
	}
	return nil
}
