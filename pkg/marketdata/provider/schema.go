package provider

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// ToJSONSchema reflects a config struct into a JSON schema string, used by
// the provider registries to describe download and stream configs.
func ToJSONSchema(config any) (string, error) {
	reflector := new(jsonschema.Reflector)
	reflector.DoNotReference = true

	schema := reflector.Reflect(config)

	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
