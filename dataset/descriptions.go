package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// descriptionsSchema accepts a JSON object keyed by task or contrast name, or
// a list of entries.  Entries are free-form but can't be null.
const descriptionsSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "Contrast descriptions",
	"type": ["object", "array"],
	"additionalProperties": {"type": ["string", "number", "object", "array", "boolean"]},
	"items": {"type": ["string", "object", "array"]}
}`

var compiledDescriptionsSchema = jsonschema.MustCompileString("descriptions.json", descriptionsSchema)

// ReadDescriptions reads and validates a contrast descriptions file, returning
// its compacted JSON content.
func ReadDescriptions(path string) (json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read descriptions: %v", err)
	}
	return ParseDescriptions(data)
}

// ParseDescriptions validates contrast descriptions.
func ParseDescriptions(data []byte) (json.RawMessage, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("descriptions are not valid JSON: %v", err)
	}
	if err := compiledDescriptionsSchema.Validate(v); err != nil {
		return nil, fmt.Errorf("bad descriptions: %v", err)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return nil, err
	}
	return json.RawMessage(buf.Bytes()), nil
}
