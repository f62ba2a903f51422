package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// profileSchema constrains a device profile file: the buffer geometry the
// driver was synthesized with. Validating up front turns a malformed
// profile into a load error instead of a corrupted transfer.
const profileSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["data_chunks", "frontier_chunks", "operators"],
  "properties": {
    "name":            {"type": "string"},
    "data_chunks":     {"type": "integer", "minimum": 1},
    "output_chunks":   {"type": "integer", "minimum": 1},
    "frontier_chunks": {"type": "integer", "minimum": 1},
    "operators":       {"type": "integer", "minimum": 1}
  },
  "additionalProperties": false
}`

// DeviceProfile describes the geometry a device was synthesized with.
type DeviceProfile struct {
	Name           string `json:"name"`
	DataChunks     int    `json:"data_chunks"`
	OutputChunks   int    `json:"output_chunks"`
	FrontierChunks int    `json:"frontier_chunks"`
	Operators      int    `json:"operators"`
}

// LoadDeviceProfile reads and validates a device profile file.
func LoadDeviceProfile(path string) (DeviceProfile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return DeviceProfile{}, fmt.Errorf("config: read device profile: %w", err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(profileSchema),
		gojsonschema.NewBytesLoader(raw),
	)
	if err != nil {
		return DeviceProfile{}, fmt.Errorf("config: validate device profile: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, issue := range result.Errors() {
			details = append(details, issue.String())
		}

		return DeviceProfile{}, fmt.Errorf("config: device profile %s invalid: %s",
			path, strings.Join(details, "; "))
	}

	var profile DeviceProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return DeviceProfile{}, fmt.Errorf("config: decode device profile: %w", err)
	}

	if profile.OutputChunks == 0 {
		profile.OutputChunks = profile.DataChunks
	}

	return profile, nil
}
