package jsonutils

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// FromMap encodes a metadata map for a jsonb column. nil becomes {}.
func FromMap(m map[string]any) datatypes.JSON {
	if len(m) == 0 {
		return datatypes.JSON("{}")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(b)
}

// ToMap decodes a jsonb column. Empty or malformed input gives an empty map.
func ToMap(j datatypes.JSON) map[string]any {
	out := map[string]any{}
	if len(j) == 0 {
		return out
	}
	if err := json.Unmarshal(j, &out); err != nil {
		return map[string]any{}
	}
	return out
}
