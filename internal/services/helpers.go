package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// decodeJSONColumn decodes a JSON database column.
func decodeJSONColumn(raw datatypes.JSON, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty json column")
	}
	return json.Unmarshal(raw, v)
}

// decodeInto re-encodes an extracted map into a typed struct.
func decodeInto(m map[string]any, v any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// stripQuotes removes one layer of surrounding quotes the model sometimes
// adds to single-line answers.
func stripQuotes(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.TrimPrefix(s, "«")
	s = strings.TrimSuffix(s, "»")
	s = strings.TrimPrefix(s, "“")
	s = strings.TrimSuffix(s, "”")
	return strings.TrimSpace(s)
}
