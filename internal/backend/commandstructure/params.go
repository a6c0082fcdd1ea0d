package commandstructure

import (
	"fmt"
	"strings"
)

// GetStringParam extracts a trimmed string parameter from the params map
func GetStringParam(params map[string]any, key string, defaultValue string) string {
	if val, ok := params[key]; ok {
		if strVal, ok := val.(string); ok && strings.TrimSpace(strVal) != "" {
			return strings.TrimSpace(strVal)
		}
	}
	return defaultValue
}

// GetIntParam extracts an int parameter; YAML and JSON decoders hand out
// int, int64 or float64 depending on the source.
func GetIntParam(params map[string]any, key string, defaultValue int) int {
	if val, ok := params[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return defaultValue
}

// ValidateRequiredParams checks that all required parameters are present
func ValidateRequiredParams(params map[string]any, required []string) error {
	for _, key := range required {
		if _, ok := params[key]; !ok {
			return fmt.Errorf("missing required parameter: %s", key)
		}
	}
	return nil
}
