package device

import (
	"encoding/json"
	"fmt"
	"math"
)

const maxStateKeys = 100

// MergeState returns current with every key of patch applied on top.
// Keys absent from patch keep their current value; nested objects are
// replaced, not merged. Neither argument is modified.
func MergeState(current, patch State) State {
	merged := make(State, len(current)+len(patch))
	for k, v := range current {
		merged[k] = deepCopyValue(v)
	}
	for k, v := range patch {
		merged[k] = deepCopyValue(v)
	}
	return merged
}

// ValidateState checks that a state patch is a JSON object of
// JSON-representable values.
func ValidateState(s State) error {
	if s == nil {
		return fmt.Errorf("%w: state must be an object", ErrInvalidState)
	}
	if len(s) > maxStateKeys {
		return fmt.Errorf("%w: too many keys (%d, max %d)", ErrInvalidState, len(s), maxStateKeys)
	}
	for k, v := range s {
		if k == "" {
			return fmt.Errorf("%w: empty key", ErrInvalidState)
		}
		if err := validateJSONValue(v); err != nil {
			return fmt.Errorf("%w: key %q: %w", ErrInvalidState, k, err)
		}
	}
	return nil
}

func validateJSONValue(v any) error {
	switch val := v.(type) {
	case nil, bool, string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return nil
	case float64:
		return checkFinite(val)
	case float32:
		return checkFinite(float64(val))
	case map[string]any:
		for _, elem := range val {
			if err := validateJSONValue(elem); err != nil {
				return err
			}
		}
		return nil
	case State:
		return validateJSONValue(map[string]any(val))
	case []any:
		for _, elem := range val {
			if err := validateJSONValue(elem); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}

func checkFinite(f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("non-finite number")
	}
	return nil
}
