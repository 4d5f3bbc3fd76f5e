package paidquiz

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Metadata is free-form transaction metadata restricted to a closed set of
// value shapes: strings, booleans, numbers, timestamps and nested maps.
type Metadata map[string]any

// Normalize validates m and converts it to its stored form. Timestamps are
// stored as RFC 3339 strings and decimals as their exact string form.
func (m Metadata) Normalize() (datatypes.JSONMap, error) {
	if m == nil {
		return nil, nil
	}
	out, err := normalizeMap(m, "")
	if err != nil {
		return nil, newError(ErrInvalidRequest, "metadata", err)
	}
	return datatypes.JSONMap(out), nil
}

func normalizeMap(m map[string]any, path string) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for key, value := range m {
		if key == "" {
			return nil, fmt.Errorf("empty key under %q", path)
		}
		normalized, err := normalizeValue(value, path+"."+key)
		if err != nil {
			return nil, err
		}
		out[key] = normalized
	}
	return out, nil
}

func normalizeValue(value any, path string) (any, error) {
	switch v := value.(type) {
	case string, bool, int, int32, int64, uint, uint32, uint64:
		return v, nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("non-finite number at %s", path)
		}
		return v, nil
	case float32:
		if f := float64(v); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("non-finite number at %s", path)
		}
		return v, nil
	case decimal.Decimal:
		return v.String(), nil
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	case Metadata:
		return normalizeMap(v, path)
	case map[string]any:
		return normalizeMap(v, path)
	default:
		return nil, fmt.Errorf("unsupported value %T at %s", value, path)
	}
}

// mergeMetadata returns stored metadata with extra applied on top
func mergeMetadata(stored datatypes.JSONMap, extra datatypes.JSONMap) datatypes.JSONMap {
	if len(stored) == 0 && len(extra) == 0 {
		return stored
	}
	out := make(datatypes.JSONMap, len(stored)+len(extra))
	for k, v := range stored {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
