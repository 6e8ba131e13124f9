package config

import (
	"fmt"
	"math/big"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
)

// CtyToAny converts a cty.Value to plain Go values: string, bool, int64 or
// float64, []any and map[string]any. The result is suitable for
// sioclient.FromAny.
func CtyToAny(value cty.Value) (any, error) {
	if !value.IsKnown() {
		return nil, fmt.Errorf("value of type %s is not known", value.Type().FriendlyName())
	}

	ty := value.Type()

	switch {
	case value.IsNull():
		return nil, nil
	case ty == cty.String:
		return value.AsString(), nil
	case ty == cty.Bool:
		return value.True(), nil
	case ty == cty.Number:
		bf := value.AsBigFloat()
		if i, accuracy := bf.Int64(); accuracy == big.Exact {
			return i, nil
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsObjectType() || ty.IsMapType():
		result := make(map[string]any)
		it := value.ElementIterator()
		for it.Next() {
			key, elem := it.Element()
			converted, err := CtyToAny(elem)
			if err != nil {
				return nil, fmt.Errorf("failed to convert attribute %s: %w", key.AsString(), err)
			}
			result[key.AsString()] = converted
		}
		return result, nil
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		result := make([]any, 0, value.LengthInt())
		it := value.ElementIterator()
		for it.Next() {
			_, elem := it.Element()
			converted, err := CtyToAny(elem)
			if err != nil {
				return nil, fmt.Errorf("failed to convert element: %w", err)
			}
			result = append(result, converted)
		}
		return result, nil
	default:
		var result any
		if err := gocty.FromCtyValue(value, &result); err != nil {
			return nil, fmt.Errorf("failed to convert cty value of type %s: %w", ty.FriendlyName(), err)
		}
		return result, nil
	}
}
