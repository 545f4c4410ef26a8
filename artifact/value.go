package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
)

// ErrNotJSON is returned by ValidateValue for values that have no plain JSON
// representation.
var ErrNotJSON = errors.New("value is not plain JSON")

var numberType = reflect.TypeOf(json.Number(""))

// ValidateValue reports whether v is built only from JSON primitives: nil,
// booleans, strings, finite numbers, slices/arrays and maps with string keys.
// Byte slices, structs, channels, functions and NaN/Inf floats are rejected.
// The error names the offending path, for example "$.findings[2].raw".
func ValidateValue(v any) error {
	return validate(reflect.ValueOf(v), "$")
}

func validate(rv reflect.Value, path string) error {
	if !rv.IsValid() {
		return nil
	}
	if rv.Type() == numberType {
		return nil
	}

	switch rv.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return nil
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: %s: non-finite number", ErrNotJSON, path)
		}
		return nil
	case reflect.Interface, reflect.Pointer:
		if rv.IsNil() {
			return nil
		}
		return validate(rv.Elem(), path)
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return fmt.Errorf("%w: %s: binary data", ErrNotJSON, path)
		}
		for i := 0; i < rv.Len(); i++ {
			if err := validate(rv.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: %s: map key %s", ErrNotJSON, path, rv.Type().Key())
		}
		iter := rv.MapRange()
		for iter.Next() {
			if err := validate(iter.Value(), path+"."+iter.Key().String()); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: %s: unsupported type %s", ErrNotJSON, path, rv.Type())
	}
}
