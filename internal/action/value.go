package action

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Value is a serialized argument of a RecordedAction. Both halves are JSON
// produced by go-cty, so a build and a runtime agree on the representation
// without sharing any Go object.
type Value struct {
	Type  json.RawMessage `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Encode converts plain data into a Value. Accepted inputs are booleans,
// numbers, strings, slices, string-keyed maps, structs whose exported
// fields all carry `cty` tags, and wholly known cty.Values. Anything that
// could hold a live reference (pointers, channels, functions, interfaces) is
// rejected.
func Encode(v any) (Value, error) {
	var cv cty.Value
	switch tv := v.(type) {
	case nil:
		return Value{}, errors.New("nil has no serializable type")
	case cty.Value:
		if tv.IsMarked() {
			return Value{}, errors.New("marked cty values cannot be serialized")
		}
		if !tv.IsWhollyKnown() {
			return Value{}, errors.New("value is not wholly known")
		}
		cv = tv
	default:
		if err := checkPlain(reflect.TypeOf(v), ""); err != nil {
			return Value{}, err
		}
		if err := checkNaN(reflect.ValueOf(v), ""); err != nil {
			return Value{}, err
		}
		ty, err := gocty.ImpliedType(v)
		if err != nil {
			return Value{}, fmt.Errorf("cannot imply type of %T: %w", v, err)
		}
		cv, err = gocty.ToCtyValue(v, ty)
		if err != nil {
			return Value{}, fmt.Errorf("cannot convert %T: %w", v, err)
		}
	}

	typeJSON, err := ctyjson.MarshalType(cv.Type())
	if err != nil {
		return Value{}, fmt.Errorf("cannot encode type %s: %w", cv.Type().FriendlyName(), err)
	}
	valueJSON, err := ctyjson.Marshal(cv, cv.Type())
	if err != nil {
		return Value{}, fmt.Errorf("cannot encode value: %w", err)
	}
	return Value{Type: typeJSON, Value: valueJSON}, nil
}

// Decode restores the cty.Value held by v.
func (v Value) Decode() (cty.Value, error) {
	ty, err := ctyjson.UnmarshalType(v.Type)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decode type: %w", err)
	}
	val, err := ctyjson.Unmarshal(v.Value, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("decode value: %w", err)
	}
	return val, nil
}

// Equal compares the serialized forms.
func (v Value) Equal(o Value) bool {
	return bytes.Equal(v.Type, o.Type) && bytes.Equal(v.Value, o.Value)
}

func (v Value) String() string {
	return string(v.Value)
}

// checkPlain walks t and rejects anything gocty would either refuse or
// silently flatten (untagged struct fields, pointers).
func checkPlain(t reflect.Type, path string) error {
	at := func() string {
		if path == "" {
			return t.String()
		}
		return fmt.Sprintf("%s (%s)", path, t)
	}

	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Slice:
		return checkPlain(t.Elem(), path+"[]")
	case reflect.Array:
		return fmt.Errorf("%s: fixed-size arrays are not supported, use a slice", at())
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return fmt.Errorf("%s: map keys must be strings", at())
		}
		return checkPlain(t.Elem(), path+"[key]")
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			fieldPath := f.Name
			if path != "" {
				fieldPath = path + "." + f.Name
			}
			if !f.IsExported() {
				return fmt.Errorf("%s: unexported field %s", at(), f.Name)
			}
			if f.Tag.Get("cty") == "" {
				return fmt.Errorf("%s: field %s has no cty tag", at(), f.Name)
			}
			if err := checkPlain(f.Type, fieldPath); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%s: %s values are live references, not data", at(), t.Kind())
	}
}

// checkNaN rejects NaN anywhere inside v. cty numbers are big.Floats, which
// have no NaN, and gocty panics on one.
func checkNaN(v reflect.Value, path string) error {
	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		if math.IsNaN(v.Float()) {
			if path == "" {
				path = v.Type().String()
			}
			return fmt.Errorf("%s: NaN cannot be serialized", path)
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			if err := checkNaN(v.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			if err := checkNaN(iter.Value(), fmt.Sprintf("%s[%q]", path, iter.Key().String())); err != nil {
				return err
			}
		}
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			name := v.Type().Field(i).Name
			if path != "" {
				name = path + "." + name
			}
			if err := checkNaN(v.Field(i), name); err != nil {
				return err
			}
		}
	}
	return nil
}
