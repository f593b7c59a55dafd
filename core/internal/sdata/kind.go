package sdata

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/dosco/mongodoc/core/internal/errs"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Kind is the declared type of a field.
type Kind int

const (
	KindAny Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindObjectID
	KindTime
	KindMap
	KindList
)

var kindNames = [...]string{
	KindAny:      "any",
	KindString:   "string",
	KindInt:      "int",
	KindFloat:    "float",
	KindBool:     "bool",
	KindObjectID: "objectid",
	KindTime:     "time",
	KindMap:      "map",
	KindList:     "list",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a type name used in schema files to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return KindAny, nil
	case "string", "str", "text":
		return KindString, nil
	case "int", "integer", "long":
		return KindInt, nil
	case "float", "double", "number":
		return KindFloat, nil
	case "bool", "boolean":
		return KindBool, nil
	case "objectid", "id":
		return KindObjectID, nil
	case "time", "datetime", "date":
		return KindTime, nil
	case "map", "object", "dict":
		return KindMap, nil
	case "list", "array":
		return KindList, nil
	}
	return KindAny, fmt.Errorf("unknown field type: %s", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) (err error) {
	*k, err = ParseKind(string(b))
	return
}

// Coerce converts v to the Go representation of k. Nil passes through.
func (k Kind) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch k {
	case KindString:
		return cast.ToStringE(v)
	case KindInt:
		if _, ok := v.(bool); ok {
			return nil, fmt.Errorf("unable to cast %#v of type %T to int", v, v)
		}
		return cast.ToIntE(v)
	case KindFloat:
		return cast.ToFloat64E(v)
	case KindBool:
		return cast.ToBoolE(v)
	case KindTime:
		return cast.ToTimeE(v)
	case KindObjectID:
		return toObjectID(v)
	case KindMap:
		return toMap(v)
	case KindList:
		if list, ok := toList(v); ok {
			return list, nil
		}
		return nil, fmt.Errorf("unable to cast %#v of type %T to list", v, v)
	}
	return v, nil
}

func toObjectID(v any) (any, error) {
	switch id := v.(type) {
	case bson.ObjectID:
		return id, nil
	case [12]byte:
		return bson.ObjectID(id), nil
	case string:
		return bson.ObjectIDFromHex(id)
	}
	return nil, fmt.Errorf("unable to cast %#v of type %T to objectid", v, v)
}

func toMap(v any) (any, error) {
	switch m := v.(type) {
	case bson.M:
		return m, nil
	case bson.D:
		out := make(bson.M, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out, nil
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, err
	}
	return bson.M(m), nil
}

// toList returns the elements of any slice or array value. Byte slices and
// byte arrays (object ids included) are not lists.
func toList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	if list, ok := v.(bson.A); ok {
		return list, true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
	default:
		return nil, false
	}

	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// ToList is toList for callers outside the package.
func ToList(v any) ([]any, bool) {
	return toList(v)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

func (f FieldSpec) validate(v any) error {
	if f.Validate == "" {
		return nil
	}
	if v == nil {
		if f.required() {
			return errs.New(errs.ErrValidation, f.Name, "field required")
		}
		return nil
	}
	if err := validatorInstance().Var(v, f.Validate); err != nil {
		return errs.Wrap(errs.ErrValidation, f.Name, err)
	}
	return nil
}

func (f FieldSpec) required() bool {
	for _, t := range strings.Split(f.Validate, ",") {
		if strings.TrimSpace(t) == "required" {
			return true
		}
	}
	return false
}

// checkValidateTag catches malformed validate tags when the schema is built
// instead of on the first query. The validator panics on unknown tags.
func checkValidateTag(f FieldSpec) (err error) {
	if f.Validate == "" {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("field %s: bad validate tag %q: %v", f.Name, f.Validate, r)
		}
	}()
	_ = validatorInstance().Var(zeroOf(f.Kind), f.Validate)
	return nil
}

func zeroOf(k Kind) any {
	switch k {
	case KindInt:
		return 0
	case KindFloat:
		return 0.0
	case KindBool:
		return false
	case KindString:
		return ""
	}
	return ""
}
