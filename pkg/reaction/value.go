package reaction

import (
	"encoding/json"
	"fmt"
	"time"
)

type valueKind int

const (
	nullVal valueKind = iota
	numVal
	strVal
	boolVal
)

// value is the runtime value of an expression node.
type value struct {
	kind valueKind
	num  float64
	str  string
	b    bool
}

func numValue(n float64) value { return value{kind: numVal, num: n} }
func strValue(s string) value  { return value{kind: strVal, str: s} }
func boolValue(b bool) value   { return value{kind: boolVal, b: b} }

func (v value) kindName() string {
	switch v.kind {
	case numVal:
		return "number"
	case strVal:
		return "string"
	case boolVal:
		return "bool"
	}
	return "null"
}

func (v value) truthy() bool {
	switch v.kind {
	case numVal:
		return v.num != 0
	case strVal:
		return v.str != ""
	case boolVal:
		return v.b
	}
	return false
}

func (v value) equals(o value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case numVal:
		return v.num == o.num
	case strVal:
		return v.str == o.str
	case boolVal:
		return v.b == o.b
	}
	return true // both null
}

// compare orders two values of the same kind. Mixed kinds are an
// evaluation fault, not false.
func (v value) compare(o value) (int, error) {
	if v.kind == numVal && o.kind == numVal {
		switch {
		case v.num < o.num:
			return -1, nil
		case v.num > o.num:
			return 1, nil
		}
		return 0, nil
	}
	if v.kind == strVal && o.kind == strVal {
		switch {
		case v.str < o.str:
			return -1, nil
		case v.str > o.str:
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: cannot order %s and %s", ErrEval, v.kindName(), o.kindName())
}

// toValue converts a widget data field into an expression value.
func toValue(raw any) (value, error) {
	switch t := raw.(type) {
	case nil:
		return value{kind: nullVal}, nil
	case bool:
		return boolValue(t), nil
	case string:
		return strValue(t), nil
	case float64:
		return numValue(t), nil
	case float32:
		return numValue(float64(t)), nil
	case int:
		return numValue(float64(t)), nil
	case int32:
		return numValue(float64(t)), nil
	case int64:
		return numValue(float64(t)), nil
	case uint:
		return numValue(float64(t)), nil
	case time.Duration:
		return numValue(float64(t)), nil
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return value{}, fmt.Errorf("%w: bad number %q", ErrEval, t.String())
		}
		return numValue(n), nil
	}
	return value{}, fmt.Errorf("%w: unsupported field type %T", ErrEval, raw)
}
