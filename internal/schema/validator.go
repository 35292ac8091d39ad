// Package schema validates tool argument payloads against a bounded
// JSON-Schema subset with closed-object semantics at every nesting level.
package schema

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MaxDepth bounds schema/payload nesting. Exceeding it is a
	// validation failure, never unbounded recursion.
	MaxDepth = 10
	// MaxItems caps array length unless the schema declares a lower maxItems.
	MaxItems = 500
	// MaxProperties caps the number of declared properties per object node.
	MaxProperties = 50
)

// Violation describes a single payload failure with its location.
type Violation struct {
	Path  string `json:"path"`  // e.g. "root.files[2].name"
	Cause string `json:"cause"` // human-readable reason
}

func (v Violation) String() string {
	return v.Path + ": " + v.Cause
}

// ErrBadSchema is wrapped by all malformed-schema errors. A bad schema
// is a registration-time bug, distinct from payload violations.
var ErrBadSchema = errors.New("malformed schema")

// CheckSchema verifies that a schema is usable: closed-object semantics
// declared at every object node, depth within bounds, known types only.
// Called once at tool registration so routing never sees a bad schema.
func CheckSchema(s map[string]any) error {
	return checkSchemaNode(s, "root", 0)
}

func checkSchemaNode(s map[string]any, path string, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("%w: depth exceeds %d at %s", ErrBadSchema, MaxDepth, path)
	}

	typ, _ := s["type"].(string)
	if typ != "" && !knownType(typ) {
		return fmt.Errorf("%w: unknown type %q at %s", ErrBadSchema, typ, path)
	}

	if typ == "object" {
		if ap, ok := s["additionalProperties"].(bool); !ok || ap {
			return fmt.Errorf("%w: object at %s must declare additionalProperties: false", ErrBadSchema, path)
		}
		props, _ := s["properties"].(map[string]any)
		if len(props) > MaxProperties {
			return fmt.Errorf("%w: %d properties at %s exceeds cap %d", ErrBadSchema, len(props), path, MaxProperties)
		}
		for name, raw := range props {
			child, ok := raw.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: property %q at %s is not a schema object", ErrBadSchema, name, path)
			}
			if err := checkSchemaNode(child, path+"."+name, depth+1); err != nil {
				return err
			}
		}
	}

	if typ == "array" {
		if items, ok := s["items"].(map[string]any); ok {
			if err := checkSchemaNode(items, path+"[]", depth+1); err != nil {
				return err
			}
		}
	}

	return nil
}

func knownType(t string) bool {
	switch t {
	case "string", "integer", "number", "boolean", "array", "object", "null":
		return true
	}
	return false
}

// Validate checks payload against schema and returns all violations.
// An empty slice means the payload is valid. The schema is assumed to
// have passed CheckSchema; a schema problem discovered here is still
// reported as a violation rather than a panic.
func Validate(payload map[string]any, s map[string]any) []Violation {
	var violations []Violation
	validateValue(payload, s, "root", 0, &violations)
	return violations
}

func validateValue(value any, s map[string]any, path string, depth int, out *[]Violation) {
	if depth > MaxDepth {
		*out = append(*out, Violation{Path: path, Cause: fmt.Sprintf("nesting depth exceeds %d", MaxDepth)})
		return
	}

	if typ, ok := s["type"].(string); ok {
		if !checkType(value, typ) {
			*out = append(*out, Violation{
				Path:  path,
				Cause: fmt.Sprintf("expected %s, got %s", typ, typeName(value)),
			})
			return
		}
	}

	if enum, ok := s["enum"].([]any); ok {
		if !enumContains(enum, value) {
			*out = append(*out, Violation{Path: path, Cause: fmt.Sprintf("value %v not in enum", value)})
		}
	}

	switch v := value.(type) {
	case string:
		validateString(v, s, path, out)
	case float64:
		validateNumber(v, s, path, out)
	case map[string]any:
		validateObject(v, s, path, depth, out)
	case []any:
		validateArray(v, s, path, depth, out)
	}
}

func validateString(v string, s map[string]any, path string, out *[]Violation) {
	if min, ok := numberField(s, "minLength"); ok && len(v) < int(min) {
		*out = append(*out, Violation{Path: path, Cause: fmt.Sprintf("string length %d below minLength %d", len(v), int(min))})
	}
	if max, ok := numberField(s, "maxLength"); ok && len(v) > int(max) {
		*out = append(*out, Violation{Path: path, Cause: fmt.Sprintf("string length %d exceeds maxLength %d", len(v), int(max))})
	}
}

func validateNumber(v float64, s map[string]any, path string, out *[]Violation) {
	if min, ok := numberField(s, "minimum"); ok && v < min {
		*out = append(*out, Violation{Path: path, Cause: fmt.Sprintf("%v below minimum %v", v, min)})
	}
	if max, ok := numberField(s, "maximum"); ok && v > max {
		*out = append(*out, Violation{Path: path, Cause: fmt.Sprintf("%v exceeds maximum %v", v, max)})
	}
}

func validateObject(obj map[string]any, s map[string]any, path string, depth int, out *[]Violation) {
	props, _ := s["properties"].(map[string]any)

	// Closed-object semantics: unlisted keys are violations at every depth.
	// The gate only relaxes if the schema explicitly allows extras, which
	// CheckSchema forbids for registered tools.
	if ap, ok := s["additionalProperties"].(bool); !ok || !ap {
		for key := range obj {
			if _, declared := props[key]; !declared {
				*out = append(*out, Violation{Path: path, Cause: fmt.Sprintf("additional property %q not allowed", key)})
			}
		}
	}

	if required, ok := s["required"].([]any); ok {
		for _, raw := range required {
			name, _ := raw.(string)
			if name == "" {
				continue
			}
			if _, present := obj[name]; !present {
				*out = append(*out, Violation{Path: path, Cause: fmt.Sprintf("required field %q missing", name)})
			}
		}
	}

	for name, raw := range props {
		child, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if val, present := obj[name]; present {
			validateValue(val, child, path+"."+name, depth+1, out)
		}
	}
}

func validateArray(arr []any, s map[string]any, path string, depth int, out *[]Violation) {
	limit := MaxItems
	if max, ok := numberField(s, "maxItems"); ok && int(max) < limit {
		limit = int(max)
	}
	if len(arr) > limit {
		*out = append(*out, Violation{Path: path, Cause: fmt.Sprintf("array length %d exceeds cap %d", len(arr), limit)})
		return
	}
	if min, ok := numberField(s, "minItems"); ok && len(arr) < int(min) {
		*out = append(*out, Violation{Path: path, Cause: fmt.Sprintf("array length %d below minItems %d", len(arr), int(min))})
	}

	items, ok := s["items"].(map[string]any)
	if !ok {
		return
	}
	for i, item := range arr {
		validateValue(item, items, fmt.Sprintf("%s[%d]", path, i), depth+1, out)
	}
}

// checkType matches a decoded JSON value against a schema type name.
// encoding/json decodes all numbers as float64, so "integer" additionally
// requires a whole value.
func checkType(value any, typ string) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		_, ok := value.(float64)
		return ok
	case "integer":
		f, ok := value.(float64)
		return ok && f == math.Trunc(f)
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "null":
		return value == nil
	}
	return false
}

func typeName(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64:
		if v == math.Trunc(v) {
			return "integer"
		}
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func numberField(s map[string]any, key string) (float64, bool) {
	switch v := s[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func enumContains(enum []any, value any) bool {
	for _, e := range enum {
		if e == value {
			return true
		}
	}
	return false
}
