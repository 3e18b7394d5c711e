package gateway

import (
	"fmt"
	"strings"
)

// ArgError is a structured schema violation, surfaced to callers as the 400
// detail.
type ArgError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ArgError) Error() string {
	return fmt.Sprintf("gateway: argument %q: %s", e.Field, e.Reason)
}

// ValidateArgs checks args against the tool's input schema before dispatch.
// It covers the subset of JSON Schema the catalog uses: type, required,
// properties, and enum.
func ValidateArgs(schema, args map[string]any) error {
	required, _ := schema["required"].([]string)
	if required == nil {
		if raw, ok := schema["required"].([]any); ok {
			for _, r := range raw {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
	}
	for _, name := range required {
		if v, ok := args[name]; !ok || v == nil {
			return &ArgError{Field: name, Reason: "required"}
		}
	}

	props, _ := schema["properties"].(map[string]any)
	for name, value := range args {
		spec, ok := props[name].(map[string]any)
		if !ok {
			return &ArgError{Field: name, Reason: "unknown argument"}
		}
		if err := validateValue(name, spec, value); err != nil {
			return err
		}
	}
	return nil
}

func validateValue(name string, spec map[string]any, value any) error {
	typ, _ := spec["type"].(string)
	switch typ {
	case "string":
		s, ok := value.(string)
		if !ok {
			return &ArgError{Field: name, Reason: "must be a string"}
		}
		if err := checkEnum(name, spec, s); err != nil {
			return err
		}
	case "number", "integer":
		n, ok := value.(float64)
		if !ok {
			return &ArgError{Field: name, Reason: "must be a number"}
		}
		if typ == "integer" && n != float64(int64(n)) {
			return &ArgError{Field: name, Reason: "must be a whole number"}
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return &ArgError{Field: name, Reason: "must be a boolean"}
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return &ArgError{Field: name, Reason: "must be an array"}
		}
		itemSpec, ok := spec["items"].(map[string]any)
		if !ok {
			return nil
		}
		for i, item := range items {
			if err := validateValue(fmt.Sprintf("%s[%d]", name, i), itemSpec, item); err != nil {
				return err
			}
		}
	case "object":
		// Nested object internals are the tool's to validate.
		if _, ok := value.(map[string]any); !ok {
			return &ArgError{Field: name, Reason: "must be an object"}
		}
	case "":
		// untyped property, accept anything
	default:
		return &ArgError{Field: name, Reason: "unsupported schema type " + typ}
	}
	return nil
}

func checkEnum(name string, spec map[string]any, s string) error {
	var allowed []string
	switch raw := spec["enum"].(type) {
	case []string:
		allowed = raw
	case []any:
		for _, v := range raw {
			if sv, ok := v.(string); ok {
				allowed = append(allowed, sv)
			}
		}
	default:
		return nil
	}
	for _, a := range allowed {
		if s == a {
			return nil
		}
	}
	return &ArgError{Field: name, Reason: "must be one of " + strings.Join(allowed, ", ")}
}
