package openapi

import (
	"slices"

	"github.com/getkin/kin-openapi/openapi3"
)

// maxSchemaDepth stops generation on deeply nested or recursive schemas.
const maxSchemaDepth = 8

// exampleFromSchema produces a deterministic example value for s. Explicit
// examples, defaults and enums are used when present.
func exampleFromSchema(s *openapi3.Schema, depth int) any {
	if s == nil || depth > maxSchemaDepth {
		return nil
	}
	if s.Example != nil {
		return s.Example
	}
	if s.Default != nil {
		return s.Default
	}
	if len(s.Enum) > 0 {
		return s.Enum[0]
	}
	if len(s.AllOf) > 0 {
		merged := map[string]any{}
		for _, ref := range s.AllOf {
			if ref == nil {
				continue
			}
			if obj, ok := exampleFromSchema(ref.Value, depth+1).(map[string]any); ok {
				for k, v := range obj {
					merged[k] = v
				}
			}
		}
		return merged
	}
	for _, alts := range [][]*openapi3.SchemaRef{s.OneOf, s.AnyOf} {
		if len(alts) > 0 && alts[0] != nil {
			return exampleFromSchema(alts[0].Value, depth+1)
		}
	}

	switch schemaType(s) {
	case openapi3.TypeObject:
		obj := make(map[string]any, len(s.Properties))
		names := make([]string, 0, len(s.Properties))
		for n := range s.Properties {
			names = append(names, n)
		}
		slices.Sort(names)
		for _, n := range names {
			if ref := s.Properties[n]; ref != nil {
				obj[n] = exampleFromSchema(ref.Value, depth+1)
			}
		}
		return obj
	case openapi3.TypeArray:
		if s.Items == nil {
			return []any{}
		}
		return []any{exampleFromSchema(s.Items.Value, depth+1)}
	case openapi3.TypeInteger:
		return 1
	case openapi3.TypeNumber:
		return 1.5
	case openapi3.TypeBoolean:
		return true
	default:
		return exampleString(s.Format)
	}
}

func schemaType(s *openapi3.Schema) string {
	if s.Type != nil {
		if types := s.Type.Slice(); len(types) > 0 {
			return types[0]
		}
	}
	if len(s.Properties) > 0 {
		return openapi3.TypeObject
	}
	if s.Items != nil {
		return openapi3.TypeArray
	}
	return openapi3.TypeString
}

func exampleString(format string) string {
	switch format {
	case "email":
		return "user@example.com"
	case "uri", "url":
		return "https://example.com"
	case "uuid":
		return "00000000-0000-4000-8000-000000000000"
	case "date":
		return "2024-01-01"
	case "date-time":
		return "2024-01-01T00:00:00Z"
	case "hostname":
		return "example.com"
	case "ipv4":
		return "192.0.2.1"
	case "ipv6":
		return "2001:db8::1"
	default:
		return "string"
	}
}
