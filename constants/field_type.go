package constants

import (
	"strings"
)

// FieldType is the value type of a schema field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldDate    FieldType = "date"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
)

var allFieldTypes = []FieldType{
	FieldString,
	FieldDate,
	FieldNumber,
	FieldBoolean,
}

func FieldTypesAsStrings() []string {
	result := make([]string, len(allFieldTypes))
	for i, ft := range allFieldTypes {
		result[i] = string(ft)
	}
	return result
}

// CanonicalizeFieldType maps a user supplied type name onto a FieldType.
// Unknown names fall back to FieldString with ok=false.
func CanonicalizeFieldType(input string) (FieldType, bool) {
	if input == "" {
		return FieldString, true
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]FieldType{
		"str":      FieldString,
		"text":     FieldString,
		"int":      FieldNumber,
		"integer":  FieldNumber,
		"float":    FieldNumber,
		"decimal":  FieldNumber,
		"bool":     FieldBoolean,
		"datetime": FieldDate,
	}

	if ft, ok := synonyms[normalized]; ok {
		return ft, true
	}

	for _, ft := range allFieldTypes {
		if normalized == string(ft) {
			return ft, true
		}
	}

	return FieldString, false
}
