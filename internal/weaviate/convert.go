package weaviate

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kilupskalvis/indexsync/internal/models"
)

// propName returns the Weaviate property name of a document field.
// Weaviate stores property names with a lower-case first letter.
func propName(field string) string {
	r, size := utf8.DecodeRuneInString(field)
	if r == utf8.RuneError {
		return field
	}
	return string(unicode.ToLower(r)) + field[size:]
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// dataType maps a field mapping to a Weaviate data type.
func dataType(fm models.FieldMapping) string {
	var dt string
	switch fm.Type {
	case models.TypeInteger:
		dt = "int"
	case models.TypeDouble, models.TypeFloat:
		dt = "number"
	case models.TypeDate:
		dt = "date"
	default:
		dt = "text"
	}
	if fm.Array {
		dt += "[]"
	}
	return dt
}

func mappingFromDataType(dts []string) models.FieldMapping {
	if len(dts) == 0 {
		return models.FieldMapping{}
	}
	dt := dts[0]
	fm := models.FieldMapping{Array: strings.HasSuffix(dt, "[]")}
	switch strings.TrimSuffix(dt, "[]") {
	case "int":
		fm.Type = models.TypeInteger
	case "number":
		fm.Type = models.TypeDouble
	case "date":
		fm.Type = models.TypeDate
		fm.Format = models.DateFormat
	case "text", "string":
		fm.Type = models.TypeString
	}
	return fm
}

// toProperty converts a document value to the wire form of its mapping.
func toProperty(v any, fm models.FieldMapping) any {
	if fm.Array {
		return toStrings(v)
	}
	switch fm.Type {
	case models.TypeDate:
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Format(time.RFC3339)
		case string:
			if parsed, err := time.ParseInLocation(models.DateLayout, t, time.UTC); err == nil {
				return parsed.Format(time.RFC3339)
			}
		}
	case models.TypeInteger:
		switch n := v.(type) {
		case bool:
			if n {
				return 1
			}
			return 0
		case string:
			if i, err := strconv.ParseInt(n, 10, 64); err == nil {
				return i
			}
		}
	case models.TypeString:
		switch s := v.(type) {
		case string:
			return s
		case nil:
			return nil
		case []string, []any:
			return toStrings(s)
		default:
			return fmt.Sprint(s)
		}
	}
	return v
}

// fromProperty converts a returned value back to its document form.
func fromProperty(v any, fm models.FieldMapping) any {
	switch val := v.(type) {
	case string:
		if fm.Type == models.TypeDate {
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				return t.UTC().Format(models.DateLayout)
			}
		}
		return val
	case []interface{}:
		if strs, ok := allStrings(val); ok {
			return strs
		}
		return val
	default:
		return v
	}
}

func toStrings(v any) []string {
	switch s := v.(type) {
	case nil:
		return []string{}
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return []string{s}
	default:
		return []string{fmt.Sprint(s)}
	}
}

func allStrings(list []interface{}) ([]string, bool) {
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
