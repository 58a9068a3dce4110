package mapping

import (
	"fmt"
	"strconv"
	"strings"
)

func isRootID(id string) bool {
	return id == "" || id == "0"
}

func stringValue(v any, ok bool) string {
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Truthy interprets a stored field value as a boolean.
func Truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case int:
		return b != 0
	case int64:
		return b != 0
	case float64:
		return b != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "", "0", "false", "no", "off":
			return false
		}
		return true
	default:
		return true
	}
}
