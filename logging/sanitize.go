package logging

import "strings"

const (
	maxStringLen = 500
	maxArrayLen  = 20
	maxDepth     = 2
)

const (
	redacted  = "[REDACTED]"
	truncated = "[TRUNCATED]"
)

var sensitiveKeys = map[string]bool{
	"password":       true,
	"token":          true,
	"recaptchatoken": true,
	"authorization":  true,
	"secret":         true,
	"image":          true,
	"rawimage":       true,
	"bytes":          true,
}

// Sanitize returns a copy of meta that is safe to write to logs or the
// security event table. Sensitive keys are redacted (matched
// case-insensitively), long strings and slices are cut, and anything nested
// deeper than two levels is replaced by a marker.
func Sanitize(meta map[string]interface{}) map[string]interface{} {
	if meta == nil {
		return nil
	}
	out, _ := sanitizeValue(meta, 0).(map[string]interface{})
	return out
}

func sanitizeValue(v interface{}, depth int) interface{} {
	switch val := v.(type) {
	case string:
		if len(val) > maxStringLen {
			return val[:maxStringLen] + "..."
		}
		return val
	case []byte:
		return redacted
	case []string:
		items := make([]interface{}, len(val))
		for i, s := range val {
			items[i] = s
		}
		return sanitizeValue(items, depth)
	case []interface{}:
		if depth > maxDepth {
			return truncated
		}
		if len(val) > maxArrayLen {
			val = val[:maxArrayLen]
		}
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = sanitizeValue(item, depth+1)
		}
		return items
	case map[string]interface{}:
		if depth > maxDepth {
			return truncated
		}
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if sensitiveKeys[strings.ToLower(k)] {
				out[k] = redacted
				continue
			}
			out[k] = sanitizeValue(item, depth+1)
		}
		return out
	default:
		return v
	}
}

// KeyVals flattens meta into alternating key/value pairs for the logger.
func KeyVals(meta map[string]interface{}) []interface{} {
	kv := make([]interface{}, 0, len(meta)*2)
	for k, v := range meta {
		kv = append(kv, k, v)
	}
	return kv
}
