package diaglog

import "path/filepath"

// sensitiveKeys are the field names whose values are replaced with
// "[REDACTED]" before any log entry is written.
var sensitiveKeys = map[string]bool{
	"password": true,
	"secret":   true,
	"token":    true,
	"auth":     true,
}

// pathKeys hold local file paths; only the base name survives redaction so
// bundles can be shared without exposing the user's directory layout.
var pathKeys = map[string]bool{
	"path":        true,
	"source_path": true,
	"output_path": true,
}

// Redact recursively traverses v and replaces the values of any key found in
// sensitiveKeys with the literal string "[REDACTED]". v is not mutated; a new
// map is returned. Non-map types are returned unchanged.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, child := range val {
			switch {
			case sensitiveKeys[k]:
				out[k] = "[REDACTED]"
			case pathKeys[k]:
				if s, ok := child.(string); ok && s != "" {
					out[k] = filepath.Base(s)
				} else {
					out[k] = child
				}
			default:
				out[k] = Redact(child)
			}
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			out[i] = Redact(elem)
		}
		return out
	default:
		return v
	}
}
