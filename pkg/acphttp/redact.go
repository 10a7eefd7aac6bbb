package acphttp

import (
	"encoding/json"
	"strings"
)

const redacted = "[redacted]"

// RedactFields returns an Action.Redact func that replaces each dotted path
// (e.g. "payment_method.number") with a placeholder. Missing paths are
// ignored.
func RedactFields(paths ...string) func(raw []byte) any {
	return func(raw []byte) any {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return redacted
		}
		for _, p := range paths {
			redactPath(doc, strings.Split(p, "."))
		}
		return doc
	}
}

func redactPath(doc map[string]any, path []string) {
	v, ok := doc[path[0]]
	if !ok {
		return
	}
	if len(path) == 1 {
		doc[path[0]] = redacted
		return
	}
	if child, ok := v.(map[string]any); ok {
		redactPath(child, path[1:])
	}
}
