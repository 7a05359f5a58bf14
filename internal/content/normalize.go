// Package content normalizes loosely typed LLM output and validates it against the
// outline and subtopic content contracts.
package content

import (
	"math"
	"strconv"
	"strings"
)

// normalizeOutline returns a cleaned copy of a decoded outline. Unit positions given as
// numeric strings become ints, strings are trimmed and missing arrays become empty.
// Unknown top-level keys are kept so the strict schema can reject them.
func normalizeOutline(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	if s, ok := out["course_title"].(string); ok {
		out["course_title"] = strings.TrimSpace(s)
	}
	if s, ok := out["difficulty"].(string); ok {
		out["difficulty"] = strings.TrimSpace(s)
	}

	rawUnits, _ := out["units"].([]any)
	units := make([]any, 0, len(rawUnits))
	for _, ru := range rawUnits {
		u, ok := ru.(map[string]any)
		if !ok {
			units = append(units, ru)
			continue
		}
		units = append(units, map[string]any{
			"position":  coercePosition(u["position"]),
			"title":     trimmed(u["title"]),
			"subtopics": trimStrings(u["subtopics"]),
		})
	}
	out["units"] = units
	return out
}

// normalizeItem cleans one subtopic content object in place of a copy.
func normalizeItem(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[k] = v
	}

	for _, key := range []string{"subtopic_title", "title", "why_this_matters", "code_or_math"} {
		if s, ok := out[key].(string); ok {
			out[key] = strings.TrimSpace(s)
		}
	}

	out["core_concepts"] = normalizeObjects(out["core_concepts"], "concept", "explanation")
	out["examples"] = normalizeObjects(out["examples"], "type", "content")

	if kws, ok := out["youtube_keywords"].([]any); ok {
		out["youtube_keywords"] = trimStrings(kws)
	}
	return out
}

// normalizeObjects trims the named string keys of every object in a list. A missing list
// becomes empty; non-list values are passed through for the schema to reject.
func normalizeObjects(v any, keys ...string) any {
	if v == nil {
		return []any{}
	}
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			out = append(out, item)
			continue
		}
		cp := make(map[string]any, len(obj))
		for k, val := range obj {
			cp[k] = val
		}
		for _, k := range keys {
			if s, ok := cp[k].(string); ok {
				cp[k] = strings.TrimSpace(s)
			}
		}
		out = append(out, cp)
	}
	return out
}

func coercePosition(v any) any {
	switch p := v.(type) {
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(p)); err == nil {
			return n
		}
		return p
	case float64:
		if p == math.Trunc(p) {
			return int(p)
		}
		return p
	default:
		return v
	}
}

func trimmed(v any) any {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	if v == nil {
		return ""
	}
	return v
}

func trimStrings(v any) any {
	if v == nil {
		return []any{}
	}
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, strings.TrimSpace(s))
			continue
		}
		out = append(out, item)
	}
	return out
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func toStrings(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
