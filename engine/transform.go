package engine

import (
	"fmt"
	"strings"
)

// localPrefix marks paths in the immediately preceding step's own output
// namespace, as opposed to the _bip/_client/{channelId} namespaces the
// pipeline executor contributes.
const localPrefix = "local#"

// TransformEntry maps one destination import name onto a source expression:
// either a flattened export path or a template over the export namespace.
type TransformEntry struct {
	Dst string `json:"dst"`
	Src string `json:"src"`
}

// Transforms is a channel's transform map, supplied per invocation by the
// orchestrator. Entry order is observable through the append semantics of
// repeated destinations, so it is a slice rather than a map.
type Transforms []TransformEntry

// FlattenExports collapses a nested export namespace into a single level
// mapping keyed by "#"-joined path segments: {a:{b:1}} becomes {"a#b": 1}.
// Flattening is pure and insensitive to key insertion order.
func FlattenExports(exports map[string]any) map[string]any {
	flat := make(map[string]any)
	for key, value := range exports {
		flattenInto(flat, key, value)
	}
	return flat
}

func flattenInto(flat map[string]any, prefix string, value any) {
	nested, ok := value.(map[string]any)
	if !ok {
		flat[prefix] = value
		return
	}
	for key, child := range nested {
		flattenInto(flat, prefix+"#"+key, child)
	}
}

// ResolveImports produces the input object the pod's invoke entry point will
// receive, combining the upstream export namespace with the channel's
// transform map under the declared expected imports of the target action.
//
// Every declared import is seeded from its local# export, or "" when absent,
// so the result always contains every expected key. An empty transform map is
// a distinct path: the result is the raw local sub-object of the exports,
// unflattened. Otherwise each entry resolves with exact-match precedence over
// local-qualified match over template substitution, and the resolved value is
// appended to the destination rather than overwriting it.
func ResolveImports(pod Pod, action string, exports map[string]any, transforms Transforms) map[string]any {
	if len(transforms) == 0 {
		local, _ := exports["local"].(map[string]any)
		return local
	}

	flattened := FlattenExports(exports)

	resolved := make(map[string]any)
	for name := range pod.Imports(action) {
		if v, ok := flattened[localPrefix+name]; ok && truthy(v) {
			resolved[name] = v
		} else {
			resolved[name] = ""
		}
	}

	for _, t := range transforms {
		if _, ok := resolved[t.Dst]; !ok {
			resolved[t.Dst] = ""
		}

		var value any
		if v, ok := flattened[t.Src]; ok && truthy(v) {
			value = v
		} else if v, ok := flattened[localPrefix+t.Src]; ok && truthy(v) {
			value = v
		} else {
			value = ExpandTemplate(t.Src, flattened)
		}

		resolved[t.Dst] = stringify(resolved[t.Dst]) + stringify(value)
	}

	return resolved
}

// truthy mirrors the loose emptiness test the transform precedence rules are
// specified against: nil, "", false and numeric zero all miss.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	default:
		return true
	}
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// UnqualifyLocal strips the local namespace prefix from an export path.
func UnqualifyLocal(path string) string {
	return strings.TrimPrefix(path, localPrefix)
}
