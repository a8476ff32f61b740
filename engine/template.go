package engine

// Template substitution is the fallback for transform sources that match no
// flattened export path. The syntax is a deliberately small placeholder form,
// [% path %], with arbitrary interior whitespace. It is lexed explicitly
// rather than handed to a template or regex engine, so replacement values are
// always inserted verbatim; metacharacters in export values have no effect.

import "strings"

const (
	placeholderOpen  = "[%"
	placeholderClose = "%]"

	// undefinedValue substitutes unresolved placeholders. Malformed user
	// templates degrade rather than failing the pipeline.
	undefinedValue = "undefined"
)

// ExpandTemplate replaces every [% path %] span in tpl with the flattened
// export value found at path, trying the path both raw and local#-qualified.
// Text outside placeholder spans passes through untouched; an unterminated
// span is treated as literal text.
func ExpandTemplate(tpl string, flattened map[string]any) string {
	var b strings.Builder
	rest := tpl
	for {
		open := strings.Index(rest, placeholderOpen)
		if open < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:open])
		rest = rest[open+len(placeholderOpen):]

		closing := strings.Index(rest, placeholderClose)
		if closing < 0 {
			b.WriteString(placeholderOpen)
			b.WriteString(rest)
			return b.String()
		}
		path := strings.TrimSpace(rest[:closing])
		b.WriteString(placeholderValue(path, flattened))
		rest = rest[closing+len(placeholderClose):]
	}
}

func placeholderValue(path string, flattened map[string]any) string {
	if v, ok := flattened[path]; ok {
		return stringify(v)
	}
	if v, ok := flattened[localPrefix+path]; ok {
		return stringify(v)
	}
	return undefinedValue
}
