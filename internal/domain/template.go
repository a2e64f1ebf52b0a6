package domain

import (
	"fmt"
	"sort"
	"strings"
)

// RenderTemplate substitutes every {FIELD} placeholder of template with the
// matching recipient value. Placeholder names are matched case-insensitively;
// "{{" and "}}" render literal braces. All missing fields are reported in a
// single ErrTemplateFieldMissing error.
func RenderTemplate(template string, recipient Recipient) (string, error) {
	var (
		b       strings.Builder
		missing []string
	)
	b.Grow(len(template))

	walkTemplate(template, func(literal string) {
		b.WriteString(literal)
	}, func(name, raw string) {
		value, ok := recipient.Get(name)
		if !ok {
			missing = append(missing, NormalizeFieldName(name))
			b.WriteString(raw)
			return
		}
		b.WriteString(value)
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %s", ErrTemplateFieldMissing, strings.Join(dedupeSorted(missing), ", "))
	}
	return b.String(), nil
}

// TemplateFields lists the distinct placeholder names of template,
// upper-cased and sorted.
func TemplateFields(template string) []string {
	var fields []string
	walkTemplate(template, func(string) {}, func(name, _ string) {
		fields = append(fields, NormalizeFieldName(name))
	})
	return dedupeSorted(fields)
}

// walkTemplate splits template into literal runs and placeholders.
func walkTemplate(template string, literal func(string), placeholder func(name, raw string)) {
	for i := 0; i < len(template); {
		c := template[i]
		switch {
		case c == '{' && i+1 < len(template) && template[i+1] == '{':
			literal("{")
			i += 2
		case c == '}' && i+1 < len(template) && template[i+1] == '}':
			literal("}")
			i += 2
		case c == '{':
			end := strings.IndexAny(template[i+1:], "{}")
			if end < 0 || template[i+1+end] != '}' {
				literal("{")
				i++
				continue
			}
			raw := template[i : i+end+2]
			name := strings.TrimSpace(template[i+1 : i+1+end])
			if name == "" {
				literal(raw)
			} else {
				placeholder(name, raw)
			}
			i += end + 2
		default:
			next := strings.IndexAny(template[i:], "{}")
			if next < 0 {
				literal(template[i:])
				return
			}
			if next == 0 {
				// lone '}'
				literal(template[i : i+1])
				i++
				continue
			}
			literal(template[i : i+next])
			i += next
		}
	}
}

func dedupeSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	sort.Strings(values)
	out := values[:1]
	for _, v := range values[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}
