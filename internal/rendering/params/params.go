// Package params formats renderer REST parameter templates.
package params

import "strings"

// Placeholders recognized in parameter format strings.
const (
	HostnamePlaceholder = "${rest_hostname}"
	PortPlaceholder     = "${rest_port}"
	SchemaPlaceholder   = "${rest_schema}"
)

// Format substitutes the REST placeholders in a single left-to-right scan.
// Replacement text is never re-scanned, so a hostname that itself contains a
// placeholder does not expand again.
func Format(format, hostname, port, schema string) string {
	replacements := map[string]string{
		HostnamePlaceholder: hostname,
		PortPlaceholder:     port,
		SchemaPlaceholder:   schema,
	}

	var b strings.Builder
	b.Grow(len(format))
	for i := 0; i < len(format); {
		if format[i] == '$' && i+1 < len(format) && format[i+1] == '{' {
			if end := strings.IndexByte(format[i:], '}'); end >= 0 {
				token := format[i : i+end+1]
				if value, ok := replacements[token]; ok {
					b.WriteString(value)
					i += end + 1
					continue
				}
			}
		}
		b.WriteByte(format[i])
		i++
	}
	return b.String()
}
