package binding

import "strings"

// ParseExpression parses a declarative binding of the form
//
//	{Binding count}
//	{Binding Path=count, Format=Count: {0}}
//
// Everything after "Format=" is the format, braces and commas included.
func ParseExpression(s string) (key, format string, ok bool) {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "{") || !strings.HasSuffix(t, "}") {
		return "", "", false
	}
	inner := strings.TrimSpace(t[1 : len(t)-1])
	const word = "Binding"
	if len(inner) < len(word) || !strings.EqualFold(inner[:len(word)], word) {
		return "", "", false
	}
	rest := inner[len(word):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", "", false
	}
	rest = strings.TrimSpace(rest)

	keyPart := rest
	if i := strings.Index(rest, ","); i >= 0 {
		keyPart = rest[:i]
		for _, opt := range splitOptions(rest[i+1:]) {
			name, value, found := strings.Cut(opt, "=")
			if found && strings.EqualFold(strings.TrimSpace(name), "Format") {
				format = unquote(strings.TrimSpace(value))
			}
		}
	}

	keyPart = strings.TrimSpace(keyPart)
	if name, value, found := strings.Cut(keyPart, "="); found && strings.EqualFold(strings.TrimSpace(name), "Path") {
		keyPart = strings.TrimSpace(value)
	}
	if keyPart == "" {
		return "", "", false
	}
	return keyPart, format, true
}

// splitOptions splits on commas that precede a Name= option, so a Format
// value may contain commas itself.
func splitOptions(s string) []string {
	idx := strings.Index(strings.ToLower(s), "format=")
	if idx < 0 {
		return strings.Split(s, ",")
	}
	head := strings.TrimSpace(s[:idx])
	head = strings.TrimSuffix(head, ",")
	var out []string
	if head != "" {
		out = strings.Split(head, ",")
	}
	return append(out, s[idx:])
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '\'' && s[len(s)-1] == '\'' || s[0] == '"' && s[len(s)-1] == '"') {
		return s[1 : len(s)-1]
	}
	return s
}
