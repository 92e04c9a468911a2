// Package manifest parses module manifests and reads them from module archives.
package manifest

import (
	"fmt"
	"strings"
)

// Clause is one entry of a manifest header: a name followed by attributes
// (key=value) and directives (key:=value).
type Clause struct {
	Name       string
	Attributes map[string]string
	Directives map[string]string
}

// Attribute returns the named attribute, or "" if absent.
func (c Clause) Attribute(key string) string {
	return c.Attributes[key]
}

// Directive returns the named directive, or "" if absent.
func (c Clause) Directive(key string) string {
	return c.Directives[key]
}

func (c Clause) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	for _, k := range sortedKeys(c.Attributes) {
		fmt.Fprintf(&b, ";%s=%s", k, quoteIfNeeded(c.Attributes[k]))
	}
	for _, k := range sortedKeys(c.Directives) {
		fmt.Fprintf(&b, ";%s:=%s", k, quoteIfNeeded(c.Directives[k]))
	}
	return b.String()
}

// ParseHeader parses a header value into clauses. Several names sharing the
// same parameters ("a;b;version=1") yield one clause per name.
func ParseHeader(header string) ([]Clause, error) {
	var clauses []Clause
	for _, raw := range splitOutsideQuotes(header, ',') {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parsed, err := parseClause(raw)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, parsed...)
	}
	return clauses, nil
}

func parseClause(raw string) ([]Clause, error) {
	var names []string
	attrs := map[string]string{}
	dirs := map[string]string{}

	for _, part := range splitOutsideQuotes(raw, ';') {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		eq := indexOutsideQuotes(part, '=')
		if eq < 0 {
			if len(attrs) > 0 || len(dirs) > 0 {
				return nil, fmt.Errorf("name %q follows parameters in clause %q", part, raw)
			}
			names = append(names, unquote(part))
			continue
		}
		key := strings.TrimSpace(part[:eq])
		value := unquote(strings.TrimSpace(part[eq+1:]))
		if strings.HasSuffix(key, ":") {
			key = strings.TrimSpace(strings.TrimSuffix(key, ":"))
			if key == "" {
				return nil, fmt.Errorf("empty directive name in clause %q", raw)
			}
			dirs[key] = value
			continue
		}
		if key == "" {
			return nil, fmt.Errorf("empty attribute name in clause %q", raw)
		}
		attrs[key] = value
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("clause %q has no name", raw)
	}

	clauses := make([]Clause, 0, len(names))
	for _, name := range names {
		clauses = append(clauses, Clause{Name: name, Attributes: copyMap(attrs), Directives: copyMap(dirs)})
	}
	return clauses, nil
}

func splitOutsideQuotes(s string, sep rune) []string {
	var parts []string
	var b strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			b.WriteRune(r)
		case r == sep && !quoted:
			parts = append(parts, b.String())
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	return append(parts, b.String())
}

func indexOutsideQuotes(s string, c byte) int {
	quoted := false
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '"':
			quoted = !quoted
		case s[i] == c && !quoted:
			return i
		}
	}
	return -1
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func quoteIfNeeded(s string) string {
	if strings.ContainsAny(s, ",;=\" ") || strings.ContainsAny(s, "[]()") {
		return `"` + s + `"`
	}
	return s
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
