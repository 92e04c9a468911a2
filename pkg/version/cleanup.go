package version

import (
	"regexp"
	"strings"
)

var (
	fuzzyVersion  = regexp.MustCompile(`(?s)^(\d+)(\.(\d+)(\.(\d+))?)?([^a-zA-Z0-9](.*))?$`)
	fuzzyModifier = regexp.MustCompile(`(?s)^(\d+[.-])*(.*)$`)
)

// Cleanup rewrites a loosely formed version such as "1.2-SNAPSHOT" or
// "1.2.3.Beta 2" into the strict form accepted by Parse. Strings that do not
// start with a number are returned unchanged. Cleanup is idempotent.
func Cleanup(v string) string {
	m := fuzzyVersion.FindStringSubmatch(v)
	if m == nil {
		return v
	}
	major, minor, micro := m[1], m[3], m[5]
	hasQualifier := m[6] != ""
	qualifier := ""
	if hasQualifier {
		qualifier = cleanupModifier(m[7])
	}

	var sb strings.Builder
	sb.WriteString(major)
	switch {
	case minor != "" && micro != "":
		sb.WriteString("." + minor + "." + micro)
	case minor != "":
		sb.WriteString("." + minor)
		if qualifier != "" {
			sb.WriteString(".0")
		}
	case qualifier != "":
		sb.WriteString(".0.0")
	}
	if qualifier != "" {
		sb.WriteString("." + qualifier)
	}
	return sb.String()
}

func cleanupModifier(modifier string) string {
	if m := fuzzyModifier.FindStringSubmatch(modifier); m != nil {
		modifier = m[2]
	}
	var sb strings.Builder
	for _, c := range modifier {
		if validQualifierRune(c) {
			sb.WriteRune(c)
		}
	}
	return sb.String()
}

func validQualifierRune(c rune) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') || c == '_' || c == '-'
}
