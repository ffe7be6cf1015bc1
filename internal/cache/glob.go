package cache

import (
	"regexp"
	"strings"
)

// globMatch reports whether s matches the glob pattern. The pattern language
// is the one Redis uses for KEYS and PSUBSCRIBE: "*" matches any sequence of
// characters (including none), "?" matches exactly one character, and every
// other character matches itself.
func globMatch(pattern, s string) bool {
	re, err := compileGlob(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// compileGlob translates a glob pattern into an anchored regular expression.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}
