// Package wildcard compiles shell-style name patterns.
//
// Only two metacharacters are recognized:
//   - '*' matches any run of characters, including the empty run
//   - '?' matches exactly one character
//
// Every other character, including regular expression syntax such as '.',
// '[' or '+', matches itself literally.
package wildcard

import (
	"regexp"
	"strings"
)

// Wildcard is a compiled pattern. The zero value is not usable; build one
// with Compile or MustCompile.
//
// Matching never allocates once the pattern is compiled, so a single
// Wildcard can filter large folder listings.
type Wildcard struct {
	pattern string
	re      *regexp.Regexp // nil when the pattern matches everything
}

// Compile translates pattern into a matcher.
//
// An empty pattern (or one made only of '*') matches every name.
func Compile(pattern string, ignoreCase bool) (*Wildcard, error) {
	w := &Wildcard{pattern: pattern}

	if strings.Trim(pattern, "*") == "" {
		return w, nil
	}

	var b strings.Builder
	if ignoreCase {
		b.WriteString("(?i)")
	}
	b.WriteByte('^')
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, err
	}
	w.re = re
	return w, nil
}

// MustCompile is like Compile but panics on error. The translation always
// yields a valid expression, so this is safe for user input.
func MustCompile(pattern string, ignoreCase bool) *Wildcard {
	w, err := Compile(pattern, ignoreCase)
	if err != nil {
		panic("wildcard: " + err.Error())
	}
	return w
}

// Match reports whether name matches the pattern.
func (w *Wildcard) Match(name string) bool {
	if w == nil || w.re == nil {
		return true
	}
	return w.re.MatchString(name)
}

// String returns the source pattern.
func (w *Wildcard) String() string {
	return w.pattern
}
