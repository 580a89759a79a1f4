package match

import (
	"regexp"
	"strings"
)

// UserAgent is a single product token from a User-Agent header.
type UserAgent struct {
	Name    string
	Version string
	Comment string
}

var productRegex = regexp.MustCompile(`^\s*([^/\s]+)/([^/\s]+)(\s+[^/]+)?`)
var trailingWordRegex = regexp.MustCompile(`\S+$`)

// ParseUserAgent splits a User-Agent header into its product tokens.
//
// Tokens are consumed from the front of the string while they look like
// `name/version (comment)`; parsing stops at the first thing that doesn't.
// If lower is set the header is lower-cased first.
func ParseUserAgent(raw string, lower bool) []UserAgent {
	if lower {
		raw = strings.ToLower(raw)
	}

	var res []UserAgent
	for {
		m := productRegex.FindStringSubmatchIndex(raw)
		if m == nil {
			return res
		}

		consumed := m[1]
		ua := UserAgent{
			Name:    raw[m[2]:m[3]],
			Version: raw[m[4]:m[5]],
		}

		if m[6] >= 0 {
			// The greedy comment group swallows the name of the next
			// product (it stops right before that product's slash), which
			// has to be handed back to the next iteration.
			comment := raw[m[6]:m[7]]
			if next := trailingWordRegex.FindString(comment); next != "" && m[7] < len(raw) {
				comment = comment[:len(comment)-len(next)]
				consumed -= len(next)
			}
			ua.Comment = trimComment(comment)
		}

		res = append(res, ua)
		raw = raw[consumed:]
	}
}

func trimComment(comment string) string {
	comment = strings.TrimSpace(comment)
	if strings.HasPrefix(comment, "(") && strings.HasSuffix(comment, ")") {
		comment = strings.TrimSpace(comment[1 : len(comment)-1])
	}
	return comment
}

// FieldMatcher tests a single field of a UserAgent.
type FieldMatcher func(string) bool

// Exactly matches a field equal to s.
func Exactly(s string) FieldMatcher {
	return func(v string) bool {
		return v == s
	}
}

// HasPrefix matches a field starting with s.
func HasPrefix(s string) FieldMatcher {
	return func(v string) bool {
		return strings.HasPrefix(v, s)
	}
}

// UserAgentTest decides whether a parsed product token satisfies a rule.
// It is either a positional list of field matchers (name, version, comment)
// or an arbitrary predicate.
type UserAgentTest struct {
	fields    []FieldMatcher
	predicate func(UserAgent) bool
}

// MatchFields tests the name, version and comment of a product in that order.
// Fields beyond the number of matchers given are not checked.
func MatchFields(fields ...FieldMatcher) UserAgentTest {
	return UserAgentTest{fields: fields}
}

// MatchProduct tests for a product with exactly the given name.
func MatchProduct(name string) UserAgentTest {
	return MatchFields(Exactly(name))
}

// MatchFunc tests products with an arbitrary predicate.
func MatchFunc(fn func(UserAgent) bool) UserAgentTest {
	return UserAgentTest{predicate: fn}
}

// Test reports whether ua satisfies the test.
func (t UserAgentTest) Test(ua UserAgent) bool {
	if t.predicate != nil {
		return t.predicate(ua)
	}
	if len(t.fields) == 0 {
		return false
	}

	values := []string{ua.Name, ua.Version, ua.Comment}
	for i := range t.fields {
		if i >= len(values) {
			break
		}
		if !t.fields[i](values[i]) {
			return false
		}
	}
	return true
}

// Any reports whether any of the given products satisfies the test.
func (t UserAgentTest) Any(uas []UserAgent) bool {
	for i := range uas {
		if t.Test(uas[i]) {
			return true
		}
	}
	return false
}
