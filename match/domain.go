package match

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// domainPatternCacheSize bounds the number of compiled domain patterns kept
// between requests.
const domainPatternCacheSize = 256

var domainPatterns = mustPatternCache(domainPatternCacheSize)

func mustPatternCache(size int) *lru.Cache[string, *regexp.Regexp] {
	cache, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		panic(err)
	}
	return cache
}

// CompileDomainPattern converts a domain pattern into an anchored regular
// expression. Dots are literal and each `*` matches any run of characters,
// so "*.example.com" covers "a.example.com" and "a.b.example.com".
func CompileDomainPattern(pattern string) *regexp.Regexp {
	parts := strings.Split(strings.ToLower(pattern), "*")
	for i := range parts {
		parts[i] = regexp.QuoteMeta(parts[i])
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

// MatchWildcardDomain reports whether hostname satisfies the domain pattern.
// Compiled patterns are cached.
func MatchWildcardDomain(hostname, pattern string) bool {
	re, ok := domainPatterns.Get(pattern)
	if !ok {
		re = CompileDomainPattern(pattern)
		domainPatterns.Add(pattern, re)
	}
	return re.MatchString(strings.ToLower(hostname))
}

// IsDomainPattern checks that the given string is a syntactically valid
// domain name, optionally with labels consisting of just `*`. IP addresses
// and anything carrying a port are rejected.
func IsDomainPattern(domain string) bool {
	if len(domain) == 0 || len(domain) > 253 {
		return false
	}

	labels := strings.Split(domain, ".")
	numeric := true
	for _, label := range labels {
		if label == "*" {
			numeric = false
			continue
		}
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			switch {
			case c >= '0' && c <= '9':
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '-':
				numeric = false
			default:
				return false
			}
		}
	}

	// Something like 127.0.0.1 is an address rather than a name.
	return !(numeric && len(labels) > 1)
}
