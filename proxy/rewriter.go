package proxy

import (
	"regexp"
	"strings"

	"golang.org/x/exp/slices"
)

var rootRelativeHref = regexp.MustCompile(`(href=["'])(/[^/])`)

// Replacement swaps one upstream origin for the mirror URL that serves it.
type Replacement struct {
	Origin string
	Mirror string
}

// Rewriter rewrites response bodies so that links to known upstreams point
// back at the mirror.
type Rewriter struct {
	replacements []Replacement
	replacer     *strings.Replacer
	prefix       string
}

// NewRewriter creates a rewriter for the given replacements. Root-relative
// hrefs in HTML documents get prefix inserted in front of them.
func NewRewriter(replacements []Replacement, prefix string) *Rewriter {
	sorted := slices.Clone(replacements)
	slices.SortStableFunc(sorted, func(a, b Replacement) int {
		return len(b.Origin) - len(a.Origin)
	})

	var pairs []string
	for i := range sorted {
		pairs = append(pairs, sorted[i].Origin, sorted[i].Mirror)
	}

	return &Rewriter{
		replacements: sorted,
		replacer:     strings.NewReplacer(pairs...),
		prefix:       prefix,
	}
}

// Rewrite returns body with every known origin replaced.
func (r *Rewriter) Rewrite(body []byte, html bool) []byte {
	res := r.replacer.Replace(string(body))
	if html && r.prefix != "" {
		res = rootRelativeHref.ReplaceAllString(res, "${1}"+strings.ReplaceAll(r.prefix, "$", "$$")+"${2}")
	}
	return []byte(res)
}

// Location rewrites a single absolute URL, reporting whether it was on a
// known origin.
func (r *Rewriter) Location(location string) (string, bool) {
	for i := range r.replacements {
		origin := r.replacements[i].Origin
		if !strings.HasPrefix(location, origin) {
			continue
		}
		if rest := location[len(origin):]; rest == "" || strings.ContainsRune("/?#", rune(rest[0])) {
			return r.replacements[i].Mirror + rest, true
		}
	}
	return location, false
}
