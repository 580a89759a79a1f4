package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedChallenge is returned when a WWW-Authenticate header can't be
// used to build a mirror challenge.
var ErrMalformedChallenge = errors.New("malformed challenge")

// Challenge is a parsed WWW-Authenticate header of the form
// `scheme key1="v1", key2="v2"`.
type Challenge struct {
	Scheme string
	Params map[string]string
}

// ParseChallenge parses a WWW-Authenticate header. Quoted values are JSON
// strings and may contain commas; bare values run to the next comma. The
// challenge must carry both a realm and a service.
func ParseChallenge(header string) (*Challenge, error) {
	header = strings.TrimSpace(header)
	scheme, rest, found := strings.Cut(header, " ")
	if !found || scheme == "" {
		return nil, fmt.Errorf("%w: no parameters", ErrMalformedChallenge)
	}

	c := &Challenge{
		Scheme: scheme,
		Params: make(map[string]string),
	}

	for {
		rest = strings.TrimLeft(rest, " \t,")
		if rest == "" {
			break
		}

		key, value, found := strings.Cut(rest, "=")
		if !found {
			return nil, fmt.Errorf("%w: parameter without value: %s", ErrMalformedChallenge, rest)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimLeft(value, " \t")

		if strings.HasPrefix(value, `"`) {
			end := closingQuote(value)
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated value for %s", ErrMalformedChallenge, key)
			}
			var s string
			if err := json.Unmarshal([]byte(value[:end+1]), &s); err != nil {
				return nil, fmt.Errorf("%w: bad value for %s: %v", ErrMalformedChallenge, key, err)
			}
			c.Params[key] = s
			rest = value[end+1:]
		} else {
			v, remaining, _ := strings.Cut(value, ",")
			c.Params[key] = strings.TrimSpace(v)
			rest = remaining
		}
	}

	if c.Realm() == "" || c.Service() == "" {
		return nil, fmt.Errorf("%w: realm and service are required", ErrMalformedChallenge)
	}
	return c, nil
}

// closingQuote returns the index of the quote ending the string that starts
// at s[0], or -1.
func closingQuote(s string) int {
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			return i
		}
	}
	return -1
}

// Realm returns the URL tokens should be requested from.
func (c *Challenge) Realm() string {
	return c.Params["realm"]
}

// Service returns the service tokens should be requested for.
func (c *Challenge) Service() string {
	return c.Params["service"]
}

// FormatChallenge builds a WWW-Authenticate header for the given realm and
// service. Values are quoted as JSON strings, the same way ParseChallenge
// reads them.
func FormatChallenge(scheme, realm, service string) string {
	return fmt.Sprintf("%s realm=%s,service=%s", scheme, quote(realm), quote(service))
}

func quote(s string) string {
	buf := &bytes.Buffer{}
	encoder := json.NewEncoder(buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(s); err != nil {
		// Encoding a string can't fail.
		panic(err)
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
