package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"
)

func validSettings() *Settings {
	return &Settings{
		ServiceName: "mirror.example.com",
		SignSecret:  "hunter2",
		Domains:     Fixed([]string{"example.com"}),
	}
}

func Test_Settings_Validate_acceptsValidSettings(t *testing.T) {
	assert.NoError(t, validSettings().Validate())
}

func Test_Settings_Validate_reportsEveryProblem(t *testing.T) {
	s := &Settings{
		ServiceName:     " ",
		TokenTTL:        -time.Second,
		UpstreamTimeout: -time.Second,
		Domains:         Fixed([]string{"-bad-.com"}),
	}

	err := s.Validate()

	assert.Len(t, multierr.Errors(err), 5)
	assert.ErrorContains(t, err, "service name must not be empty")
	assert.ErrorContains(t, err, "sign secret must not be empty")
	assert.ErrorContains(t, err, "token ttl must not be negative")
	assert.ErrorContains(t, err, "upstream timeout must not be negative")
	assert.ErrorContains(t, err, "invalid domain: -bad-.com")
}

func Test_Settings_Validate_strictPolicyNeedsDomains(t *testing.T) {
	s := validSettings()
	s.Domains = nil
	s.HostPolicy = HostPolicyStrict

	assert.ErrorContains(t, s.Validate(), "strict host policy requires at least one domain")
}

func Test_Settings_ResolveDomains_handlesNil(t *testing.T) {
	s := &Settings{}
	assert.Nil(t, s.ResolveDomains())
	assert.False(t, s.ResolveAllowHTML())
}

func Test_Settings_ResolvesFunctionValues(t *testing.T) {
	allow := false
	s := &Settings{AllowHTML: Func[bool](func() bool { return allow })}

	assert.False(t, s.ResolveAllowHTML())
	allow = true
	assert.True(t, s.ResolveAllowHTML())
}

func Test_ParseModes(t *testing.T) {
	d, err := ParseHTMLDenial("Downgrade")
	assert.NoError(t, err)
	assert.Equal(t, HTMLDenialDowngrade, d)

	r, err := ParseRedirect("follow")
	assert.NoError(t, err)
	assert.Equal(t, RedirectFollow, r)

	p, err := ParseHostPolicy("STRICT")
	assert.NoError(t, err)
	assert.Equal(t, HostPolicyStrict, p)

	_, err = ParseHTMLDenial("explode")
	assert.Error(t, err)
	_, err = ParseRedirect("sometimes")
	assert.Error(t, err)
	_, err = ParseHostPolicy("lax")
	assert.Error(t, err)
}

func Test_SplitList(t *testing.T) {
	assert.Equal(t, []string{"a.com", "b.com", "c.com"}, SplitList(" a.com,b.com  c.com, "))
	assert.Empty(t, SplitList(""))
}
