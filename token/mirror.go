package token

import (
	"errors"
	"time"
)

// ErrExpired is returned when a mirror token carries an expiry in the past.
var ErrExpired = errors.New("token expired")

// MirrorToken carries the upstream challenge details between the two legs of
// the registry authentication flow. It is only ever stored by the client.
type MirrorToken struct {
	Realm   string `json:"realm"`
	Service string `json:"service"`
	Expires int64  `json:"exp,omitempty"`
}

// Issuer creates and opens mirror tokens.
type Issuer struct {
	codec *Codec
	ttl   time.Duration
	now   func() time.Time
}

// NewIssuer creates an Issuer signing with the given codec. If ttl is zero
// tokens never expire.
func NewIssuer(codec *Codec, ttl time.Duration) *Issuer {
	return &Issuer{
		codec: codec,
		ttl:   ttl,
		now:   time.Now,
	}
}

// Issue signs a token for the given realm and service.
func (i *Issuer) Issue(realm, service string) (string, error) {
	t := MirrorToken{
		Realm:   realm,
		Service: service,
	}
	if i.ttl > 0 {
		t.Expires = i.now().Add(i.ttl).Unix()
	}
	return i.codec.Sign(t)
}

// Open verifies a token previously produced by Issue.
func (i *Issuer) Open(envelope string) (*MirrorToken, error) {
	if envelope == "" {
		return nil, ErrInvalidToken
	}

	t := &MirrorToken{}
	if err := i.codec.Verify(envelope, t); err != nil {
		return nil, err
	}

	if t.Realm == "" || t.Service == "" {
		return nil, ErrInvalidToken
	}

	if t.Expires != 0 && i.now().Unix() > t.Expires {
		return nil, ErrExpired
	}

	return t, nil
}
