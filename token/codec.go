package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidToken is returned for any envelope that can't be trusted. Malformed
// envelopes and signature mismatches are deliberately indistinguishable.
var ErrInvalidToken = errors.New("invalid token")

const legacyKeySize = 32

var encoding = base64.RawURLEncoding.Strict()

// Codec signs small payloads into opaque, URL-safe envelopes of the form
// base64url(payload) + "." + base64url(hmac-sha256(key, payload)).
type Codec struct {
	key []byte
}

// Option modifies the behaviour of a Codec.
type Option func(*Codec)

// WithLegacyKeyPadding copies the secret into a fixed 32 byte zero-filled
// buffer before use, truncating longer secrets. Envelopes produced this way
// are interchangeable with deployments that size their keys like that.
func WithLegacyKeyPadding() Option {
	return func(c *Codec) {
		key := make([]byte, legacyKeySize)
		copy(key, c.key)
		c.key = key
	}
}

// NewCodec creates a codec that signs with the given secret. By default the
// secret is handed to HMAC unchanged.
func NewCodec(secret string, opts ...Option) *Codec {
	c := &Codec{key: []byte(secret)}
	for i := range opts {
		opts[i](c)
	}
	return c
}

// Sign serialises the payload as JSON and returns the signed envelope.
// Struct fields serialise in declaration order and map keys are sorted, so
// the same payload always produces the same envelope.
func (c *Codec) Sign(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to serialise payload: %w", err)
	}

	return encoding.EncodeToString(data) + "." + encoding.EncodeToString(c.mac(data)), nil
}

// Verify checks the envelope's signature and, only if it matches, decodes
// the payload into v.
func (c *Codec) Verify(envelope string, v any) error {
	parts := strings.Split(envelope, ".")
	if len(parts) != 2 {
		return ErrInvalidToken
	}

	data, err := encoding.DecodeString(parts[0])
	if err != nil {
		return ErrInvalidToken
	}

	signature, err := encoding.DecodeString(parts[1])
	if err != nil {
		return ErrInvalidToken
	}

	if !hmac.Equal(signature, c.mac(data)) {
		return ErrInvalidToken
	}

	if err := json.Unmarshal(data, v); err != nil {
		return ErrInvalidToken
	}
	return nil
}

func (c *Codec) mac(data []byte) []byte {
	h := hmac.New(sha256.New, c.key)
	h.Write(data)
	return h.Sum(nil)
}
