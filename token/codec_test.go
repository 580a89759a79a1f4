package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Codec_roundTrips(t *testing.T) {
	codec := NewCodec("hunter2")

	payloads := []map[string]any{
		{},
		{"realm": "https://auth.docker.io/token", "service": "registry.docker.io"},
		{"number": 1.5, "flag": true, "nested": map[string]any{"list": []any{"a", "b"}}},
		{"unicode": "ünïcødé ✓", "empty": ""},
	}

	for _, payload := range payloads {
		envelope, err := codec.Sign(payload)
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, codec.Verify(envelope, &decoded))
		assert.Equal(t, payload, decoded)
	}
}

func Test_Codec_Sign_isDeterministic(t *testing.T) {
	codec := NewCodec("hunter2")

	first, err := codec.Sign(map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)
	second, err := codec.Sign(map[string]string{"a": "1", "b": "2"})
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func Test_Codec_Sign_producesEnvelopeFormat(t *testing.T) {
	codec := NewCodec("hunter2")

	envelope, err := codec.Sign(MirrorToken{Realm: "r", Service: "s"})
	require.NoError(t, err)

	parts := strings.Split(envelope, ".")
	require.Len(t, parts, 2)
	assert.NotContains(t, envelope, "=")
	assert.NotContains(t, envelope, "+")
	assert.NotContains(t, envelope, "/")

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Equal(t, `{"realm":"r","service":"s"}`, string(payload))

	mac := hmac.New(sha256.New, []byte("hunter2"))
	mac.Write(payload)
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), parts[1])
}

func Test_Codec_Verify_detectsTampering(t *testing.T) {
	codec := NewCodec("hunter2")

	envelope, err := codec.Sign(map[string]string{"realm": "https://auth.docker.io/token", "service": "registry.docker.io"})
	require.NoError(t, err)

	for i := 0; i < len(envelope); i++ {
		tampered := []byte(envelope)
		tampered[i] ^= 0x01

		var decoded map[string]any
		assert.ErrorIs(t, codec.Verify(string(tampered), &decoded), ErrInvalidToken, "byte %d", i)
		assert.Nil(t, decoded)
	}
}

func Test_Codec_Verify_rejectsOtherKeys(t *testing.T) {
	envelope, err := NewCodec("key-one").Sign(map[string]string{"a": "b"})
	require.NoError(t, err)

	var decoded map[string]any
	assert.ErrorIs(t, NewCodec("key-two").Verify(envelope, &decoded), ErrInvalidToken)
}

func Test_Codec_Verify_rejectsMalformedEnvelopes(t *testing.T) {
	codec := NewCodec("hunter2")

	valid, err := codec.Sign(map[string]string{"a": "b"})
	require.NoError(t, err)
	parts := strings.Split(valid, ".")

	notJSON := base64.RawURLEncoding.EncodeToString([]byte("not json"))
	mac := hmac.New(sha256.New, []byte("hunter2"))
	mac.Write([]byte("not json"))
	notJSONEnvelope := notJSON + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	tests := map[string]string{
		"empty":          "",
		"garbage":        "garbage",
		"single segment": parts[0],
		"three segments": valid + "." + parts[1],
		"padded":         parts[0] + "." + parts[1] + "=",
		"bad base64":     "!!!." + parts[1],
		"not json":       notJSONEnvelope,
	}

	for name, envelope := range tests {
		t.Run(name, func(t *testing.T) {
			var decoded map[string]any
			assert.ErrorIs(t, codec.Verify(envelope, &decoded), ErrInvalidToken)
		})
	}
}

func Test_Codec_WithLegacyKeyPadding_truncatesLongKeys(t *testing.T) {
	prefix := strings.Repeat("k", 32)

	signer := NewCodec(prefix+"-first", WithLegacyKeyPadding())
	verifier := NewCodec(prefix+"-second", WithLegacyKeyPadding())

	envelope, err := signer.Sign(map[string]string{"a": "b"})
	require.NoError(t, err)

	var decoded map[string]string
	assert.NoError(t, verifier.Verify(envelope, &decoded))
	assert.Equal(t, map[string]string{"a": "b"}, decoded)

	assert.ErrorIs(t, NewCodec(prefix+"-second").Verify(envelope, &decoded), ErrInvalidToken)
}

func Test_Codec_WithLegacyKeyPadding_matchesPlainKeyWhenShort(t *testing.T) {
	// HMAC zero-pads short keys to its block size, so padding to 32 bytes
	// first makes no difference.
	legacy, err := NewCodec("short", WithLegacyKeyPadding()).Sign(map[string]string{"a": "b"})
	require.NoError(t, err)
	plain, err := NewCodec("short").Sign(map[string]string{"a": "b"})
	require.NoError(t, err)

	assert.Equal(t, plain, legacy)
}
