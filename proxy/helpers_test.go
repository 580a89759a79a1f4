package proxy

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/csmith/mirrorgate/config"
	"github.com/csmith/mirrorgate/dispatch"
	"github.com/stretchr/testify/require"
)

func newTestRequest(method, target string, settings *config.Settings) *dispatch.Request {
	return dispatch.NewRequest(httptest.NewRequest(method, target, nil), settings, "test")
}

func mustParse(t *testing.T, raw string) *url.URL {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func staticUpstream(contentType, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
}
