package registry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/csmith/mirrorgate/config"
	"github.com/csmith/mirrorgate/dispatch"
	"github.com/csmith/mirrorgate/metrics"
	"github.com/csmith/mirrorgate/proxy"
	"github.com/csmith/mirrorgate/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testService = "mirror.example.com"

func testSettings() *config.Settings {
	return &config.Settings{
		ServiceName: testService,
		SignSecret:  "hunter2",
	}
}

func testIssuer() *token.Issuer {
	return token.NewIssuer(token.NewCodec("hunter2"), 0)
}

// serve routes a request through a dispatcher mounting the relay at /docker.
func serve(relay *Relay, custom dispatch.Custom, target string, settings *config.Settings) *httptest.ResponseRecorder {
	d := &dispatch.Dispatcher{
		Paths: []dispatch.PathRule{{
			Paths:  []string{"/docker"},
			Target: dispatch.Func(relay.Handle),
			Custom: custom,
		}},
	}

	rec := httptest.NewRecorder()
	d.Dispatch(rec, dispatch.NewRequest(httptest.NewRequest(http.MethodGet, target, nil), settings, "test"))
	return rec
}

type recordedRequest struct {
	path  string
	query url.Values
}

func recordingUpstream(t *testing.T, status int, header http.Header, body string) (*httptest.Server, *[]recordedRequest) {
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, recordedRequest{path: r.URL.Path, query: r.URL.Query()})
		for k, v := range header {
			w.Header()[k] = v
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func Test_Relay_ping_rewritesChallenge(t *testing.T) {
	upstream, requests := recordingUpstream(t, http.StatusUnauthorized, http.Header{
		"Www-Authenticate": {`Bearer realm="https://auth.docker.io/token",service="registry.docker.io"`},
	}, `{"errors":[]}`)

	issuer := testIssuer()
	recorder := metrics.NewRecorder()
	relay := NewRelay(issuer, proxy.NewForwarder("registry", time.Second), recorder)

	rec := serve(relay, dispatch.Custom{Upstream: upstream.URL}, "http://mirror.example.com/docker/v2/", testSettings())

	require.Len(t, *requests, 1)
	assert.Equal(t, "/v2/", (*requests)[0].path)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `{"errors":[]}`, rec.Body.String())

	challenge, err := ParseChallenge(rec.Header().Get("WWW-Authenticate"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer", challenge.Scheme)
	assert.Equal(t, testService, challenge.Service())

	realm, err := url.Parse(challenge.Realm())
	require.NoError(t, err)
	assert.Equal(t, "http", realm.Scheme)
	assert.Equal(t, "mirror.example.com", realm.Host)
	assert.Equal(t, "/docker/token", realm.Path)

	mirrorToken, err := issuer.Open(realm.Query().Get("mirror_token"))
	require.NoError(t, err)
	assert.Equal(t, "https://auth.docker.io/token", mirrorToken.Realm)
	assert.Equal(t, "registry.docker.io", mirrorToken.Service)

	metricsRec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metricsRec.Body.String(), `mirrorgate_token_total{result="issued"} 1`)
}

func Test_Relay_ping_usesForwardedScheme(t *testing.T) {
	upstream, _ := recordingUpstream(t, http.StatusUnauthorized, http.Header{
		"Www-Authenticate": {`Bearer realm="https://ghcr.io/token",service="ghcr.io"`},
	}, "")

	relay := NewRelay(testIssuer(), proxy.NewForwarder("registry", time.Second), nil)

	d := &dispatch.Dispatcher{
		Paths: []dispatch.PathRule{{
			Paths:  []string{"/ghcr"},
			Target: dispatch.Func(relay.Handle),
			Custom: dispatch.Custom{Upstream: upstream.URL, ThirdParty: true},
		}},
	}
	req := httptest.NewRequest(http.MethodGet, "http://mirror.example.com/ghcr/v2/", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec := httptest.NewRecorder()
	d.Dispatch(rec, dispatch.NewRequest(req, testSettings(), "test"))

	challenge, err := ParseChallenge(rec.Header().Get("WWW-Authenticate"))
	require.NoError(t, err)
	assert.Regexp(t, `^https://mirror\.example\.com/ghcr/token\?mirror_token=[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`, challenge.Realm())
}

func Test_Relay_ping_passesThroughUnusableChallenge(t *testing.T) {
	upstream, _ := recordingUpstream(t, http.StatusUnauthorized, http.Header{
		"Www-Authenticate": {`Basic realm="Registry Realm"`},
	}, "")

	relay := NewRelay(testIssuer(), proxy.NewForwarder("registry", time.Second), nil)
	rec := serve(relay, dispatch.Custom{Upstream: upstream.URL}, "http://mirror.example.com/docker/v2/", testSettings())

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="Registry Realm"`, rec.Header().Get("WWW-Authenticate"))
}

func Test_Relay_ping_passesThroughSuccess(t *testing.T) {
	upstream, _ := recordingUpstream(t, http.StatusOK, http.Header{
		"Docker-Distribution-Api-Version": {"registry/2.0"},
	}, "{}")

	relay := NewRelay(testIssuer(), proxy.NewForwarder("registry", time.Second), nil)
	rec := serve(relay, dispatch.Custom{Upstream: upstream.URL}, "http://mirror.example.com/docker/v2", testSettings())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "registry/2.0", rec.Header().Get("Docker-Distribution-Api-Version"))
	assert.Empty(t, rec.Header().Get("WWW-Authenticate"))
}

func Test_Relay_exchange_completesNamespace(t *testing.T) {
	auth, requests := recordingUpstream(t, http.StatusOK, http.Header{
		"Content-Type": {"application/json"},
	}, `{"token":"abc"}`)

	issuer := testIssuer()
	mirrorToken, err := issuer.Issue(auth.URL+"/token", "registry.docker.io")
	require.NoError(t, err)

	relay := NewRelay(issuer, proxy.NewForwarder("registry", time.Second), nil)
	rec := serve(relay, dispatch.Custom{}, "http://mirror.example.com/docker/token?service="+testService+"&mirror_token="+url.QueryEscape(mirrorToken)+"&scope=repository:busybox:pull", testSettings())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"token":"abc"}`, rec.Body.String())

	require.Len(t, *requests, 1)
	assert.Equal(t, "/token", (*requests)[0].path)
	assert.Equal(t, url.Values{
		"scope":   {"repository:library/busybox:pull"},
		"service": {"registry.docker.io"},
	}, (*requests)[0].query)
}

func Test_Relay_exchange_keepsRealmQueryAndThirdPartyScopes(t *testing.T) {
	auth, requests := recordingUpstream(t, http.StatusOK, nil, "{}")

	issuer := testIssuer()
	mirrorToken, err := issuer.Issue(auth.URL+"/v2/token?tenant=abc", "gcr.io")
	require.NoError(t, err)

	relay := NewRelay(issuer, proxy.NewForwarder("registry", time.Second), nil)
	rec := serve(relay, dispatch.Custom{ThirdParty: true}, "http://mirror.example.com/docker/v2/token?service="+testService+"&mirror_token="+url.QueryEscape(mirrorToken)+"&scope=repository:busybox:pull&scope=repository:other:pull", testSettings())

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, *requests, 1)
	assert.Equal(t, "/v2/token", (*requests)[0].path)
	assert.Equal(t, url.Values{
		"tenant":  {"abc"},
		"scope":   {"repository:busybox:pull", "repository:other:pull"},
		"service": {"gcr.io"},
	}, (*requests)[0].query)
}

func Test_Relay_exchange_rejectsInvalidToken(t *testing.T) {
	recorder := metrics.NewRecorder()
	relay := NewRelay(testIssuer(), proxy.NewForwarder("registry", time.Second), recorder)
	rec := serve(relay, dispatch.Custom{}, "http://mirror.example.com/docker/token?service="+testService+"&mirror_token=garbage", testSettings())

	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	metricsRec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, metricsRec.Body.String(), `mirrorgate_token_total{result="invalid"} 1`)
}

func Test_Relay_exchange_rejectsTokenSignedWithAnotherSecret(t *testing.T) {
	mirrorToken, err := token.NewIssuer(token.NewCodec("other"), 0).Issue("https://auth.docker.io/token", "registry.docker.io")
	require.NoError(t, err)

	relay := NewRelay(testIssuer(), proxy.NewForwarder("registry", time.Second), nil)
	rec := serve(relay, dispatch.Custom{}, "http://mirror.example.com/docker/token?service="+testService+"&mirror_token="+url.QueryEscape(mirrorToken), testSettings())

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func Test_Relay_exchange_rejectsWrongService(t *testing.T) {
	auth, requests := recordingUpstream(t, http.StatusOK, nil, "{}")

	issuer := testIssuer()
	mirrorToken, err := issuer.Issue(auth.URL+"/token", "registry.docker.io")
	require.NoError(t, err)

	relay := NewRelay(issuer, proxy.NewForwarder("registry", time.Second), nil)

	rec := serve(relay, dispatch.Custom{}, "http://mirror.example.com/docker/token?service=wrong&mirror_token="+url.QueryEscape(mirrorToken), testSettings())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(relay, dispatch.Custom{}, "http://mirror.example.com/docker/token?service=wrong", testSettings())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Empty(t, *requests)
}

func Test_Relay_forward_completesRepositoryPath(t *testing.T) {
	upstream, requests := recordingUpstream(t, http.StatusOK, nil, "manifest")

	relay := NewRelay(testIssuer(), proxy.NewForwarder("registry", time.Second), nil)
	rec := serve(relay, dispatch.Custom{Upstream: upstream.URL}, "http://mirror.example.com/docker/v2/busybox/manifests/latest?ns=docker.io", testSettings())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "manifest", rec.Body.String())
	require.Len(t, *requests, 1)
	assert.Equal(t, "/v2/library/busybox/manifests/latest", (*requests)[0].path)
	assert.Equal(t, "docker.io", (*requests)[0].query.Get("ns"))
}

func Test_Relay_forward_leavesThirdPartyPathsAlone(t *testing.T) {
	upstream, requests := recordingUpstream(t, http.StatusOK, nil, "blob")

	relay := NewRelay(testIssuer(), proxy.NewForwarder("registry", time.Second), nil)
	serve(relay, dispatch.Custom{Upstream: upstream.URL, ThirdParty: true}, "http://mirror.example.com/docker/v2/busybox/blobs/sha256:abc", testSettings())

	require.Len(t, *requests, 1)
	assert.Equal(t, "/v2/busybox/blobs/sha256:abc", (*requests)[0].path)
}
