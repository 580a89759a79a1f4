package proxy

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/csmith/mirrorgate/config"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

const forbiddenHTML = "HTML is forbidden"

type contentClass int

const (
	contentOpaque contentClass = iota
	contentHTML
	contentRewritable
)

// ContentPolicy decides what happens to a response body based on its type.
//
// Media, git and other application/x-* types are never touched. HTML is
// refused or relabelled unless AllowHTML is set. HTML, CSS and JavaScript
// bodies are passed through the Rewriter, if there is one.
type ContentPolicy struct {
	AllowHTML bool
	Denial    config.HTMLDenial
	Rewriter  *Rewriter
}

// Apply modifies the response according to the policy.
func (p *ContentPolicy) Apply(resp *http.Response) error {
	contentType := resp.Header.Get("Content-Type")
	class := classify(contentType)

	if class == contentHTML && !p.AllowHTML {
		switch p.Denial {
		case config.HTMLDenialDowngrade:
			resp.Header.Set("Content-Type", downgradeContentType(contentType))
			resp.Header.Set("X-Content-Type-Options", "nosniff")
			return nil
		default:
			return forbid(resp)
		}
	}

	if class == contentOpaque || p.Rewriter == nil || !hasBody(resp) {
		return nil
	}

	body, ok, err := decodeBody(resp)
	if err != nil {
		return fmt.Errorf("failed to decode upstream body: %w", err)
	}
	if !ok {
		return nil
	}

	body = p.Rewriter.Rewrite(body, class == contentHTML)
	replaceBody(resp, body)
	resp.Header.Del("Content-Encoding")
	return nil
}

func classify(contentType string) contentClass {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType, _, _ = strings.Cut(strings.ToLower(contentType), ";")
		mediaType = strings.TrimSpace(mediaType)
	}

	switch {
	case strings.HasPrefix(mediaType, "image/"),
		strings.HasPrefix(mediaType, "video/"),
		strings.HasPrefix(mediaType, "application/x-"):
		return contentOpaque
	case mediaType == "text/html":
		return contentHTML
	case mediaType == "text/css",
		mediaType == "application/javascript",
		mediaType == "text/javascript":
		return contentRewritable
	default:
		return contentOpaque
	}
}

func hasBody(resp *http.Response) bool {
	if resp.Request != nil && resp.Request.Method == http.MethodHead {
		return false
	}
	return resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotModified && resp.ContentLength != 0
}

func downgradeContentType(contentType string) string {
	_, params, found := strings.Cut(contentType, ";")
	if !found {
		return "text/plain"
	}
	return "text/plain;" + params
}

func forbid(resp *http.Response) error {
	if err := resp.Body.Close(); err != nil {
		return err
	}

	resp.StatusCode = http.StatusForbidden
	resp.Status = fmt.Sprintf("%d %s", http.StatusForbidden, http.StatusText(http.StatusForbidden))
	resp.Header = make(http.Header)
	resp.Header.Set("Content-Type", "text/plain; charset=utf-8")
	resp.Header.Set("X-Content-Type-Options", "nosniff")
	replaceBody(resp, []byte(forbiddenHTML))
	return nil
}

func replaceBody(resp *http.Response, body []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	resp.TransferEncoding = nil
	resp.Trailer = nil
}

// decodeBody reads the whole response body, undoing any content encoding.
// It returns false, leaving the body untouched, for unknown encodings.
func decodeBody(resp *http.Response) ([]byte, bool, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	var reader io.Reader
	switch encoding {
	case "", "identity":
		reader = resp.Body
	case "gzip", "x-gzip":
		r, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, false, err
		}
		defer r.Close()
		reader = r
	case "deflate":
		r, err := zlib.NewReader(resp.Body)
		if err != nil {
			return nil, false, err
		}
		defer r.Close()
		reader = r
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "zstd":
		r, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, false, err
		}
		defer r.Close()
		reader = r
	default:
		return nil, false, nil
	}

	defer resp.Body.Close()
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}
