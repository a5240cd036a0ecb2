package fetch

import (
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/kkdai/youtube/v2"
)

// BrowserUserAgent is sent on every outbound request so search, thumbnail
// and stream traffic all present the same client fingerprint.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var sharedTransport = &http.Transport{
	MaxIdleConns:        100,
	MaxIdleConnsPerHost: 10,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	TLSHandshakeTimeout:   10 * time.Second,
	ResponseHeaderTimeout: 15 * time.Second,
	IdleConnTimeout:       90 * time.Second,
}

func CloseIdleConnections() {
	sharedTransport.CloseIdleConnections()
}

// consistentTransport fills in the headers a real browser would always send,
// without clobbering anything the caller set explicitly.
type consistentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *consistentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Accept-Language") == "" {
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "*/*")
	}
	return t.base.RoundTrip(req)
}

// NewHTTPClient returns a client with browser-consistent headers and
// transparent retries for transient failures. Page scrapes, API calls and
// thumbnail fetches all go through clients built here.
func NewHTTPClient(timeout time.Duration) *http.Client {
	var transport http.RoundTripper = &consistentTransport{
		base:      sharedTransport,
		userAgent: BrowserUserAgent,
	}
	transport = newRetryTransport(transport, defaultRetryConfig)
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NewYouTubeClient returns a stream client on the shared transport stack.
// A cookie jar is required: the media endpoints hand out session cookies on
// the first request and expect them back on range requests.
func NewYouTubeClient(timeout time.Duration) *youtube.Client {
	jar, _ := cookiejar.New(nil)
	var transport http.RoundTripper = &consistentTransport{
		base:      sharedTransport,
		userAgent: BrowserUserAgent,
	}
	transport = newRetryTransport(transport, defaultRetryConfig)
	return &youtube.Client{
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: transport,
		},
	}
}
