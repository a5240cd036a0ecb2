package fetch

import (
	"context"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
)

// NewSessionClient behaves like NewHTTPClient but presents a Chrome TLS
// fingerprint and carries cookies across requests. Scrape traffic goes
// through here: the plain Go handshake gets flagged by bot heuristics on
// some edge pops, a cloned browser hello does not.
func NewSessionClient(jar http.CookieJar, timeout time.Duration) *http.Client {
	var transport http.RoundTripper = &consistentTransport{
		base:      newUTLSTransport(utls.HelloChrome_120),
		userAgent: BrowserUserAgent,
	}
	transport = newRetryTransport(transport, defaultRetryConfig)
	return &http.Client{
		Timeout:   timeout,
		Jar:       jar,
		Transport: transport,
	}
}

func newUTLSTransport(hello utls.ClientHelloID) *http.Transport {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			rawConn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				rawConn.Close()
				return nil, err
			}
			config := &utls.Config{ServerName: host, NextProtos: []string{"h2", "http/1.1"}}
			conn := utls.UClient(rawConn, config, hello)
			if err := conn.Handshake(); err != nil {
				rawConn.Close()
				return nil, err
			}
			return conn, nil
		},
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
