package engine

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"
)

// HTTP2Tier is the second cascade tier: a plain HTTP/2 client with one
// randomly selected browser header bundle per request. The orchestrator
// skips it for hard sites, where the stock Go TLS handshake is an instant
// giveaway.
type HTTP2Tier struct{}

// NewHTTP2Tier creates the rotating-header HTTP/2 tier.
func NewHTTP2Tier() *HTTP2Tier { return &HTTP2Tier{} }

func (t *HTTP2Tier) Name() string { return TierHTTP2 }

func (t *HTTP2Tier) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	h2 := &http2.Transport{
		TLSClientConfig: &tls.Config{},
		DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			tlsConn := tls.Client(conn, cfg)
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
	}

	var transport http.RoundTripper = h2
	if req.Proxy != "" {
		// h2 over a proxy needs CONNECT handling the stock transport
		// already provides; fall back to the default stack there.
		proxyURL, err := url.Parse(req.Proxy)
		if err != nil {
			return nil, fmt.Errorf("http2 tier: bad proxy: %w", err)
		}
		transport = &http.Transport{
			Proxy:             http.ProxyURL(proxyURL),
			ForceAttemptHTTP2: true,
		}
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(r *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}
	defer client.CloseIdleConnections()

	return doFetch(ctx, client, req, randomBundle(req.URL), TierHTTP2)
}
