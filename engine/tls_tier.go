package engine

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	tls "github.com/refraction-networking/utls"
)

// decodeBody unwraps the response body according to Content-Encoding.
func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return flate.NewReader(resp.Body), nil
	case "br":
		return brotli.NewReader(resp.Body), nil
	default:
		return resp.Body, nil
	}
}

// tlsProfile pairs a browser TLS ClientHello with its matching header set.
// Sending browser headers over a stock Go TLS handshake is exactly what
// hard sites detect, so the handshake and the headers must agree.
type tlsProfile struct {
	name    string
	helloID tls.ClientHelloID
	headers headerBundle
}

// tlsProfiles is the fixed attempt order for the first tier. Chromium-based
// profiles carry Sec-CH-UA; Safari omits client hints entirely.
var tlsProfiles = []tlsProfile{
	{
		name:    "chrome-124",
		helloID: tls.HelloChrome_120,
		headers: chromiumBundle(
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			`"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`, `"Windows"`),
	},
	{
		name:    "chrome-120",
		helloID: tls.HelloChrome_106_Shuffle,
		headers: chromiumBundle(
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			`"Not_A Brand";v="8", "Chromium";v="120", "Google Chrome";v="120"`, `"macOS"`),
	},
	{
		name:    "safari-17",
		helloID: tls.HelloSafari_16_0,
		headers: safariBundle("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15"),
	},
	{
		name:    "safari-15",
		helloID: tls.HelloSafari_Auto,
		headers: safariBundle("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/15.6 Safari/605.1.15"),
	},
	{
		name:    "edge-101",
		helloID: tls.HelloEdge_106,
		headers: chromiumBundle(
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/101.0.4951.64 Safari/537.36 Edg/101.0.1210.47",
			`" Not A;Brand";v="99", "Chromium";v="101", "Microsoft Edge";v="101"`, `"Windows"`),
	},
}

// TLSTier is the first cascade tier: plain HTTP with genuine browser TLS
// fingerprints, attempting each profile in order and short-circuiting on
// the first success.
type TLSTier struct{}

// NewTLSTier creates the TLS-impersonating tier.
func NewTLSTier() *TLSTier { return &TLSTier{} }

func (t *TLSTier) Name() string { return TierTLSClient }

func (t *TLSTier) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	var partial *FetchResult

	for _, profile := range tlsProfiles {
		select {
		case <-ctx.Done():
			return partial, ctx.Err()
		default:
		}

		result, err := fetchWithProfile(ctx, req, profile)
		if err != nil {
			slog.Debug("tls profile failed",
				"profile", profile.name, "url", req.URL, "error", err)
			continue
		}
		if result.StatusCode < 400 && result.RawHTML != "" {
			return result, nil
		}
		// Error status with content is still worth keeping as a partial.
		if partial == nil && result.RawHTML != "" {
			partial = result
		}
	}

	if partial != nil {
		return partial, nil
	}
	return nil, fmt.Errorf("tls tier: all profiles failed for %s", req.URL)
}

// fetchWithProfile performs one GET with the profile's ClientHello and
// header bundle. ALPN is locked to http/1.1 because Go's http.Transport
// cannot frame HTTP/2 over a utls connection.
func fetchWithProfile(ctx context.Context, req *FetchRequest, profile tlsProfile) (*FetchResult, error) {
	spec, err := tls.UTLSIdToSpec(profile.helloID)
	if err != nil {
		return nil, fmt.Errorf("tls tier: spec for %s: %w", profile.name, err)
	}
	for i, ext := range spec.Extensions {
		if alpn, ok := ext.(*tls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
			spec.Extensions[i] = alpn
			break
		}
	}

	transport := &http.Transport{
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			dialer := &net.Dialer{Timeout: 10 * time.Second}
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			host, _, _ := net.SplitHostPort(addr)
			tlsConn := tls.UClient(conn, &tls.Config{ServerName: host}, tls.HelloCustom)
			if err := tlsConn.ApplyPreset(&spec); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply tls spec: %w", err)
			}
			if err := tlsConn.HandshakeContext(ctx); err != nil {
				conn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		ForceAttemptHTTP2: false,
	}
	if req.Proxy != "" {
		if proxyURL, perr := url.Parse(req.Proxy); perr == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
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

	return doFetch(ctx, client, req, profile.headers, TierTLSClient)
}

// doFetch runs one GET and normalises the response into a FetchResult.
// Shared by the TLS, HTTP/2, cache and archive tiers.
func doFetch(ctx context.Context, client *http.Client, req *FetchRequest, bundle headerBundle, tier string) (*FetchResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	if _, ok := bundle["Accept-Language"]; !ok {
		b := make(headerBundle, len(bundle)+1)
		for k, v := range bundle {
			b[k] = v
		}
		b["Accept-Language"] = AcceptLanguageFor(req.URL)
		bundle = b
	}
	applyBundle(httpReq.Header, bundle, req.Headers)
	for name, value := range req.Cookies {
		httpReq.AddCookie(&http.Cookie{Name: name, Value: value})
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// The bundles advertise gzip/deflate/br, so the transport will not
	// transparently decompress; do it here. 10 MB cap against unbounded
	// payloads.
	reader, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(reader, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= 400 && len(body) == 0 {
		return nil, fmt.Errorf("status %d with empty body", resp.StatusCode)
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &FetchResult{
		RawHTML:         string(body),
		StatusCode:      resp.StatusCode,
		ResponseHeaders: headers,
		SourceTier:      tier,
		FinalURL:        finalURL,
	}, nil
}
