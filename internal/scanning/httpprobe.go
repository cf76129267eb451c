package scanning

import (
	"context"
	"net/http"
	"time"

	"github.com/gunout/network-scanner/internal/errors"
	"github.com/gunout/network-scanner/internal/logging"
)

// HTTPProbe issues a HEAD request against the target URL and records the
// server and security headers of the final response.
type HTTPProbe struct {
	client    *http.Client
	userAgent string
	logger    *logging.Logger
}

// NewHTTPProbe creates a probe with its own client. A nil transport uses
// http.DefaultTransport.
func NewHTTPProbe(timeout time.Duration, userAgent string, transport http.RoundTripper) *HTTPProbe {
	return &HTTPProbe{
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		userAgent: userAgent,
		logger:    logging.Default().WithComponent("http"),
	}
}

// Probe requests url, following redirects, and fills in a ServerInfo section.
func (p *HTTPProbe) Probe(ctx context.Context, url string) ServerInfo {
	info, _ := p.probe(ctx, url)
	return info
}

func (p *HTTPProbe) probe(ctx context.Context, url string) (ServerInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		scanErr := errors.WrapScanErrorWithTarget(errors.CodeTargetInvalid, "cannot build HTTP request", url, err)
		return ServerInfo{Error: scanErr.Error()}, scanErr
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		scanErr := errors.Wrap("HTTP request failed", url, err)
		return ServerInfo{Error: scanErr.Error()}, scanErr
	}
	defer resp.Body.Close()

	info := ServerInfo{
		Server:      resp.Header.Get("Server"),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		SecurityHeaders: &SecurityHeaders{
			StrictTransportSecurity: headerValue(resp.Header, "Strict-Transport-Security"),
			ContentSecurityPolicy:   headerValue(resp.Header, "Content-Security-Policy"),
			XFrameOptions:           headerValue(resp.Header, "X-Frame-Options"),
		},
	}

	p.logger.Debug("HTTP probe completed", "url", url, "status", resp.StatusCode, "final_url", info.FinalURL)
	return info, nil
}

// headerValue returns nil when the header is absent.
func headerValue(h http.Header, name string) *string {
	values := h.Values(name)
	if len(values) == 0 {
		return nil
	}
	value := values[0]
	return &value
}
