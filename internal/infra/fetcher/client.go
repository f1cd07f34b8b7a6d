package fetcher

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/doyensec/safeurl"
)

// NewHTTPClient builds the client used for feed and page requests. With
// DenyPrivateIPs the client is a safeurl client, which validates every
// resolved address in the dialer and so also covers redirects and DNS rebinding.
func NewHTTPClient(cfg Config) *http.Client {
	var client *http.Client
	if cfg.DenyPrivateIPs {
		sc := safeurl.GetConfigBuilder().
			SetTimeout(cfg.Timeout).
			SetAllowedSchemes("http", "https").
			SetAllowedPorts(80, 443).
			Build()
		client = safeurl.Client(sc).Client
	} else {
		client = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		}
	}

	maxRedirects := cfg.MaxRedirects
	denyPrivate := cfg.DenyPrivateIPs
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: %d redirects", ErrTooManyRedirects, len(via))
		}
		if err := ValidateURL(req.URL.String(), denyPrivate); err != nil {
			return fmt.Errorf("redirect target validation failed: %w", err)
		}
		return nil
	}
	return client
}
