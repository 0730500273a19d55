// Package httptransport is the default net/http-based TokenHttpClient
// implementation: POST, form-encoded, client-auth-method selection, no
// redirect following.
package httptransport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/transport"
)

// maxResponseBodySize caps how much of a token endpoint's response body
// Do reads, for success and error responses alike.
const maxResponseBodySize = 1 << 20

const defaultTimeout = 30 * time.Second

// Client is the default TokenHttpClient. It never follows redirects from
// the token endpoint, per the wire contract.
type Client struct {
	http *http.Client
}

// New constructs a Client. If httpClient is nil, a client with a 30s
// timeout and no-redirect policy is used.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	base := *httpClient
	base.CheckRedirect = noRedirects
	return &Client{http: &base}
}

func noRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

var _ transport.TokenHttpClient = (*Client)(nil)

// Do implements transport.TokenHttpClient.
func (c *Client) Do(
	ctx context.Context,
	endpoint *url.URL,
	form url.Values,
	auth transport.ClientAuth,
	metadata *transport.ResponseMetadataSlot,
) ([]byte, int, error) {
	metadata.Take()

	body := form.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(body))
	if err != nil {
		return nil, 0, &transport.BuildError{Err: fmt.Errorf("oauth2broker/transport: building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	applyClientAuth(req, auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, &transport.NetworkError{Err: fmt.Errorf("oauth2broker/transport: dispatching request: %w", err)}
	}
	defer resp.Body.Close()

	populateMetadata(metadata, resp)

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return nil, resp.StatusCode, &transport.NetworkError{Err: fmt.Errorf("oauth2broker/transport: reading response: %w", err)}
	}
	return respBody, resp.StatusCode, nil
}

func applyClientAuth(req *http.Request, auth transport.ClientAuth) {
	switch auth.Method {
	case provider.ClientSecretBasic:
		req.SetBasicAuth(url.QueryEscape(auth.ClientID), url.QueryEscape(auth.ClientSecret))
	case provider.ClientSecretPost:
		// handled by the caller adding client_id/client_secret to the form
		// before Do is invoked, since ClientSecretPost fields belong in the
		// body rather than a header.
	case provider.NoneWithPkce:
		// no client secret sent even if one is configured; PKCE verifier
		// carries authentication instead.
	}
}

func populateMetadata(slot *transport.ResponseMetadataSlot, resp *http.Response) {
	meta := transport.ResponseMetadata{Status: resp.StatusCode, HasStatus: true}
	if retryAfter, ok := parseRetryAfter(resp.Header.Get("Retry-After")); ok {
		meta.RetryAfter = retryAfter
		meta.HasRetry = true
	}
	slot.Store(meta)
}

func parseRetryAfter(header string) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(header); err == nil {
		d := time.Until(when)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// ApplyClientSecretPost adds client_id/client_secret to form when auth
// selects ClientSecretPost, since those fields belong in the request body
// rather than a header. Callers build the form before calling Do.
func ApplyClientSecretPost(form url.Values, auth transport.ClientAuth) {
	if auth.Method != provider.ClientSecretPost {
		return
	}
	form.Set("client_id", auth.ClientID)
	form.Set("client_secret", auth.ClientSecret)
}
