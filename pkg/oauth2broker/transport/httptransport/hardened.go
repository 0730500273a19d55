package httptransport

import (
	"net/http"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/transport"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/transport/hardened"
)

// NewHardened builds the default transport wrapped with retry-on-Transient
// behavior paced by retry, demonstrating the hardened-client extension
// point (pkg/oauth2broker/transport/hardened) without changing New's
// default, non-retrying behavior.
func NewHardened(base *http.Client, retry backoff.BackOff) transport.TokenHttpClient {
	return hardened.New(New(base), provider.DefaultStrategy{}, retry)
}
