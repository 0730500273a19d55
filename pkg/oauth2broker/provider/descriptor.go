// Package provider holds the validated description of an OAuth2 provider
// (its endpoints, enabled grants, client-auth preference, and wire quirks)
// and the default error-classification strategy applied to its responses.
package provider

import (
	"fmt"
	"net/url"
	"unicode"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
)

// Grant is one of the RFC 6749 grant types the broker understands.
type Grant string

const (
	GrantClientCredentials Grant = "client_credentials"
	GrantRefreshToken      Grant = "refresh_token"
	GrantAuthorizationCode Grant = "authorization_code"
	GrantDeviceCode        Grant = "urn:ietf:params:oauth:grant-type:device_code"
)

// ClientAuthMethod selects how the facade authenticates the client to the
// token endpoint (spec §6.4).
type ClientAuthMethod string

const (
	ClientSecretBasic ClientAuthMethod = "client_secret_basic"
	ClientSecretPost  ClientAuthMethod = "client_secret_post"
	NoneWithPkce      ClientAuthMethod = "none_with_pkce"
)

// Quirks holds provider-specific wire behavior that doesn't warrant its
// own descriptor field.
type Quirks struct {
	// ScopeDelimiter joins multiple scopes in outbound requests. Most
	// providers use a single space per RFC 6749; a handful of legacy
	// providers use commas.
	ScopeDelimiter string
}

// Descriptor is the validated, immutable metadata about a single OAuth2
// provider. Construct via NewBuilder + Build; the zero value is not
// valid.
type Descriptor struct {
	id                        ids.ProviderId
	authorizationURL          *url.URL
	tokenURL                  *url.URL
	revocationURL             *url.URL
	deviceAuthorizationURL    *url.URL
	grants                    map[Grant]bool
	pkceRequired              bool
	preferredClientAuthMethod ClientAuthMethod
	quirks                    Quirks
	clientOverride            *ClientCredentialOverride
	built                     bool
}

// ClientCredentialOverride replaces the broker-wide default client
// identity for requests against this one provider, so a single broker
// can serve tenants against providers with distinct registered OAuth
// clients rather than sharing one global client identity.
type ClientCredentialOverride struct {
	ClientID     string
	ClientSecret string
}

// Builder assembles a Descriptor.
type Builder struct {
	d Descriptor
}

// NewBuilder starts a provider descriptor builder for id, defaulting to
// ClientSecretBasic auth and a single-space scope delimiter.
func NewBuilder(id ids.ProviderId) *Builder {
	return &Builder{d: Descriptor{
		id:                        id,
		grants:                    map[Grant]bool{},
		preferredClientAuthMethod: ClientSecretBasic,
		quirks:                    Quirks{ScopeDelimiter: " "},
	}}
}

// AuthorizationURL sets the authorization endpoint.
func (b *Builder) AuthorizationURL(raw string) *Builder {
	if u, err := url.Parse(raw); err == nil {
		b.d.authorizationURL = u
	}
	return b
}

// TokenURL sets the token endpoint.
func (b *Builder) TokenURL(raw string) *Builder {
	if u, err := url.Parse(raw); err == nil {
		b.d.tokenURL = u
	}
	return b
}

// RevocationURL sets the optional revocation endpoint (RFC 7009).
func (b *Builder) RevocationURL(raw string) *Builder {
	if u, err := url.Parse(raw); err == nil {
		b.d.revocationURL = u
	}
	return b
}

// DeviceAuthorizationURL sets the optional device authorization endpoint
// (RFC 8628), required when device_code is enabled.
func (b *Builder) DeviceAuthorizationURL(raw string) *Builder {
	if u, err := url.Parse(raw); err == nil {
		b.d.deviceAuthorizationURL = u
	}
	return b
}

// ClientCredentialOverride replaces the broker-wide default client
// identity for requests against this provider.
func (b *Builder) ClientCredentialOverride(clientID, clientSecret string) *Builder {
	b.d.clientOverride = &ClientCredentialOverride{ClientID: clientID, ClientSecret: clientSecret}
	return b
}

// EnableGrant marks grant as supported.
func (b *Builder) EnableGrant(grant Grant) *Builder {
	b.d.grants[grant] = true
	return b
}

// RequirePkce marks PKCE as mandatory for the authorization_code grant.
func (b *Builder) RequirePkce() *Builder {
	b.d.pkceRequired = true
	return b
}

// ClientAuthMethod overrides the preferred client authentication method.
func (b *Builder) ClientAuthMethod(method ClientAuthMethod) *Builder {
	b.d.preferredClientAuthMethod = method
	return b
}

// ScopeDelimiter overrides the default single-space scope delimiter.
func (b *Builder) ScopeDelimiter(delimiter string) *Builder {
	b.d.quirks.ScopeDelimiter = delimiter
	return b
}

// Build validates and freezes the descriptor.
func (b *Builder) Build() (*Descriptor, error) {
	d := b.d

	if err := requireHTTPS("authorization_url", d.authorizationURL); err != nil {
		return nil, err
	}
	if err := requireHTTPS("token_url", d.tokenURL); err != nil {
		return nil, err
	}
	if d.revocationURL != nil {
		if err := requireHTTPS("revocation_url", d.revocationURL); err != nil {
			return nil, err
		}
	}

	if len(d.grants) == 0 {
		return nil, fmt.Errorf("oauth2broker/provider: descriptor %q enables no grants", d.id.String())
	}

	if d.pkceRequired && !d.grants[GrantAuthorizationCode] {
		return nil, fmt.Errorf(
			"oauth2broker/provider: descriptor %q requires pkce but does not enable authorization_code", d.id.String(),
		)
	}

	if d.grants[GrantDeviceCode] && d.deviceAuthorizationURL == nil {
		return nil, fmt.Errorf(
			"oauth2broker/provider: descriptor %q enables device_code but has no device authorization url", d.id.String(),
		)
	}
	if d.deviceAuthorizationURL != nil {
		if err := requireHTTPS("device_authorization_url", d.deviceAuthorizationURL); err != nil {
			return nil, err
		}
	}

	for _, r := range d.quirks.ScopeDelimiter {
		if !unicode.IsPrint(r) {
			return nil, fmt.Errorf("oauth2broker/provider: scope delimiter must be printable, got %q", d.quirks.ScopeDelimiter)
		}
	}

	d.built = true
	return &d, nil
}

// requireHTTPS enforces TLS on provider endpoints, with the same
// localhost exception used elsewhere for endpoint discovery: a plain
// HTTP loopback address is allowed so a descriptor can point at an
// in-process fake IdP or test server without a TLS fixture.
func requireHTTPS(field string, u *url.URL) error {
	if u == nil || u.String() == "" {
		return fmt.Errorf("oauth2broker/provider: %s is required", field)
	}
	if u.Scheme == "https" {
		return nil
	}
	if u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1" || u.Hostname() == "::1" {
		return nil
	}
	return fmt.Errorf("oauth2broker/provider: %s must use https, got %q", field, u.Scheme)
}

// ID returns the provider identifier.
func (d *Descriptor) ID() ids.ProviderId { return d.id }

// AuthorizationURL returns a clone of the authorization endpoint so callers
// can safely append query parameters without mutating the descriptor.
func (d *Descriptor) AuthorizationURL() *url.URL {
	clone := *d.authorizationURL
	return &clone
}

// TokenURL returns the token endpoint.
func (d *Descriptor) TokenURL() *url.URL { return d.tokenURL }

// RevocationURL returns the revocation endpoint, or nil if unsupported.
func (d *Descriptor) RevocationURL() *url.URL { return d.revocationURL }

// DeviceAuthorizationURL returns the device authorization endpoint, or nil
// if the provider does not support the device_code grant.
func (d *Descriptor) DeviceAuthorizationURL() *url.URL { return d.deviceAuthorizationURL }

// ClientCredentialOverride returns the provider-specific client identity
// override, or nil if this provider uses the broker's default identity.
func (d *Descriptor) ClientCredentialOverride() *ClientCredentialOverride { return d.clientOverride }

// EnablesGrant reports whether grant is supported by this provider.
func (d *Descriptor) EnablesGrant(grant Grant) bool { return d.grants[grant] }

// PkceRequired reports whether PKCE is mandatory for authorization_code.
func (d *Descriptor) PkceRequired() bool { return d.pkceRequired }

// PreferredClientAuthMethod returns the client authentication method.
func (d *Descriptor) PreferredClientAuthMethod() ClientAuthMethod { return d.preferredClientAuthMethod }

// Quirks returns the provider's wire quirks.
func (d *Descriptor) Quirks() Quirks { return d.quirks }
