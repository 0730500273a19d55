// Package facade formats RFC 6749 token requests, invokes the configured
// transport, and normalizes successful responses into TokenRecords —
// or classifies failures into the broker's closed error taxonomy via the
// provider's strategy and error mapper.
package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokererrors"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/tokenrecord"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/transport"
)

// Credentials is the client's registered identity at the provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Facade drives a single provider's token endpoint: one Facade is built
// per (descriptor, strategy, transport, mapper, credentials) tuple and
// reused across every flow the broker runs against that provider.
type Facade struct {
	descriptor  *provider.Descriptor
	strategy    provider.Strategy
	client      transport.TokenHttpClient
	mapper      transport.ErrorMapper
	credentials Credentials
}

// New constructs a Facade.
func New(descriptor *provider.Descriptor, strategy provider.Strategy, client transport.TokenHttpClient, mapper transport.ErrorMapper, credentials Credentials) *Facade {
	return &Facade{descriptor: descriptor, strategy: strategy, client: client, mapper: mapper, credentials: credentials}
}

// RefreshResult carries both the rebuilt record and whether the provider
// rotated the refresh secret, so the broker can decide whether to carry
// the old refresh secret forward.
type RefreshResult struct {
	Record         tokenrecord.TokenRecord
	RotatedRefresh tokenrecord.TokenSecret
	RefreshRotated bool
}

type wireResponse struct {
	AccessToken      string       `json:"access_token"`
	TokenType        string       `json:"token_type"`
	ExpiresIn        *json.Number `json:"expires_in"`
	RefreshToken     string       `json:"refresh_token"`
	Scope            string       `json:"scope"`
	Error            string       `json:"error"`
	ErrorDescription string       `json:"error_description"`
}

// ClientCredentials executes the client_credentials grant and normalizes
// the response into a TokenRecord, per spec §4.5.
func (f *Facade) ClientCredentials(ctx context.Context, family ids.TokenFamily, scope *ids.ScopeSet, extra url.Values) (tokenrecord.TokenRecord, error) {
	form := url.Values{"grant_type": {string(provider.GrantClientCredentials)}}
	f.applyScope(form, scope)
	for k, v := range extra {
		if k == "grant_type" || k == "scope" {
			continue
		}
		form[k] = v
	}
	f.strategy.AugmentTokenRequest(provider.GrantClientCredentials, form)

	resp, err := f.execute(ctx, provider.GrantClientCredentials, form)
	if err != nil {
		return tokenrecord.TokenRecord{}, err
	}
	if err := f.checkScopeUnchanged(resp, scope, provider.GrantClientCredentials); err != nil {
		return tokenrecord.TokenRecord{}, err
	}

	return f.buildRecord(family, scope, resp)
}

// AuthorizationCode executes the authorization_code grant.
func (f *Facade) AuthorizationCode(ctx context.Context, family ids.TokenFamily, scope *ids.ScopeSet, code, verifier, redirectURI string) (tokenrecord.TokenRecord, error) {
	form := url.Values{
		"grant_type":    {string(provider.GrantAuthorizationCode)},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"code_verifier": {verifier},
	}
	f.strategy.AugmentTokenRequest(provider.GrantAuthorizationCode, form)

	resp, err := f.execute(ctx, provider.GrantAuthorizationCode, form)
	if err != nil {
		return tokenrecord.TokenRecord{}, err
	}
	if err := f.checkScopeUnchanged(resp, scope, provider.GrantAuthorizationCode); err != nil {
		return tokenrecord.TokenRecord{}, err
	}

	return f.buildRecord(family, scope, resp)
}

// RefreshToken executes the refresh_token grant, returning both the
// rebuilt record and whether the provider rotated the refresh secret.
func (f *Facade) RefreshToken(ctx context.Context, family ids.TokenFamily, scope *ids.ScopeSet, expectedRefresh tokenrecord.TokenSecret) (RefreshResult, error) {
	form := url.Values{
		"grant_type":    {string(provider.GrantRefreshToken)},
		"refresh_token": {expectedRefresh.Expose()},
	}
	f.applyScope(form, scope)
	f.strategy.AugmentTokenRequest(provider.GrantRefreshToken, form)

	resp, err := f.execute(ctx, provider.GrantRefreshToken, form)
	if err != nil {
		return RefreshResult{}, err
	}
	if err := f.checkScopeUnchanged(resp, scope, provider.GrantRefreshToken); err != nil {
		return RefreshResult{}, err
	}

	record, err := f.buildRecord(family, scope, resp)
	if err != nil {
		return RefreshResult{}, err
	}

	if resp.RefreshToken == "" {
		return RefreshResult{Record: record}, nil
	}
	return RefreshResult{
		Record:         record,
		RotatedRefresh: tokenrecord.NewTokenSecret(resp.RefreshToken),
		RefreshRotated: true,
	}, nil
}

// RevokeRemote posts a best-effort RFC 7009 revocation request for secret,
// identified by tokenTypeHint ("access_token" or "refresh_token"). It is a
// no-op returning nil if the provider descriptor carries no revocation
// endpoint — revocation is never a hard requirement since the broker's
// local store remains authoritative regardless of what the provider does.
func (f *Facade) RevokeRemote(ctx context.Context, secret tokenrecord.TokenSecret, tokenTypeHint string) error {
	if f.descriptor.RevocationURL() == nil || secret.IsZero() {
		return nil
	}

	form := url.Values{
		"token":           {secret.Expose()},
		"token_type_hint": {tokenTypeHint},
	}
	auth := f.effectiveClientAuth()
	if auth.Method == provider.ClientSecretPost {
		form.Set("client_id", auth.ClientID)
		form.Set("client_secret", auth.ClientSecret)
	}

	var slot transport.ResponseMetadataSlot
	_, status, err := f.client.Do(ctx, f.descriptor.RevocationURL(), form, auth, &slot)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("oauth2broker/facade: revocation endpoint returned status %d", status)
	}
	return nil
}

// effectiveClientAuth resolves the client identity for a request: the
// descriptor's per-provider override if it carries one, otherwise the
// facade's broker-wide default credentials.
func (f *Facade) effectiveClientAuth() transport.ClientAuth {
	credentials := f.credentials
	if override := f.descriptor.ClientCredentialOverride(); override != nil {
		credentials = Credentials{ClientID: override.ClientID, ClientSecret: override.ClientSecret}
	}
	return transport.ClientAuth{
		Method:       f.descriptor.PreferredClientAuthMethod(),
		ClientID:     credentials.ClientID,
		ClientSecret: credentials.ClientSecret,
	}
}

// DeviceAuthorization is the normalized response to an RFC 8628 device
// authorization request.
type DeviceAuthorization struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	ExpiresIn       time.Duration
	Interval        time.Duration
}

type deviceWireResponse struct {
	DeviceCode              string       `json:"device_code"`
	UserCode                string       `json:"user_code"`
	VerificationURI         string       `json:"verification_uri"`
	VerificationURIComplete string       `json:"verification_uri_complete"`
	ExpiresIn               *json.Number `json:"expires_in"`
	Interval                *json.Number `json:"interval"`
	Error                   string       `json:"error"`
	ErrorDescription        string       `json:"error_description"`
}

const defaultDevicePollInterval = 5 * time.Second

// StartDeviceAuthorization initiates an RFC 8628 device authorization
// request, fails with UnsupportedGrant if the provider descriptor carries
// no device authorization endpoint.
func (f *Facade) StartDeviceAuthorization(ctx context.Context, scope *ids.ScopeSet) (DeviceAuthorization, error) {
	if f.descriptor.DeviceAuthorizationURL() == nil {
		return DeviceAuthorization{}, brokererrors.UnsupportedGrant(string(provider.GrantDeviceCode))
	}

	auth := f.effectiveClientAuth()
	form := url.Values{"client_id": {auth.ClientID}}
	f.applyScope(form, scope)

	var slot transport.ResponseMetadataSlot
	body, status, err := f.client.Do(ctx, f.descriptor.DeviceAuthorizationURL(), form, auth, &slot)
	metadata := slot.Take()
	if err != nil {
		return DeviceAuthorization{}, f.mapper.MapTransportError(f.strategy, provider.GrantDeviceCode, metadata, err)
	}

	var resp deviceWireResponse
	if status < 200 || status >= 300 {
		_ = json.Unmarshal(body, &resp)
		return DeviceAuthorization{}, f.strategy.Classify(provider.ErrorContext{
			Grant:            provider.GrantDeviceCode,
			HTTPStatus:       status,
			OAuthError:       resp.Error,
			ErrorDescription: resp.ErrorDescription,
			BodyPreview:      provider.TruncateBodyPreview(string(body)),
			RetryAfter:       retryAfterFromMetadata(metadata),
		})
	}
	if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
		return DeviceAuthorization{}, brokererrors.Wrap(brokererrors.KindTransient, "failed to parse device authorization response", jsonErr)
	}
	if resp.DeviceCode == "" {
		return DeviceAuthorization{}, brokererrors.New(brokererrors.KindConfig, "device authorization response is missing device_code")
	}

	interval := defaultDevicePollInterval
	if resp.Interval != nil {
		if seconds, convErr := resp.Interval.Int64(); convErr == nil && seconds > 0 {
			interval = time.Duration(seconds) * time.Second
		}
	}
	var expiresIn time.Duration
	if resp.ExpiresIn != nil {
		if seconds, convErr := resp.ExpiresIn.Int64(); convErr == nil && seconds > 0 {
			expiresIn = time.Duration(seconds) * time.Second
		}
	}

	return DeviceAuthorization{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		ExpiresIn:       expiresIn,
		Interval:        interval,
	}, nil
}

// PollDeviceToken executes a single RFC 8628 device-code token poll.
// Callers loop on a Transient result (authorization_pending/slow_down
// classify as Transient) until success or a terminal error.
func (f *Facade) PollDeviceToken(ctx context.Context, family ids.TokenFamily, scope *ids.ScopeSet, deviceCode string) (tokenrecord.TokenRecord, error) {
	form := url.Values{
		"grant_type":  {string(provider.GrantDeviceCode)},
		"device_code": {deviceCode},
	}
	f.strategy.AugmentTokenRequest(provider.GrantDeviceCode, form)

	resp, err := f.execute(ctx, provider.GrantDeviceCode, form)
	if err != nil {
		return tokenrecord.TokenRecord{}, err
	}
	return f.buildRecord(family, scope, resp)
}

func (f *Facade) applyScope(form url.Values, scope *ids.ScopeSet) {
	if !scope.IsEmpty() {
		form.Set("scope", scope.Joined(f.descriptor.Quirks().ScopeDelimiter))
	}
}

func (f *Facade) execute(ctx context.Context, grant provider.Grant, form url.Values) (*wireResponse, error) {
	if !f.descriptor.EnablesGrant(grant) {
		return nil, brokererrors.UnsupportedGrant(string(grant))
	}

	auth := f.effectiveClientAuth()
	if auth.Method == provider.ClientSecretPost {
		form.Set("client_id", auth.ClientID)
		form.Set("client_secret", auth.ClientSecret)
	}

	var slot transport.ResponseMetadataSlot
	body, status, err := f.client.Do(ctx, f.descriptor.TokenURL(), form, auth, &slot)
	metadata := slot.Take()
	if err != nil {
		return nil, f.mapper.MapTransportError(f.strategy, grant, metadata, err)
	}

	if status >= 200 && status < 300 {
		var resp wireResponse
		if jsonErr := json.Unmarshal(body, &resp); jsonErr != nil {
			return nil, brokererrors.Wrap(brokererrors.KindTransient, "failed to parse token endpoint response", jsonErr)
		}
		return &resp, nil
	}

	var resp wireResponse
	_ = json.Unmarshal(body, &resp)
	return nil, f.strategy.Classify(provider.ErrorContext{
		Grant:            grant,
		HTTPStatus:       status,
		OAuthError:       resp.Error,
		ErrorDescription: resp.ErrorDescription,
		BodyPreview:      provider.TruncateBodyPreview(string(body)),
		RetryAfter:       retryAfterFromMetadata(metadata),
	})
}

// retryAfterFromMetadata extracts the transport-reported Retry-After
// duration, if the response carried one, so a server-response Transient
// classification (status known, err == nil) can surface it the same way
// MapTransportError does for a network-level failure.
func retryAfterFromMetadata(metadata *transport.ResponseMetadata) *time.Duration {
	if metadata == nil || !metadata.HasRetry {
		return nil
	}
	retryAfter := metadata.RetryAfter
	return &retryAfter
}

func (f *Facade) checkScopeUnchanged(resp *wireResponse, requested *ids.ScopeSet, grant provider.Grant) error {
	if resp.Scope == "" {
		return nil
	}
	granted, err := ids.NewScopeSet(strings.Fields(resp.Scope))
	if err != nil {
		return brokererrors.Wrap(brokererrors.KindConfig, "provider returned an invalid scope parameter", err)
	}
	if !granted.Equal(requested) {
		return brokererrors.ScopesChanged(string(grant))
	}
	return nil
}

func (f *Facade) buildRecord(family ids.TokenFamily, scope *ids.ScopeSet, resp *wireResponse) (tokenrecord.TokenRecord, error) {
	if resp.AccessToken == "" {
		return tokenrecord.TokenRecord{}, brokererrors.ErrMissingAccessToken
	}

	if resp.ExpiresIn == nil {
		return tokenrecord.TokenRecord{}, brokererrors.ErrMissingExpiresIn
	}
	seconds, err := resp.ExpiresIn.Int64()
	if err != nil {
		return tokenrecord.TokenRecord{}, brokererrors.ErrExpiresInOutOfRange
	}
	if seconds <= 0 {
		return tokenrecord.TokenRecord{}, brokererrors.ErrNonPositiveExpiresIn
	}

	builder := tokenrecord.NewBuilder(family, scope).
		Access(tokenrecord.NewTokenSecret(resp.AccessToken)).
		IssuedAt(time.Now().UTC()).
		ExpiresIn(time.Duration(seconds) * time.Second)
	if resp.RefreshToken != "" {
		builder = builder.Refresh(tokenrecord.NewTokenSecret(resp.RefreshToken))
	}

	record, err := builder.Build()
	if err != nil {
		return tokenrecord.TokenRecord{}, fmt.Errorf("oauth2broker/facade: building token record: %w", err)
	}
	return record, nil
}
