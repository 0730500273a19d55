package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/brokermetrics"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/broker"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/facade"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/store"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/transport"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/transport/httptransport"
)

// openStore builds the BrokerStore backend named by --store.
func openStore() (store.BrokerStore, error) {
	switch backend := viper.GetString("store"); backend {
	case "", "memory":
		return store.NewMemoryStore(), nil
	case "file":
		path := viper.GetString("store-path")
		if path == "" {
			return nil, fmt.Errorf("--store-path is required when --store=file")
		}
		return store.NewFileStore(path)
	default:
		return nil, fmt.Errorf("unrecognized --store backend %q (want memory|file)", backend)
	}
}

// buildDescriptor assembles a provider.Descriptor from the persistent
// --token-url/--authorize-url flags, enabling the given grants.
func buildDescriptor(providerName string, grants ...provider.Grant) (*provider.Descriptor, error) {
	id, err := ids.NewProviderId(providerName)
	if err != nil {
		return nil, fmt.Errorf("invalid --provider: %w", err)
	}

	tokenURL := viper.GetString("token-url")
	authorizeURL := viper.GetString("authorize-url")
	if tokenURL == "" {
		return nil, fmt.Errorf("--token-url is required")
	}

	b := provider.NewBuilder(id).TokenURL(tokenURL)
	if authorizeURL != "" {
		b = b.AuthorizationURL(authorizeURL)
	}
	for _, grant := range grants {
		b = b.EnableGrant(grant)
	}
	return b.Build()
}

// buildBroker wires a Broker for providerName, enabling grants, with a
// Prometheus registry whose metrics are served if --metrics-addr is set.
func buildBroker(providerName string, grants ...provider.Grant) (*broker.Broker, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}

	descriptor, err := buildDescriptor(providerName, grants...)
	if err != nil {
		return nil, err
	}

	credentials := facade.Credentials{
		ClientID:     viper.GetString("client-id"),
		ClientSecret: viper.GetString("client-secret"),
	}
	fac := facade.New(descriptor, provider.DefaultStrategy{}, httptransport.New(nil), transport.DefaultErrorMapper{}, credentials)

	reg := prometheus.NewRegistry()
	metrics := brokermetrics.New(reg)
	maybeServeMetrics(viper.GetString("metrics-addr"), reg)

	return broker.New(st, descriptor, fac, viper.GetString("client-id"), broker.WithMetrics(metrics)), nil
}

// parseCachedTokenRequest builds a broker.CachedTokenRequest from the
// tenant/principal/scope flags shared by client-credentials and refresh.
func parseCachedTokenRequest(tenantValue, principalValue string, scopeValues []string) (broker.CachedTokenRequest, error) {
	tenant, err := ids.NewTenantId(tenantValue)
	if err != nil {
		return broker.CachedTokenRequest{}, fmt.Errorf("invalid --tenant: %w", err)
	}
	principal, err := ids.NewPrincipalId(principalValue)
	if err != nil {
		return broker.CachedTokenRequest{}, fmt.Errorf("invalid --principal: %w", err)
	}
	scope, err := ids.NewScopeSet(scopeValues)
	if err != nil {
		return broker.CachedTokenRequest{}, fmt.Errorf("invalid --scope: %w", err)
	}
	return broker.CachedTokenRequest{Tenant: tenant, Principal: principal, Scope: scope}, nil
}
