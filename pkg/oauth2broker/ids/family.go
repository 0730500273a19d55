package ids

// TokenFamily identifies the (tenant, principal, provider) triple subject
// to the same caching, rotation, and revocation decisions. Provider is
// optional until the flow that created the family has selected one.
type TokenFamily struct {
	Tenant    TenantId
	Principal PrincipalId
	Provider  *ProviderId
}

// NewTokenFamily constructs a TokenFamily with a provider already bound.
func NewTokenFamily(tenant TenantId, principal PrincipalId, provider ProviderId) TokenFamily {
	return TokenFamily{Tenant: tenant, Principal: principal, Provider: &provider}
}

// WithProvider returns a copy of the family with provider bound, leaving
// the receiver unchanged.
func (f TokenFamily) WithProvider(provider ProviderId) TokenFamily {
	f.Provider = &provider
	return f
}

// String renders a stable textual key, used as part of StoreKey.String()
// and as the singleflight guard key.
func (f TokenFamily) String() string {
	provider := ""
	if f.Provider != nil {
		provider = f.Provider.String()
	}
	return f.Tenant.String() + "/" + f.Principal.String() + "/" + provider
}

// Equal reports whether two families identify the same triple.
func (f TokenFamily) Equal(other TokenFamily) bool {
	if f.Tenant != other.Tenant || f.Principal != other.Principal {
		return false
	}
	switch {
	case f.Provider == nil && other.Provider == nil:
		return true
	case f.Provider == nil || other.Provider == nil:
		return false
	default:
		return *f.Provider == *other.Provider
	}
}
