package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/ids"
	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
)

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Start an authorization_code flow and print the authorize URL",
	RunE:  runAuthorize,
}

func init() {
	authorizeCmd.Flags().String("tenant", "", "tenant identifier (required)")
	authorizeCmd.Flags().String("principal", "", "principal identifier (required)")
	authorizeCmd.Flags().String("provider", "", "provider identifier (required)")
	authorizeCmd.Flags().StringSlice("scope", nil, "requested scopes")
	authorizeCmd.Flags().String("redirect-uri", "", "redirect_uri registered with the provider (required)")
	for _, name := range []string{"tenant", "principal", "provider", "redirect-uri"} {
		_ = authorizeCmd.MarkFlagRequired(name)
	}
}

func runAuthorize(cmd *cobra.Command, _ []string) error {
	tenantValue, _ := cmd.Flags().GetString("tenant")
	principalValue, _ := cmd.Flags().GetString("principal")
	providerName, _ := cmd.Flags().GetString("provider")
	scopeValues, _ := cmd.Flags().GetStringSlice("scope")
	redirectURI, _ := cmd.Flags().GetString("redirect-uri")

	b, err := buildBroker(providerName, provider.GrantAuthorizationCode)
	if err != nil {
		return err
	}

	tenant, err := ids.NewTenantId(tenantValue)
	if err != nil {
		return fmt.Errorf("invalid --tenant: %w", err)
	}
	principal, err := ids.NewPrincipalId(principalValue)
	if err != nil {
		return fmt.Errorf("invalid --principal: %w", err)
	}
	scope, err := ids.NewScopeSet(scopeValues)
	if err != nil {
		return fmt.Errorf("invalid --scope: %w", err)
	}

	session, err := b.StartAuthorization(context.Background(), tenant, principal, scope, redirectURI)
	if err != nil {
		return fmt.Errorf("authorization_code start failed: %w", err)
	}

	cmd.Printf("authorize_url=%s\nstate=%s\n", session.AuthorizeURL.String(), session.State)
	return nil
}
