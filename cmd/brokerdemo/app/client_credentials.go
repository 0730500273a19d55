package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
)

var clientCredentialsCmd = &cobra.Command{
	Use:   "client-credentials",
	Short: "Exchange (or reuse a cached) client_credentials token",
	RunE:  runClientCredentials,
}

func init() {
	clientCredentialsCmd.Flags().String("tenant", "", "tenant identifier (required)")
	clientCredentialsCmd.Flags().String("principal", "", "principal identifier (required)")
	clientCredentialsCmd.Flags().String("provider", "", "provider identifier (required)")
	clientCredentialsCmd.Flags().StringSlice("scope", nil, "requested scopes")
	clientCredentialsCmd.Flags().Bool("force", false, "bypass the cache and force a fresh exchange")
	for _, name := range []string{"tenant", "principal", "provider"} {
		_ = clientCredentialsCmd.MarkFlagRequired(name)
	}
}

func runClientCredentials(cmd *cobra.Command, _ []string) error {
	tenant, _ := cmd.Flags().GetString("tenant")
	principal, _ := cmd.Flags().GetString("principal")
	providerName, _ := cmd.Flags().GetString("provider")
	scope, _ := cmd.Flags().GetStringSlice("scope")
	force, _ := cmd.Flags().GetBool("force")

	b, err := buildBroker(providerName, provider.GrantClientCredentials)
	if err != nil {
		return err
	}

	req, err := parseCachedTokenRequest(tenant, principal, scope)
	if err != nil {
		return err
	}
	req.Force = force

	record, err := b.ClientCredentials(context.Background(), req)
	if err != nil {
		return fmt.Errorf("client_credentials failed: %w", err)
	}

	cmd.Printf("access_token=%v expires_at=%s\n", record.Access, record.ExpiresAt.Format(recordTimeFormat))
	return nil
}

const recordTimeFormat = "2006-01-02T15:04:05Z07:00"
