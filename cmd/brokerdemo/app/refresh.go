package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stacklok/oauth2broker/pkg/oauth2broker/provider"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh (or reuse a cached) access token via refresh_token",
	RunE:  runRefresh,
}

func init() {
	refreshCmd.Flags().String("tenant", "", "tenant identifier (required)")
	refreshCmd.Flags().String("principal", "", "principal identifier (required)")
	refreshCmd.Flags().String("provider", "", "provider identifier (required)")
	refreshCmd.Flags().StringSlice("scope", nil, "requested scopes")
	refreshCmd.Flags().Bool("force", false, "bypass the preemptive window and force a fresh refresh")
	for _, name := range []string{"tenant", "principal", "provider"} {
		_ = refreshCmd.MarkFlagRequired(name)
	}
}

func runRefresh(cmd *cobra.Command, _ []string) error {
	tenant, _ := cmd.Flags().GetString("tenant")
	principal, _ := cmd.Flags().GetString("principal")
	providerName, _ := cmd.Flags().GetString("provider")
	scope, _ := cmd.Flags().GetStringSlice("scope")
	force, _ := cmd.Flags().GetBool("force")

	b, err := buildBroker(providerName, provider.GrantRefreshToken)
	if err != nil {
		return err
	}

	req, err := parseCachedTokenRequest(tenant, principal, scope)
	if err != nil {
		return err
	}
	req.Force = force

	record, err := b.RefreshAccessToken(context.Background(), req)
	if err != nil {
		return fmt.Errorf("refresh_token failed: %w", err)
	}

	cmd.Printf("access_token=%v refresh_token=%v expires_at=%s\n", record.Access, record.Refresh, record.ExpiresAt.Format(recordTimeFormat))
	return nil
}
