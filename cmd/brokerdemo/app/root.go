// Package app provides the entry point for the brokerdemo command-line
// application: a thin, scriptable harness over pkg/oauth2broker for
// manual and integration testing.
package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/oauth2broker/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "brokerdemo",
	DisableAutoGenTag: true,
	Short:             "Exercise pkg/oauth2broker's flows against a real or fake provider",
	Long: `brokerdemo is a scriptable harness around pkg/oauth2broker.
It runs the broker's client_credentials, refresh_token, and authorization_code
flows from the command line, and can stand up an in-process fake IdP for
integration testing without a real OAuth provider.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the brokerdemo CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().String("store", "memory", "BrokerStore backend: memory|file")
	rootCmd.PersistentFlags().String("store-path", "", "path to the JSON file backing the file store (required when --store=file)")
	rootCmd.PersistentFlags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090)")
	rootCmd.PersistentFlags().String("token-url", "", "provider token endpoint URL")
	rootCmd.PersistentFlags().String("authorize-url", "", "provider authorization endpoint URL")
	rootCmd.PersistentFlags().String("client-id", "demo-client", "OAuth client_id presented to the provider")
	rootCmd.PersistentFlags().String("client-secret", "", "OAuth client_secret presented to the provider")

	for _, name := range []string{"store", "store-path", "metrics-addr", "token-url", "authorize-url", "client-id", "client-secret"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			logger.Fatalf("Failed to bind %s flag: %v", name, err)
		}
	}

	rootCmd.AddCommand(serveFakeIdpCmd)
	rootCmd.AddCommand(clientCredentialsCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(authorizeCmd)

	rootCmd.SilenceUsage = true
	return rootCmd
}

// maybeServeMetrics starts a /metrics HTTP server on addr in a background
// goroutine if addr is non-empty, serving reg's collected metrics. It
// never blocks the caller.
func maybeServeMetrics(addr string, reg *prometheus.Registry) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		logger.Infof("Serving metrics on %s/metrics", addr)
		if err := http.ListenAndServe(addr, mux); err != nil { //nolint:gosec // demo CLI, no TLS/timeout hardening needed
			logger.Errorf("metrics server stopped: %v", err)
		}
	}()
}
