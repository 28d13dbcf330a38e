// Package cmd implements the halyard command line.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"grimm.is/halyard/internal/brand"
	"grimm.is/halyard/internal/client"
	"grimm.is/halyard/internal/config"
	"grimm.is/halyard/internal/i18n"
)

var (
	configFile    string
	serverAddr    string
	clientTimeout time.Duration

	// Printer formats CLI output for the user's locale.
	Printer = i18n.NewCLIPrinter()

	rootCmd = &cobra.Command{
		Use:           brand.BinaryName,
		Short:         brand.Description,
		Version:       fmt.Sprintf("%s (%s)", brand.Version, brand.GitCommit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", brand.GetConfigPath(), "configuration file")
	rootCmd.PersistentFlags().StringVarP(&serverAddr, "server", "s", "", "daemon address (default: listen address from the configuration)")
	rootCmd.PersistentFlags().DurationVar(&clientTimeout, "timeout", 60*time.Second, "request timeout for client commands")

	rootCmd.AddCommand(serveCmd, configCmd, connectionsCmd, apsCmd, interfacesCmd, statusCmd)
}

// ExecuteContext runs the root command with ctx.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// newClient returns a client for --server, or for the configured listen
// address when the flag is empty.
func newClient() (*client.HTTPClient, error) {
	addr := serverAddr
	if addr == "" {
		cfg, err := config.LoadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("cannot determine daemon address: %w", err)
		}
		addr = cfg.Listen
	}
	return client.NewHTTPClient(addr, client.WithTimeout(clientTimeout)), nil
}
