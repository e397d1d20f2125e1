// Package commands defines the CLI command structure and flag bindings.
//
// Command execution is delegated to handler functions in the handlers
// package.
package commands

import (
	goflag "flag"

	"github.com/spf13/cobra"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/imamik/metal/cmd/metal/handlers"
)

// Root returns the root command for the metal CLI.
func Root() *cobra.Command {
	var (
		metricsAddr string
		zapOpts     zap.Options
	)

	cmd := &cobra.Command{
		Use:           "metal",
		Short:         "Provision Kubernetes clusters on Hetzner Cloud through cluster-api",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger := zap.New(zap.UseFlagOptions(&zapOpts))
			log.SetLogger(logger)
			cmd.SetContext(log.IntoContext(cmd.Context(), logger))
			if metricsAddr != "" {
				return handlers.ServeMetrics(cmd.Context(), metricsAddr)
			}
			return nil
		},
	}

	fs := goflag.NewFlagSet("zap", goflag.ContinueOnError)
	zapOpts.BindFlags(fs)
	cmd.PersistentFlags().AddGoFlagSet(fs)
	cmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs (e.g. :8080)")
	cmd.PersistentFlags().StringP("config", "c", "", "Path to the configuration file (METAL_* environment variables override it)")

	cmd.AddCommand(Project())
	cmd.AddCommand(Cluster())
	cmd.AddCommand(Migrate())
	cmd.AddCommand(Version())

	return cmd
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
