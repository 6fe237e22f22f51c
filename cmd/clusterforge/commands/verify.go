package commands

import (
	"github.com/spf13/cobra"

	"github.com/rhillum/clusterforge/cmd/clusterforge/handlers"
)

// Verify returns the command that inspects cluster health.
//
// Degraded findings render as warnings and still exit 0; only failing to
// reach the cluster at all is an error.
//
// Optional flags:
//
//	--config, -c: Path to configuration YAML file (default: clusterforge.yaml)
//	--kubeconfig: Path to the kubeconfig (default: /etc/kubernetes/admin.conf)
//	--output, -o: Report format, text or yaml
func Verify() *cobra.Command {
	var configPath string
	var kubeconfigPath string
	var output string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify cluster health",
		Long: `Run read-only health checks against the cluster and print a report.

Checks node readiness, system pods, the overlay network, cluster DNS,
storage, and the optional metrics API.

Examples:
  # Verify the cluster from the leader
  clusterforge verify

  # Against a copied kubeconfig
  clusterforge verify --kubeconfig ~/.kube/config

  # Machine-readable report
  clusterforge verify -o yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Verify(cmd.Context(), configPath, kubeconfigPath, output)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: clusterforge.yaml)")
	cmd.Flags().StringVar(&kubeconfigPath, "kubeconfig", "", "Path to the kubeconfig (default: /etc/kubernetes/admin.conf)")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Report format: text or yaml")

	return cmd
}
