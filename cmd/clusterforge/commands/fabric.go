package commands

import (
	"github.com/spf13/cobra"

	"github.com/rhillum/clusterforge/cmd/clusterforge/handlers"
)

// Fabric returns the command that installs the pod overlay network.
//
// Run on the leader after init. It installs the Tigera operator chart and
// applies an Installation resource carrying the configured pod CIDR.
//
// Optional flags:
//
//	--config, -c: Path to configuration YAML file (default: clusterforge.yaml)
//	--kubeconfig: Path to the admin kubeconfig (default: /etc/kubernetes/admin.conf)
func Fabric() *cobra.Command {
	var configPath string
	var kubeconfigPath string

	cmd := &cobra.Command{
		Use:   "fabric",
		Short: "Install the pod overlay network",
		Long: `Install the Calico overlay network via the Tigera operator.

The pod CIDR, encapsulation mode, and MTU come from the configuration
and must match what the control plane was initialized with. Safe to
re-run: a cluster whose network agents are already running is left
untouched.

Examples:
  # Install the overlay network
  sudo clusterforge fabric`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Fabric(cmd.Context(), configPath, kubeconfigPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: clusterforge.yaml)")
	cmd.Flags().StringVar(&kubeconfigPath, "kubeconfig", "", "Path to the admin kubeconfig (default: /etc/kubernetes/admin.conf)")

	return cmd
}
