package commands

import (
	"github.com/spf13/cobra"

	"github.com/rhillum/clusterforge/cmd/clusterforge/handlers"
)

// Install returns the command that prepares a node for cluster duty.
//
// It disables swap, configures the kernel and the container runtime, and
// installs the kubelet, kubeadm, and kubectl packages at the configured
// version. Safe to re-run: a node already at the desired version is left
// untouched.
//
// Optional flags:
//
//	--config, -c: Path to configuration YAML file (default: clusterforge.yaml)
//	--role: Node role, leader or worker (overrides the config)
func Install() *cobra.Command {
	var configPath string
	var role string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the node runtime and cluster tooling",
		Long: `Prepare this machine to run as a cluster node.

Installs containerd, kubelet, kubeadm, and kubectl at the version from
the configuration, after disabling swap and applying the required kernel
and sysctl settings.

Examples:
  # Prepare a worker node
  sudo clusterforge install --role worker

  # Prepare the leader with an explicit config
  sudo clusterforge install -c /etc/clusterforge.yaml --role leader`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Install(cmd.Context(), configPath, role)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: clusterforge.yaml)")
	cmd.Flags().StringVar(&role, "role", "", "Node role: leader or worker (overrides the config)")

	return cmd
}
