package commands

import (
	"github.com/spf13/cobra"

	"github.com/rhillum/clusterforge/cmd/clusterforge/handlers"
)

// Init returns the command that initializes the control plane.
//
// Run on the leader after install. It performs kubeadm init, installs
// the admin kubeconfig, and publishes the worker join credential to the
// rendezvous channel.
//
// Optional flags:
//
//	--config, -c: Path to configuration YAML file (default: clusterforge.yaml)
func Init() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the control plane on this node",
		Long: `Initialize the Kubernetes control plane on this machine.

After a successful init the worker join credential is published to the
rendezvous channel so 'clusterforge join' on the workers can pick it up.
If the channel is unreachable the credential is printed instead.

Examples:
  # Initialize the control plane
  sudo clusterforge init

  # With an explicit config
  sudo clusterforge init -c /etc/clusterforge.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Init(cmd.Context(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: clusterforge.yaml)")

	return cmd
}
