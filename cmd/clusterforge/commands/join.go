package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/rhillum/clusterforge/cmd/clusterforge/handlers"
)

// Join returns the command that enrolls a worker into the cluster.
//
// It polls the rendezvous channel until the leader publishes the join
// credential, validates it, and runs the join.
//
// Optional flags:
//
//	--config, -c: Path to configuration YAML file (default: clusterforge.yaml)
//	--timeout: How long to wait for the join credential (overrides config)
//	--poll: Interval between rendezvous channel polls (overrides config)
func Join() *cobra.Command {
	var configPath string
	var timeout time.Duration
	var poll time.Duration

	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join this node to the cluster as a worker",
		Long: `Join this machine to an existing cluster.

Waits for the leader to publish the join credential on the rendezvous
channel, then joins. Safe to re-run: a node that is already joined and
can reach the control plane does nothing.

Examples:
  # Join with defaults
  sudo clusterforge join

  # Wait at most five minutes for the leader
  sudo clusterforge join --timeout 5m --poll 10s`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return handlers.Join(cmd.Context(), configPath, timeout, poll)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: clusterforge.yaml)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "How long to wait for the join credential (0 = config value)")
	cmd.Flags().DurationVar(&poll, "poll", 0, "Interval between channel polls (0 = config value)")

	return cmd
}
