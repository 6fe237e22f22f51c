// Package commands defines the CLI command structure and flag bindings.
//
// This package contains cobra command definitions that handle argument
// parsing and flag binding. Command execution is delegated to handler
// functions in the handlers package.
package commands

import "github.com/spf13/cobra"

// Root returns the root command for the clusterforge CLI.
func Root() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clusterforge",
		Short: "Bootstrap kubeadm Kubernetes clusters on cloud VMs",
	}

	// Bootstrap phases, in execution order.
	cmd.AddCommand(Install())
	cmd.AddCommand(Init())
	cmd.AddCommand(Join())
	cmd.AddCommand(Fabric())
	cmd.AddCommand(Verify())

	cmd.AddCommand(Version())
	cmd.AddCommand(Completion())

	return cmd
}
