// Package main is the entry point for the clusterforge CLI.
//
// clusterforge bootstraps a kubeadm Kubernetes cluster across freshly
// provisioned virtual machines: it installs the node runtime, initializes
// the control plane on the leader, joins workers through a shared
// rendezvous channel, installs the overlay network, and verifies the
// result.
//
// Commands: install, init, join, fabric, verify.
//
// For detailed usage information, run:
//
//	clusterforge --help
package main

import (
	"fmt"
	"os"

	"github.com/rhillum/clusterforge/cmd/clusterforge/commands"
)

// Version information set by goreleaser at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
