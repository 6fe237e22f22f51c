package handlers

import (
	"context"

	"github.com/rhillum/clusterforge/internal/controlplane"
	"github.com/rhillum/clusterforge/internal/util/prerequisites"
)

// Init initializes the control plane on this node and publishes the join
// credential.
func Init(ctx context.Context, configPath string) error {
	setup, err := setupPhase("init", configPath)
	if err != nil {
		return err
	}
	defer func() { _ = setup.close() }()

	if err := requireKubernetesVersion(setup.cfg); err != nil {
		return err
	}
	if err := checkTools(setup.log, prerequisites.ClusterTools()); err != nil {
		return err
	}

	// The publisher needs the mailbox before kubeadm runs: failing after
	// the control plane is up would strand the workers.
	if err := ensureMount(setup.cfg); err != nil {
		return err
	}

	channel, err := buildChannel(ctx, setup.cfg)
	if err != nil {
		return err
	}

	init := controlplane.New(setup.cfg, setup.runner, channel, setup.log, setup.state)
	return init.Initialize(ctx)
}
