package handlers

import (
	"context"
	"fmt"

	"github.com/rhillum/clusterforge/internal/config"
	"github.com/rhillum/clusterforge/internal/installer"
	"github.com/rhillum/clusterforge/internal/util/prerequisites"
)

// Install prepares the node: runtime, kernel settings, and the cluster
// packages at the configured version.
func Install(ctx context.Context, configPath, role string) error {
	setup, err := setupPhase("install", configPath)
	if err != nil {
		return err
	}
	defer func() { _ = setup.close() }()

	if role != "" {
		setup.cfg.Role = role
	}
	if setup.cfg.Role != config.RoleLeader && setup.cfg.Role != config.RoleWorker {
		return fmt.Errorf("role must be %q or %q, got %q", config.RoleLeader, config.RoleWorker, setup.cfg.Role)
	}
	if err := requireKubernetesVersion(setup.cfg); err != nil {
		return err
	}

	if err := checkTools(setup.log, prerequisites.InstallerTools()); err != nil {
		return err
	}

	inst := installer.New(setup.runner, setup.log, setup.state, setup.cfg.Role)
	return inst.EnsureInstalled(ctx, setup.cfg.KubernetesVersion)
}
