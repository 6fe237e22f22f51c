package handlers

import (
	"context"
	"time"

	"github.com/rhillum/clusterforge/internal/joiner"
	"github.com/rhillum/clusterforge/internal/util/prerequisites"
)

// Join enrolls this node into the cluster as a worker. Zero timeout or
// poll values fall back to the configured ones.
func Join(ctx context.Context, configPath string, timeout, poll time.Duration) error {
	setup, err := setupPhase("join", configPath)
	if err != nil {
		return err
	}
	defer func() { _ = setup.close() }()

	if err := checkTools(setup.log, prerequisites.ClusterTools()); err != nil {
		return err
	}

	// A worker may boot before the provisioning layer attaches the mount;
	// the joiner polls through that, so only warn here.
	if err := ensureMount(setup.cfg); err != nil {
		setup.log.Warnf("%v; polling anyway", err)
	}

	channel, err := buildChannel(ctx, setup.cfg)
	if err != nil {
		return err
	}

	if timeout == 0 {
		timeout = setup.cfg.Timeouts.JoinTimeout
	}
	if poll == 0 {
		poll = setup.cfg.Timeouts.JoinPoll
	}

	j := joiner.New(setup.cfg, setup.runner, channel, setup.log, setup.state)
	return j.Join(ctx, timeout, poll)
}
