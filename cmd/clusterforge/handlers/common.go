// Package handlers implements the command execution logic for the
// clusterforge CLI. Each handler loads the configuration, checks the
// host prerequisites for its phase, wires the component, and runs it.
package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/rhillum/clusterforge/internal/config"
	"github.com/rhillum/clusterforge/internal/logging"
	"github.com/rhillum/clusterforge/internal/nodestate"
	"github.com/rhillum/clusterforge/internal/rendezvous"
	"github.com/rhillum/clusterforge/internal/system"
	"github.com/rhillum/clusterforge/internal/util/prerequisites"
)

// DefaultConfigFile is probed in the working directory when --config is
// not given.
const DefaultConfigFile = "clusterforge.yaml"

// loadConfig resolves the effective configuration: an explicit --config
// path must exist, the default file is used when present, and built-in
// defaults apply otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return config.Load(DefaultConfigFile)
	}
	return config.Default(), nil
}

// buildChannel constructs the rendezvous channel the config selects.
func buildChannel(ctx context.Context, cfg *config.Config) (rendezvous.Channel, error) {
	switch cfg.Rendezvous.Backend {
	case config.BackendS3:
		return rendezvous.NewS3Channel(ctx, rendezvous.S3Options{
			Endpoint:  cfg.Rendezvous.S3.Endpoint,
			Region:    cfg.Rendezvous.S3.Region,
			Bucket:    cfg.Rendezvous.S3.Bucket,
			AccessKey: cfg.Rendezvous.S3.AccessKey,
			SecretKey: cfg.Rendezvous.S3.SecretKey,
			Prefix:    cfg.ClusterName,
		})
	default:
		return rendezvous.NewFileChannel(cfg.Rendezvous.MountPath), nil
	}
}

// ensureMount checks the file backend's shared storage is attached. Only
// the file backend has a mount to check.
func ensureMount(cfg *config.Config) error {
	if cfg.Rendezvous.Backend == config.BackendS3 {
		return nil
	}
	return prerequisites.CheckMount(cfg.Rendezvous.MountPath)
}

// requireKubernetesVersion rejects configurations with no version pin, so
// kubeadm never sees an empty --kubernetes-version.
func requireKubernetesVersion(cfg *config.Config) error {
	if cfg.KubernetesVersion == "" {
		return fmt.Errorf("kubernetes_version must be set in the configuration")
	}
	return nil
}

// phaseSetup is the wiring every mutating phase shares.
type phaseSetup struct {
	cfg    *config.Config
	log    *logrus.Entry
	runner system.Runner
	state  *nodestate.Store
	close  func() error
}

func setupPhase(component, configPath string) (*phaseSetup, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if err := prerequisites.CheckRoot(); err != nil {
		return nil, err
	}

	log, closeFn := logging.ForComponent(component, cfg.LogDir)
	return &phaseSetup{
		cfg:    cfg,
		log:    log,
		runner: system.NewExecRunner(),
		state:  nodestate.NewStore(cfg.StateDir),
		close:  closeFn,
	}, nil
}

// checkTools verifies required binaries and reports optional ones.
func checkTools(log *logrus.Entry, tools []prerequisites.Tool) error {
	results := prerequisites.Check(tools)
	for _, missing := range results.Missing {
		if !missing.Required {
			log.Debugf("optional tool %s not found: %s", missing.Name, missing.Description)
		}
	}
	if err := results.Error(); err != nil {
		return fmt.Errorf("host not ready: %w", err)
	}
	return nil
}
