package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/rhillum/clusterforge/internal/config"
	"github.com/rhillum/clusterforge/internal/fabric"
	"github.com/rhillum/clusterforge/internal/helm"
	"github.com/rhillum/clusterforge/internal/k8s"
	"github.com/rhillum/clusterforge/internal/logging"
)

// Fabric installs the pod overlay network onto the running cluster.
func Fabric(ctx context.Context, configPath, kubeconfigPath string) error {
	setup, err := setupPhase("fabric", configPath)
	if err != nil {
		return err
	}
	defer func() { _ = setup.close() }()

	if kubeconfigPath == "" {
		kubeconfigPath = config.DefaultAdminConfPath
	}

	// #nosec G304 - path is the operator-supplied --kubeconfig flag
	kubeconfig, err := os.ReadFile(kubeconfigPath)
	if err != nil {
		return fmt.Errorf("%s: %w",
			logging.Remediation("fabric", "admin kubeconfig", "initialize the control plane with `clusterforge init`"), err)
	}

	helmClient, err := helm.NewClient(kubeconfig, "tigera-operator")
	if err != nil {
		return err
	}

	client, err := k8s.NewClient(kubeconfigPath)
	if err != nil {
		return err
	}

	inst := fabric.New(setup.cfg, client, helmClient, setup.log, setup.state)
	return inst.Install(ctx)
}
