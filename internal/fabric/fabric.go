// Package fabric installs the pod overlay network (Calico via the Tigera
// operator) and brings the node to the Networked lifecycle phase.
package fabric

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/rhillum/clusterforge/internal/config"
	"github.com/rhillum/clusterforge/internal/k8s"
	"github.com/rhillum/clusterforge/internal/nodestate"
)

const (
	chartRepo    = "https://docs.tigera.io/calico/charts"
	chartName    = "tigera-operator"
	releaseName  = "calico"
	operatorNS   = "tigera-operator"
	agentNS      = "calico-system"
	legacyNS     = "kube-system"
	installation = "default"
)

// Label conventions for the Calico node agent. Manifest-based installs
// place it in kube-system under the legacy label; operator-managed
// installs use calico-system.
const (
	agentSelector       = "app.kubernetes.io/name=calico-node"
	legacyAgentSelector = "k8s-app=calico-node"
)

// installationGVR addresses the Tigera operator's Installation resource.
var installationGVR = schema.GroupVersionResource{
	Group:    "operator.tigera.io",
	Version:  "v1",
	Resource: "installations",
}

// HelmClient is the chart-install surface the fabric needs.
type HelmClient interface {
	InstallOrUpgrade(ctx context.Context, releaseName, repoURL, chartName, version string, values map[string]interface{}) error
}

// Installer deploys the overlay network onto a bootstrapped cluster.
type Installer struct {
	cfg    *config.Config
	client *k8s.Client
	helm   HelmClient
	log    *logrus.Entry
	state  *nodestate.Store
}

// New constructs a fabric Installer.
func New(cfg *config.Config, client *k8s.Client, helm HelmClient, log *logrus.Entry, state *nodestate.Store) *Installer {
	return &Installer{cfg: cfg, client: client, helm: helm, log: log, state: state}
}

// Install is idempotent: when the node agent is already running under
// either label convention nothing is deployed. Otherwise it installs the
// operator chart, applies the Installation resource carrying the pod CIDR,
// and waits for the operator deployment (fatal on timeout) and the node
// agents (warn only: agents on cordoned or joining nodes settle later).
func (f *Installer) Install(ctx context.Context) error {
	if installed, where := f.alreadyInstalled(ctx); installed {
		f.log.Infof("overlay network already running (%s), nothing to do", where)
		f.markNetworked()
		return nil
	}

	f.log.Infof("installing overlay network operator %s", f.cfg.Fabric.Version)
	if err := f.helm.InstallOrUpgrade(ctx, releaseName, chartRepo, chartName, f.cfg.Fabric.Version, nil); err != nil {
		return fmt.Errorf("failed to install %s chart: %w", chartName, err)
	}

	if err := f.client.WaitForNamespace(ctx, operatorNS, f.cfg.Timeouts.FabricWait); err != nil {
		return fmt.Errorf("namespace %s did not appear: %w", operatorNS, err)
	}
	if err := f.client.WaitForDeploymentAvailable(ctx, operatorNS, chartName, f.cfg.Timeouts.FabricWait); err != nil {
		return fmt.Errorf("operator deployment did not become available: %w", err)
	}

	if err := f.applyInstallation(ctx); err != nil {
		return fmt.Errorf("failed to apply network installation: %w", err)
	}

	f.log.Info("waiting for node agents")
	if err := f.client.WaitForPodsReady(ctx, agentNS, agentSelector, f.cfg.Timeouts.FabricWait); err != nil {
		f.log.Warnf("node agents not ready yet, continuing: %v", err)
	}

	if err := f.waitAvailable(ctx); err != nil {
		f.log.Warnf("network installation not reporting Available yet, continuing: %v", err)
	}

	f.log.Info("overlay network installed")
	f.markNetworked()
	return nil
}

// alreadyInstalled probes both agent homes; either one counts.
func (f *Installer) alreadyInstalled(ctx context.Context) (bool, string) {
	if exists, err := f.client.PodsExist(ctx, agentNS, agentSelector); err == nil && exists {
		return true, agentNS
	}
	if exists, err := f.client.PodsExist(ctx, legacyNS, legacyAgentSelector); err == nil && exists {
		return true, legacyNS + " legacy manifest"
	}
	return false, ""
}

// applyInstallation creates or updates the operator's Installation
// resource. The pod CIDR here must match the one the control plane was
// initialized with; the operator will not renumber a live cluster.
func (f *Installer) applyInstallation(ctx context.Context) error {
	pool := map[string]interface{}{
		"cidr":          f.cfg.Network.PodCIDR,
		"encapsulation": operatorEncapsulation(f.cfg.Fabric.Encapsulation),
		"natOutgoing":   "Enabled",
		"nodeSelector":  "all()",
	}

	calicoNetwork := map[string]interface{}{
		"ipPools": []interface{}{pool},
	}
	if f.cfg.Fabric.MTU > 0 {
		calicoNetwork["mtu"] = int64(f.cfg.Fabric.MTU)
	}

	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "operator.tigera.io/v1",
		"kind":       "Installation",
		"metadata": map[string]interface{}{
			"name": installation,
		},
		"spec": map[string]interface{}{
			"calicoNetwork": calicoNetwork,
		},
	}}

	return f.client.ApplyUnstructured(ctx, installationGVR, obj)
}

// waitAvailable polls the Installation status for an Available=True
// condition. This wait is shorter than the agent wait and advisory only.
func (f *Installer) waitAvailable(ctx context.Context) error {
	return f.client.WaitForCondition(ctx, f.cfg.Timeouts.FabricAvailableWait, func(ctx context.Context) (bool, error) {
		obj, found, err := f.client.GetUnstructured(ctx, installationGVR, "", installation)
		if err != nil || !found {
			return false, nil
		}
		return installationAvailable(obj), nil
	})
}

// installationAvailable reads status.conditions for Available=True.
func installationAvailable(obj *unstructured.Unstructured) bool {
	conditions, found, err := unstructured.NestedSlice(obj.Object, "status", "conditions")
	if err != nil || !found {
		return false
	}
	for _, c := range conditions {
		condition, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if condition["type"] == "Available" && condition["status"] == "True" {
			return true
		}
	}
	return false
}

// operatorEncapsulation maps config spellings onto the operator's enum.
func operatorEncapsulation(value string) string {
	switch strings.ToUpper(value) {
	case "IPIP":
		return "IPIP"
	case "NONE":
		return "None"
	case "VXLANCROSSSUBNET":
		return "VXLANCrossSubnet"
	case "IPIPCROSSSUBNET":
		return "IPIPCrossSubnet"
	default:
		return "VXLAN"
	}
}

func (f *Installer) markNetworked() {
	if err := f.state.Transition(nodestate.Networked, f.cfg.Role); err != nil {
		f.log.Warnf("could not persist lifecycle state: %v", err)
	}
}
