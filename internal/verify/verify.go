// Package verify inspects a bootstrapped cluster and reports its health.
// The report is diagnostic: degraded findings are warnings, not errors,
// so a half-joined cluster can still be inspected. Only failing to reach
// the API at all is an error.
package verify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/rhillum/clusterforge/internal/config"
	"github.com/rhillum/clusterforge/internal/k8s"
	"github.com/rhillum/clusterforge/internal/nodestate"
)

// Status of a single check.
type Status string

const (
	StatusPass Status = "PASS"
	StatusWarn Status = "WARN"
)

// Check is one verified aspect of the cluster.
type Check struct {
	Name   string `json:"name"`
	Status Status `json:"status"`
	Detail string `json:"detail"`
}

// Report is the outcome of a verification run.
type Report struct {
	ClusterName string  `json:"cluster"`
	Checks      []Check `json:"checks"`
}

// Overall is WARN when any check warned, PASS otherwise.
func (r *Report) Overall() Status {
	for _, c := range r.Checks {
		if c.Status != StatusPass {
			return StatusWarn
		}
	}
	return StatusPass
}

// Verifier runs read-only health checks against the cluster.
type Verifier struct {
	cfg    *config.Config
	client *k8s.Client
	log    *logrus.Entry
	state  *nodestate.Store

	// healthProbe checks the control plane answers at all; the default
	// asks /healthz.
	healthProbe func(ctx context.Context) error

	// metricsProbe reports whether the metrics API group is served; the
	// default asks the discovery endpoint.
	metricsProbe func(ctx context.Context) (bool, error)
}

// New constructs a Verifier.
func New(cfg *config.Config, client *k8s.Client, log *logrus.Entry, state *nodestate.Store) *Verifier {
	v := &Verifier{cfg: cfg, client: client, log: log, state: state}
	v.healthProbe = v.client.Healthz
	v.metricsProbe = v.defaultMetricsProbe
	return v
}

// Namespaces whose pods count as system workloads.
var systemNamespaces = []string{"kube-system", "calico-system", "tigera-operator"}

// Run performs all checks and returns the report. An error means the
// verification itself could not run, not that the cluster is degraded.
func (v *Verifier) Run(ctx context.Context) (*Report, error) {
	if err := v.healthProbe(ctx); err != nil {
		return nil, fmt.Errorf("control plane not reachable: %w", err)
	}

	report := &Report{ClusterName: v.cfg.ClusterName}
	report.Checks = append(report.Checks, v.checkNodes(ctx))
	report.Checks = append(report.Checks, v.checkWorkloads(ctx))
	report.Checks = append(report.Checks, v.checkSystemPods(ctx)...)
	report.Checks = append(report.Checks, v.checkFabric(ctx))
	report.Checks = append(report.Checks, v.checkDNS(ctx))
	report.Checks = append(report.Checks, v.checkStorage(ctx))
	report.Checks = append(report.Checks, v.checkMetricsAPI(ctx))

	if report.Overall() == StatusPass {
		v.markReady()
	}
	return report, nil
}

func (v *Verifier) checkNodes(ctx context.Context) Check {
	ready, total, err := v.client.NodesReady(ctx)
	if err != nil {
		return Check{Name: "nodes", Status: StatusWarn, Detail: err.Error()}
	}
	detail := fmt.Sprintf("%d/%d ready", ready, total)
	if total == 0 || ready < total {
		return Check{Name: "nodes", Status: StatusWarn, Detail: detail}
	}
	return Check{Name: "nodes", Status: StatusPass, Detail: detail}
}

// checkWorkloads requires every pod in every namespace to be Running or
// Succeeded; anything Pending, Failed, or Unknown degrades the cluster.
func (v *Verifier) checkWorkloads(ctx context.Context) Check {
	pods, err := v.client.Clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return Check{Name: "workloads", Status: StatusWarn, Detail: err.Error()}
	}

	var stuck []string
	for _, pod := range pods.Items {
		if pod.Status.Phase != corev1.PodRunning && pod.Status.Phase != corev1.PodSucceeded {
			stuck = append(stuck, pod.Namespace+"/"+pod.Name)
		}
	}
	if len(stuck) > 0 {
		sample := stuck[0]
		return Check{
			Name:   "workloads",
			Status: StatusWarn,
			Detail: fmt.Sprintf("%d of %d pods not running (e.g. %s)", len(stuck), len(pods.Items), sample),
		}
	}
	return Check{
		Name:   "workloads",
		Status: StatusPass,
		Detail: fmt.Sprintf("%d pods running or completed", len(pods.Items)),
	}
}

// checkSystemPods reports one check per populated system namespace.
// Namespaces with no pods are skipped: calico-system does not exist
// before the fabric installs, and that is the fabric check's concern.
func (v *Verifier) checkSystemPods(ctx context.Context) []Check {
	var checks []Check
	for _, ns := range systemNamespaces {
		ready, total, err := v.client.PodsReady(ctx, ns, "")
		if err != nil || total == 0 {
			continue
		}
		check := Check{
			Name:   "pods " + ns,
			Detail: fmt.Sprintf("%d/%d ready", ready, total),
			Status: StatusPass,
		}
		if ready < total {
			check.Status = StatusWarn
		}
		checks = append(checks, check)
	}
	return checks
}

func (v *Verifier) checkFabric(ctx context.Context) Check {
	if exists, err := v.client.PodsExist(ctx, "calico-system", "app.kubernetes.io/name=calico-node"); err == nil && exists {
		return Check{Name: "overlay network", Status: StatusPass, Detail: "calico-node running (calico-system)"}
	}
	if exists, err := v.client.PodsExist(ctx, "kube-system", "k8s-app=calico-node"); err == nil && exists {
		return Check{Name: "overlay network", Status: StatusPass, Detail: "calico-node running (kube-system, legacy manifest)"}
	}
	return Check{Name: "overlay network", Status: StatusWarn, Detail: "no calico-node pods found"}
}

func (v *Verifier) checkDNS(ctx context.Context) Check {
	ready, total, err := v.client.PodsReady(ctx, "kube-system", "k8s-app=kube-dns")
	if err != nil || total == 0 {
		return Check{Name: "cluster dns", Status: StatusWarn, Detail: "no CoreDNS pods found"}
	}
	if ready == 0 {
		return Check{Name: "cluster dns", Status: StatusWarn, Detail: fmt.Sprintf("0/%d CoreDNS pods ready", total)}
	}
	return Check{Name: "cluster dns", Status: StatusPass, Detail: fmt.Sprintf("%d/%d CoreDNS pods ready", ready, total)}
}

// checkStorage is informational: a freshly bootstrapped cluster has no
// storage classes and that is not a defect.
func (v *Verifier) checkStorage(ctx context.Context) Check {
	classes, err := v.client.Clientset.StorageV1().StorageClasses().List(ctx, metav1.ListOptions{})
	if err != nil {
		return Check{Name: "storage", Status: StatusWarn, Detail: err.Error()}
	}
	volumes, err := v.client.Clientset.CoreV1().PersistentVolumes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return Check{Name: "storage", Status: StatusWarn, Detail: err.Error()}
	}
	return Check{
		Name:   "storage",
		Status: StatusPass,
		Detail: fmt.Sprintf("%d storage classes, %d persistent volumes", len(classes.Items), len(volumes.Items)),
	}
}

// checkMetricsAPI never warns: the metrics server is optional tooling.
func (v *Verifier) checkMetricsAPI(ctx context.Context) Check {
	available, err := v.metricsProbe(ctx)
	if err != nil {
		return Check{Name: "metrics api", Status: StatusPass, Detail: "not probed: " + err.Error()}
	}
	if !available {
		return Check{Name: "metrics api", Status: StatusPass, Detail: "not installed (optional)"}
	}
	return Check{Name: "metrics api", Status: StatusPass, Detail: "metrics.k8s.io served"}
}

func (v *Verifier) defaultMetricsProbe(ctx context.Context) (bool, error) {
	groups, err := v.client.Clientset.Discovery().ServerGroups()
	if err != nil {
		return false, err
	}
	for _, group := range groups.Groups {
		if group.Name == "metrics.k8s.io" {
			return true, nil
		}
	}
	return false, nil
}

// markReady records the terminal lifecycle phase. The record is advisory
// and a verify run against a node with no local state just warns.
func (v *Verifier) markReady() {
	if v.state == nil {
		return
	}
	rec, err := v.state.Load()
	if err != nil {
		v.log.Warnf("could not read lifecycle state: %v", err)
		return
	}
	if err := v.state.Transition(nodestate.Ready, rec.Role); err != nil {
		v.log.Debugf("lifecycle state not advanced: %v", err)
	}
}
