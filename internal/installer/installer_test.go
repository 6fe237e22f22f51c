package installer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhillum/clusterforge/internal/logging"
	"github.com/rhillum/clusterforge/internal/nodestate"
	"github.com/rhillum/clusterforge/internal/system"
)

func newInstaller(t *testing.T, runner *system.FakeRunner) (*Installer, string) {
	t.Helper()
	root := t.TempDir()
	state := nodestate.NewStore(filepath.Join(root, "var/lib/clusterforge"))
	log := logging.NewTestLogger(&bytes.Buffer{})
	return NewWithRoot(runner, log, state, "worker", root), root
}

func TestEnsureInstalled_MatchingVersionIsNoOp(t *testing.T) {
	t.Parallel()
	runner := &system.FakeRunner{Outputs: map[string]string{
		"kubeadm version": "v1.31.4",
	}}
	inst, root := newInstaller(t, runner)

	require.NoError(t, inst.EnsureInstalled(context.Background(), "1.31.4"))

	assert.False(t, runner.CalledWith("apt-get"), "no package operations on a matching install")
	assert.False(t, runner.CalledWith("swapoff"))

	rec, err := nodestate.NewStore(filepath.Join(root, "var/lib/clusterforge")).Load()
	require.NoError(t, err)
	assert.Equal(t, nodestate.Installed, rec.Phase)
}

func TestEnsureInstalled_AcceptsLeadingV(t *testing.T) {
	t.Parallel()
	runner := &system.FakeRunner{Outputs: map[string]string{
		"kubeadm version": "v1.31.4",
	}}
	inst, _ := newInstaller(t, runner)

	require.NoError(t, inst.EnsureInstalled(context.Background(), "v1.31.4"))
	assert.False(t, runner.CalledWith("apt-get"))
}

func TestEnsureInstalled_VersionMismatchReinstalls(t *testing.T) {
	t.Parallel()
	runner := &system.FakeRunner{Outputs: map[string]string{
		"kubeadm version":           "v1.30.0",
		"containerd config default": "SystemdCgroup = false",
	}}
	inst, _ := newInstaller(t, runner)

	require.NoError(t, inst.EnsureInstalled(context.Background(), "1.31.4"))
	assert.True(t, runner.CalledWith("apt-get install -y kubelet=1.31.4-* kubeadm=1.31.4-* kubectl=1.31.4-*"))
	assert.True(t, runner.CalledWith("apt-mark hold"))
}

func TestEnsureInstalled_FreshInstallRunsAllSteps(t *testing.T) {
	t.Parallel()
	runner := &system.FakeRunner{
		Missing: []string{"kubeadm", "kubelet", "kubectl"},
		Outputs: map[string]string{
			"containerd config default": "before\nSystemdCgroup = false\nafter",
		},
	}
	inst, root := newInstaller(t, runner)

	require.NoError(t, inst.EnsureInstalled(context.Background(), "1.31.4"))

	assert.True(t, runner.CalledWith("swapoff -a"))
	assert.True(t, runner.CalledWith("modprobe overlay"))
	assert.True(t, runner.CalledWith("modprobe br_netfilter"))
	assert.True(t, runner.CalledWith("sysctl --system"))
	assert.True(t, runner.CalledWith("systemctl restart containerd"))
	assert.True(t, runner.CalledWith("systemctl enable --now kubelet"))

	sysctl, err := os.ReadFile(filepath.Join(root, "etc/sysctl.d/99-kubernetes-cri.conf"))
	require.NoError(t, err)
	assert.Contains(t, string(sysctl), "bridge-nf-call-iptables")

	containerd, err := os.ReadFile(filepath.Join(root, "etc/containerd/config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(containerd), "SystemdCgroup = true")

	sources, err := os.ReadFile(filepath.Join(root, "etc/apt/sources.list.d/kubernetes.list"))
	require.NoError(t, err)
	assert.Contains(t, string(sources), "v1.31")
}

func TestEnsureInstalled_StepFailureIsFatal(t *testing.T) {
	t.Parallel()
	runner := &system.FakeRunner{
		Missing: []string{"kubeadm"},
		Errors:  map[string]error{"modprobe br_netfilter": errors.New("module not found")},
	}
	inst, _ := newInstaller(t, runner)

	err := inst.EnsureInstalled(context.Background(), "1.31.4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load kernel modules")
	assert.False(t, runner.CalledWith("apt-get"), "later steps must not run after a fatal step")
}

func TestMinorSeries(t *testing.T) {
	t.Parallel()
	series, err := minorSeries("1.31.4")
	require.NoError(t, err)
	assert.Equal(t, "v1.31", series)

	_, err = minorSeries("31")
	assert.Error(t, err)
}
