// Package installer ensures the cluster agent runtime (containerd +
// kubelet) and the CLI tooling (kubeadm, kubectl) are present on the node
// at the desired version. The whole sequence is safe to re-run: the happy
// path on an already-installed node performs no mutation at all.
package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rhillum/clusterforge/internal/nodestate"
	"github.com/rhillum/clusterforge/internal/system"
)

// Packages managed by the installer.
var managedPackages = []string{"kubelet", "kubeadm", "kubectl"}

const (
	modulesConfPath = "/etc/modules-load.d/k8s.conf"
	sysctlConfPath  = "/etc/sysctl.d/99-kubernetes-cri.conf"
	keyringPath     = "/etc/apt/keyrings/kubernetes-apt-keyring.gpg"
	sourcesPath     = "/etc/apt/sources.list.d/kubernetes.list"
	containerdConf  = "/etc/containerd/config.toml"
)

const modulesConf = "overlay\nbr_netfilter\n"

const sysctlConf = `net.bridge.bridge-nf-call-iptables  = 1
net.bridge.bridge-nf-call-ip6tables = 1
net.ipv4.ip_forward                 = 1
`

// Installer brings one node to the Installed lifecycle phase.
type Installer struct {
	runner system.Runner
	log    *logrus.Entry
	state  *nodestate.Store
	role   string

	// root prefixes all file writes; tests point it at a temp dir.
	root string
}

// New constructs an Installer writing to the real filesystem root.
func New(runner system.Runner, log *logrus.Entry, state *nodestate.Store, role string) *Installer {
	return &Installer{runner: runner, log: log, state: state, role: role, root: "/"}
}

// NewWithRoot is New with a filesystem prefix, for tests.
func NewWithRoot(runner system.Runner, log *logrus.Entry, state *nodestate.Store, role, root string) *Installer {
	inst := New(runner, log, state, role)
	inst.root = root
	return inst
}

// EnsureInstalled is idempotent: when the binaries are present and the
// installed kubeadm version matches desiredVersion it returns success with
// no side effects. A version mismatch is logged and falls through to a full
// re-install. Any step failure is fatal; no partial-install remediation is
// attempted, but every step is safe to retry on a re-run.
func (i *Installer) EnsureInstalled(ctx context.Context, desiredVersion string) error {
	desired := strings.TrimPrefix(desiredVersion, "v")

	installed, version := i.probeInstalled(ctx)
	if installed {
		if version == desired {
			i.log.Infof("kubeadm %s already installed, nothing to do", version)
			i.markInstalled()
			return nil
		}
		i.log.Warnf("installed version %s differs from desired %s, re-installing", version, desired)
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"disable swap", i.disableSwap},
		{"load kernel modules", i.loadKernelModules},
		{"apply sysctl parameters", i.applySysctls},
		{"install container runtime", i.installContainerRuntime},
		{"add package repository", func(ctx context.Context) error { return i.addPackageRepo(ctx, desired) }},
		{"install packages", func(ctx context.Context) error { return i.installPackages(ctx, desired) }},
		{"enable kubelet", i.enableKubelet},
	}

	for idx, step := range steps {
		i.log.Infof("step %d/%d: %s", idx+1, len(steps), step.name)
		if err := step.fn(ctx); err != nil {
			return fmt.Errorf("install step %q failed: %w", step.name, err)
		}
	}

	i.log.Infof("node installed at kubernetes %s", desired)
	i.markInstalled()
	return nil
}

// probeInstalled reports whether all managed binaries are on PATH, and the
// kubeadm version when they are.
func (i *Installer) probeInstalled(ctx context.Context) (bool, string) {
	for _, name := range managedPackages {
		if _, err := i.runner.LookPath(name); err != nil {
			return false, ""
		}
	}

	out, err := i.runner.Output(ctx, "kubeadm", "version", "-o", "short")
	if err != nil {
		return false, ""
	}
	return true, strings.TrimPrefix(strings.TrimSpace(out), "v")
}

func (i *Installer) disableSwap(ctx context.Context) error {
	if err := i.runner.Run(ctx, "swapoff", "-a"); err != nil {
		return err
	}
	// Comment out swap entries so the node survives a reboot.
	return i.runner.Run(ctx, "sed", "-ri", `s|^([^#].*\sswap\s)|# \1|`, "/etc/fstab")
}

func (i *Installer) loadKernelModules(ctx context.Context) error {
	if err := i.writeFile(modulesConfPath, modulesConf, 0o644); err != nil {
		return err
	}
	for _, module := range []string{"overlay", "br_netfilter"} {
		if err := i.runner.Run(ctx, "modprobe", module); err != nil {
			return err
		}
	}
	return nil
}

func (i *Installer) applySysctls(ctx context.Context) error {
	if err := i.writeFile(sysctlConfPath, sysctlConf, 0o644); err != nil {
		return err
	}
	return i.runner.Run(ctx, "sysctl", "--system")
}

func (i *Installer) installContainerRuntime(ctx context.Context) error {
	if err := i.runner.Run(ctx, "apt-get", "update"); err != nil {
		return err
	}
	if err := i.runner.Run(ctx, "apt-get", "install", "-y", "containerd"); err != nil {
		return err
	}

	// The kubelet requires the systemd cgroup driver; containerd defaults
	// to cgroupfs.
	defaults, err := i.runner.Output(ctx, "containerd", "config", "default")
	if err != nil {
		return err
	}
	patched := strings.Replace(defaults, "SystemdCgroup = false", "SystemdCgroup = true", 1)
	if err := i.writeFile(containerdConf, patched+"\n", 0o644); err != nil {
		return err
	}
	return i.runner.Run(ctx, "systemctl", "restart", "containerd")
}

func (i *Installer) addPackageRepo(ctx context.Context, desired string) error {
	minor, err := minorSeries(desired)
	if err != nil {
		return err
	}

	if err := i.runner.Run(ctx, "apt-get", "install", "-y", "apt-transport-https", "ca-certificates", "curl", "gpg"); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(i.root, filepath.Dir(keyringPath)), 0o755); err != nil {
		return err
	}

	keyURL := fmt.Sprintf("https://pkgs.k8s.io/core:/stable:/%s/deb/Release.key", minor)
	key, err := i.runner.Output(ctx, "curl", "-fsSL", keyURL)
	if err != nil {
		return err
	}
	armoredPath := keyringPath + ".asc"
	if err := i.writeFile(armoredPath, key+"\n", 0o644); err != nil {
		return err
	}
	if err := i.runner.Run(ctx, "gpg", "--batch", "--yes", "--dearmor",
		"-o", filepath.Join(i.root, keyringPath), filepath.Join(i.root, armoredPath)); err != nil {
		return err
	}

	entry := fmt.Sprintf("deb [signed-by=%s] https://pkgs.k8s.io/core:/stable:/%s/deb/ /\n", keyringPath, minor)
	return i.writeFile(sourcesPath, entry, 0o644)
}

func (i *Installer) installPackages(ctx context.Context, desired string) error {
	if err := i.runner.Run(ctx, "apt-get", "update"); err != nil {
		return err
	}

	args := []string{"install", "-y"}
	for _, pkg := range managedPackages {
		args = append(args, fmt.Sprintf("%s=%s-*", pkg, desired))
	}
	if err := i.runner.Run(ctx, "apt-get", args...); err != nil {
		return err
	}

	// Pin the packages so unattended upgrades cannot skew the cluster.
	return i.runner.Run(ctx, "apt-mark", append([]string{"hold"}, managedPackages...)...)
}

// enableKubelet enables the service without requiring a successful start:
// the kubelet crash-loops by design until kubeadm writes its config.
func (i *Installer) enableKubelet(ctx context.Context) error {
	return i.runner.Run(ctx, "systemctl", "enable", "--now", "kubelet")
}

func (i *Installer) writeFile(path, content string, mode os.FileMode) error {
	full := filepath.Join(i.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(content), mode)
}

// markInstalled records the lifecycle transition; the record is advisory,
// so persistence failures only warn.
func (i *Installer) markInstalled() {
	if err := i.state.Transition(nodestate.Installed, i.role); err != nil {
		i.log.Warnf("could not persist lifecycle state: %v", err)
	}
}

// minorSeries maps "1.31.4" to the package repository series "v1.31".
func minorSeries(version string) (string, error) {
	parts := strings.Split(version, ".")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("cannot derive minor series from version %q", version)
	}
	return "v" + parts[0] + "." + parts[1], nil
}
