// Package controlplane bootstraps the cluster control plane on the leader
// node and publishes the one-time join credential to the rendezvous
// channel for workers.
package controlplane

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/rhillum/clusterforge/internal/config"
	"github.com/rhillum/clusterforge/internal/k8s"
	"github.com/rhillum/clusterforge/internal/nodestate"
	"github.com/rhillum/clusterforge/internal/rendezvous"
	"github.com/rhillum/clusterforge/internal/retry"
	"github.com/rhillum/clusterforge/internal/system"
)

// AdminConfPath is where kubeadm writes the cluster-admin kubeconfig.
const AdminConfPath = "/etc/kubernetes/admin.conf"

// Initializer drives the leader through
// Uninitialized -> Initializing -> Initialized.
type Initializer struct {
	cfg     *config.Config
	runner  system.Runner
	channel rendezvous.Channel
	log     *logrus.Entry
	state   *nodestate.Store

	// root prefixes filesystem probes and writes; tests point it at a
	// temp dir.
	root string

	// healthProbe answers whether the control-plane API is live; the
	// default builds a client from the admin kubeconfig.
	healthProbe func(ctx context.Context) error

	// out receives the join command when the rendezvous channel is
	// unavailable and the operator must hand it over manually.
	out io.Writer
}

// New constructs an Initializer against the real host.
func New(cfg *config.Config, runner system.Runner, channel rendezvous.Channel, log *logrus.Entry, state *nodestate.Store) *Initializer {
	in := &Initializer{
		cfg:     cfg,
		runner:  runner,
		channel: channel,
		log:     log,
		state:   state,
		root:    "/",
		out:     os.Stdout,
	}
	in.healthProbe = in.defaultHealthProbe
	return in
}

// Initialize is idempotent: when the admin kubeconfig exists and the API
// answers a liveness query the node is already initialized and nothing
// runs. Otherwise it performs the full bootstrap, publishes the join
// credential, and waits for API readiness within the configured attempt
// budget.
func (in *Initializer) Initialize(ctx context.Context) error {
	if in.alreadyInitialized(ctx) {
		in.log.Info("control plane already initialized, nothing to do")
		in.markInitialized()
		return nil
	}

	advertise, err := in.resolveAdvertiseAddress()
	if err != nil {
		return err
	}
	in.log.Infof("initializing control plane, advertise address %s", advertise)

	if err := in.runKubeadmInit(ctx, advertise); err != nil {
		return fmt.Errorf("kubeadm init failed: %w", err)
	}

	if err := in.installAdminKubeconfigs(ctx); err != nil {
		return fmt.Errorf("failed to install admin kubeconfig: %w", err)
	}

	joinCommand, err := in.mintJoinCredential(ctx)
	if err != nil {
		return fmt.Errorf("failed to create join credential: %w", err)
	}

	in.publish(ctx, joinCommand)

	if err := in.waitForAPIServer(ctx); err != nil {
		return fmt.Errorf("control plane did not become ready: %w", err)
	}

	in.log.Info("control plane initialized")
	in.markInitialized()
	return nil
}

// alreadyInitialized requires both signals: the credentials file on disk
// and a live API. Either alone is not proof (a half-finished init leaves
// files behind; a live API with no local credentials means this node is
// not the leader that ran init).
func (in *Initializer) alreadyInitialized(ctx context.Context) bool {
	if _, err := os.Stat(in.adminConfPath()); err != nil {
		return false
	}
	if err := in.healthProbe(ctx); err != nil {
		in.log.Debugf("admin kubeconfig present but control plane not answering: %v", err)
		return false
	}
	return true
}

func (in *Initializer) resolveAdvertiseAddress() (string, error) {
	if in.cfg.Network.AdvertiseAddress != "" {
		return in.cfg.Network.AdvertiseAddress, nil
	}
	addr, err := primaryAddress()
	if err != nil {
		return "", fmt.Errorf("no advertise address configured and none derivable: %w", err)
	}
	return addr, nil
}

func (in *Initializer) runKubeadmInit(ctx context.Context, advertise string) error {
	args := []string{
		"init",
		"--pod-network-cidr", in.cfg.Network.PodCIDR,
		"--service-cidr", in.cfg.Network.ServiceCIDR,
		"--apiserver-advertise-address", advertise,
		"--kubernetes-version", in.cfg.KubernetesVersion,
	}
	if in.cfg.Network.ControlPlaneEndpoint != "" {
		args = append(args, "--control-plane-endpoint", in.cfg.Network.ControlPlaneEndpoint)
	}

	// Long-running; the runner streams kubeadm's phase output to the
	// terminal so the operator can follow along.
	return in.runner.Run(ctx, "kubeadm", args...)
}

// installAdminKubeconfigs configures administrative access for root and,
// when running under sudo, for the invoking login account with restrictive
// permissions.
func (in *Initializer) installAdminKubeconfigs(ctx context.Context) error {
	adminConf, err := os.ReadFile(in.adminConfPath())
	if err != nil {
		return err
	}

	if err := in.writeKubeconfig(filepath.Join(in.root, "root", ".kube", "config"), adminConf); err != nil {
		return err
	}

	sudoUser := os.Getenv("SUDO_USER")
	if sudoUser == "" || sudoUser == "root" {
		return nil
	}

	account, err := user.Lookup(sudoUser)
	if err != nil {
		in.log.Warnf("cannot resolve sudo user %s, skipping their kubeconfig: %v", sudoUser, err)
		return nil
	}

	target := filepath.Join(in.root, strings.TrimPrefix(account.HomeDir, "/"), ".kube", "config")
	if err := in.writeKubeconfig(target, adminConf); err != nil {
		return err
	}
	return in.runner.Run(ctx, "chown", "-R", fmt.Sprintf("%s:%s", account.Uid, account.Gid), filepath.Dir(target))
}

func (in *Initializer) writeKubeconfig(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o600)
}

// mintJoinCredential creates a fresh bootstrap token and returns the full
// join command. The command is validated against the same grammar workers
// enforce, so a publish can never hand out something a worker would
// reject.
func (in *Initializer) mintJoinCredential(ctx context.Context) (string, error) {
	out, err := in.runner.Output(ctx, "kubeadm", "token", "create", "--print-join-command")
	if err != nil {
		return "", err
	}

	joinCommand := strings.TrimSpace(out)
	if _, err := rendezvous.ParseJoinCommand(joinCommand); err != nil {
		return "", fmt.Errorf("kubeadm produced an unexpected join command: %w", err)
	}
	return joinCommand, nil
}

// publish hands the credential to the rendezvous channel. Channel
// unavailability is deliberately non-fatal: the cluster is up, so the
// operator gets the join command on the terminal instead.
func (in *Initializer) publish(ctx context.Context, joinCommand string) {
	snapshot := in.clusterInfoSnapshot(ctx)

	if err := in.channel.Publish(ctx, joinCommand, snapshot); err != nil {
		in.log.Warnf("could not publish join credential: %v", err)
		in.log.Warn("hand the following command to each worker manually:")
		fmt.Fprintf(in.out, "\n  %s\n\n", joinCommand)
		return
	}
	in.log.Info("join credential published to rendezvous channel")
}

func (in *Initializer) clusterInfoSnapshot(ctx context.Context) string {
	out, err := in.runner.Output(ctx, "kubectl", "cluster-info", "--kubeconfig", in.adminConfPath())
	if err != nil {
		in.log.Debugf("cluster-info snapshot unavailable: %v", err)
		return fmt.Sprintf("cluster %s: control plane endpoint %s", in.cfg.ClusterName, in.cfg.Network.ControlPlaneEndpoint)
	}
	return out
}

func (in *Initializer) waitForAPIServer(ctx context.Context) error {
	timeouts := in.cfg.Timeouts
	in.log.Infof("waiting for control plane readiness (up to %d attempts at %s intervals)",
		timeouts.ReadinessAttempts, timeouts.ReadinessInterval)

	return retry.PollAttempts(ctx, timeouts.ReadinessInterval, timeouts.ReadinessAttempts, func(ctx context.Context) (bool, error) {
		if err := in.healthProbe(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
}

func (in *Initializer) defaultHealthProbe(ctx context.Context) error {
	client, err := k8s.NewClient(in.adminConfPath())
	if err != nil {
		return err
	}
	return client.Healthz(ctx)
}

func (in *Initializer) adminConfPath() string {
	return filepath.Join(in.root, strings.TrimPrefix(AdminConfPath, "/"))
}

func (in *Initializer) markInitialized() {
	if err := in.state.Transition(nodestate.Initialized, config.RoleLeader); err != nil {
		in.log.Warnf("could not persist lifecycle state: %v", err)
	}
}

// primaryAddress derives the default advertise address from the interface
// holding the default route.
func primaryAddress() (string, error) {
	conn, err := net.Dial("udp4", "8.8.8.8:53")
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close() }()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return "", fmt.Errorf("unexpected local address type %T", conn.LocalAddr())
	}
	return addr.IP.String(), nil
}
